package busrunner

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fragmuffin/prlsc"
	"github.com/fragmuffin/prlsc/internal/serialport"
)

func xorChecksum(data []byte) byte {
	var x byte
	for _, b := range data {
		x ^= b
	}
	return x
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRunnerBus(t *testing.T, rw io.ReadWriter, received chan<- prlsc.Datagram) *Runner {
	t.Helper()

	runner := New(rw, rw, discardLogger())
	runner.OnDatagram(0, func(dg prlsc.Datagram) {
		cp := make([]byte, dg.Length)
		copy(cp, dg.Data)
		received <- prlsc.Datagram{ServiceIndex: dg.ServiceIndex, Length: dg.Length, Data: cp}
	})

	cfg := prlsc.Config{
		StartFrame:        prlsc.DefaultStartFrame,
		Esc:               prlsc.DefaultEsc,
		EscStart:          prlsc.DefaultEscStart,
		EscEsc:            prlsc.DefaultEscEsc,
		FrameLengthMax:    32,
		DatagramLengthMax: 64,
		ServiceCount:      1,
		GetTime:           func() uint16 { return uint16(time.Now().UnixMilli()) },
		ChecksumCalc:      xorChecksum,
		SendByte:          runner.SendByte,
		ReceivedDatagram:  runner.Dispatch,
	}
	cfg.Services[0] = prlsc.ServiceConfig{IsStream: true}

	bus, err := prlsc.NewBus(cfg, [prlsc.MaxServices]int{256})
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}
	runner.SetBus(bus)
	return runner
}

func TestRunner_RoundTripsDatagram(t *testing.T) {
	a, b := serialport.NewLoopbackPair()
	received := make(chan prlsc.Datagram, 1)

	senderRunner := newRunnerBus(t, a, make(chan prlsc.Datagram, 1))
	receiverRunner := newRunnerBus(t, b, received)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go senderRunner.Run(ctx, time.Millisecond)
	go receiverRunner.Run(ctx, time.Millisecond)

	senderRunner.WithBus(func(bus *prlsc.Bus) {
		n := bus.TransmitDatagram(prlsc.Datagram{ServiceIndex: 0, Length: 3, Data: []byte{1, 2, 3}})
		if n == 0 {
			t.Fatalf("TransmitDatagram rejected: error_code=%s", bus.ErrorCode.String())
		}
	})

	select {
	case dg := <-received:
		if dg.Length != 3 || string(dg.Data) != string([]byte{1, 2, 3}) {
			t.Errorf("received datagram = %+v, want {Length:3 Data:[1 2 3]}", dg)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for datagram to round-trip through the loopback pair")
	}
}
