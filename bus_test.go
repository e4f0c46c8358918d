package prlsc

import (
	"bytes"
	"testing"
)

func newTwoServiceBus(t *testing.T) (*Bus, *fakeClock, *wireSink, *[]Datagram) {
	t.Helper()
	clock := &fakeClock{}
	sink := &wireSink{}
	received := &[]Datagram{}
	cfg := twoServiceConfig(clock, received)
	cfg.SendByte = sink.send

	b, err := NewBus(cfg, [MaxServices]int{})
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}
	return b, clock, sink, received
}

// A short diagnostics datagram round-trips through its own wire bytes:
// one full frame holding the three data bytes and the datagram checksum,
// then an empty terminator frame.
func TestScenario_ShortDiagnosticsRoundTrip(t *testing.T) {
	b, _, sink, received := newTwoServiceBus(t)

	n := b.TransmitDatagram(Datagram{ServiceIndex: 1, SubServiceIndex: 0, Length: 3, Data: []byte{0x01, 0x02, 0x03}, Checksum: 0x00})
	if n != 2 {
		t.Fatalf("expected 2 frames enqueued, got %d", n)
	}

	frames := drainTransmit(b)
	if frames != 2 {
		t.Fatalf("expected 2 frames drained, got %d", frames)
	}

	want := []byte{
		0xC0, 0x20, 0x04, 0x01, 0x02, 0x03, 0x00, 0x24,
		0xC0, 0x20, 0x00, 0x20,
	}
	if !bytes.Equal(sink.bytes, want) {
		t.Fatalf("wire bytes:\n got  %#v\n want %#v", sink.bytes, want)
	}

	feedBytes(b, sink.bytes)
	if len(*received) != 1 {
		t.Fatalf("expected 1 datagram delivered, got %d", len(*received))
	}
	dg := (*received)[0]
	if !bytes.Equal(dg.Data, []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("payload = %v, want [1 2 3]", dg.Data)
	}
	if dg.ServiceIndex != 1 {
		t.Fatalf("serviceIndex = %d, want 1", dg.ServiceIndex)
	}
}

// Escape bytes inside a stream payload survive the wire encoding.
func TestScenario_EscapeInPayload(t *testing.T) {
	b, _, sink, received := newTwoServiceBus(t)

	n := b.TransmitDatagram(Datagram{ServiceIndex: 0, SubServiceIndex: 0, Length: 2, Data: []byte{0xC0, 0xDB}})
	if n != 1 {
		t.Fatalf("expected 1 frame, got %d", n)
	}
	drainTransmit(b)

	// Exactly one unescaped 0xC0 (the start byte); the payload's 0xC0
	// and 0xDB both appear escaped.
	if bytes.Count(sink.bytes, []byte{0xC0}) != 1 {
		t.Fatalf("expected exactly one literal start byte, got wire %#v", sink.bytes)
	}
	if !bytes.Contains(sink.bytes, []byte{0xDB, 0xDC}) {
		t.Fatalf("expected escaped start byte 0xDB,0xDC in payload region, got %#v", sink.bytes)
	}
	if !bytes.Contains(sink.bytes, []byte{0xDB, 0xDD}) {
		t.Fatalf("expected escaped esc byte 0xDB,0xDD in payload region, got %#v", sink.bytes)
	}

	feedBytes(b, sink.bytes)
	if len(*received) != 1 {
		t.Fatalf("expected 1 datagram, got %d", len(*received))
	}
	if !bytes.Equal((*received)[0].Data, []byte{0xC0, 0xDB}) {
		t.Fatalf("payload = %v, want [C0 DB]", (*received)[0].Data)
	}
}

// A corrupted frame is rejected, and correct frames after it still
// deliver.
func TestScenario_BadChecksumRejection(t *testing.T) {
	b, _, sink, received := newTwoServiceBus(t)

	b.TransmitDatagram(Datagram{ServiceIndex: 1, Length: 3, Data: []byte{0x01, 0x02, 0x03}})
	drainTransmit(b)
	wire := append([]byte(nil), sink.bytes...)

	corrupt := append([]byte(nil), wire[:8]...) // first frame only
	corrupt[7] ^= 0x01                           // flip a bit of the frame checksum byte
	feedBytes(b, corrupt)

	if b.ErrorCode != ErrRXFrameBadChecksum {
		t.Fatalf("ErrorCode = %v, want ErrRXFrameBadChecksum", b.ErrorCode)
	}
	if len(*received) != 0 {
		t.Fatalf("expected no delivery from corrupted frame, got %d", len(*received))
	}

	b.ErrorCode = ErrNone
	feedBytes(b, wire)
	if len(*received) != 1 {
		t.Fatalf("expected 1 datagram after a correct resend, got %d", len(*received))
	}
}

// Strict priority: svc0 is selected over svc1 even though svc1's data
// was enqueued first.
func TestScenario_PriorityOverInsertionOrder(t *testing.T) {
	b, _, _, _ := newTwoServiceBus(t)

	b.TransmitDatagram(Datagram{ServiceIndex: 1, Length: 1, Data: []byte{0xAA}})
	b.TransmitDatagram(Datagram{ServiceIndex: 0, Length: 1, Data: []byte{0xBB}})

	ready, svcIdx, _ := b.PrepareServiceTransmission()
	if !ready || svcIdx != 0 {
		t.Fatalf("ready=%v serviceIndex=%d, want ready=true serviceIndex=0", ready, svcIdx)
	}
}

// Rate limiting blocks then releases selection.
func TestScenario_RateLimit(t *testing.T) {
	clock := &fakeClock{}
	sink := &wireSink{}
	received := &[]Datagram{}
	cfg := twoServiceConfig(clock, received)
	cfg.SendByte = sink.send
	cfg.Services[0] = ServiceConfig{IsStream: true, RateLimit: 10}

	b, err := NewBus(cfg, [MaxServices]int{})
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}

	clock.set(100)
	b.TransmitDatagram(Datagram{ServiceIndex: 0, Length: 1, Data: []byte{0x01}})
	ready, svcIdx, _ := b.PrepareServiceTransmission()
	if !ready || svcIdx != 0 {
		t.Fatalf("first prepare: ready=%v idx=%d", ready, svcIdx)
	}
	for b.TxByte() {
	}

	clock.set(105)
	b.TransmitDatagram(Datagram{ServiceIndex: 0, Length: 1, Data: []byte{0x02}})
	ready, svcIdx, remaining := b.PrepareServiceTransmission()
	if ready {
		t.Fatalf("expected rate-limited service to be ineligible at tick 105")
	}
	if svcIdx != 0 || remaining != 5 {
		t.Fatalf("serviceIndex=%d remaining=%d, want 0, 5", svcIdx, remaining)
	}

	clock.set(110)
	ready, svcIdx, _ = b.PrepareServiceTransmission()
	if !ready || svcIdx != 0 {
		t.Fatalf("expected service 0 eligible at tick 110, got ready=%v idx=%d", ready, svcIdx)
	}
}

// A diagnostics payload whose length is an exact multiple of
// frameLengthMax requires a trailing terminator frame.
func TestScenario_ExactMultipleTerminator(t *testing.T) {
	b, _, sink, received := newTwoServiceBus(t)

	n := b.TransmitDatagram(Datagram{ServiceIndex: 1, Length: 4, Data: []byte{1, 2, 3, 4}, Checksum: xorChecksum([]byte{1, 2, 3, 4})})
	if n != 2 {
		t.Fatalf("expected 2 frames, got %d", n)
	}
	drainTransmit(b)

	if sink.bytes[2] != 4 {
		t.Fatalf("first frame length byte = %d, want 4 (full data frame)", sink.bytes[2])
	}

	feedBytes(b, sink.bytes)
	if len(*received) != 1 {
		t.Fatalf("expected 1 datagram, got %d", len(*received))
	}
	if !bytes.Equal((*received)[0].Data, []byte{1, 2, 3, 4}) {
		t.Fatalf("payload = %v, want [1 2 3 4]", (*received)[0].Data)
	}
}

// onlyTxLatest: enqueuing D1 then D2 with no intervening
// PrepareServiceTransmission means the next prepare carries D2, D1 lost.
func TestOnlyTxLatest_DiscardsStale(t *testing.T) {
	clock := &fakeClock{}
	sink := &wireSink{}
	received := &[]Datagram{}
	cfg := twoServiceConfig(clock, received)
	cfg.SendByte = sink.send
	cfg.Services[0] = ServiceConfig{IsStream: true, OnlyTxLatest: true}

	b, err := NewBus(cfg, [MaxServices]int{})
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}

	b.TransmitDatagram(Datagram{ServiceIndex: 0, Length: 1, Data: []byte{0x11}})
	b.TransmitDatagram(Datagram{ServiceIndex: 0, Length: 1, Data: []byte{0x22}})

	drainTransmit(b)
	feedBytes(b, sink.bytes)

	if len(*received) != 1 {
		t.Fatalf("expected exactly 1 delivered datagram, got %d", len(*received))
	}
	if (*received)[0].Data[0] != 0x22 {
		t.Fatalf("delivered payload = %v, want [0x22] (D1 should have been discarded)", (*received)[0].Data)
	}
}

// Mid-stream resync: an arbitrary prefix of junk followed by a valid
// frame still delivers the frame.
func TestFramingResync(t *testing.T) {
	b, _, sink, received := newTwoServiceBus(t)

	b.TransmitDatagram(Datagram{ServiceIndex: 0, Length: 2, Data: []byte{0x55, 0x66}})
	drainTransmit(b)

	junk := []byte{0x01, 0x02, 0xDB, 0x03}
	feedBytes(b, junk)
	feedBytes(b, sink.bytes)

	if len(*received) != 1 {
		t.Fatalf("expected 1 datagram despite junk prefix, got %d", len(*received))
	}
}
