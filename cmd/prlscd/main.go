// Command prlscd is a reference host process for a PRLSC link: it loads
// a BusConfig, opens the configured serial device (or an in-memory
// loopback demo pair when none is configured), and drives a prlsc.Bus
// over it, emitting a cron-scheduled diagnostics heartbeat carrying
// compressed host telemetry.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fragmuffin/prlsc"
	"github.com/fragmuffin/prlsc/internal/busconfig"
	"github.com/fragmuffin/prlsc/internal/busrunner"
	"github.com/fragmuffin/prlsc/internal/heartbeat"
	"github.com/fragmuffin/prlsc/internal/serialport"
	"github.com/fragmuffin/prlsc/internal/telemetry"
	"github.com/fragmuffin/prlsc/internal/telemetrysrc"
)

const (
	diagServiceIndex  uint8 = 0
	heartbeatSchedule       = "@every 30s"
)

func main() {
	configPath := flag.String("config", "/etc/prlscd/bus.yaml", "path to bus config file")
	flag.Parse()

	cfg, err := busconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := telemetry.New(telemetry.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	defer logCloser.Close()

	logger, traceCloser, err := telemetry.NewDeviceLogger(logger, cfg.Trace.Directory, cfg.Device.Path)
	if err != nil {
		logger.Error("failed to open bus trace log", "error", err)
		os.Exit(1)
	}
	defer traceCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error("prlscd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *busconfig.BusConfig, logger *slog.Logger) error {
	port, err := openTransport(cfg)
	if err != nil {
		return fmt.Errorf("opening transport: %w", err)
	}
	defer port.Close()

	sampler, err := telemetrysrc.NewHostSampler(logger)
	if err != nil {
		return fmt.Errorf("constructing host sampler: %w", err)
	}

	paced := serialport.NewPacedWriter(context.Background(), port, cfg.Device.PaceBytesPerSec,
		serialport.EncodedFrameMax(cfg.Limits.FrameLengthMax))
	runner := busrunner.New(port, paced, logger)
	runner.OnDatagram(diagServiceIndex, func(dg prlsc.Datagram) {
		snap, decodeErr := sampler.DecodePayload(dg.Data)
		if decodeErr != nil {
			logger.Error("failed to decode diagnostics payload", "error", decodeErr)
			return
		}
		logger.Info("diagnostics datagram received",
			"service", dg.ServiceIndex,
			"cpu_percent", snap.CPUPercent,
			"memory_percent", snap.MemoryPercent,
		)
	})

	start := time.Now()
	protoCfg := cfg.ToProtocolConfig()
	protoCfg.GetTime = func() uint16 { return uint16(time.Since(start).Milliseconds()) }
	protoCfg.ChecksumCalc = xorChecksum
	protoCfg.SendByte = runner.SendByte
	protoCfg.ReceivedDatagram = runner.Dispatch

	bus, err := prlsc.NewBus(protoCfg, cfg.TxBufferSizes())
	if err != nil {
		return fmt.Errorf("constructing bus: %w", err)
	}
	runner.SetBus(bus)

	transmit := func(dg prlsc.Datagram) (int, prlsc.ErrorCode) {
		if int(dg.ServiceIndex) < len(cfg.Services) && !cfg.Services[dg.ServiceIndex].Stream {
			dg.Checksum = xorChecksum(dg.Data[:dg.Length])
		}
		var n int
		var errorCode prlsc.ErrorCode
		runner.WithBus(func(bus *prlsc.Bus) {
			n = bus.TransmitDatagram(dg)
			errorCode = bus.ErrorCode
		})
		return n, errorCode
	}

	sched, err := heartbeat.NewScheduler(transmit, logger, []heartbeat.Entry{
		{
			Name:         "host-telemetry",
			Schedule:     heartbeatSchedule,
			ServiceIndex: diagServiceIndex,
			Payload:      sampler.EncodePayload,
		},
	})
	if err != nil {
		return fmt.Errorf("constructing heartbeat scheduler: %w", err)
	}
	sched.Start()
	defer sched.Stop(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	observer := telemetry.NewObserver(logger)
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runner.WithBus(func(bus *prlsc.Bus) {
					if observer.Check(bus.ErrorCode, cfg.Device.Path) != prlsc.ErrNone {
						bus.ErrorCode = prlsc.ErrNone
					}
				})
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	logger.Info("prlscd started", "device", cfg.Device.Path, "services", len(cfg.Services))
	if err := runner.Run(ctx, 5*time.Millisecond); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// openTransport opens the configured serial device, or falls back to an
// in-memory loopback pair when no device path is configured, so prlscd
// can be demoed without hardware. The far end of the pair is pumped by
// an echo goroutine: every transmitted frame arrives back on this
// process's own receiver. The pipes are unbuffered, so the far end must
// be drained or the first flushed frame would block the transmit loop
// forever. The goroutine exits when the near end is closed (its reads
// hit io.EOF).
func openTransport(cfg *busconfig.BusConfig) (io.ReadWriteCloser, error) {
	if cfg.Device.Path == "" {
		near, far := serialport.NewLoopbackPair()
		go io.Copy(far, far)
		return near, nil
	}
	return serialport.Open(cfg.Device.Path, cfg.Device.BaudRate)
}

// xorChecksum is the reference checksum: XOR of all covered bytes. Any
// algorithm satisfying the covered-byte-range contract in prlsc.Config is
// legal; XOR is cheap and sufficient for a demo host.
func xorChecksum(data []byte) byte {
	var x byte
	for _, b := range data {
		x ^= b
	}
	return x
}
