// Package heartbeat cron-schedules a periodic diagnostics datagram onto a
// prlsc.Bus, standing in for the kind of "I'm alive, here is my state"
// sensor payload a real embedded node would emit on a fixed cadence.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/fragmuffin/prlsc"
)

// Scheduler drives one cron-scheduled heartbeat per configured Entry.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// Entry is one heartbeat's scheduling and payload source.
type Entry struct {
	Name            string
	Schedule        string // standard 5-field cron expression
	ServiceIndex    uint8
	SubServiceIndex uint8
	// Payload is invoked at each firing to build the datagram body. An
	// error is logged and the tick skipped, never propagated to cron.
	Payload func() ([]byte, error)
}

// Transmitter is the synchronized entry point a Scheduler uses to push a
// datagram onto a Bus; callers pass something like Runner.WithBus bound
// to a single TransmitDatagram call, so the cron goroutine never touches
// the Bus without going through the driving loop's own locking.
type Transmitter func(dg prlsc.Datagram) (enqueued int, errorCode prlsc.ErrorCode)

// NewScheduler registers one cron job per entry, each of which calls
// transmit with that entry's freshly built payload. cron invokes jobs
// from its own goroutine, so transmit must itself be safe to call
// concurrently with whatever else is driving the Bus.
func NewScheduler(transmit Transmitter, logger *slog.Logger, entries []Entry) (*Scheduler, error) {
	s := &Scheduler{
		logger: logger,
		cron:   cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug)))),
	}

	for _, e := range entries {
		entry := e
		if _, err := s.cron.AddFunc(entry.Schedule, func() {
			s.fire(transmit, entry)
		}); err != nil {
			return nil, fmt.Errorf("registering heartbeat %q: %w", entry.Name, err)
		}
		logger.Info("registered heartbeat", "name", entry.Name, "schedule", entry.Schedule, "service", entry.ServiceIndex)
	}

	return s, nil
}

func (s *Scheduler) fire(transmit Transmitter, e Entry) {
	payload, err := e.Payload()
	if err != nil {
		s.logger.Error("heartbeat payload failed", "name", e.Name, "error", err)
		return
	}

	n, errorCode := transmit(prlsc.Datagram{
		ServiceIndex:    e.ServiceIndex,
		SubServiceIndex: e.SubServiceIndex,
		Length:          len(payload),
		Data:            payload,
	})
	if n == 0 {
		s.logger.Warn("heartbeat dropped, tx buffer full or datagram rejected", "name", e.Name, "error_code", errorCode.String())
		return
	}
	s.logger.Debug("heartbeat enqueued", "name", e.Name, "frames", n)
}

// Start begins firing scheduled heartbeats.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop drains in-flight jobs and stops the scheduler.
func (s *Scheduler) Stop(ctx context.Context) {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.logger.Info("heartbeat scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("heartbeat scheduler stop timed out")
	}
}
