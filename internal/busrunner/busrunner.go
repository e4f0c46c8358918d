// Package busrunner drives a prlsc.Bus over an io.ReadWriter: it is the
// concrete realization of the read-drain / write-drain / dispatch loop
// every embedder of the core must supply for itself.
package busrunner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fragmuffin/prlsc"
)

// Handler processes one completed datagram for a given service.
type Handler func(dg prlsc.Datagram)

// Runner owns the I/O loop around a Bus. The core is not reentrant, so
// every call into bus (from the receive goroutine, the transmit-drain
// goroutine, and any heartbeat/scheduler goroutine sharing this Bus) must
// go through Runner's mutex.
type Runner struct {
	mu     sync.Mutex
	bus    *prlsc.Bus
	r      io.Reader
	w      *bufio.Writer
	logger *slog.Logger

	handlers [prlsc.MaxServices]Handler
}

// New builds a Runner reading from r and writing to w (often the same
// underlying connection, split so callers can wrap either side
// independently, e.g. with a serialport.PacedWriter on w). w is buffered
// internally and flushed once per drained frame, so a PacedWriter beneath
// it sees one Write call per frame rather than one per byte.
//
// The Runner is built before its Bus exists, because SendByte and
// Dispatch below must be wired into prlsc.Config before NewBus can
// validate and construct the Bus they belong to. Call SetBus once the
// Bus is built, before calling Run.
func New(r io.Reader, w io.Writer, logger *slog.Logger) *Runner {
	return &Runner{r: r, w: bufio.NewWriter(w), logger: logger}
}

// SetBus attaches the Bus this Runner drives. Must be called exactly
// once, before Run or WithBus.
func (run *Runner) SetBus(bus *prlsc.Bus) {
	run.mu.Lock()
	defer run.mu.Unlock()
	run.bus = bus
}

// SendByte is installed as Config.SendByte for a Bus driven by this
// Runner. Write errors are logged and otherwise swallowed: the core has
// no error-return path on the hot path, so there is nothing for
// SendByte itself to propagate to.
func (run *Runner) SendByte(b byte) {
	if err := run.w.WriteByte(b); err != nil {
		run.logger.Error("writing byte to bus transport", "error", err)
	}
}

// OnDatagram registers the handler invoked for datagrams arriving on
// serviceIndex. Replaces any previously registered handler.
func (run *Runner) OnDatagram(serviceIndex uint8, h Handler) {
	if int(serviceIndex) >= len(run.handlers) {
		return
	}
	run.handlers[serviceIndex] = h
}

// Dispatch is the function to install as Config.ReceivedDatagram for a
// Bus driven by this Runner.
func (run *Runner) Dispatch(dg prlsc.Datagram) {
	if h := run.handlers[dg.ServiceIndex]; h != nil {
		h(dg)
	}
}

// WithBus runs fn with exclusive access to the underlying Bus. Used by
// callers (e.g. internal/heartbeat) that need to call TransmitDatagram
// from outside the Runner's own goroutines.
func (run *Runner) WithBus(fn func(bus *prlsc.Bus)) {
	run.mu.Lock()
	defer run.mu.Unlock()
	fn(run.bus)
}

// Run starts the receive goroutine and blocks in the transmit-drain loop
// until ctx is cancelled. The receive goroutine issues one blocking Read
// call at a time directly against r; a real serial port in raw mode
// blocks until at least one byte arrives (VMIN=1), so the loop wakes
// exactly when there are bytes to push.
func (run *Runner) Run(ctx context.Context, txPollInterval time.Duration) error {
	if txPollInterval <= 0 {
		txPollInterval = 5 * time.Millisecond
	}

	recvErr := make(chan error, 1)
	go run.receiveLoop(ctx, recvErr)

	ticker := time.NewTicker(txPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-recvErr:
			return fmt.Errorf("reading from bus transport: %w", err)
		case <-ticker.C:
			run.mu.Lock()
			run.drainTransmit()
			run.mu.Unlock()
		}
	}
}

func (run *Runner) receiveLoop(ctx context.Context, errOut chan<- error) {
	buf := make([]byte, 256)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := run.r.Read(buf)
		if n > 0 {
			run.mu.Lock()
			for _, b := range buf[:n] {
				run.bus.ReceiveByte(b)
			}
			run.mu.Unlock()
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			select {
			case errOut <- err:
			default:
			}
			return
		}
	}
}

// drainTransmit sends every frame currently ready across every service,
// in priority order, until none remain eligible (empty or rate-limited).
// Callers must hold the Runner's mutex.
func (run *Runner) drainTransmit() {
	for {
		ready, _, _ := run.bus.PrepareServiceTransmission()
		if !ready {
			return
		}
		for run.bus.TxByte() {
		}
		if err := run.w.Flush(); err != nil {
			run.logger.Error("flushing bus transport", "error", err)
		}
	}
}
