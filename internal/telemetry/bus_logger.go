package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fragmuffin/prlsc"
)

// fanOutHandler dispatches every record to two handlers. Used to log
// simultaneously to the process-wide logger and a device-specific trail
// file, without either depending on the other.
type fanOutHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func (h *fanOutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.secondary.Enabled(ctx, level)
}

func (h *fanOutHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.primary.Enabled(ctx, r.Level) {
		if err := h.primary.Handle(ctx, r); err != nil {
			return err
		}
	}
	// A failure writing the device trail must never block the primary log.
	if h.secondary.Enabled(ctx, r.Level) {
		_ = h.secondary.Handle(ctx, r)
	}
	return nil
}

func (h *fanOutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanOutHandler{primary: h.primary.WithAttrs(attrs), secondary: h.secondary.WithAttrs(attrs)}
}

func (h *fanOutHandler) WithGroup(name string) slog.Handler {
	return &fanOutHandler{primary: h.primary.WithGroup(name), secondary: h.secondary.WithGroup(name)}
}

// NewDeviceLogger returns a logger that writes to baseLogger and also
// fans out to a dedicated trail file under
// {traceDir}/{base name of deviceName}.log. If traceDir is empty, baseLogger is
// returned unmodified. The returned Closer must be called on shutdown.
func NewDeviceLogger(baseLogger *slog.Logger, traceDir, deviceName string) (*slog.Logger, io.Closer, error) {
	if traceDir == "" {
		return baseLogger, nopCloser{}, nil
	}

	if err := os.MkdirAll(traceDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating bus trace directory %s: %w", traceDir, err)
	}

	path := filepath.Join(traceDir, filepath.Base(deviceName)+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening bus trace file %s: %w", path, err)
	}

	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	combined := &fanOutHandler{primary: baseLogger.Handler(), secondary: fileHandler}
	return slog.New(combined), f, nil
}

// Observer watches a Bus after each driving-loop tick and logs any newly
// observed error code. It keeps no locks of its own: callers must already
// be serialising access to the Bus, exactly as the core requires.
type Observer struct {
	logger   *slog.Logger
	lastSeen prlsc.ErrorCode
}

// NewObserver returns an Observer bound to a logger. Call Check once per
// driving-loop iteration, after ReceiveByte/TxByte calls and before
// clearing bus.ErrorCode.
func NewObserver(logger *slog.Logger) *Observer {
	return &Observer{logger: logger}
}

// Check logs a warning whenever code is not ErrNone and differs from the
// code passed to the previous Check call, then returns it so the caller
// can decide whether to reset it.
func (o *Observer) Check(code prlsc.ErrorCode, deviceName string) prlsc.ErrorCode {
	if code != prlsc.ErrNone && code != o.lastSeen {
		o.logger.Warn("bus error observed",
			"device", deviceName,
			"error_code", code.String(),
		)
	}
	o.lastSeen = code
	return code
}
