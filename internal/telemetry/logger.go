// Package telemetry wires the bus's lifecycle events to structured logs.
package telemetry

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects where and how bus lifecycle logs are written.
type Options struct {
	// Level is a slog level name ("debug", "info", "warn", "error");
	// unrecognised or empty values fall back to info.
	Level string
	// Format is "json" (default) or "text".
	Format string
	// File, when non-empty, duplicates every record to an append-only
	// file alongside stdout.
	File string
}

// New builds the process logger for a PRLSC host. The returned Closer
// must be called on shutdown; it is a no-op unless opts.File is set.
//
// The logger itself carries no bus attributes: one process may host
// several buses, so NewDeviceLogger scopes a per-device child, and the
// driving loop and error Observer attach service index, error code and
// counter fields at their call sites.
func New(opts Options) (*slog.Logger, io.Closer) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(opts.Level)); err != nil {
		lvl = slog.LevelInfo
	}

	dest := io.Writer(os.Stdout)
	closer := io.Closer(nopCloser{})
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "WARNING: could not open log file %q: %v (logging to stdout only)\n", opts.File, err)
		} else {
			dest = io.MultiWriter(os.Stdout, f)
			closer = f
		}
	}

	hopts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(opts.Format, "text") {
		return slog.New(slog.NewTextHandler(dest, hopts)), closer
	}
	return slog.New(slog.NewJSONHandler(dest, hopts)), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
