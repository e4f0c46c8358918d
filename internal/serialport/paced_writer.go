package serialport

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// fallbackBurst is used when the caller cannot name its largest write,
// sized to hold a worst-case encoded frame at the protocol's 255-byte
// frame data ceiling.
const fallbackBurst = 2*(255+3) + 1

// EncodedFrameMax returns the largest number of wire bytes one frame
// can occupy for a given frame data length ceiling: every byte after
// the start byte may escape-expand to two bytes.
func EncodedFrameMax(frameLengthMax int) int {
	return 2*(frameLengthMax+3) + 1
}

// PacedWriter caps the raw byte rate leaving the serial line. The bus
// arbiter already rate-limits per service, in ticks between frames;
// this sits below it and spaces out the bytes of the frames that do go
// out, for links whose far end drains a shallow RX FIFO between frames.
//
// The driving loop flushes once per encoded frame, so each Write is at
// most one frame long and costs a single token reservation. Larger
// writes are split.
type PacedWriter struct {
	w       io.Writer
	limiter *rate.Limiter
	ctx     context.Context
}

// NewPacedWriter returns a PacedWriter capped at bytesPerSec, able to
// pass writes of up to maxWriteBytes in one reservation; size it with
// EncodedFrameMax for the bus's configured frame length. A bytesPerSec
// <= 0 disables pacing and returns w unmodified.
func NewPacedWriter(ctx context.Context, w io.Writer, bytesPerSec int64, maxWriteBytes int) io.Writer {
	if bytesPerSec <= 0 {
		return w
	}
	if maxWriteBytes <= 0 {
		maxWriteBytes = fallbackBurst
	}

	return &PacedWriter{
		w:       w,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), maxWriteBytes),
		ctx:     ctx,
	}
}

// Write reserves len(p) tokens (splitting p if it exceeds the frame-
// sized burst), blocking until the configured rate allows the bytes out.
func (pw *PacedWriter) Write(p []byte) (int, error) {
	sent := 0
	for sent < len(p) {
		chunk := p[sent:]
		if len(chunk) > pw.limiter.Burst() {
			chunk = chunk[:pw.limiter.Burst()]
		}
		if err := pw.limiter.WaitN(pw.ctx, len(chunk)); err != nil {
			return sent, err
		}
		n, err := pw.w.Write(chunk)
		sent += n
		if err != nil {
			return sent, err
		}
	}
	return sent, nil
}
