package serialport

import "io"

// Loopback is an in-memory io.ReadWriteCloser wired to a peer endpoint,
// used for tests and for demoing a bus without a real serial device.
// The underlying pipes are unbuffered: a Write blocks until the peer
// reads, so both ends must be actively driven, the same as a physical
// line with hardware flow control.
type Loopback struct {
	r *io.PipeReader
	w *io.PipeWriter
}

// NewLoopbackPair returns two Loopback endpoints: bytes written to a are
// readable from b, and vice versa.
func NewLoopbackPair() (a, b *Loopback) {
	ar, bw := io.Pipe() // b writes, a reads
	br, aw := io.Pipe() // a writes, b reads

	a = &Loopback{r: ar, w: aw}
	b = &Loopback{r: br, w: bw}
	return a, b
}

func (l *Loopback) Read(p []byte) (int, error)  { return l.r.Read(p) }
func (l *Loopback) Write(p []byte) (int, error) { return l.w.Write(p) }

// Close closes this endpoint's halves of both pipes. The peer's next
// Read returns io.EOF and its next Write returns io.ErrClosedPipe, so a
// goroutine pumping the peer end unblocks and exits.
func (l *Loopback) Close() error {
	l.r.Close()
	return l.w.Close()
}
