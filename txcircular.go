package prlsc

// txCircularBuffer is one service's circular transmit buffer. It holds a
// concatenation of whole raw frames, written by TransmitDatagram and
// consumed by PrepareServiceTransmission; both run in the same
// single-threaded context, so no locking is required here. An embedder
// placing them across an interrupt boundary must supply its own
// atomicity.
//
// Empty iff writeIdx == readIdx. Capacity is len(buffer)-1: one slot is
// reserved to disambiguate full from empty.
type txCircularBuffer struct {
	buffer   []byte
	writeIdx int
	readIdx  int
}

func newTxCircularBuffer(size int) txCircularBuffer {
	return txCircularBuffer{buffer: make([]byte, size)}
}

func (c *txCircularBuffer) usedBytes() int {
	size := len(c.buffer)
	used := c.writeIdx - c.readIdx
	if used < 0 {
		used += size
	}
	return used
}

func (c *txCircularBuffer) freeBytes() int {
	return len(c.buffer) - c.usedBytes() - 1
}

func (c *txCircularBuffer) empty() bool {
	return c.writeIdx == c.readIdx
}

// push appends a raw frame of rawLen bytes (taken from staging) to the
// buffer and advances writeIdx. The caller must already have verified
// free space via freeBytes.
func (c *txCircularBuffer) push(staging []byte, rawLen int) {
	size := len(c.buffer)
	copyFlatToCircular(c.buffer, c.writeIdx, staging, rawLen)
	c.writeIdx = (c.writeIdx + rawLen) % size
}

// discardUnsent drops anything written but not yet read, by pulling
// readIdx up to writeIdx. Used by onlyTxLatest streams and exposed to
// embedders that want to cancel pending transmit data for a service.
func (c *txCircularBuffer) discardUnsent() {
	c.readIdx = c.writeIdx
}
