package prlsc

// rxFrameFSMState is the RX byte state machine's state tag.
type rxFrameFSMState uint8

const (
	rxWaitStart rxFrameFSMState = iota
	rxCollecting
	rxEsc
)

// rxFrameState is the RX byte state machine's mutable state: one per
// bus, shared across all services, since a frame's service index is not
// known until its second byte has arrived.
type rxFrameState struct {
	fsmState          rxFrameFSMState
	curIdx            int
	expectedByteCount int
	buffer            []byte // len == FrameLengthMax+4
	framesReceived    uint8  // rolling 8-bit counter
}

func newRxFrameState(frameLengthMax uint8) rxFrameState {
	return rxFrameState{
		fsmState: rxWaitStart,
		buffer:   make([]byte, int(frameLengthMax)+frameOverheadBytes),
	}
}

// ReceiveByte feeds one raw byte from the wire into the RX byte state
// machine. On completing and validating a frame, it is handed to the
// per-service datagram reassembler, which may in turn invoke
// Config.ReceivedDatagram synchronously.
func (b *Bus) ReceiveByte(in byte) {
	s := &b.rxFrame
	cfg := &b.cfg

	// Rule 1: a start byte resynchronises regardless of current state.
	if in == cfg.StartFrame {
		s.curIdx = 0
		s.expectedByteCount = int(cfg.FrameLengthMax) + frameOverheadBytes
		s.fsmState = rxCollecting
		b.rxStore(cfg.StartFrame)
		return
	}

	switch s.fsmState {
	case rxCollecting:
		if in == cfg.Esc {
			s.fsmState = rxEsc
			return
		}
		b.rxStore(in)

	case rxEsc:
		switch in {
		case cfg.EscEsc:
			s.fsmState = rxCollecting
			b.rxStore(cfg.Esc)
		case cfg.EscStart:
			s.fsmState = rxCollecting
			b.rxStore(cfg.StartFrame)
		default:
			b.ErrorCode = ErrRXFrameBadEsc
			s.fsmState = rxWaitStart
		}

	case rxWaitStart:
		// silently discarded
	}
}

// rxStore writes one decoded byte into the frame buffer at curIdx,
// applying the per-position service-code and length checks, then
// advances curIdx and delivers the frame on completion.
func (b *Bus) rxStore(decoded byte) {
	s := &b.rxFrame
	cfg := &b.cfg

	s.buffer[s.curIdx] = decoded

	switch s.curIdx {
	case 1: // service code byte
		svcIdx, _ := splitServiceCode(decoded)
		if svcIdx >= cfg.ServiceCount {
			b.ErrorCode = ErrRXFrameServiceIndexBounds
			s.fsmState = rxWaitStart
			return
		}
	case 2: // length byte
		if decoded <= cfg.FrameLengthMax {
			s.expectedByteCount = int(decoded) + frameOverheadBytes
		} else {
			b.ErrorCode = ErrRXFrameTooLong
			s.fsmState = rxWaitStart
			return
		}
	}

	s.curIdx++
	if s.curIdx != s.expectedByteCount {
		return
	}

	// Frame complete: verify checksum, deliver, resync.
	dataLen := s.buffer[2]
	gotChecksum := s.buffer[s.curIdx-1]
	wantChecksum := frameChecksum(cfg.ChecksumCalc, s.buffer, dataLen)
	s.fsmState = rxWaitStart
	if gotChecksum != wantChecksum {
		b.ErrorCode = ErrRXFrameBadChecksum
		return
	}

	s.framesReceived++
	svcIdx, subSvcIdx := splitServiceCode(s.buffer[1])
	frame := Frame{
		ServiceIndex:    svcIdx,
		SubServiceIndex: subSvcIdx,
		Length:          dataLen,
		Data:            s.buffer[3 : 3+int(dataLen)],
		Checksum:        gotChecksum,
	}
	b.receiveFrame(frame)
}
