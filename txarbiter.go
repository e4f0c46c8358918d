package prlsc

// txByteFSMState is the TX byte state machine's state tag.
type txByteFSMState uint8

const (
	txIdle txByteFSMState = iota
	txStart
	txNormal
	txEscaped
)

// txByteState is the staging area for the one frame currently being
// emitted byte-by-byte. There is exactly one instance per bus: only one
// service transmits at a time.
type txByteState struct {
	fsmState      txByteFSMState
	staging       []byte // len == FrameLengthMax+4
	stagingLength int
	serviceIndex  uint8
	cursor        int
}

func newTxByteState(frameLengthMax uint8) txByteState {
	return txByteState{
		fsmState: txIdle,
		staging:  make([]byte, int(frameLengthMax)+frameOverheadBytes),
	}
}

// PrepareServiceTransmission scans services in priority order (ascending
// index) for one that is both non-empty and not rate-limited, loads its
// next raw frame into the TX byte staging buffer, and advances that
// service's readIdx. The buffer is considered consumed the moment this
// returns true: if the caller never actually drains TxByte, those bytes
// are lost. That is the contract, not an accident.
//
// When no service is eligible, ready is false and timeToLimitLifted
// reports the minimum ticks until the most-imminently-eligible
// rate-limited service could be selected (0 if nothing is buffered at
// all).
func (b *Bus) PrepareServiceTransmission() (ready bool, serviceIndex uint8, timeToLimitLifted uint16) {
	now := b.cfg.GetTime()

	selected := -1
	for i := uint8(0); i < b.cfg.ServiceCount; i++ {
		circ := &b.txCircular[i]
		if circ.empty() {
			continue
		}

		svc := b.cfg.Services[i]
		if svc.RateLimit == 0 {
			selected = int(i)
			break
		}

		elapsed := tickDiff(b.lastTransmitted[i], now)
		if elapsed >= svc.RateLimit {
			selected = int(i)
			break
		}

		remaining := svc.RateLimit - elapsed
		if timeToLimitLifted == 0 || remaining < timeToLimitLifted {
			timeToLimitLifted = remaining
			serviceIndex = i
		}
	}

	if selected < 0 {
		return false, serviceIndex, timeToLimitLifted
	}

	svcIdx := uint8(selected)
	circ := &b.txCircular[svcIdx]
	length := circ.buffer[(circ.readIdx+2)%len(circ.buffer)]
	rawLen := int(length) + frameOverheadBytes

	copyCircularToFlat(b.txByte.staging, circ.buffer, circ.readIdx, rawLen)
	b.txByte.stagingLength = rawLen
	b.txByte.serviceIndex = svcIdx
	b.txByte.cursor = 0
	b.txByte.fsmState = txStart

	circ.readIdx = (circ.readIdx + rawLen) % len(circ.buffer)

	return true, svcIdx, 0
}

// TxByte emits one byte of the currently staged frame through
// Config.SendByte, escaping it if necessary, and returns true if the
// caller should call TxByte again for the next byte.
func (b *Bus) TxByte() bool {
	s := &b.txByte
	cfg := &b.cfg

	switch s.fsmState {
	case txStart:
		cfg.SendByte(s.staging[0])
		b.lastTransmitted[s.serviceIndex] = cfg.GetTime()
		s.cursor++
		s.fsmState = txNormal
		return true

	case txNormal:
		cur := s.staging[s.cursor]
		if cur == cfg.StartFrame || cur == cfg.Esc {
			cfg.SendByte(cfg.Esc)
			s.fsmState = txEscaped
			return true
		}
		cfg.SendByte(cur)
		s.cursor++
		if s.cursor == s.stagingLength {
			s.fsmState = txIdle
			return false
		}
		return true

	case txEscaped:
		cur := s.staging[s.cursor]
		switch cur {
		case cfg.StartFrame:
			cfg.SendByte(cfg.EscStart)
		case cfg.Esc:
			cfg.SendByte(cfg.EscEsc)
		default:
			b.ErrorCode = ErrTXFrameBadEsc
			cfg.SendByte(cur)
		}
		s.cursor++
		if s.cursor == s.stagingLength {
			s.fsmState = txIdle
			return false
		}
		s.fsmState = txNormal
		return true

	default: // txIdle
		return false
	}
}
