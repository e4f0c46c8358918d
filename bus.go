package prlsc

// DefaultTxBufferSize is used for a service's circular transmit buffer
// when NewBus is not given an explicit size for that service.
const DefaultTxBufferSize = 256

// Bus is the full mutable state of one PRLSC link: the RX byte state
// machine, one RX datagram reassembler per service, one circular
// transmit buffer per service, the TX byte state machine, and the
// per-service rate-limit clock. A Bus is not reentrant: the embedder
// must serialise all calls against a given Bus, though independent
// Buses may run concurrently.
//
// All storage is allocated once, by NewBus, from the sizes given in
// Config and txBufferSizes; nothing under Config or Bus allocates
// again during steady-state ReceiveByte/TransmitDatagram/TxByte calls.
type Bus struct {
	cfg Config

	ErrorCode ErrorCode

	rxFrame    rxFrameState
	rxDatagram [MaxServices]rxDatagramState

	txCircular      [MaxServices]txCircularBuffer
	txFrameBuffer   []byte // fragmenter's staging area, len == FrameLengthMax+4
	txByte          txByteState
	lastTransmitted [MaxServices]uint16

	// NewTxDataFlag is set whenever TransmitDatagram enqueues a frame.
	// It is never cleared by the core; the embedder clears it after
	// consuming the signal (e.g. to wake a transmit loop).
	NewTxDataFlag bool
}

// NewBus validates cfg and allocates a Bus ready to run. txBufferSizes
// gives the circular transmit buffer size in bytes for each of the first
// cfg.ServiceCount services; a zero or missing entry falls back to
// DefaultTxBufferSize.
func NewBus(cfg Config, txBufferSizes [MaxServices]int) (*Bus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Bus{
		cfg:           cfg,
		rxFrame:       newRxFrameState(cfg.FrameLengthMax),
		txFrameBuffer: make([]byte, int(cfg.FrameLengthMax)+frameOverheadBytes),
		txByte:        newTxByteState(cfg.FrameLengthMax),
	}

	for i := uint8(0); i < cfg.ServiceCount; i++ {
		b.rxDatagram[i] = newRxDatagramState(cfg.Services[i], cfg.FrameLengthMax, cfg.DatagramLengthMax)

		size := txBufferSizes[i]
		if size <= 0 {
			size = DefaultTxBufferSize
		}
		b.txCircular[i] = newTxCircularBuffer(size)
	}

	return b, nil
}

// DiscardPendingTransmit drops anything buffered for serviceIndex that
// has not yet been read into a TX staging buffer by
// PrepareServiceTransmission. There is no way to cancel a frame already
// mid-transmission.
func (b *Bus) DiscardPendingTransmit(serviceIndex uint8) {
	if serviceIndex >= b.cfg.ServiceCount {
		return
	}
	b.txCircular[serviceIndex].discardUnsent()
}
