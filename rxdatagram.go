package prlsc

// rxDatagramFSMState is a per-service sub-state of the datagram
// reassembler.
type rxDatagramFSMState uint8

const (
	rxPopulating rxDatagramFSMState = iota
	rxError
)

// rxDatagramState accumulates frame payloads into a datagram buffer for
// one service. Streams deliver every frame as a complete datagram;
// diagnostics datagrams fragment across frames and end with the first
// not-full-sized (possibly empty) frame; the last stored byte is the
// datagram checksum.
type rxDatagramState struct {
	fsmState rxDatagramFSMState
	curIdx   int
	buffer   []byte
}

func newRxDatagramState(svc ServiceConfig, frameLengthMax uint8, datagramLengthMax int) rxDatagramState {
	size := datagramLengthMax + 1
	if svc.IsStream {
		size = int(frameLengthMax)
	}
	return rxDatagramState{
		fsmState: rxPopulating,
		buffer:   make([]byte, size),
	}
}

// receiveFrame implements the RX datagram reassembler: it appends one
// completed frame's payload into the named service's datagram buffer,
// detects end-of-datagram, verifies the diagnostics checksum, and on
// success invokes Config.ReceivedDatagram.
func (b *Bus) receiveFrame(frame Frame) {
	svc := b.cfg.Services[frame.ServiceIndex]
	ds := &b.rxDatagram[frame.ServiceIndex]

	isTerminatorShaped := svc.IsStream || int(frame.Length) < int(b.cfg.FrameLengthMax)

	if ds.fsmState == rxError {
		if isTerminatorShaped {
			ds.fsmState = rxPopulating
		}
		return
	}

	// The stored bytes of a diagnostics datagram include its trailing
	// checksum byte, which is why the buffer (and this bound) is
	// DatagramLengthMax+1 rather than DatagramLengthMax.
	if ds.curIdx+int(frame.Length) > len(ds.buffer) {
		ds.curIdx = 0
		b.ErrorCode = ErrDatagramTooLong
		if int(frame.Length) == int(b.cfg.FrameLengthMax) && !svc.IsStream {
			ds.fsmState = rxError
		}
		return
	}

	copy(ds.buffer[ds.curIdx:], frame.Data[:frame.Length])
	ds.curIdx += int(frame.Length)

	if !isTerminatorShaped {
		return
	}

	var length int
	var checksum byte
	if svc.IsStream || ds.curIdx == 0 {
		length = ds.curIdx
		checksum = 0
	} else {
		length = ds.curIdx - 1
		checksum = ds.buffer[ds.curIdx-1]
		want := datagramChecksum(b.cfg.ChecksumCalc, ds.buffer, length)
		if checksum != want {
			b.ErrorCode = ErrDatagramBadChecksum
			ds.curIdx = 0
			return
		}
	}

	b.cfg.ReceivedDatagram(Datagram{
		ServiceIndex:    frame.ServiceIndex,
		SubServiceIndex: frame.SubServiceIndex,
		Length:          length,
		Data:            ds.buffer[:length],
		Checksum:        checksum,
	})
	ds.curIdx = 0
}
