package prlsc

// TransmitDatagram fragments a datagram into one or more raw frames and
// appends them to the named service's circular transmit buffer.
// It returns the number of frames enqueued; 0 means
// "nothing buffered": either validation failed and ErrorCode was set,
// or the circular buffer lacked space, which is NOT an error and the
// caller may simply retry later.
func (b *Bus) TransmitDatagram(dg Datagram) int {
	required, ok := b.bufferBytesRequired(dg)
	if !ok {
		return 0
	}

	circ := &b.txCircular[dg.ServiceIndex]
	if circ.freeBytes() < required {
		return 0
	}

	svc := b.cfg.Services[dg.ServiceIndex]
	if svc.IsStream && svc.OnlyTxLatest {
		circ.discardUnsent()
	}

	return b.fragmentInto(circ, svc, dg)
}

// bufferBytesRequired validates dg and computes the number of raw bytes
// its fragmentation would occupy in the circular transmit buffer. The
// second return is false when validation failed (ErrorCode was set) or
// the datagram cannot ever be transmitted by this service.
func (b *Bus) bufferBytesRequired(dg Datagram) (int, bool) {
	if dg.ServiceIndex >= b.cfg.ServiceCount {
		b.ErrorCode = ErrDatagramServiceIndexBounds
		return 0, false
	}
	if dg.Length > b.cfg.DatagramLengthMax {
		b.ErrorCode = ErrDatagramTooLong
		return 0, false
	}

	svc := b.cfg.Services[dg.ServiceIndex]
	frameLengthMax := int(b.cfg.FrameLengthMax)

	payload := dg.Length
	if !svc.IsStream {
		payload++ // trailing datagram checksum byte
	}

	if svc.IsStream && payload > frameLengthMax {
		b.ErrorCode = ErrDatagramTooLong
		return 0, false
	}

	frameCount := 1
	if !svc.IsStream {
		// Integer division; a payload that is an exact multiple of
		// frameLengthMax yields one extra, empty terminator frame;
		// see DESIGN.md for how the fragmentation loop realizes this.
		frameCount = (payload + frameLengthMax) / frameLengthMax
	}

	return payload + frameOverheadBytes*frameCount, true
}

// fragmentInto builds and enqueues dg's raw frames one at a time in
// b.txFrameBuffer, the linear staging area used only by the fragmenter
// (distinct from the TX byte state machine's own staging buffer).
func (b *Bus) fragmentInto(circ *txCircularBuffer, svc ServiceConfig, dg Datagram) int {
	frameLengthMax := int(b.cfg.FrameLengthMax)
	staging := b.txFrameBuffer

	consumed := 0
	checksumAppended := false
	enqueued := 0

	for {
		chunk := dg.Length - consumed
		if chunk > frameLengthMax {
			chunk = frameLengthMax
		}
		copy(staging[3:3+chunk], dg.Data[consumed:consumed+chunk])
		consumed += chunk
		frameDataLen := chunk

		last := svc.IsStream
		if !svc.IsStream {
			if !checksumAppended && frameDataLen < frameLengthMax {
				staging[3+frameDataLen] = dg.Checksum
				frameDataLen++
				checksumAppended = true
			}
			last = checksumAppended && frameDataLen < frameLengthMax
		}

		staging[0] = b.cfg.StartFrame
		staging[1] = serviceCode(dg.ServiceIndex, dg.SubServiceIndex)
		staging[2] = byte(frameDataLen)
		staging[3+frameDataLen] = frameChecksum(b.cfg.ChecksumCalc, staging, uint8(frameDataLen))

		rawLen := frameOverheadBytes + frameDataLen
		circ.push(staging, rawLen)
		b.NewTxDataFlag = true
		enqueued++

		if last {
			return enqueued
		}
	}
}
