package prlsc

// fakeClock is a deterministic, manually-advanced stand-in for the
// embedder's monotonic tick source.
type fakeClock struct {
	tick uint16
}

func (c *fakeClock) now() uint16 { return c.tick }
func (c *fakeClock) set(t uint16) { c.tick = t }

// xorChecksum is the simplest legal checksum callback: XOR of all
// covered bytes.
func xorChecksum(data []byte) uint8 {
	var x uint8
	for _, b := range data {
		x ^= b
	}
	return x
}

// wireSink accumulates bytes handed to Config.SendByte, in order.
type wireSink struct {
	bytes []byte
}

func (w *wireSink) send(b byte) { w.bytes = append(w.bytes, b) }

// drainTransmit runs PrepareServiceTransmission/TxByte until the bus has
// nothing left ready to send, returning the number of frames drained.
func drainTransmit(b *Bus) int {
	frames := 0
	for {
		ready, _, _ := b.PrepareServiceTransmission()
		if !ready {
			return frames
		}
		for b.TxByte() {
		}
		frames++
	}
}

// feedBytes pushes every byte of wire through ReceiveByte in order.
func feedBytes(b *Bus, wire []byte) {
	for _, by := range wire {
		b.ReceiveByte(by)
	}
}

// twoServiceConfig builds the Config shared by the scenario tests:
// svc0 stream (unlimited), svc1 diagnostics (unlimited),
// frameLengthMax=4, datagramLengthMax=16, XOR checksum.
func twoServiceConfig(clock *fakeClock, received *[]Datagram) Config {
	cfg := Config{
		StartFrame:        DefaultStartFrame,
		Esc:               DefaultEsc,
		EscStart:          DefaultEscStart,
		EscEsc:            DefaultEscEsc,
		FrameLengthMax:    4,
		DatagramLengthMax: 16,
		ServiceCount:      2,
		GetTime:           clock.now,
		ChecksumCalc:      xorChecksum,
		ReceivedDatagram: func(dg Datagram) {
			cp := make([]byte, dg.Length)
			copy(cp, dg.Data)
			*received = append(*received, Datagram{
				ServiceIndex:    dg.ServiceIndex,
				SubServiceIndex: dg.SubServiceIndex,
				Length:          dg.Length,
				Data:            cp,
				Checksum:        dg.Checksum,
			})
		},
	}
	cfg.Services[0] = ServiceConfig{IsStream: true, RateLimit: 0}
	cfg.Services[1] = ServiceConfig{IsStream: false, RateLimit: 0}
	return cfg
}
