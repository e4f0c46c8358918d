package prlsc

import "fmt"

// MaxServices is the largest number of services a single bus may carry;
// a service index is a 3-bit quantity on the wire.
const MaxServices = 8

// MaxSubServices bounds the 5-bit sub-service index packed alongside the
// service index in the on-wire service code byte.
const MaxSubServices = 32

// Reference SLIP-compatible framing byte values, matching the original
// implementation's defaults.
const (
	DefaultStartFrame byte = 0xC0
	DefaultEsc        byte = 0xDB
	DefaultEscStart   byte = 0xDC
	DefaultEscEsc     byte = 0xDD
)

// frameOverheadBytes is the number of raw-frame bytes outside the data
// region: start byte, service code, length, checksum.
const frameOverheadBytes = 4

// ServiceConfig describes one logical service's framing discipline and
// transmit scheduling policy. It is read-only once passed to NewBus.
type ServiceConfig struct {
	// IsStream selects STREAM framing (single-frame datagrams, no
	// datagram-level checksum, optional latest-only buffering) over
	// DIAGNOSTICS framing (fragmentable, trailing checksum frame).
	IsStream bool
	// RateLimit is the minimum number of ticks between two consecutive
	// transmitted frames on this service. Zero means unlimited.
	RateLimit uint16
	// OnlyTxLatest, valid only for stream services, discards anything
	// not yet transmitted whenever a new datagram is enqueued, so the
	// transmitter only ever sends the most recently enqueued datagram.
	OnlyTxLatest bool
}

// Config is the read-only configuration of a Bus: the four framing byte
// values, the size limits, the service table, and the four external
// collaborator callbacks. All fields must be set before calling NewBus.
type Config struct {
	StartFrame byte
	Esc        byte
	EscStart   byte
	EscEsc     byte

	// FrameLengthMax bounds a single frame's data length (0..=255).
	FrameLengthMax uint8
	// DatagramLengthMax bounds a datagram's total payload length and
	// must be >= FrameLengthMax.
	DatagramLengthMax int

	// ServiceCount is the number of entries of Services that are valid,
	// 1..=MaxServices. Services are statically ranked by priority: a
	// lower index is higher priority.
	ServiceCount uint8
	Services     [MaxServices]ServiceConfig

	// GetTime returns the current monotonic tick count. Free to wrap.
	GetTime func() uint16
	// ChecksumCalc computes the configured checksum over a byte range.
	// No algorithm is mandated; only the covered byte range is fixed by
	// the protocol (see frameChecksum and datagramChecksum).
	ChecksumCalc func(data []byte) uint8
	// SendByte commits one raw (already escape-encoded) byte to the
	// wire. Must not block indefinitely.
	SendByte func(b byte)
	// ReceivedDatagram is invoked synchronously with a completed,
	// checksum-verified datagram. dg.Data aliases Bus-owned storage and
	// is valid only for the duration of the call.
	ReceivedDatagram func(dg Datagram)
}

// Validate checks the structural invariants of a Config: the four
// framing bytes are pairwise distinct, the length bounds are sane, the
// service count is in range, and every callback is set.
func (c *Config) Validate() error {
	framingBytes := []byte{c.StartFrame, c.Esc, c.EscStart, c.EscEsc}
	for i := 0; i < len(framingBytes); i++ {
		for j := i + 1; j < len(framingBytes); j++ {
			if framingBytes[i] == framingBytes[j] {
				return fmt.Errorf("prlsc: framing byte values must be pairwise distinct, got 0x%02x twice", framingBytes[i])
			}
		}
	}
	if c.FrameLengthMax == 0 {
		return fmt.Errorf("prlsc: FrameLengthMax must be > 0")
	}
	if c.DatagramLengthMax < int(c.FrameLengthMax) {
		return fmt.Errorf("prlsc: DatagramLengthMax (%d) must be >= FrameLengthMax (%d)", c.DatagramLengthMax, c.FrameLengthMax)
	}
	if c.ServiceCount == 0 || int(c.ServiceCount) > MaxServices {
		return fmt.Errorf("prlsc: ServiceCount must be 1..=%d, got %d", MaxServices, c.ServiceCount)
	}
	if c.GetTime == nil || c.ChecksumCalc == nil || c.SendByte == nil || c.ReceivedDatagram == nil {
		return fmt.Errorf("prlsc: all four callbacks (GetTime, ChecksumCalc, SendByte, ReceivedDatagram) must be set")
	}
	return nil
}

// Datagram is the application-level unit exchanged with the embedder: on
// receive, handed to Config.ReceivedDatagram; on transmit, handed to
// Bus.TransmitDatagram.
type Datagram struct {
	ServiceIndex    uint8
	SubServiceIndex uint8
	// Length is the number of valid bytes in Data.
	Length int
	Data   []byte
	// Checksum is semantically absent (always zero) for stream services.
	Checksum byte
}

// Frame is the link-layer transmission unit: a start byte followed by
// the encoded bytes of service code, length, data, and checksum.
type Frame struct {
	ServiceIndex    uint8
	SubServiceIndex uint8
	// Length is the number of valid bytes in Data, 0..=FrameLengthMax.
	Length   uint8
	Data     []byte
	Checksum byte
}

// serviceCode packs a service/sub-service pair into the single on-wire
// service code byte: bits [7:5] service index, bits [4:0] sub-service.
func serviceCode(serviceIndex, subServiceIndex uint8) byte {
	return (serviceIndex << 5) | (subServiceIndex & 0x1F)
}

// splitServiceCode is the inverse of serviceCode.
func splitServiceCode(code byte) (serviceIndex, subServiceIndex uint8) {
	return code >> 5, code & 0x1F
}
