// Package busconfig loads and validates the YAML description of a serial
// link: the device to open, the four framing byte values, and the
// per-service table.
package busconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fragmuffin/prlsc"
)

// BusConfig is the on-disk description of one prlsc.Bus.
type BusConfig struct {
	Device   DeviceInfo    `yaml:"device"`
	Framing  FramingInfo   `yaml:"framing"`
	Limits   LimitsInfo    `yaml:"limits"`
	Services []ServiceInfo `yaml:"services"`
	Logging  LoggingInfo   `yaml:"logging"`
	Trace    TraceInfo     `yaml:"trace"`
}

// DeviceInfo names the physical (or loopback) serial endpoint.
type DeviceInfo struct {
	Path     string `yaml:"path"` // e.g. "/dev/ttyUSB0"; "" selects the in-memory loopback
	BaudRate int    `yaml:"baud_rate"`
	// PaceBytesPerSec caps raw bytes written to the line per second,
	// below the protocol's own per-service rate limiting. 0 disables.
	PaceBytesPerSec int64 `yaml:"pace_bytes_per_sec"`
}

// FramingInfo carries the four SLIP-style framing byte values. Absent
// (nil) fields fall back to the package defaults in ToProtocolConfig.
type FramingInfo struct {
	StartFrame *byte `yaml:"start_frame"`
	Esc        *byte `yaml:"esc"`
	EscStart   *byte `yaml:"esc_start"`
	EscEsc     *byte `yaml:"esc_esc"`
}

// LimitsInfo carries the two size bounds and the transmit buffer size
// shared by every service on the bus.
type LimitsInfo struct {
	FrameLengthMax    int `yaml:"frame_length_max"`
	DatagramLengthMax int `yaml:"datagram_length_max"`
	TxBufferBytes     int `yaml:"tx_buffer_bytes"`
}

// ServiceInfo is one row of the per-service table. Index is the service's
// priority rank (0 = highest); services must be listed in ascending
// Index order with no gaps.
type ServiceInfo struct {
	Name         string `yaml:"name"`
	Index        uint8  `yaml:"index"`
	Stream       bool   `yaml:"stream"`
	RateLimit    uint16 `yaml:"rate_limit"`
	OnlyTxLatest bool   `yaml:"only_tx_latest"`
}

// LoggingInfo selects the process log level, format, and optional file.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// TraceInfo optionally enables a per-device raw-frame trail file.
type TraceInfo struct {
	Directory string `yaml:"directory"`
}

// Load reads and validates a BusConfig YAML document.
func Load(path string) (*BusConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bus config: %w", err)
	}

	var cfg BusConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing bus config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating bus config: %w", err)
	}

	return &cfg, nil
}

func (c *BusConfig) validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("services must have at least one entry")
	}
	if len(c.Services) > prlsc.MaxServices {
		return fmt.Errorf("services has %d entries, max is %d", len(c.Services), prlsc.MaxServices)
	}
	for i, svc := range c.Services {
		if svc.Name == "" {
			return fmt.Errorf("services[%d].name is required", i)
		}
		if int(svc.Index) != i {
			return fmt.Errorf("services[%d].index must equal its position (%d), got %d", i, i, svc.Index)
		}
	}

	if c.Limits.FrameLengthMax <= 0 || c.Limits.FrameLengthMax > 255 {
		return fmt.Errorf("limits.frame_length_max must be 1..255, got %d", c.Limits.FrameLengthMax)
	}
	if c.Limits.DatagramLengthMax < c.Limits.FrameLengthMax {
		return fmt.Errorf("limits.datagram_length_max (%d) must be >= frame_length_max (%d)", c.Limits.DatagramLengthMax, c.Limits.FrameLengthMax)
	}
	if c.Limits.TxBufferBytes <= 0 {
		c.Limits.TxBufferBytes = prlsc.DefaultTxBufferSize
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}

// ToProtocolConfig builds a prlsc.Config from the loaded document. The
// GetTime, ChecksumCalc, SendByte and ReceivedDatagram callbacks are not
// set here; the caller (cmd/prlscd) supplies those once the serial port
// and the busrunner dispatch table exist.
func (c *BusConfig) ToProtocolConfig() prlsc.Config {
	cfg := prlsc.Config{
		StartFrame:        byteOrDefault(c.Framing.StartFrame, prlsc.DefaultStartFrame),
		Esc:               byteOrDefault(c.Framing.Esc, prlsc.DefaultEsc),
		EscStart:          byteOrDefault(c.Framing.EscStart, prlsc.DefaultEscStart),
		EscEsc:            byteOrDefault(c.Framing.EscEsc, prlsc.DefaultEscEsc),
		FrameLengthMax:    uint8(c.Limits.FrameLengthMax),
		DatagramLengthMax: c.Limits.DatagramLengthMax,
		ServiceCount:      uint8(len(c.Services)),
	}
	for i, svc := range c.Services {
		cfg.Services[i] = prlsc.ServiceConfig{
			IsStream:     svc.Stream,
			RateLimit:    svc.RateLimit,
			OnlyTxLatest: svc.OnlyTxLatest,
		}
	}
	return cfg
}

// TxBufferSizes returns the per-service circular buffer sizing array for
// NewBus, using limits.tx_buffer_bytes for every configured service.
func (c *BusConfig) TxBufferSizes() [prlsc.MaxServices]int {
	var sizes [prlsc.MaxServices]int
	for i := range c.Services {
		sizes[i] = c.Limits.TxBufferBytes
	}
	return sizes
}

func byteOrDefault(p *byte, def byte) byte {
	if p == nil {
		return def
	}
	return *p
}
