// Package telemetrysrc samples host metrics and serializes them as
// compressed diagnostics datagram payloads. It stands in for whatever
// sensor an embedded node would actually report on its diagnostics
// service; the only requirement is that the payload fit the protocol's
// arbitrarily-long, checksum-verified diagnostics framing.
package telemetrysrc

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/klauspost/compress/zstd"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is one point-in-time sample of host health.
type Snapshot struct {
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryPercent    float64 `json:"memory_percent"`
	DiskUsagePercent float64 `json:"disk_usage_percent"`
	LoadAverage1m    float64 `json:"load_average_1m"`
}

// HostSampler collects a Snapshot on demand and encodes it for transport
// over a diagnostics service.
type HostSampler struct {
	logger  *slog.Logger
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewHostSampler builds a HostSampler with a reusable zstd encoder/decoder
// pair (constructing these per-call is needlessly expensive for a payload
// emitted on every heartbeat tick).
func NewHostSampler(logger *slog.Logger) (*HostSampler, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("constructing zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("constructing zstd decoder: %w", err)
	}
	return &HostSampler{logger: logger, encoder: enc, decoder: dec}, nil
}

// Sample collects current host metrics.
func (h *HostSampler) Sample() Snapshot {
	var s Snapshot

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	} else {
		h.logger.Debug("failed to sample cpu", "error", err)
	}

	if v, err := mem.VirtualMemory(); err == nil {
		s.MemoryPercent = v.UsedPercent
	} else {
		h.logger.Debug("failed to sample memory", "error", err)
	}

	if d, err := disk.Usage("/"); err == nil {
		s.DiskUsagePercent = d.UsedPercent
	} else {
		h.logger.Debug("failed to sample disk", "error", err)
	}

	if l, err := load.Avg(); err == nil {
		s.LoadAverage1m = l.Load1
	} else {
		h.logger.Debug("failed to sample load average", "error", err)
	}

	return s
}

// EncodePayload samples the host and returns a zstd-compressed JSON
// payload ready for Bus.TransmitDatagram on a diagnostics service.
func (h *HostSampler) EncodePayload() ([]byte, error) {
	raw, err := json.Marshal(h.Sample())
	if err != nil {
		return nil, fmt.Errorf("marshaling host snapshot: %w", err)
	}
	return h.encoder.EncodeAll(raw, nil), nil
}

// DecodePayload reverses EncodePayload, for use in a
// Config.ReceivedDatagram callback on the receiving end of the link.
func (h *HostSampler) DecodePayload(compressed []byte) (Snapshot, error) {
	raw, err := h.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decompressing host snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshaling host snapshot: %w", err)
	}
	return s, nil
}
