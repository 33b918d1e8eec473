package audio

import (
	"log/slog"

	"github.com/hutx/OpenGlass/internal/protocol"
)

// PacketOutcome describes what a notification did to the accumulator
type PacketOutcome int

const (
	PacketAppended  PacketOutcome = iota // samples added, segment still open
	PacketMalformed                      // no complete sample, packet dropped
	PacketThreshold                      // samples added and the duration threshold flushed the segment
	PacketEnd                            // end marker flushed a pending segment
	PacketEndEmpty                       // end marker with nothing pending
)

// PacketAccumulator turns sequenced audio notifications into containers.
// Payloads are little-endian int16 with the sequence prefix already removed.
// Not safe for concurrent use; each audio channel owns one.
type PacketAccumulator struct {
	acc    *Accumulator
	logger *slog.Logger
}

// NewPacketAccumulator creates an accumulator for the radio audio channel
func NewPacketAccumulator(config AccumulatorConfig, logger *slog.Logger) (*PacketAccumulator, error) {
	acc, err := NewAccumulator(config)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PacketAccumulator{acc: acc, logger: logger}, nil
}

// Handle processes one chunk. A container is returned when the chunk
// completed a segment, either by crossing the threshold or as an end marker.
func (p *PacketAccumulator) Handle(chunk protocol.Chunk) (*Container, PacketOutcome) {
	if chunk.End {
		container := p.acc.Flush()
		if container == nil {
			return nil, PacketEndEmpty
		}
		p.logger.Debug("Audio segment ended by marker",
			slog.Float64("duration", container.Duration),
			slog.Int("samples", container.Samples),
		)
		return container, PacketEnd
	}

	if len(chunk.Payload) < 2 {
		p.logger.Debug("Dropping audio packet with insufficient data",
			slog.Uint64("sequence", uint64(chunk.Sequence)),
			slog.Int("payload_size", len(chunk.Payload)),
		)
		return nil, PacketMalformed
	}

	samples := DecodePCM16(chunk.Payload, p.acc.Config().Gain)
	if container := p.acc.Append(samples); container != nil {
		p.logger.Debug("Audio segment reached duration threshold",
			slog.Float64("duration", container.Duration),
			slog.Int("samples", container.Samples),
		)
		return container, PacketThreshold
	}

	return nil, PacketAppended
}

// Duration returns the pending segment length in seconds
func (p *PacketAccumulator) Duration() float64 {
	return p.acc.Duration()
}

// SampleCount returns the number of pending samples
func (p *PacketAccumulator) SampleCount() int {
	return p.acc.SampleCount()
}

// Active reports whether a segment is in progress
func (p *PacketAccumulator) Active() bool {
	return p.acc.Active()
}

// Reset drops the pending segment
func (p *PacketAccumulator) Reset() {
	p.acc.Reset()
}

// String returns the outcome name used in logs and metrics labels
func (o PacketOutcome) String() string {
	switch o {
	case PacketAppended:
		return "appended"
	case PacketMalformed:
		return "malformed"
	case PacketThreshold:
		return "threshold"
	case PacketEnd:
		return "end"
	case PacketEndEmpty:
		return "end_empty"
	default:
		return "unknown"
	}
}
