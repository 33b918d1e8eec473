package audio

import (
	"fmt"
	"time"
)

// AccumulatorConfig parameterises one PCM accumulation path
type AccumulatorConfig struct {
	Format Format

	// Gain is applied while decoding or converting samples; 1 leaves them untouched
	Gain float64

	// AutoFlushSeconds emits the segment as soon as its duration reaches this
	// value. Zero disables automatic flushing.
	AutoFlushSeconds float64

	// VoiceThreshold is passed to HasVoiceActivity when a container is built.
	// Zero selects DefaultVoiceThreshold.
	VoiceThreshold float64

	// Clock returns the current time; nil means time.Now
	Clock func() time.Time
}

// Accumulator collects 16-bit sample blocks for one segment and builds a
// container from them. It is owned by a single channel and is not safe for
// concurrent use.
type Accumulator struct {
	config AccumulatorConfig
	clock  func() time.Time

	blocks      [][]int16
	sampleCount int
	startedAt   time.Time
}

// NewAccumulator creates an idle accumulator
func NewAccumulator(config AccumulatorConfig) (*Accumulator, error) {
	if err := config.Format.Validate(); err != nil {
		return nil, err
	}
	if config.Format.BitsPerSample != 16 {
		return nil, fmt.Errorf("%w: accumulator stores 16-bit samples, got %d bits", ErrInvalidFormat, config.Format.BitsPerSample)
	}
	if config.Gain <= 0 {
		return nil, fmt.Errorf("gain must be positive, got %f", config.Gain)
	}
	if config.AutoFlushSeconds < 0 {
		return nil, fmt.Errorf("auto flush threshold cannot be negative, got %f", config.AutoFlushSeconds)
	}
	if config.VoiceThreshold == 0 {
		config.VoiceThreshold = DefaultVoiceThreshold
	}

	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Accumulator{config: config, clock: clock}, nil
}

// Append adds a block to the current segment, starting one if idle. When the
// auto flush threshold is reached the finished container is returned and the
// accumulator is idle again. Empty blocks are ignored.
func (a *Accumulator) Append(block []int16) *Container {
	if len(block) == 0 {
		return nil
	}

	if a.sampleCount == 0 {
		a.startedAt = a.clock()
	}

	a.blocks = append(a.blocks, block)
	a.sampleCount += len(block)

	if a.config.AutoFlushSeconds > 0 && a.Duration() >= a.config.AutoFlushSeconds {
		return a.Flush()
	}
	return nil
}

// Flush builds a container from the pending samples and resets the
// accumulator. It returns nil when nothing is pending.
func (a *Accumulator) Flush() *Container {
	if a.sampleCount == 0 {
		a.Reset()
		return nil
	}

	merged := make([]int16, 0, a.sampleCount)
	for _, block := range a.blocks {
		merged = append(merged, block...)
	}

	// Format was validated in NewAccumulator, so encoding cannot fail
	data, _ := EncodeSamples(merged, a.config.Format)

	container := &Container{
		Bytes:     data,
		Format:    a.config.Format,
		Samples:   len(merged),
		Duration:  a.Duration(),
		StartedAt: a.startedAt,
		CreatedAt: a.clock(),
		HasVoice:  HasVoiceActivity(merged, a.config.VoiceThreshold),
	}

	a.Reset()
	return container
}

// Reset drops any pending samples
func (a *Accumulator) Reset() {
	a.blocks = nil
	a.sampleCount = 0
	a.startedAt = time.Time{}
}

// Duration returns the pending audio length in seconds
func (a *Accumulator) Duration() float64 {
	frames := a.sampleCount / a.config.Format.Channels
	return float64(frames) / float64(a.config.Format.SampleRate)
}

// SampleCount returns the number of pending samples
func (a *Accumulator) SampleCount() int {
	return a.sampleCount
}

// Active reports whether a segment is in progress
func (a *Accumulator) Active() bool {
	return a.sampleCount > 0
}

// StartedAt returns when the pending segment began; zero when idle
func (a *Accumulator) StartedAt() time.Time {
	return a.startedAt
}

// Config returns the accumulator configuration
func (a *Accumulator) Config() AccumulatorConfig {
	return a.config
}
