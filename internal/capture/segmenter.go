package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hutx/OpenGlass/internal/audio"
)

var (
	// ErrAlreadyCapturing is returned by Start while a recording is active
	ErrAlreadyCapturing = errors.New("capture already in progress")
	// ErrNotCapturing is returned by Stop when no recording is active
	ErrNotCapturing = errors.New("no capture in progress")
)

// SegmenterConfig parameterises local recordings
type SegmenterConfig struct {
	Format    audio.Format
	Gain      float64
	BlockSize int
}

// Segmenter records one segment between Start and Stop
type Segmenter struct {
	config   SegmenterConfig
	capturer Capturer
	logger   *slog.Logger

	// mu guards the recording lifecycle
	mu     sync.Mutex
	stream Stream

	// accMu guards the accumulator, written from the capture goroutine
	accMu sync.Mutex
	acc   *audio.Accumulator
}

// NewSegmenter creates an idle segmenter
func NewSegmenter(config SegmenterConfig, capturer Capturer, logger *slog.Logger) (*Segmenter, error) {
	if capturer == nil {
		return nil, errors.New("capturer is required")
	}
	if config.BlockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", config.BlockSize)
	}

	acc, err := audio.NewAccumulator(audio.AccumulatorConfig{
		Format: config.Format,
		Gain:   config.Gain,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid capture format: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Segmenter{
		config:   config,
		capturer: capturer,
		logger:   logger,
		acc:      acc,
	}, nil
}

// Start opens the capture stream. It fails with ErrAlreadyCapturing while a
// recording is active, leaving that recording untouched.
func (s *Segmenter) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return ErrAlreadyCapturing
	}

	s.accMu.Lock()
	s.acc.Reset()
	s.accMu.Unlock()

	stream, err := s.capturer.Open(s.config.BlockSize, s.onBlock)
	if err != nil {
		return fmt.Errorf("failed to open capture stream: %w", err)
	}
	s.stream = stream

	s.logger.Info("Local capture started",
		slog.Int("sample_rate", s.config.Format.SampleRate),
		slog.Int("block_size", s.config.BlockSize),
	)
	return nil
}

// Stop releases the capture stream and returns the recorded container, or
// nil when no samples arrived. It fails with ErrNotCapturing when idle.
func (s *Segmenter) Stop() (*audio.Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return nil, ErrNotCapturing
	}

	closeErr := s.stream.Close()
	s.stream = nil
	if closeErr != nil {
		s.logger.Warn("Error closing capture stream", slog.String("error", closeErr.Error()))
	}

	s.accMu.Lock()
	container := s.acc.Flush()
	s.accMu.Unlock()

	if container == nil {
		s.logger.Info("Local capture stopped without samples")
		return nil, nil
	}

	s.logger.Info("Local capture stopped",
		slog.Float64("duration", container.Duration),
		slog.Int("samples", container.Samples),
		slog.Bool("has_voice", container.HasVoice),
	)
	return container, nil
}

// Active reports whether a recording is in progress
func (s *Segmenter) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// Duration returns the length of the recording so far in seconds
func (s *Segmenter) Duration() float64 {
	s.accMu.Lock()
	defer s.accMu.Unlock()
	return s.acc.Duration()
}

func (s *Segmenter) onBlock(block []float32) {
	samples := audio.FloatToPCM16(block, s.config.Gain)

	s.accMu.Lock()
	s.acc.Append(samples)
	s.accMu.Unlock()
}
