package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"
)

// bytesPerSample is the size of one little-endian float32 sample
const bytesPerSample = 4

// Capturer opens an input stream that calls onBlock for every block of
// samples. onBlock is invoked from a single goroutine.
type Capturer interface {
	Open(blockSize int, onBlock func(block []float32)) (Stream, error)
}

// Stream is an open capture. Close stops delivery; once it returns onBlock
// is no longer called.
type Stream interface {
	Close() error
}

// SourceFunc opens the raw sample source for one recording
type SourceFunc func() (io.ReadCloser, error)

// FileSource opens path for every recording. A FIFO fed by
// `arecord -f FLOAT_LE -c 1 -r 44100` works as well as a plain file.
func FileSource(path string) SourceFunc {
	return func() (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open capture source %s: %w", path, err)
		}
		return f, nil
	}
}

// PipeCapturer reads raw little-endian float32 mono samples from a source
type PipeCapturer struct {
	source SourceFunc
	logger *slog.Logger
}

// NewPipeCapturer creates a capturer reading from source
func NewPipeCapturer(source SourceFunc, logger *slog.Logger) *PipeCapturer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipeCapturer{source: source, logger: logger}
}

// Open starts delivering blocks of blockSize samples. A short final block
// is delivered as is when the source ends.
func (c *PipeCapturer) Open(blockSize int, onBlock func(block []float32)) (Stream, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("block size must be positive, got %d", blockSize)
	}
	if onBlock == nil {
		return nil, errors.New("block callback is required")
	}

	reader, err := c.source()
	if err != nil {
		return nil, err
	}

	s := &pipeStream{
		reader: reader,
		done:   make(chan struct{}),
		logger: c.logger,
	}
	go s.run(blockSize, onBlock)

	c.logger.Debug("Capture stream opened", slog.Int("block_size", blockSize))
	return s, nil
}

type pipeStream struct {
	reader io.ReadCloser
	done   chan struct{}
	logger *slog.Logger

	closing   atomic.Bool
	closeOnce sync.Once
	closeErr  error
	blocks    atomic.Uint64
}

func (s *pipeStream) run(blockSize int, onBlock func(block []float32)) {
	defer close(s.done)

	buf := make([]byte, blockSize*bytesPerSample)
	for {
		n, err := io.ReadFull(s.reader, buf)
		if s.closing.Load() {
			return
		}

		if samples := n / bytesPerSample; samples > 0 {
			onBlock(decodeFloat32(buf[:samples*bytesPerSample]))
			s.blocks.Add(1)
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Error("Capture source read failed", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// Close stops the reader and waits until no further block is delivered
func (s *pipeStream) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		s.closeErr = s.reader.Close()
		<-s.done

		s.logger.Debug("Capture stream closed", slog.Uint64("blocks", s.blocks.Load()))
	})
	return s.closeErr
}

func decodeFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/bytesPerSample)
	for i := range out {
		bits := binary.LittleEndian.Uint32(data[i*bytesPerSample:])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
