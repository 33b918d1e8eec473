package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"sync"
	"testing"

	"github.com/hutx/OpenGlass/internal/audio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeCapturer hands the callback to the test instead of running a goroutine
type fakeCapturer struct {
	mu      sync.Mutex
	onBlock func([]float32)
	opened  int
	stream  *fakeStream
	openErr error
}

type fakeStream struct {
	closed bool
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func (c *fakeCapturer) Open(blockSize int, onBlock func([]float32)) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.openErr != nil {
		return nil, c.openErr
	}
	c.opened++
	c.onBlock = onBlock
	c.stream = &fakeStream{}
	return c.stream, nil
}

func (c *fakeCapturer) deliver(block []float32) {
	c.mu.Lock()
	onBlock := c.onBlock
	c.mu.Unlock()
	onBlock(block)
}

func newTestSegmenter(t *testing.T, capturer Capturer) *Segmenter {
	t.Helper()

	s, err := NewSegmenter(SegmenterConfig{
		Format:    audio.CaptureFormat,
		Gain:      1,
		BlockSize: 4096,
	}, capturer, testLogger())
	if err != nil {
		t.Fatalf("NewSegmenter failed: %v", err)
	}
	return s
}

func TestSegmenterStopWithoutSamples(t *testing.T) {
	capturer := &fakeCapturer{}
	s := newTestSegmenter(t, capturer)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	container, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if container != nil {
		t.Error("Expected no container when nothing was recorded")
	}
	if !capturer.stream.closed {
		t.Error("Expected capture stream to be released")
	}
}

func TestSegmenterStopReturnsContainer(t *testing.T) {
	capturer := &fakeCapturer{}
	s := newTestSegmenter(t, capturer)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	block := make([]float32, 4096)
	for i := range block {
		block[i] = 0.5
	}
	capturer.deliver(block)
	capturer.deliver(block)
	capturer.deliver([]float32{1.5, -2.0, 0})

	const m = 4096*2 + 3

	container, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if container == nil {
		t.Fatal("Expected container")
	}
	if container.DataLength() != 2*m {
		t.Errorf("Expected data length %d, got %d", 2*m, container.DataLength())
	}
	if !capturer.stream.closed {
		t.Error("Expected capture stream to be released before returning")
	}

	samples, format, err := audio.DecodeWAV(container.Bytes)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if format != audio.CaptureFormat {
		t.Errorf("Expected format %+v, got %+v", audio.CaptureFormat, format)
	}
	if samples[0] != 16384 {
		t.Errorf("Expected 0.5 to scale to 16384, got %d", samples[0])
	}
	if samples[m-3] != 32767 || samples[m-2] != -32768 || samples[m-1] != 0 {
		t.Errorf("Expected saturated tail, got %v", samples[m-3:])
	}

	if s.Active() {
		t.Error("Expected segmenter to be idle after stop")
	}
}

func TestSegmenterConflicts(t *testing.T) {
	capturer := &fakeCapturer{}
	s := newTestSegmenter(t, capturer)

	if _, err := s.Stop(); !errors.Is(err, ErrNotCapturing) {
		t.Errorf("Expected ErrNotCapturing, got %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	capturer.deliver([]float32{0.1})

	if err := s.Start(); !errors.Is(err, ErrAlreadyCapturing) {
		t.Errorf("Expected ErrAlreadyCapturing, got %v", err)
	}
	if capturer.opened != 1 {
		t.Errorf("Expected a single open, got %d", capturer.opened)
	}
	if s.Duration() == 0 {
		t.Error("Expected rejected start to keep the recording")
	}

	container, err := s.Stop()
	if err != nil || container == nil {
		t.Fatalf("Expected container, got %v (%v)", container, err)
	}

	if _, err := s.Stop(); !errors.Is(err, ErrNotCapturing) {
		t.Errorf("Expected ErrNotCapturing after stop, got %v", err)
	}
}

func TestSegmenterNewRecordingStartsEmpty(t *testing.T) {
	capturer := &fakeCapturer{}
	s := newTestSegmenter(t, capturer)

	s.Start()
	capturer.deliver([]float32{0.1, 0.2})
	s.Stop()

	s.Start()
	capturer.deliver([]float32{0.3})
	container, _ := s.Stop()

	if container == nil || container.Samples != 1 {
		t.Fatalf("Expected a single-sample container, got %+v", container)
	}
}

func TestSegmenterOpenFailure(t *testing.T) {
	capturer := &fakeCapturer{openErr: errors.New("device busy")}
	s := newTestSegmenter(t, capturer)

	if err := s.Start(); err == nil {
		t.Fatal("Expected start to fail")
	}
	if s.Active() {
		t.Error("Expected segmenter to stay idle after a failed start")
	}
}

func floatBytes(samples ...float32) []byte {
	buf := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*bytesPerSample:], math.Float32bits(s))
	}
	return buf
}

func TestPipeCapturerDeliversBlocks(t *testing.T) {
	data := floatBytes(0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0)
	// a torn trailing sample is not delivered
	data = append(data, 0x01, 0x02)

	capturer := NewPipeCapturer(func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, testLogger())

	var mu sync.Mutex
	var blocks [][]float32

	stream, err := capturer.Open(4, func(block []float32) {
		mu.Lock()
		blocks = append(blocks, block)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	<-stream.(*pipeStream).done
	if err := stream.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	if len(blocks) != 3 {
		t.Fatalf("Expected 3 blocks, got %d", len(blocks))
	}
	for i, want := range []int{4, 4, 2} {
		if len(blocks[i]) != want {
			t.Errorf("Block %d: expected %d samples, got %d", i, want, len(blocks[i]))
		}
	}
	if blocks[2][1] != 1.0 {
		t.Errorf("Expected last sample 1.0, got %f", blocks[2][1])
	}
}

func TestPipeCapturerCloseStopsDelivery(t *testing.T) {
	reader, writer := io.Pipe()

	capturer := NewPipeCapturer(func() (io.ReadCloser, error) {
		return reader, nil
	}, testLogger())

	delivered := make(chan []float32, 10)
	stream, err := capturer.Open(2, func(block []float32) {
		delivered <- block
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if _, err := writer.Write(floatBytes(0.25, 0.75)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	block := <-delivered
	if len(block) != 2 || block[0] != 0.25 {
		t.Errorf("Unexpected block %v", block)
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case b := <-delivered:
		t.Errorf("Unexpected block after close: %v", b)
	default:
	}

	// second close is a no-op
	if err := stream.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestSegmenterWithPipeCapturer(t *testing.T) {
	reader, writer := io.Pipe()
	capturer := NewPipeCapturer(func() (io.ReadCloser, error) { return reader, nil }, testLogger())

	s, err := NewSegmenter(SegmenterConfig{
		Format:    audio.CaptureFormat,
		Gain:      1,
		BlockSize: 2,
	}, capturer, testLogger())
	if err != nil {
		t.Fatalf("NewSegmenter failed: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	writer.Write(floatBytes(0.5, -0.5))
	writer.Write(floatBytes(0.25, -0.25))

	container, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	// io.Pipe writes block until read, so both blocks were consumed
	if container == nil {
		t.Fatal("Expected container")
	}
	if container.Samples < 2 {
		t.Errorf("Expected at least one block, got %d samples", container.Samples)
	}
}

func TestNewSegmenterValidation(t *testing.T) {
	if _, err := NewSegmenter(SegmenterConfig{Format: audio.CaptureFormat, Gain: 1, BlockSize: 4096}, nil, nil); err == nil {
		t.Error("Expected error for missing capturer")
	}
	if _, err := NewSegmenter(SegmenterConfig{Format: audio.CaptureFormat, Gain: 1}, &fakeCapturer{}, nil); err == nil {
		t.Error("Expected error for zero block size")
	}
	if _, err := NewSegmenter(SegmenterConfig{Format: audio.Format{}, Gain: 1, BlockSize: 1}, &fakeCapturer{}, nil); err == nil {
		t.Error("Expected error for invalid format")
	}
}
