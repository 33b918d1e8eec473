package photo

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hutx/OpenGlass/internal/protocol"
)

// Outcome describes what a chunk did to the reassembler
type Outcome int

const (
	OutcomeIgnored  Outcome = iota // idle and the chunk did not start a frame
	OutcomeStarted                 // sequence 0 opened a new frame
	OutcomeAppended                // contiguous chunk added to the open frame
	OutcomeReset                   // gap or size limit, frame discarded
	OutcomeFrame                   // end marker completed a frame
)

// ImageFrame is one reassembled image. Bytes are owned by the receiver.
type ImageFrame struct {
	Bytes     []byte    `json:"-"`
	Chunks    int       `json:"chunks"`
	CreatedAt time.Time `json:"created_at"`
}

// Filename suggests a storage name of the form photo_<created>.jpg
func (f *ImageFrame) Filename() string {
	stamp := strings.Replace(f.CreatedAt.UTC().Format("2006-01-02T15-04-05.000Z"), ".", "-", 1)
	return fmt.Sprintf("photo_%s.jpg", stamp)
}

// Config holds reassembler limits
type Config struct {
	// MaxFrameBytes discards a frame once its buffer would exceed this size.
	// Zero disables the limit.
	MaxFrameBytes int

	// Clock returns the current time; nil means time.Now
	Clock func() time.Time
}

// Reassembler is the photo channel state machine. expected is -1 while idle.
// Not safe for concurrent use; the owning channel serialises calls.
type Reassembler struct {
	config Config
	clock  func() time.Time
	logger *slog.Logger

	expected int
	buffer   []byte
	chunks   int
}

// NewReassembler creates an idle reassembler
func NewReassembler(config Config, logger *slog.Logger) *Reassembler {
	if logger == nil {
		logger = slog.Default()
	}
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Reassembler{
		config:   config,
		clock:    clock,
		logger:   logger,
		expected: -1,
	}
}

// Handle advances the state machine by one chunk. A frame is returned only
// with OutcomeFrame.
func (r *Reassembler) Handle(chunk protocol.Chunk) (*ImageFrame, Outcome) {
	if r.expected < 0 {
		if chunk.End || chunk.Sequence != 0 {
			return nil, OutcomeIgnored
		}
		r.expected = 0
		r.buffer = nil
		r.chunks = 0
		if outcome := r.append(chunk); outcome == OutcomeReset {
			return nil, outcome
		}
		return nil, OutcomeStarted
	}

	if chunk.End {
		frame := &ImageFrame{
			Bytes:     r.buffer,
			Chunks:    r.chunks,
			CreatedAt: r.clock(),
		}
		r.Reset()
		r.logger.Debug("Photo frame completed",
			slog.Int("size", len(frame.Bytes)),
			slog.Int("chunks", frame.Chunks),
		)
		return frame, OutcomeFrame
	}

	if int(chunk.Sequence) != r.expected {
		r.logger.Debug("Photo sequence gap, discarding frame",
			slog.Int("expected", r.expected),
			slog.Uint64("received", uint64(chunk.Sequence)),
			slog.Int("buffered", len(r.buffer)),
		)
		r.Reset()
		return nil, OutcomeReset
	}

	return nil, r.append(chunk)
}

func (r *Reassembler) append(chunk protocol.Chunk) Outcome {
	if r.config.MaxFrameBytes > 0 && len(r.buffer)+len(chunk.Payload) > r.config.MaxFrameBytes {
		r.logger.Warn("Photo frame exceeds size limit, discarding",
			slog.Int("limit", r.config.MaxFrameBytes),
			slog.Int("buffered", len(r.buffer)),
		)
		r.Reset()
		return OutcomeReset
	}

	r.buffer = append(r.buffer, chunk.Payload...)
	r.chunks++
	r.expected++
	return OutcomeAppended
}

// Reset discards the open frame and returns to idle
func (r *Reassembler) Reset() {
	r.expected = -1
	r.buffer = nil
	r.chunks = 0
}

// Collecting reports whether a frame is open
func (r *Reassembler) Collecting() bool {
	return r.expected >= 0
}

// Expected returns the next sequence id the open frame needs, or -1 when idle
func (r *Reassembler) Expected() int {
	return r.expected
}

// Buffered returns the number of bytes in the open frame
func (r *Reassembler) Buffered() int {
	return len(r.buffer)
}

// String returns the outcome name used in logs and metrics labels
func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeStarted:
		return "started"
	case OutcomeAppended:
		return "appended"
	case OutcomeReset:
		return "reset"
	case OutcomeFrame:
		return "frame"
	default:
		return "unknown"
	}
}
