package photo

import (
	"bytes"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/hutx/OpenGlass/internal/protocol"
)

func newTestReassembler(config Config) *Reassembler {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewReassembler(config, logger)
}

func chunk(seq uint16, payload ...byte) protocol.Chunk {
	return protocol.Chunk{Sequence: seq, Payload: payload}
}

var endChunk = protocol.Chunk{End: true}

func TestReassemblerConcatenatesInOrder(t *testing.T) {
	r := newTestReassembler(Config{})

	payloads := [][]byte{{0xFF, 0xD8}, {0x01, 0x02, 0x03}, {0x04}, {0xFF, 0xD9}}
	var expected []byte

	for i, p := range payloads {
		frame, outcome := r.Handle(chunk(uint16(i), p...))
		if frame != nil {
			t.Fatalf("Unexpected frame at chunk %d", i)
		}
		want := OutcomeAppended
		if i == 0 {
			want = OutcomeStarted
		}
		if outcome != want {
			t.Errorf("Chunk %d: expected %s, got %s", i, want, outcome)
		}
		expected = append(expected, p...)
	}

	frame, outcome := r.Handle(endChunk)
	if outcome != OutcomeFrame || frame == nil {
		t.Fatalf("Expected frame on end marker, got %s", outcome)
	}
	if !bytes.Equal(frame.Bytes, expected) {
		t.Errorf("Expected %v, got %v", expected, frame.Bytes)
	}
	if frame.Chunks != len(payloads) {
		t.Errorf("Expected %d chunks, got %d", len(payloads), frame.Chunks)
	}
	if r.Collecting() {
		t.Error("Expected reassembler to be idle after a frame")
	}
}

func TestReassemblerIdleIgnoresNonStart(t *testing.T) {
	r := newTestReassembler(Config{})

	for _, c := range []protocol.Chunk{endChunk, chunk(1, 0x01), chunk(7, 0x02)} {
		frame, outcome := r.Handle(c)
		if frame != nil || outcome != OutcomeIgnored {
			t.Errorf("Expected %v to be ignored while idle, got %s", c, outcome)
		}
	}

	if r.Collecting() {
		t.Error("Expected reassembler to remain idle")
	}
}

func TestReassemblerGapResets(t *testing.T) {
	r := newTestReassembler(Config{})

	r.Handle(chunk(0, 0xAA))
	r.Handle(chunk(1, 0xBB))
	frame, outcome := r.Handle(chunk(3, 0xCC))
	if frame != nil || outcome != OutcomeReset {
		t.Fatalf("Expected reset on gap, got %s", outcome)
	}
	if r.Collecting() || r.Buffered() != 0 {
		t.Fatal("Expected idle state with empty buffer after gap")
	}

	// the end marker of the broken frame is ignored
	if frame, _ := r.Handle(endChunk); frame != nil {
		t.Fatal("Expected no frame for a broken attempt")
	}

	r.Handle(chunk(0, 0x11))
	frame, _ = r.Handle(endChunk)
	if frame == nil {
		t.Fatal("Expected fresh frame after restart")
	}
	if !bytes.Equal(frame.Bytes, []byte{0x11}) {
		t.Errorf("Expected fresh frame [0x11], got %v", frame.Bytes)
	}
}

func TestReassemblerRestartMidFrame(t *testing.T) {
	r := newTestReassembler(Config{})

	r.Handle(chunk(0, 0x01))
	r.Handle(chunk(1, 0x02))

	// a new frame start while collecting is a gap too
	if _, outcome := r.Handle(chunk(0, 0x03)); outcome != OutcomeReset {
		t.Fatalf("Expected reset, got %s", outcome)
	}
	if r.Expected() != -1 {
		t.Errorf("Expected idle, got expected id %d", r.Expected())
	}
}

func TestReassemblerMaxFrameBytes(t *testing.T) {
	r := newTestReassembler(Config{MaxFrameBytes: 4})

	r.Handle(chunk(0, 1, 2, 3))
	if _, outcome := r.Handle(chunk(1, 4, 5)); outcome != OutcomeReset {
		t.Fatalf("Expected reset when exceeding the limit, got %s", outcome)
	}

	if _, outcome := r.Handle(chunk(0, 1, 2, 3, 4, 5)); outcome != OutcomeReset {
		t.Fatalf("Expected oversized first chunk to reset, got %s", outcome)
	}
	if r.Collecting() {
		t.Error("Expected idle after oversized first chunk")
	}

	r.Handle(chunk(0, 1, 2))
	r.Handle(chunk(1, 3, 4))
	if frame, _ := r.Handle(endChunk); frame == nil || len(frame.Bytes) != 4 {
		t.Error("Expected frame at exactly the limit")
	}
}

func TestImageFrameFilename(t *testing.T) {
	r := newTestReassembler(Config{
		Clock: func() time.Time { return time.Date(2024, 5, 1, 8, 9, 10, 5*int(time.Millisecond), time.UTC) },
	})

	r.Handle(chunk(0, 0x01))
	frame, _ := r.Handle(endChunk)

	expected := "photo_2024-05-01T08-09-10-005Z.jpg"
	if frame.Filename() != expected {
		t.Errorf("Expected %s, got %s", expected, frame.Filename())
	}
}
