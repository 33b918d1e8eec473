package audio

import (
	"fmt"
	"strings"
	"time"
)

// Container is a finished WAV artifact. It is immutable once built and owned
// by whoever receives it.
type Container struct {
	Bytes     []byte    `json:"-"`
	Format    Format    `json:"format"`
	Samples   int       `json:"samples"`
	Duration  float64   `json:"duration_seconds"`
	StartedAt time.Time `json:"started_at"`
	CreatedAt time.Time `json:"created_at"`
	HasVoice  bool      `json:"has_voice"`
}

// DataLength returns the PCM payload size in bytes
func (c *Container) DataLength() int {
	return len(c.Bytes) - WAVHeaderSize
}

// Filename suggests a storage name of the form recording_<start>_<duration>s.wav
func (c *Container) Filename() string {
	stamp := strings.Replace(c.StartedAt.UTC().Format("2006-01-02T15-04-05.000Z"), ".", "-", 1)
	return fmt.Sprintf("recording_%s_%.1fs.wav", stamp, c.Duration)
}
