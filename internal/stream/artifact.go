package stream

import (
	"context"
	"time"

	"github.com/hutx/OpenGlass/internal/audio"
	"github.com/hutx/OpenGlass/internal/photo"
	"github.com/hutx/OpenGlass/internal/protocol"
)

// Kind identifies the artifact type
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
)

// Source identifies where an artifact was produced
type Source string

const (
	SourceRadio Source = "radio"
	SourceLocal Source = "local"
)

// Artifact is a finished image frame or audio container. Exactly one of
// Image and Audio is set, matching Kind.
type Artifact struct {
	Kind    Kind
	Source  Source
	Channel protocol.Channel
	// Trigger is what completed the artifact: end, threshold or stop
	Trigger string

	Image *photo.ImageFrame
	Audio *audio.Container
}

// ImageArtifact wraps a reassembled frame from the photo channel
func ImageArtifact(frame *photo.ImageFrame) Artifact {
	return Artifact{
		Kind:    KindImage,
		Source:  SourceRadio,
		Channel: protocol.ChannelPhoto,
		Trigger: "end",
		Image:   frame,
	}
}

// AudioArtifact wraps a container built from radio audio notifications
func AudioArtifact(container *audio.Container, trigger string) Artifact {
	return Artifact{
		Kind:    KindAudio,
		Source:  SourceRadio,
		Channel: protocol.ChannelAudio,
		Trigger: trigger,
		Audio:   container,
	}
}

// LocalArtifact wraps a container recorded from the host input device
func LocalArtifact(container *audio.Container) Artifact {
	return Artifact{
		Kind:    KindAudio,
		Source:  SourceLocal,
		Trigger: "stop",
		Audio:   container,
	}
}

// Bytes returns the artifact payload
func (a Artifact) Bytes() []byte {
	switch {
	case a.Image != nil:
		return a.Image.Bytes
	case a.Audio != nil:
		return a.Audio.Bytes
	default:
		return nil
	}
}

// Filename returns the suggested storage name
func (a Artifact) Filename() string {
	switch {
	case a.Image != nil:
		return a.Image.Filename()
	case a.Audio != nil:
		return a.Audio.Filename()
	default:
		return ""
	}
}

// CreatedAt returns when the artifact was completed
func (a Artifact) CreatedAt() time.Time {
	switch {
	case a.Image != nil:
		return a.Image.CreatedAt
	case a.Audio != nil:
		return a.Audio.CreatedAt
	default:
		return time.Time{}
	}
}

// Duration returns the audio length in seconds, zero for images
func (a Artifact) Duration() float64 {
	if a.Audio != nil {
		return a.Audio.Duration
	}
	return 0
}

// Sink consumes finished artifacts. Ownership of the artifact passes to the sink.
type Sink interface {
	Deliver(ctx context.Context, artifact Artifact) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(ctx context.Context, artifact Artifact) error

// Deliver calls f(ctx, artifact)
func (f SinkFunc) Deliver(ctx context.Context, artifact Artifact) error {
	return f(ctx, artifact)
}

// Recorder receives dispatch events for metrics
type Recorder interface {
	RecordNotification(channel, outcome string)
	RecordArtifact(kind, source string, size int, durationSeconds float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordNotification(string, string) {}
func (nopRecorder) RecordArtifact(string, string, int, float64) {}
