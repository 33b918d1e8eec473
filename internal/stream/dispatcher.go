package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hutx/OpenGlass/internal/audio"
	"github.com/hutx/OpenGlass/internal/photo"
	"github.com/hutx/OpenGlass/internal/protocol"
)

// Config configures the per-channel state owned by a Dispatcher
type Config struct {
	Photo      photo.Config
	RadioAudio audio.AccumulatorConfig

	// IdleTimeout discards a partial frame or segment when its channel has
	// been silent this long. Zero disables the cleanup routine.
	IdleTimeout time.Duration
	// CleanupInterval defaults to 30s
	CleanupInterval time.Duration
}

// ChannelStats are per-channel counters
type ChannelStats struct {
	Notifications  uint64 `json:"notifications"`
	Frames         uint64 `json:"frames"`
	Containers     uint64 `json:"containers"`
	SequenceResets uint64 `json:"sequence_resets"`
	Malformed      uint64 `json:"malformed"`
	Ignored        uint64 `json:"ignored"`
	Expired        uint64 `json:"expired"`
}

// Stats is a snapshot of dispatcher state
type Stats struct {
	Photo               ChannelStats `json:"photo"`
	Audio               ChannelStats `json:"audio"`
	PhotoCollecting     bool         `json:"photo_collecting"`
	PhotoBufferedBytes  int          `json:"photo_buffered_bytes"`
	AudioPendingSeconds float64      `json:"audio_pending_seconds"`
}

type photoChannel struct {
	mu           sync.Mutex
	reassembler  *photo.Reassembler
	lastActivity time.Time
	stats        ChannelStats
}

type audioChannel struct {
	mu           sync.Mutex
	accumulator  *audio.PacketAccumulator
	lastActivity time.Time
	stats        ChannelStats
}

// Dispatcher routes raw notifications to the reassembler or accumulator of
// their channel. Calls for different channels may run concurrently; calls
// for one channel are serialised by that channel's mutex.
type Dispatcher struct {
	config   Config
	logger   *slog.Logger
	recorder Recorder

	photo photoChannel
	audio audioChannel

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewDispatcher creates a dispatcher with idle channels. recorder may be nil.
func NewDispatcher(config Config, recorder Recorder, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 30 * time.Second
	}

	accumulator, err := audio.NewPacketAccumulator(config.RadioAudio, logger.With(slog.String("channel", "audio")))
	if err != nil {
		return nil, fmt.Errorf("failed to create audio accumulator: %w", err)
	}

	d := &Dispatcher{
		config:   config,
		logger:   logger,
		recorder: recorder,
	}
	d.photo.reassembler = photo.NewReassembler(config.Photo, logger.With(slog.String("channel", "photo")))
	d.audio.accumulator = accumulator

	return d, nil
}

// Handle processes one raw notification for channel. It returns the
// artifact the notification completed, if any. Errors are returned only for
// notifications that cannot be attributed or parsed; sequencing failures and
// malformed audio packets are absorbed and counted.
func (d *Dispatcher) Handle(channel protocol.Channel, data []byte) (*Artifact, error) {
	switch channel {
	case protocol.ChannelPhoto:
		return d.handlePhoto(data)
	case protocol.ChannelAudio:
		return d.handleAudio(data)
	default:
		return nil, fmt.Errorf("%w: 0x%02x", protocol.ErrUnknownChannel, uint8(channel))
	}
}

func (d *Dispatcher) handlePhoto(data []byte) (*Artifact, error) {
	d.photo.mu.Lock()
	defer d.photo.mu.Unlock()

	d.photo.stats.Notifications++
	d.photo.lastActivity = time.Now()

	chunk, err := protocol.ParseNotification(data)
	if err != nil {
		d.photo.stats.Malformed++
		d.recorder.RecordNotification(protocol.ChannelPhoto.String(), "malformed")
		return nil, err
	}

	frame, outcome := d.photo.reassembler.Handle(chunk)
	d.recorder.RecordNotification(protocol.ChannelPhoto.String(), outcome.String())

	switch outcome {
	case photo.OutcomeIgnored:
		d.photo.stats.Ignored++
	case photo.OutcomeReset:
		d.photo.stats.SequenceResets++
	case photo.OutcomeFrame:
		d.photo.stats.Frames++
		artifact := ImageArtifact(frame)
		d.recorder.RecordArtifact(string(artifact.Kind), string(artifact.Source), len(frame.Bytes), 0)
		d.logger.Info("Photo frame assembled",
			slog.Int("size", len(frame.Bytes)),
			slog.Int("chunks", frame.Chunks),
		)
		return &artifact, nil
	}

	return nil, nil
}

func (d *Dispatcher) handleAudio(data []byte) (*Artifact, error) {
	d.audio.mu.Lock()
	defer d.audio.mu.Unlock()

	d.audio.stats.Notifications++
	d.audio.lastActivity = time.Now()

	chunk, err := protocol.ParseNotification(data)
	if err != nil {
		d.audio.stats.Malformed++
		d.recorder.RecordNotification(protocol.ChannelAudio.String(), "malformed")
		return nil, err
	}

	container, outcome := d.audio.accumulator.Handle(chunk)
	d.recorder.RecordNotification(protocol.ChannelAudio.String(), outcome.String())

	switch outcome {
	case audio.PacketMalformed:
		d.audio.stats.Malformed++
	case audio.PacketEndEmpty:
		d.audio.stats.Ignored++
	case audio.PacketEnd, audio.PacketThreshold:
		d.audio.stats.Containers++
		artifact := AudioArtifact(container, triggerName(outcome))
		d.recorder.RecordArtifact(string(artifact.Kind), string(artifact.Source), len(container.Bytes), container.Duration)
		d.logger.Info("Audio segment completed",
			slog.String("trigger", artifact.Trigger),
			slog.Float64("duration", container.Duration),
			slog.Int("size", len(container.Bytes)),
			slog.Bool("has_voice", container.HasVoice),
		)
		return &artifact, nil
	}

	return nil, nil
}

func triggerName(outcome audio.PacketOutcome) string {
	if outcome == audio.PacketThreshold {
		return "threshold"
	}
	return "end"
}

// Stats returns a snapshot of all channel counters. Each channel is locked
// on its own, so the snapshot is not atomic across channels.
func (d *Dispatcher) Stats() Stats {
	var stats Stats

	d.photo.mu.Lock()
	stats.Photo = d.photo.stats
	stats.PhotoCollecting = d.photo.reassembler.Collecting()
	stats.PhotoBufferedBytes = d.photo.reassembler.Buffered()
	d.photo.mu.Unlock()

	d.audio.mu.Lock()
	stats.Audio = d.audio.stats
	stats.AudioPendingSeconds = d.audio.accumulator.Duration()
	d.audio.mu.Unlock()

	return stats
}

// Start runs the idle cleanup routine until Stop is called. It does nothing
// when IdleTimeout is zero.
func (d *Dispatcher) Start() {
	if d.config.IdleTimeout <= 0 || d.cancel != nil {
		return
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.cleanup = make(chan struct{})
	go d.cleanupRoutine()
}

// Stop ends the cleanup routine. Pending partial state is left in place.
func (d *Dispatcher) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.cleanup
	d.cancel = nil

	stats := d.Stats()
	d.logger.Info("Dispatcher stopped",
		slog.Uint64("photo_frames", stats.Photo.Frames),
		slog.Uint64("audio_containers", stats.Audio.Containers),
		slog.Uint64("sequence_resets", stats.Photo.SequenceResets),
	)
}

// cleanupRoutine discards partial state of channels that went silent
func (d *Dispatcher) cleanupRoutine() {
	defer close(d.cleanup)

	ticker := time.NewTicker(d.config.CleanupInterval)
	defer ticker.Stop()

	d.logger.Info("Idle cleanup routine started",
		slog.Duration("timeout", d.config.IdleTimeout),
		slog.Duration("check_interval", d.config.CleanupInterval),
	)

	for {
		select {
		case <-d.ctx.Done():
			d.logger.Info("Idle cleanup routine stopping")
			return

		case <-ticker.C:
			d.expireIdle(time.Now())
		}
	}
}

// expireIdle drops partial frames and segments idle for longer than the timeout
func (d *Dispatcher) expireIdle(now time.Time) {
	d.photo.mu.Lock()
	if d.photo.reassembler.Collecting() && now.Sub(d.photo.lastActivity) > d.config.IdleTimeout {
		d.logger.Info("Discarding idle photo frame",
			slog.Int("buffered", d.photo.reassembler.Buffered()),
			slog.Duration("idle", now.Sub(d.photo.lastActivity)),
		)
		d.photo.reassembler.Reset()
		d.photo.stats.Expired++
	}
	d.photo.mu.Unlock()

	d.audio.mu.Lock()
	if d.audio.accumulator.Active() && now.Sub(d.audio.lastActivity) > d.config.IdleTimeout {
		d.logger.Info("Discarding idle audio segment",
			slog.Float64("pending_seconds", d.audio.accumulator.Duration()),
			slog.Duration("idle", now.Sub(d.audio.lastActivity)),
		)
		d.audio.accumulator.Reset()
		d.audio.stats.Expired++
	}
	d.audio.mu.Unlock()
}
