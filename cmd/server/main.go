package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hutx/OpenGlass/internal/audio"
	"github.com/hutx/OpenGlass/internal/capture"
	"github.com/hutx/OpenGlass/internal/config"
	"github.com/hutx/OpenGlass/internal/metrics"
	"github.com/hutx/OpenGlass/internal/photo"
	"github.com/hutx/OpenGlass/internal/server"
	"github.com/hutx/OpenGlass/internal/store"
	"github.com/hutx/OpenGlass/internal/stream"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "openglass-relay"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file (empty for defaults)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("queue_size", cfg.Server.QueueSize),
		slog.Int("radio_sample_rate", cfg.RadioAudio.SampleRate),
		slog.Float64("radio_gain", cfg.RadioAudio.Gain),
		slog.Float64("radio_auto_flush_seconds", cfg.RadioAudio.AutoFlushSeconds),
		slog.Bool("local_capture_enabled", cfg.LocalCapture.Enabled()),
		slog.String("storage_path", cfg.Storage.Path),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appMetrics := metrics.NewMetrics(nil)
	logger.Info("Prometheus metrics initialized")

	artifactStore, err := store.Open(store.Options{
		Path:     cfg.Storage.Path,
		InMemory: cfg.Storage.InMemory,
	}, logger.With(slog.String("component", "store")))
	if err != nil {
		logger.Error("Failed to open artifact store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	dispatcher, err := stream.NewDispatcher(stream.Config{
		Photo: photo.Config{
			MaxFrameBytes: cfg.Photo.MaxFrameBytes,
		},
		RadioAudio: audio.AccumulatorConfig{
			Format:           channelFormat(cfg.RadioAudio),
			Gain:             cfg.RadioAudio.Gain,
			AutoFlushSeconds: cfg.RadioAudio.AutoFlushSeconds,
			VoiceThreshold:   cfg.RadioAudio.VoiceThreshold,
		},
		IdleTimeout: cfg.Server.GetIdleTimeoutDuration(),
	}, appMetrics, logger.With(slog.String("component", "dispatcher")))
	if err != nil {
		logger.Error("Failed to create dispatcher", slog.String("error", err.Error()))
		artifactStore.Close()
		os.Exit(1)
	}
	dispatcher.Start()
	logger.Info("Dispatcher initialized",
		slog.Duration("idle_timeout", cfg.Server.GetIdleTimeoutDuration()),
		slog.Int("max_frame_bytes", cfg.Photo.MaxFrameBytes),
	)

	// Local capture is optional; without a source the API reports it as disabled
	var segmenter *capture.Segmenter
	if cfg.LocalCapture.Enabled() {
		capturer := capture.NewPipeCapturer(capture.FileSource(cfg.LocalCapture.Source), logger.With(slog.String("component", "capture")))
		segmenter, err = capture.NewSegmenter(capture.SegmenterConfig{
			Format:    channelFormat(cfg.LocalCapture.AudioChannelConfig),
			Gain:      cfg.LocalCapture.Gain,
			BlockSize: cfg.LocalCapture.BlockSize,
		}, capturer, logger.With(slog.String("component", "capture")))
		if err != nil {
			logger.Error("Failed to create local capture", slog.String("error", err.Error()))
			artifactStore.Close()
			os.Exit(1)
		}
		logger.Info("Local capture initialized",
			slog.String("source", cfg.LocalCapture.Source),
			slog.Int("block_size", cfg.LocalCapture.BlockSize),
		)
	}

	udpServer := server.NewUDPServer(&cfg.Server, logger, dispatcher, artifactStore, appMetrics)
	logger.Info("UDP server initialized")

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		var controller server.CaptureController
		if segmenter != nil {
			controller = segmenter
		}
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, dispatcher, udpServer, artifactStore, controller, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	if err := udpServer.Start(); err != nil {
		logger.Error("Failed to start UDP server", slog.String("error", err.Error()))
		artifactStore.Close()
		os.Exit(1)
	}

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("udp_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.UDPPort)),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// An active recording is finished and stored rather than lost
	if segmenter != nil && segmenter.Active() {
		record, err := server.StopCapture(segmenter, artifactStore, appMetrics)
		if err != nil {
			logger.Error("Failed to finish local capture", slog.String("error", err.Error()))
		} else if record != nil {
			logger.Info("Local capture stored on shutdown", slog.String("id", record.ID))
		}
	}

	// Stop UDP server; queued notifications are drained into the store
	if err := udpServer.Stop(); err != nil {
		logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
	}

	dispatcher.Stop()

	stats := dispatcher.Stats()
	logger.Info("Final channel statistics",
		slog.Uint64("photo_notifications", stats.Photo.Notifications),
		slog.Uint64("photo_frames", stats.Photo.Frames),
		slog.Uint64("photo_sequence_resets", stats.Photo.SequenceResets),
		slog.Uint64("audio_notifications", stats.Audio.Notifications),
		slog.Uint64("audio_containers", stats.Audio.Containers),
		slog.Uint64("audio_malformed", stats.Audio.Malformed),
	)

	if err := artifactStore.Close(); err != nil {
		logger.Error("Error closing artifact store", slog.String("error", err.Error()))
	}

	logger.Info("Service stopped")
}

// channelFormat converts an audio channel config into a WAV format
func channelFormat(cfg config.AudioChannelConfig) audio.Format {
	return audio.Format{
		SampleRate:    cfg.SampleRate,
		Channels:      cfg.Channels,
		BitsPerSample: cfg.BitDepth,
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
