package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values
const (
	EnvUDPPort       = "OPENGLASS_UDP_PORT"
	EnvHTTPPort      = "OPENGLASS_HTTP_PORT"
	EnvStoragePath   = "OPENGLASS_STORAGE_PATH"
	EnvLogLevel      = "OPENGLASS_LOG_LEVEL"
	EnvCaptureSource = "OPENGLASS_CAPTURE_SOURCE"
)

// Config represents the complete service configuration
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	HTTP         HTTPConfig         `yaml:"http"`
	Photo        PhotoConfig        `yaml:"photo"`
	RadioAudio   AudioChannelConfig `yaml:"radio_audio"`
	LocalCapture LocalCaptureConfig `yaml:"local_capture"`
	Storage      StorageConfig      `yaml:"storage"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig contains UDP ingest configuration
type ServerConfig struct {
	UDPPort     int    `yaml:"udp_port"`
	BindAddress string `yaml:"bind_address"`
	BufferSize  int    `yaml:"buffer_size"`
	QueueSize   int    `yaml:"queue_size"`   // per channel
	IdleTimeout int    `yaml:"idle_timeout"` // seconds, 0 keeps partial state forever
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// PhotoConfig contains photo reassembly limits
type PhotoConfig struct {
	MaxFrameBytes int `yaml:"max_frame_bytes"` // 0 disables the limit
}

// AudioChannelConfig describes one PCM accumulation path
type AudioChannelConfig struct {
	SampleRate       int     `yaml:"sample_rate"`
	Channels         int     `yaml:"channels"`
	BitDepth         int     `yaml:"bit_depth"`
	Gain             float64 `yaml:"gain"`
	AutoFlushSeconds float64 `yaml:"auto_flush_seconds"` // 0 flushes on demand only
	VoiceThreshold   float64 `yaml:"voice_threshold"`    // 0 selects the default
}

// LocalCaptureConfig contains host microphone configuration
type LocalCaptureConfig struct {
	AudioChannelConfig `yaml:",inline"`

	BlockSize int    `yaml:"block_size"` // samples per capture callback
	Source    string `yaml:"source"`     // raw float32 source; empty disables capture
}

// StorageConfig contains artifact store configuration
type StorageConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a complete, valid configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			UDPPort:     4444,
			BindAddress: "0.0.0.0",
			BufferSize:  65536,
			QueueSize:   1000,
			IdleTimeout: 60,
		},
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "0.0.0.0",
			Enabled: true,
		},
		Photo: PhotoConfig{
			MaxFrameBytes: 4 << 20,
		},
		RadioAudio: AudioChannelConfig{
			SampleRate:       44100,
			Channels:         1,
			BitDepth:         16,
			Gain:             2,
			AutoFlushSeconds: 30,
		},
		LocalCapture: LocalCaptureConfig{
			AudioChannelConfig: AudioChannelConfig{
				SampleRate: 44100,
				Channels:   1,
				BitDepth:   16,
				Gain:       1,
			},
			BlockSize: 4096,
		},
		Storage: StorageConfig{
			Path: "./data",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path and the
// environment. An empty path skips the file.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := config.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides values from OPENGLASS_* environment variables
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvUDPPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvUDPPort, err)
		}
		c.Server.UDPPort = port
	}

	if v, ok := os.LookupEnv(EnvHTTPPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvHTTPPort, err)
		}
		c.HTTP.Port = port
	}

	if v, ok := os.LookupEnv(EnvStoragePath); ok {
		c.Storage.Path = v
	}

	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.Logging.Level = v
	}

	if v, ok := os.LookupEnv(EnvCaptureSource); ok {
		c.LocalCapture.Source = v
	}

	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Photo.Validate(); err != nil {
		return fmt.Errorf("photo config: %w", err)
	}

	if err := c.RadioAudio.Validate(); err != nil {
		return fmt.Errorf("radio_audio config: %w", err)
	}

	if err := c.LocalCapture.Validate(); err != nil {
		return fmt.Errorf("local_capture config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", s.BufferSize)
	}

	if s.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", s.QueueSize)
	}

	if s.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout cannot be negative, got %d", s.IdleTimeout)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates photo configuration
func (p *PhotoConfig) Validate() error {
	if p.MaxFrameBytes < 0 {
		return fmt.Errorf("max_frame_bytes cannot be negative, got %d", p.MaxFrameBytes)
	}
	return nil
}

// Validate validates an audio channel
func (a *AudioChannelConfig) Validate() error {
	if a.SampleRate < 8000 || a.SampleRate > 192000 {
		return fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", a.SampleRate)
	}

	if a.Channels != 1 && a.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", a.Channels)
	}

	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}

	if a.Gain <= 0 {
		return fmt.Errorf("gain must be positive, got %f", a.Gain)
	}

	if a.AutoFlushSeconds < 0 {
		return fmt.Errorf("auto_flush_seconds cannot be negative, got %f", a.AutoFlushSeconds)
	}

	if a.VoiceThreshold < 0 || a.VoiceThreshold > 1 {
		return fmt.Errorf("voice_threshold must be between 0 and 1, got %f", a.VoiceThreshold)
	}

	return nil
}

// Validate validates local capture configuration
func (l *LocalCaptureConfig) Validate() error {
	if err := l.AudioChannelConfig.Validate(); err != nil {
		return err
	}

	if l.AutoFlushSeconds != 0 {
		return fmt.Errorf("auto_flush_seconds must be 0, local capture only stops on request")
	}

	if l.BlockSize < 1 {
		return fmt.Errorf("block_size must be at least 1 sample, got %d", l.BlockSize)
	}

	return nil
}

// Enabled reports whether a capture source is configured
func (l *LocalCaptureConfig) Enabled() bool {
	return l.Source != ""
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if !s.InMemory && s.Path == "" {
		return fmt.Errorf("path cannot be empty unless in_memory is set")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// any other output is treated as a file path
	return nil
}

// GetIdleTimeoutDuration returns the idle timeout as a time.Duration
func (s *ServerConfig) GetIdleTimeoutDuration() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}
