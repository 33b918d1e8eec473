package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// WAVHeaderSize is the size of the canonical PCM RIFF header
const WAVHeaderSize = 44

// ErrInvalidFormat is returned when a Format cannot describe PCM audio
var ErrInvalidFormat = errors.New("invalid audio format")

// WAVHeader represents the header structure of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// Format describes the PCM layout written into a container header.
// It is fixed per deployment and never inferred from the payload.
type Format struct {
	SampleRate    int `json:"sample_rate"`
	Channels      int `json:"channels"`
	BitsPerSample int `json:"bits_per_sample"`
}

// Deployment formats
var (
	CaptureFormat       = Format{SampleRate: 44100, Channels: 1, BitsPerSample: 16}
	TranscriptionFormat = Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
)

// Validate checks that the format can be encoded into a PCM header
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidFormat, f.SampleRate)
	}
	if f.Channels < 1 || f.Channels > 0xFFFF {
		return fmt.Errorf("%w: channels must be between 1 and 65535, got %d", ErrInvalidFormat, f.Channels)
	}
	if f.BitsPerSample <= 0 || f.BitsPerSample%8 != 0 {
		return fmt.Errorf("%w: bits per sample must be a positive multiple of 8, got %d", ErrInvalidFormat, f.BitsPerSample)
	}
	return nil
}

// BlockAlign returns the number of bytes per sample frame
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

// ByteRate returns the number of payload bytes per second
func (f Format) ByteRate() int {
	return f.SampleRate * f.BlockAlign()
}

// EncodeWAV wraps raw little-endian PCM bytes into a WAV container of
// exactly WAVHeaderSize+len(pcm) bytes. An empty payload yields a bare header.
func EncodeWAV(pcm []byte, format Format) ([]byte, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	dataSize := uint32(len(pcm))

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(format.Channels),
		SampleRate:    uint32(format.SampleRate),
		ByteRate:      uint32(format.ByteRate()),
		BlockAlign:    uint16(format.BlockAlign()),
		BitsPerSample: uint16(format.BitsPerSample),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, WAVHeaderSize+len(pcm)))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	buf.Write(pcm)

	return buf.Bytes(), nil
}

// EncodeSamples encodes 16-bit samples into a WAV container
func EncodeSamples(samples []int16, format Format) ([]byte, error) {
	if format.BitsPerSample != 16 {
		return nil, fmt.Errorf("%w: int16 samples need 16 bits per sample, got %d", ErrInvalidFormat, format.BitsPerSample)
	}
	return EncodeWAV(SamplesToBytes(samples), format)
}

// DecodeWAV decodes 16-bit WAV data back to PCM samples and its format
func DecodeWAV(data []byte) ([]int16, Format, error) {
	info, err := GetWAVInfo(data)
	if err != nil {
		return nil, Format{}, err
	}

	if info.BitsPerSample != 16 {
		return nil, Format{}, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", info.BitsPerSample)
	}

	end := WAVHeaderSize + int(info.DataSize)
	if end > len(data) {
		return nil, Format{}, fmt.Errorf("WAV data truncated: header says %d payload bytes, got %d",
			info.DataSize, len(data)-WAVHeaderSize)
	}

	return BytesToSamples(data[WAVHeaderSize:end]), info.Format(), nil
}

// ValidateWAV validates a WAV file format without decoding the entire audio data
func ValidateWAV(data []byte) error {
	if len(data) < WAVHeaderSize {
		return fmt.Errorf("WAV data too short: need at least %d bytes, got %d", WAVHeaderSize, len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if string(data[36:40]) != "data" {
		return fmt.Errorf("invalid WAV file: missing data chunk")
	}

	return nil
}

// WAVInfo holds the header fields of a WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"`
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}

	var header WAVHeader
	if err := binary.Read(bytes.NewReader(data[:WAVHeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if header.AudioFormat != 1 {
		return nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}

	if header.SampleRate == 0 || header.BlockAlign == 0 {
		return nil, fmt.Errorf("invalid WAV header: sample rate %d, block align %d", header.SampleRate, header.BlockAlign)
	}

	frames := header.Subchunk2Size / uint32(header.BlockAlign)

	return &WAVInfo{
		SampleRate:    header.SampleRate,
		Channels:      header.NumChannels,
		BitsPerSample: header.BitsPerSample,
		Duration:      float64(frames) / float64(header.SampleRate),
		DataSize:      header.Subchunk2Size,
		NumSamples:    frames * uint32(header.NumChannels),
	}, nil
}

// Format returns the PCM layout described by the header
func (i *WAVInfo) Format() Format {
	return Format{
		SampleRate:    int(i.SampleRate),
		Channels:      int(i.Channels),
		BitsPerSample: int(i.BitsPerSample),
	}
}
