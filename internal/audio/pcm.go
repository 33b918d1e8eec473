package audio

import (
	"encoding/binary"
	"math"
)

// Saturation bounds for 16-bit signed PCM
const (
	MaxSample = math.MaxInt16
	MinSample = math.MinInt16

	// floatScale maps [-1.0, 1.0) float samples onto the int16 range
	floatScale = 32768.0
)

// Saturate clamps v to the int16 range and truncates toward zero
func Saturate(v float64) int16 {
	if math.IsNaN(v) {
		return 0
	}
	if v >= MaxSample {
		return MaxSample
	}
	if v <= MinSample {
		return MinSample
	}
	return int16(v)
}

// DecodePCM16 decodes little-endian 16-bit samples and applies gain with
// saturation. Only complete sample pairs are decoded; a trailing odd byte is
// dropped.
func DecodePCM16(data []byte, gain float64) []int16 {
	n := len(data) / 2
	samples := make([]int16, n)
	for i := range samples {
		raw := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
		if gain == 1 {
			samples[i] = raw
			continue
		}
		samples[i] = Saturate(float64(raw) * gain)
	}
	return samples
}

// FloatToPCM16 converts float samples in [-1.0, 1.0] to 16-bit PCM by scaling
// by 32768, applying gain and saturating.
func FloatToPCM16(block []float32, gain float64) []int16 {
	samples := make([]int16, len(block))
	for i, v := range block {
		samples[i] = Saturate(float64(v) * floatScale * gain)
	}
	return samples
}

// SamplesToBytes serialises samples as little-endian int16 PCM
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples is the inverse of SamplesToBytes; a trailing odd byte is ignored
func BytesToSamples(data []byte) []int16 {
	return DecodePCM16(data, 1)
}
