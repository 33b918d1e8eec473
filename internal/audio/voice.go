package audio

// DefaultVoiceThreshold is the mean normalised energy above which a segment
// is considered to contain speech
const DefaultVoiceThreshold = 0.02

// Energy returns the mean energy of samples normalised to [-1, 1]
func Energy(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		n := float64(s) / floatScale
		sum += n * n
	}
	return sum / float64(len(samples))
}

// HasVoiceActivity reports whether the mean energy exceeds threshold
func HasVoiceActivity(samples []int16, threshold float64) bool {
	return Energy(samples) > threshold
}
