// Package audio handles PCM accumulation and WAV encoding.
// It converts radio notifications and host capture blocks into 16-bit samples,
// collects them per segment with an optional duration threshold, and wraps
// finished segments in self-describing WAV containers.
package audio
