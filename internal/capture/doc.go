// Package capture records audio from a host input device.
//
// A Capturer delivers fixed-size blocks of float samples to a callback. The
// Segmenter converts them to 16-bit PCM and emits one WAV container when the
// recording is stopped explicitly; it never flushes on its own.
package capture
