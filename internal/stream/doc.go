// Package stream routes device notifications to per-channel reassembly state.
// Each channel owns its state and mutex; nothing is shared between channels.
// Partial frames and segments left behind by a dropped link are discarded
// by an idle cleanup routine.
package stream
