// Package protocol implements parsing of device notifications.
// It handles the 2-byte little-endian sequence prefix, the 0xFFFF end-of-frame
// marker, channel identities for the photo and audio characteristics, and the
// datagram framing used by the BLE bridge to forward notifications.
package protocol
