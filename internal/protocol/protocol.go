package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Device GATT identities
const (
	ServiceUUID               = "19b10000-e8f2-537e-4f6c-d104768a1214"
	AudioCharacteristicUUID   = "19b10001-e8f2-537e-4f6c-d104768a1214" // Notify
	PhotoCharacteristicUUID   = "19b10005-e8f2-537e-4f6c-d104768a1214" // Notify
	PhotoControlCharacterUUID = "19b10006-e8f2-537e-4f6c-d104768a1214" // Write
)

// Notification layout
const (
	SequenceSize = 2    // little-endian uint16 prefix
	EndMarker    = 0xFF // both prefix bytes set marks end of frame/segment

	// Datagram layout: [Channel:1][Notification:N]
	DatagramHeaderSize = 1
)

var (
	// ErrShortNotification is returned when a notification cannot hold a sequence prefix.
	ErrShortNotification = errors.New("notification too short")
	// ErrUnknownChannel is returned for a channel byte that maps to no characteristic.
	ErrUnknownChannel = errors.New("unknown channel")
)

// Channel identifies the characteristic a notification arrived on
type Channel uint8

const (
	ChannelPhoto Channel = 0x01
	ChannelAudio Channel = 0x02
)

// Chunk is one notification split into its sequence id and payload.
// End is set for the end marker, which carries no payload.
type Chunk struct {
	Sequence uint16
	End      bool
	Payload  []byte
}

// Datagram is a notification forwarded by the BLE bridge together with its channel
type Datagram struct {
	Channel      Channel
	Notification []byte
}

// ParseChannel converts a raw channel byte into a Channel
func ParseChannel(b byte) (Channel, error) {
	switch Channel(b) {
	case ChannelPhoto, ChannelAudio:
		return Channel(b), nil
	default:
		return 0, fmt.Errorf("%w: 0x%02x", ErrUnknownChannel, b)
	}
}

// ParseNotification splits a raw notification into a Chunk.
// The payload is copied; the caller may reuse data afterwards.
func ParseNotification(data []byte) (Chunk, error) {
	if len(data) < SequenceSize {
		return Chunk{}, fmt.Errorf("%w: expected at least %d bytes, got %d",
			ErrShortNotification, SequenceSize, len(data))
	}

	if IsEndMarker(data) {
		return Chunk{End: true}, nil
	}

	chunk := Chunk{
		Sequence: binary.LittleEndian.Uint16(data[0:SequenceSize]),
	}
	if len(data) > SequenceSize {
		chunk.Payload = make([]byte, len(data)-SequenceSize)
		copy(chunk.Payload, data[SequenceSize:])
	}

	return chunk, nil
}

// IsEndMarker reports whether the notification is the end-of-frame sentinel
func IsEndMarker(data []byte) bool {
	return len(data) >= SequenceSize && data[0] == EndMarker && data[1] == EndMarker
}

// ParseDatagram parses a bridge datagram: one channel byte followed by the raw notification
func ParseDatagram(data []byte) (*Datagram, error) {
	if len(data) < DatagramHeaderSize+SequenceSize {
		return nil, fmt.Errorf("datagram too short: expected at least %d bytes, got %d",
			DatagramHeaderSize+SequenceSize, len(data))
	}

	channel, err := ParseChannel(data[0])
	if err != nil {
		return nil, err
	}

	notification := make([]byte, len(data)-DatagramHeaderSize)
	copy(notification, data[DatagramHeaderSize:])

	return &Datagram{Channel: channel, Notification: notification}, nil
}

// EncodeDatagram frames a notification for the given channel
func EncodeDatagram(channel Channel, notification []byte) []byte {
	out := make([]byte, DatagramHeaderSize+len(notification))
	out[0] = byte(channel)
	copy(out[DatagramHeaderSize:], notification)
	return out
}

// EncodeNotification builds a raw notification with the given sequence id.
// Used by bridges and tests; the device produces the same layout.
func EncodeNotification(sequence uint16, payload []byte) []byte {
	out := make([]byte, SequenceSize+len(payload))
	binary.LittleEndian.PutUint16(out[0:SequenceSize], sequence)
	copy(out[SequenceSize:], payload)
	return out
}

// EndNotification returns the raw end marker notification
func EndNotification() []byte {
	return []byte{EndMarker, EndMarker}
}

// String returns a human-readable channel name
func (c Channel) String() string {
	switch c {
	case ChannelPhoto:
		return "photo"
	case ChannelAudio:
		return "audio"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", uint8(c))
	}
}

// Characteristic returns the GATT characteristic UUID the channel is subscribed to
func (c Channel) Characteristic() string {
	switch c {
	case ChannelPhoto:
		return PhotoCharacteristicUUID
	case ChannelAudio:
		return AudioCharacteristicUUID
	default:
		return ""
	}
}

// String returns a human-readable representation of the chunk
func (c Chunk) String() string {
	if c.End {
		return "Chunk{End}"
	}
	return fmt.Sprintf("Chunk{Sequence:%d, PayloadLen:%d}", c.Sequence, len(c.Payload))
}
