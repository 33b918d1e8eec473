package protocol

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestParseNotification(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expected    Chunk
		expectError bool
		errorMsg    string
	}{
		{
			name:     "first chunk",
			data:     []byte{0x00, 0x00, 0xDE, 0xAD},
			expected: Chunk{Sequence: 0, Payload: []byte{0xDE, 0xAD}},
		},
		{
			name:     "little-endian sequence",
			data:     []byte{0x34, 0x12, 0x01},
			expected: Chunk{Sequence: 0x1234, Payload: []byte{0x01}},
		},
		{
			name:     "sequence without payload",
			data:     []byte{0x05, 0x00},
			expected: Chunk{Sequence: 5},
		},
		{
			name:     "end marker",
			data:     []byte{0xFF, 0xFF},
			expected: Chunk{End: true},
		},
		{
			name:     "end marker ignores trailing bytes",
			data:     []byte{0xFF, 0xFF, 0x01, 0x02},
			expected: Chunk{End: true},
		},
		{
			name:     "single 0xFF is a sequence byte",
			data:     []byte{0xFF, 0x00, 0x07},
			expected: Chunk{Sequence: 255, Payload: []byte{0x07}},
		},
		{
			name:        "one byte",
			data:        []byte{0x01},
			expectError: true,
			errorMsg:    "notification too short",
		},
		{
			name:        "empty",
			data:        []byte{},
			expectError: true,
			errorMsg:    "notification too short",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk, err := ParseNotification(tt.data)

			if tt.expectError {
				if err == nil {
					t.Fatalf("Expected error but got none")
				}
				if !errors.Is(err, ErrShortNotification) {
					t.Errorf("Expected ErrShortNotification, got %v", err)
				}
				if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if chunk.Sequence != tt.expected.Sequence || chunk.End != tt.expected.End {
				t.Errorf("Expected %v, got %v", tt.expected, chunk)
			}
			if !bytes.Equal(chunk.Payload, tt.expected.Payload) {
				t.Errorf("Expected payload %v, got %v", tt.expected.Payload, chunk.Payload)
			}
		})
	}
}

func TestParseNotificationCopiesPayload(t *testing.T) {
	data := []byte{0x01, 0x00, 0xAA, 0xBB}

	chunk, err := ParseNotification(data)
	if err != nil {
		t.Fatalf("ParseNotification failed: %v", err)
	}

	data[2] = 0x00
	if chunk.Payload[0] != 0xAA {
		t.Error("Expected payload to be independent of the input buffer")
	}
}

func TestEncodeNotificationRoundTrip(t *testing.T) {
	payload := []byte("jpeg bytes")

	chunk, err := ParseNotification(EncodeNotification(513, payload))
	if err != nil {
		t.Fatalf("ParseNotification failed: %v", err)
	}
	if chunk.Sequence != 513 {
		t.Errorf("Expected sequence 513, got %d", chunk.Sequence)
	}
	if !bytes.Equal(chunk.Payload, payload) {
		t.Errorf("Expected payload %q, got %q", payload, chunk.Payload)
	}

	if !IsEndMarker(EndNotification()) {
		t.Error("Expected EndNotification to be an end marker")
	}
}

func TestParseDatagram(t *testing.T) {
	datagram, err := ParseDatagram(EncodeDatagram(ChannelAudio, EncodeNotification(7, []byte{1, 2})))
	if err != nil {
		t.Fatalf("ParseDatagram failed: %v", err)
	}
	if datagram.Channel != ChannelAudio {
		t.Errorf("Expected audio channel, got %s", datagram.Channel)
	}
	if !bytes.Equal(datagram.Notification, []byte{7, 0, 1, 2}) {
		t.Errorf("Unexpected notification bytes %v", datagram.Notification)
	}

	if _, err := ParseDatagram([]byte{0x01, 0x00}); err == nil {
		t.Error("Expected error for datagram without a full sequence prefix")
	}

	_, err = ParseDatagram([]byte{0x09, 0x00, 0x00})
	if !errors.Is(err, ErrUnknownChannel) {
		t.Errorf("Expected ErrUnknownChannel, got %v", err)
	}
}

func TestChannelIdentity(t *testing.T) {
	if ChannelPhoto.String() != "photo" || ChannelAudio.String() != "audio" {
		t.Errorf("Unexpected channel names %s, %s", ChannelPhoto, ChannelAudio)
	}
	if ChannelPhoto.Characteristic() != PhotoCharacteristicUUID {
		t.Errorf("Expected photo characteristic %s, got %s", PhotoCharacteristicUUID, ChannelPhoto.Characteristic())
	}
	if ChannelAudio.Characteristic() != AudioCharacteristicUUID {
		t.Errorf("Expected audio characteristic %s, got %s", AudioCharacteristicUUID, ChannelAudio.Characteristic())
	}
	if Channel(0x7F).Characteristic() != "" {
		t.Error("Expected empty characteristic for unknown channel")
	}
}
