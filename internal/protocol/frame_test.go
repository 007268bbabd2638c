package protocol

import (
	"bytes"
	"testing"
)

func TestEncodeTextFrame(t *testing.T) {
	maskKey := [4]byte{0xAA, 0xBB, 0xCC, 0xDD}

	frame, err := EncodeTextFrame([]byte("Hi"), maskKey)
	if err != nil {
		t.Fatalf("EncodeTextFrame() error = %v", err)
	}

	want := []byte{
		0x81,                   // FIN + text opcode
		0x82,                   // Mask bit + 2 byte payload
		0xAA, 0xBB, 0xCC, 0xDD, // Mask key
		'H' ^ 0xAA, 'i' ^ 0xBB,
	}
	if !bytes.Equal(frame, want) {
		t.Errorf("EncodeTextFrame() = % x, want % x", frame, want)
	}
}

func TestEncodeTextFrameLengths(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"empty", 0, false},
		{"one byte", 1, false},
		{"max length", MaxPayloadLength, false},
		{"one over max", MaxPayloadLength + 1, true},
		{"extended length", 1000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := bytes.Repeat([]byte{'x'}, tt.size)
			frame, err := EncodeTextFrame(payload, [4]byte{1, 2, 3, 4})

			if (err != nil) != tt.wantErr {
				t.Fatalf("EncodeTextFrame() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !IsType(err, ErrTypeFrameCreationFailed) {
					t.Errorf("error type = %v, want FrameCreationFailed", err)
				}
				if frame != nil {
					t.Error("no frame bytes should be returned on error")
				}
				return
			}
			if len(frame) != tt.size+6 {
				t.Errorf("frame length = %d, want %d", len(frame), tt.size+6)
			}
			if frame[1] != 0x80|byte(tt.size) {
				t.Errorf("length byte = 0x%02x, want 0x%02x", frame[1], 0x80|byte(tt.size))
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	keys := [][4]byte{
		{0x00, 0x00, 0x00, 0x00},
		{0xFF, 0xFF, 0xFF, 0xFF},
		{0x12, 0x34, 0x56, 0x78},
		{0xDE, 0xAD, 0xBE, 0xEF},
	}

	for size := 0; size <= MaxPayloadLength; size++ {
		payload := make([]byte, size)
		for i := range payload {
			payload[i] = byte(i*7 + size)
		}

		for _, key := range keys {
			frame, err := EncodeTextFrame(payload, key)
			if err != nil {
				t.Fatalf("EncodeTextFrame(size=%d) error = %v", size, err)
			}

			decoded, n, err := DecodeFrame(frame)
			if err != nil {
				t.Fatalf("DecodeFrame(size=%d) error = %v", size, err)
			}
			if n != len(frame) {
				t.Errorf("DecodeFrame(size=%d) consumed %d, want %d", size, n, len(frame))
			}
			if !bytes.Equal(decoded.Payload, payload) {
				t.Fatalf("round trip size=%d key=% x: payload mismatch", size, key)
			}
			if decoded.MaskKey != key {
				t.Errorf("mask key = % x, want % x", decoded.MaskKey, key)
			}
		}
	}
}

func TestMaskPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		maskKey [4]byte
		want    []byte
	}{
		{
			name:    "simple masking",
			payload: []byte{0xAB, 0xBA, 0xCD, 0xDC},
			maskKey: [4]byte{0xAA, 0xBB, 0xCC, 0xDD},
			want:    []byte{0x01, 0x01, 0x01, 0x01},
		},
		{
			name:    "empty payload",
			payload: []byte{},
			maskKey: [4]byte{0x01, 0x02, 0x03, 0x04},
			want:    []byte{},
		},
		{
			name:    "payload longer than mask key",
			payload: []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
			maskKey: [4]byte{0x01, 0x02, 0x03, 0x04},
			want:    []byte{0x00, 0x00, 0x00, 0x00, 0x04, 0x04, 0x04, 0x0C},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskPayload(tt.payload, tt.maskKey)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("MaskPayload() = %v, want %v", got, tt.want)
			}
			if back := MaskPayload(got, tt.maskKey); !bytes.Equal(back, tt.payload) {
				t.Errorf("MaskPayload() twice = %v, want %v", back, tt.payload)
			}
		})
	}
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantErr  bool
		wantNone bool
		verify   func(t *testing.T, frame *Frame, n int)
	}{
		{
			name: "simple unmasked text frame",
			data: []byte{
				0x81, // FIN + text opcode
				0x05, // No mask, 5 byte payload
				'H', 'e', 'l', 'l', 'o',
			},
			verify: func(t *testing.T, frame *Frame, n int) {
				if frame.Opcode != OpcodeText {
					t.Errorf("opcode = 0x%02x, want 0x%02x (text)", frame.Opcode, OpcodeText)
				}
				if frame.Masked {
					t.Error("masked should be false")
				}
				if !bytes.Equal(frame.Payload, []byte("Hello")) {
					t.Errorf("payload = %v, want 'Hello'", frame.Payload)
				}
				if n != 7 {
					t.Errorf("consumed = %d, want 7", n)
				}
			},
		},
		{
			name: "two frames back to back",
			data: []byte{
				0x81, 0x02, 'o', 'k',
				0x81, 0x01, '!',
			},
			verify: func(t *testing.T, frame *Frame, n int) {
				if string(frame.Payload) != "ok" || n != 4 {
					t.Errorf("got %q consumed %d, want \"ok\" consumed 4", frame.Payload, n)
				}
			},
		},
		{
			name: "close frame",
			data: []byte{0x88, 0x00},
			verify: func(t *testing.T, frame *Frame, n int) {
				if frame.Opcode != OpcodeClose {
					t.Errorf("opcode = 0x%02x, want 0x%02x (close)", frame.Opcode, OpcodeClose)
				}
			},
		},
		{
			name: "frame with extended payload length (16-bit)",
			data: func() []byte {
				payloadSize := 300
				payload := bytes.Repeat([]byte{'e'}, payloadSize)
				return append([]byte{
					0x81,
					0x7E,
					byte(payloadSize >> 8),
					byte(payloadSize & 0xFF),
				}, payload...)
			}(),
			verify: func(t *testing.T, frame *Frame, n int) {
				if len(frame.Payload) != 300 {
					t.Errorf("payload length = %d, want 300", len(frame.Payload))
				}
				if n != 304 {
					t.Errorf("consumed = %d, want 304", n)
				}
			},
		},
		{
			name:     "incomplete frame (truncated header)",
			data:     []byte{0x81},
			wantNone: true,
		},
		{
			name:     "incomplete frame (truncated payload)",
			data:     []byte{0x81, 0x05, 'H', 'i'},
			wantNone: true,
		},
		{
			name:     "incomplete masked frame (missing mask key)",
			data:     []byte{0x81, 0x83},
			wantNone: true,
		},
		{
			name:     "incomplete extended length",
			data:     []byte{0x81, 0x7E, 0x01},
			wantNone: true,
		},
		{
			name:    "64-bit length rejected",
			data:    []byte{0x81, 0x7F, 0, 0, 0, 0, 0, 0, 0, 1},
			wantErr: true,
		},
		{
			name:    "fragmented frame rejected",
			data:    []byte{0x01, 0x01, 'a'},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, n, err := DecodeFrame(tt.data)

			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeFrame() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !IsType(err, ErrTypeReadError) {
					t.Errorf("error type = %v, want ReadError", err)
				}
				return
			}
			if tt.wantNone {
				if frame != nil || n != 0 {
					t.Errorf("DecodeFrame() = %v, %d; want nil, 0 for incomplete input", frame, n)
				}
				return
			}
			if frame == nil {
				t.Fatal("DecodeFrame() returned nil frame")
			}
			if tt.verify != nil {
				tt.verify(t, frame, n)
			}
		})
	}
}

func TestFrameOpcodeString(t *testing.T) {
	tests := []struct {
		opcode byte
		want   string
	}{
		{OpcodeContinuation, "continuation"},
		{OpcodeText, "text"},
		{OpcodeBinary, "binary"},
		{OpcodeClose, "close"},
		{OpcodePing, "ping"},
		{OpcodePong, "pong"},
		{0x3, "unknown(0x3)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			frame := &Frame{Opcode: tt.opcode}
			if got := frame.OpcodeString(); got != tt.want {
				t.Errorf("OpcodeString() = %v, want %v", got, tt.want)
			}
		})
	}
}
