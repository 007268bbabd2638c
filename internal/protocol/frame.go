package protocol

import (
	"encoding/binary"
	"fmt"
)

// WebSocket frame opcodes
const (
	OpcodeContinuation = 0x0
	OpcodeText         = 0x1
	OpcodeBinary       = 0x2
	OpcodeClose        = 0x8
	OpcodePing         = 0x9
	OpcodePong         = 0xA
)

// MaxPayloadLength is the largest payload that fits the single length byte.
// Extended lengths are not encoded.
const MaxPayloadLength = 125

// maxInboundPayload bounds the 16-bit extended length accepted on inbound
// frames from the relay.
const maxInboundPayload = 0xFFFF

// Frame represents a decoded WebSocket frame
type Frame struct {
	FIN     bool
	Opcode  byte
	Masked  bool
	Length  uint64
	MaskKey [4]byte
	Payload []byte
}

// EncodeTextFrame builds a single final, masked text frame.
//
// Layout: 0x81, 0x80|len, 4-byte masking key, payload XOR key.
func EncodeTextFrame(payload []byte, maskKey [4]byte) ([]byte, error) {
	if len(payload) > MaxPayloadLength {
		return nil, NewError(ErrTypeFrameCreationFailed,
			fmt.Sprintf("payload too large: %d bytes (max %d)", len(payload), MaxPayloadLength), nil)
	}

	frame := make([]byte, 0, len(payload)+6)

	// FIN + text opcode
	frame = append(frame, 0x80|OpcodeText)

	// MASK bit + 7-bit length
	frame = append(frame, 0x80|byte(len(payload)))

	frame = append(frame, maskKey[:]...)
	frame = append(frame, MaskPayload(payload, maskKey)...)

	return frame, nil
}

// MaskPayload applies the WebSocket XOR mask. Applying it twice with the same
// key yields the original bytes.
func MaskPayload(payload []byte, maskKey [4]byte) []byte {
	masked := make([]byte, len(payload))
	for i := 0; i < len(payload); i++ {
		masked[i] = payload[i] ^ maskKey[i%4]
	}
	return masked
}

// DecodeFrame parses one frame from the front of raw.
//
// It returns (nil, 0, nil) when raw does not yet hold a complete frame, so the
// caller can keep accumulating reads. Only the subset the relay emits is
// understood: final frames with 7-bit or 16-bit lengths.
func DecodeFrame(raw []byte) (*Frame, int, error) {
	if len(raw) < 2 {
		return nil, 0, nil
	}

	frame := &Frame{
		FIN:    raw[0]&0x80 != 0,
		Opcode: raw[0] & 0x0F,
		Masked: raw[1]&0x80 != 0,
	}
	if !frame.FIN {
		return nil, 0, NewError(ErrTypeReadError, "fragmented frames are not supported", nil)
	}

	offset := 2
	length := uint64(raw[1] & 0x7F)
	switch length {
	case 126:
		if len(raw) < offset+2 {
			return nil, 0, nil
		}
		length = uint64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case 127:
		return nil, 0, NewError(ErrTypeReadError, "64-bit frame lengths are not supported", nil)
	}
	if length > maxInboundPayload {
		return nil, 0, NewError(ErrTypeReadError, fmt.Sprintf("frame too large: %d bytes", length), nil)
	}
	frame.Length = length

	if frame.Masked {
		if len(raw) < offset+4 {
			return nil, 0, nil
		}
		copy(frame.MaskKey[:], raw[offset:offset+4])
		offset += 4
	}

	total := offset + int(length)
	if len(raw) < total {
		return nil, 0, nil
	}

	data := raw[offset:total]
	if frame.Masked {
		frame.Payload = MaskPayload(data, frame.MaskKey)
	} else {
		frame.Payload = append([]byte(nil), data...)
	}

	return frame, total, nil
}

// OpcodeString returns a human-readable opcode name
func (f *Frame) OpcodeString() string {
	switch f.Opcode {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return fmt.Sprintf("unknown(0x%X)", f.Opcode)
	}
}

// String returns a debug representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{FIN=%v, Opcode=%s, Masked=%v, Length=%d}",
		f.FIN, f.OpcodeString(), f.Masked, f.Length)
}
