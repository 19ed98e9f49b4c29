// File: protocol/frame_codec.go
// Package protocol implements the byte-slice frame codec used by the
// connection bridge.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Decoding tolerates partial input so a transport may deliver frames split
// across reads. Payload ceilings come from the session policy.

package protocol

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/momentics/hioload-wsmsg/api"
)

// DecodeFrameFromBytes parses one frame from the head of raw, enforcing
// maxPayload (<= 0 disables the check).
// Returns frame, consumed bytes, and error.
// If frame is incomplete, returns (nil, 0, nil).
func DecodeFrameFromBytes(raw []byte, maxPayload int64) (*WSFrame, int, error) {
	if len(raw) < 2 {
		return nil, 0, nil // Incomplete
	}
	fin := raw[0]&FinBit != 0
	rsv := raw[0] & RsvBits
	opcode := raw[0] & 0x0F
	masked := raw[1]&MaskBit != 0
	length := int64(raw[1] & 0x7F)
	offset := 2

	switch length {
	case 126:
		if len(raw) < offset+2 {
			return nil, 0, nil // Incomplete
		}
		length = int64(binary.BigEndian.Uint16(raw[offset:]))
		offset += 2
	case 127:
		if len(raw) < offset+8 {
			return nil, 0, nil // Incomplete
		}
		length = int64(binary.BigEndian.Uint64(raw[offset:]))
		offset += 8
	}

	if err := checkPayloadLen(length, maxPayload); err != nil {
		return nil, 0, err
	}

	var maskKey [4]byte
	if masked {
		if len(raw) < offset+4 {
			return nil, 0, nil // Incomplete
		}
		copy(maskKey[:], raw[offset:offset+4])
		offset += 4
	}

	if int64(len(raw)-offset) < length {
		return nil, 0, nil // Incomplete
	}
	totalLen := offset + int(length)

	payload := make([]byte, length)
	copy(payload, raw[offset:totalLen])
	if masked {
		maskInPlace(payload, maskKey)
	}

	return &WSFrame{
		IsFinal:    fin,
		Opcode:     opcode,
		Rsv:        rsv,
		Masked:     masked,
		PayloadLen: length,
		MaskKey:    maskKey,
		Payload:    payload,
	}, totalLen, nil
}

// EncodeFrameToBytes serializes WSFrame into []byte using f.Masked.
func EncodeFrameToBytes(f *WSFrame) ([]byte, error) {
	return EncodeFrameToBufferWithMask(f, f.Masked, nil)
}

// EncodeFrameToBufferWithMask serializes WSFrame into a caller-managed buffer,
// minimizing allocations. Returned slice aliases dst. A masked frame gets a
// fresh random key; f.Payload is never modified.
func EncodeFrameToBufferWithMask(f *WSFrame, mask bool, dst []byte) ([]byte, error) {
	if IsControl(f.Opcode) {
		if len(f.Payload) > MaxControlPayloadLen {
			return nil, api.Errorf(api.ErrCodeProtocolViolation,
				"control frame payload of %d bytes exceeds %d", len(f.Payload), MaxControlPayloadLen)
		}
		if !f.IsFinal {
			return nil, api.NewError(api.ErrCodeProtocolViolation, "control frame must not be fragmented")
		}
	}

	var b0 byte
	if f.IsFinal {
		b0 = FinBit
	}
	b0 |= f.Opcode & 0x0F

	var maskBit byte
	if mask {
		maskBit = MaskBit
	}

	plen := len(f.Payload)
	var hdr [10]byte
	var header []byte

	switch {
	case plen <= 125:
		header = hdr[:2]
		header[1] = byte(plen) | maskBit
	case plen <= 0xFFFF:
		header = hdr[:4]
		header[1] = 126 | maskBit
		binary.BigEndian.PutUint16(header[2:], uint16(plen))
	default:
		header = hdr[:10]
		header[1] = 127 | maskBit
		binary.BigEndian.PutUint64(header[2:], uint64(plen))
	}
	header[0] = b0

	dst = append(dst[:0], header...)
	var maskKey [4]byte
	if mask {
		if _, err := rand.Read(maskKey[:]); err != nil {
			return nil, api.WrapError(api.ErrCodeInternal, "generate mask key", err)
		}
		dst = append(dst, maskKey[:]...)
	}

	start := len(dst)
	dst = append(dst, f.Payload...)
	if mask {
		maskInPlace(dst[start:], maskKey)
	}

	return dst, nil
}
