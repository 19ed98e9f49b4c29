// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket frame representation and stream decoding.

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/momentics/hioload-wsmsg/api"
)

// WSFrame represents a decoded WebSocket frame. Opcode, IsFinal and Payload
// are all the dispatcher looks at; the remaining fields describe the wire
// encoding.
type WSFrame struct {
	IsFinal    bool  // FIN bit
	Opcode     byte  // Operation code
	Rsv        byte  // RSV1-3 bits as found on the wire
	Masked     bool  // Whether the frame was masked
	PayloadLen int64 // Actual payload length
	MaskKey    [4]byte
	Payload    []byte
}

// NewFrame builds an unmasked frame.
func NewFrame(opcode byte, payload []byte, fin bool) *WSFrame {
	return &WSFrame{
		IsFinal:    fin,
		Opcode:     opcode,
		PayloadLen: int64(len(payload)),
		Payload:    payload,
	}
}

func (f *WSFrame) String() string {
	return fmt.Sprintf("WSFrame[%s,fin=%t,len=%d]", OpcodeName(f.Opcode), f.IsFinal, len(f.Payload))
}

// DecodeFrame reads one frame from a blocking stream, refusing payloads
// larger than maxPayload before allocating them. It serves the peer side
// and recorded frame files; WSConnection decodes incrementally with
// DecodeFrameFromBytes instead.
func DecodeFrame(r io.Reader, maxPayload int64) (*WSFrame, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}

	isFin := hdr[0]&FinBit != 0
	rsv := hdr[0] & RsvBits
	opcode := hdr[0] & 0x0F
	isMasked := hdr[1]&MaskBit != 0
	payloadLen := int64(hdr[1] & 0x7F)

	switch payloadLen {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		payloadLen = int64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return nil, err
		}
		payloadLen = int64(binary.BigEndian.Uint64(ext[:]))
	}
	if err := checkPayloadLen(payloadLen, maxPayload); err != nil {
		return nil, err
	}

	var maskKey [4]byte
	if isMasked {
		if _, err := io.ReadFull(r, maskKey[:]); err != nil {
			return nil, err
		}
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	if isMasked {
		maskInPlace(payload, maskKey)
	}

	return &WSFrame{
		IsFinal:    isFin,
		Opcode:     opcode,
		Rsv:        rsv,
		Masked:     isMasked,
		PayloadLen: payloadLen,
		MaskKey:    maskKey,
		Payload:    payload,
	}, nil
}

func checkPayloadLen(n, max int64) error {
	if n < 0 {
		return api.Errorf(api.ErrCodeProtocolViolation, "negative payload length %d", n)
	}
	if max > 0 && n > max {
		return api.Errorf(api.ErrCodeMessageTooLarge,
			"frame payload length [%d] exceeds maximum size [%d]", n, max)
	}
	return nil
}

// maskInPlace applies XOR on payload using maskKey.
func maskInPlace(buf []byte, key [4]byte) {
	for i := 0; i < len(buf); i++ {
		buf[i] ^= key[i%4]
	}
}
