// Package protocol
// Author: momentics <momentics@gmail.com>
//
// WebSocket wire protocol constants

package protocol

const (
	// Data opcodes
	OpcodeContinuation = 0x0
	OpcodeText         = 0x1
	OpcodeBinary       = 0x2

	// Control opcodes (>= 0x8)
	OpcodeClose = 0x8
	OpcodePing  = 0x9
	OpcodePong  = 0xA

	// Frame limit settings
	MaxControlPayloadLen = 125
	MaxCloseReasonLen    = MaxControlPayloadLen - 2
	MaxFrameHeaderLen    = 14 // for extended payloads with masking

	// Bit masks
	FinBit  = 0x80
	RsvBits = 0x70
	MaskBit = 0x80

	// Close codes
	CloseNormalClosure      = 1000
	CloseGoingAway          = 1001
	CloseProtocolError      = 1002
	CloseUnsupportedData    = 1003
	CloseNoStatusRcvd       = 1005
	CloseAbnormalClosure    = 1006
	CloseInvalidPayloadData = 1007
	ClosePolicyViolation    = 1008
	CloseMessageTooBig      = 1009
	CloseMissingExtension   = 1010
	CloseInternalServerErr  = 1011
	CloseServiceRestart     = 1012
	CloseTryAgainLater      = 1013
	CloseBadGateway         = 1014
	CloseTLSHandshake       = 1015
)

// IsControl reports whether opcode is a control opcode.
func IsControl(opcode byte) bool {
	return opcode&0x8 != 0
}

// OpcodeName returns a short label for logs and metrics.
func OpcodeName(opcode byte) string {
	switch opcode {
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
		return "reserved"
	}
}

// validReceivedCloseCodes lists the assigned codes a peer may put on the
// wire. 1005, 1006 and 1015 are reserved for local reporting only.
var validReceivedCloseCodes = map[int]bool{
	CloseNormalClosure:      true,
	CloseGoingAway:          true,
	CloseProtocolError:      true,
	CloseUnsupportedData:    true,
	CloseInvalidPayloadData: true,
	ClosePolicyViolation:    true,
	CloseMessageTooBig:      true,
	CloseMissingExtension:   true,
	CloseInternalServerErr:  true,
	CloseServiceRestart:     true,
	CloseTryAgainLater:      true,
	CloseBadGateway:         true,
}

// IsValidCloseCode reports whether code may legally appear in a CLOSE
// frame: an assigned code from the table or a registered/private code in
// 3000-4999.
func IsValidCloseCode(code int) bool {
	return validReceivedCloseCodes[code] || (code >= 3000 && code <= 4999)
}
