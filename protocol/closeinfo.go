// File: protocol/closeinfo.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CLOSE frame payload: 2 bytes big-endian status code followed by a UTF-8
// reason, 125 bytes at most.

package protocol

import (
	"encoding/binary"
	"strings"
	"unicode/utf8"

	"github.com/momentics/hioload-wsmsg/api"
)

// MaxLocalReasonLen bounds reasons built on this side. It keeps two bytes
// of headroom under the 123 byte wire limit.
const MaxLocalReasonLen = MaxCloseReasonLen - 2

// CloseInfo is a status code and reason pair.
type CloseInfo struct {
	Code   int
	Reason string
}

// NewCloseInfo builds a CloseInfo for sending. The reason is made valid
// UTF-8 and truncated to MaxLocalReasonLen bytes on a rune boundary.
func NewCloseInfo(code int, reason string) CloseInfo {
	return CloseInfo{Code: code, Reason: TruncateReason(reason, MaxLocalReasonLen)}
}

// TruncateReason cuts s to at most max bytes without splitting a rune.
func TruncateReason(s string, max int) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// ParseCloseInfo validates and decodes a received CLOSE payload. An empty
// payload yields CloseNoStatusRcvd. Codes outside the assigned and
// registered ranges and non UTF-8 reasons are protocol violations.
func ParseCloseInfo(payload []byte) (CloseInfo, error) {
	switch {
	case len(payload) == 0:
		return CloseInfo{Code: CloseNoStatusRcvd}, nil
	case len(payload) == 1:
		return CloseInfo{}, api.NewError(api.ErrCodeProtocolViolation, "invalid 1 byte close payload")
	case len(payload) > MaxControlPayloadLen:
		return CloseInfo{}, api.Errorf(api.ErrCodeProtocolViolation,
			"close payload of %d bytes exceeds %d", len(payload), MaxControlPayloadLen)
	}

	code := int(binary.BigEndian.Uint16(payload))
	if !IsValidCloseCode(code) {
		return CloseInfo{}, api.Errorf(api.ErrCodeProtocolViolation, "invalid close status code %d", code).
			WithContext("code", code)
	}
	reason := payload[2:]
	if !utf8.Valid(reason) {
		return CloseInfo{}, api.NewError(api.ErrCodeProtocolViolation, "invalid UTF-8 in close reason")
	}
	return CloseInfo{Code: code, Reason: string(reason)}, nil
}

// Payload serializes the pair. Codes that must not appear on the wire
// (1005, 1006, 1015 and anything unassigned) produce an empty payload. The
// reason is cut to MaxLocalReasonLen however the value was built.
func (c CloseInfo) Payload() []byte {
	if !IsValidCloseCode(c.Code) {
		return []byte{}
	}
	reason := TruncateReason(c.Reason, MaxLocalReasonLen)
	buf := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(buf, uint16(c.Code))
	copy(buf[2:], reason)
	return buf
}

// Frame wraps the payload in a final CLOSE frame.
func (c CloseInfo) Frame() *WSFrame {
	return NewFrame(OpcodeClose, c.Payload(), true)
}
