// File: protocol/termination.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Mapping of failure kinds to close status codes.

package protocol

import (
	"fmt"

	"github.com/momentics/hioload-wsmsg/api"
)

// StatusCodeFor maps a failure to the close status code sent to the peer.
// Failures outside the taxonomy are unexpected: the server reports its own
// error, a client reports a policy violation.
func StatusCodeFor(err error, behavior api.Behavior) int {
	switch api.CodeOf(err) {
	case api.ErrCodeInvalidEncoding:
		return CloseInvalidPayloadData
	case api.ErrCodeMessageTooLarge:
		return CloseMessageTooBig
	case api.ErrCodeProtocolViolation:
		return CloseProtocolError
	default:
		return unexpectedStatus(behavior)
	}
}

func unexpectedStatus(behavior api.Behavior) int {
	if behavior == api.BehaviorClient {
		return ClosePolicyViolation
	}
	return CloseInternalServerErr
}

// reasonFor picks the close reason for err. Known failure kinds carry
// their message; anything else only names its type.
func reasonFor(err error) string {
	e, ok := err.(*api.Error)
	if !ok {
		return fmt.Sprintf("%T", err)
	}
	switch e.Code {
	case api.ErrCodeInvalidEncoding, api.ErrCodeMessageTooLarge, api.ErrCodeProtocolViolation:
		return e.Message
	}
	if cause := e.Unwrap(); cause != nil {
		return fmt.Sprintf("%T", cause)
	}
	return e.Message
}
