// File: protocol/continuation.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Continuation tracking for fragmented data messages. The state belongs to
// the connection and outlives individual appenders.

package protocol

import "github.com/momentics/hioload-wsmsg/api"

// FragmentType records which data message is currently fragmented.
type FragmentType int

const (
	FragmentNone FragmentType = iota
	FragmentText
	FragmentBinary
)

func (t FragmentType) String() string {
	switch t {
	case FragmentText:
		return "text"
	case FragmentBinary:
		return "binary"
	default:
		return "none"
	}
}

// continuationTracker is not safe for concurrent use; frames of one
// connection are dispatched sequentially.
type continuationTracker struct {
	last FragmentType
}

// begin opens a fragmented message of the given type.
func (c *continuationTracker) begin(t FragmentType) error {
	if c.last != FragmentNone {
		return api.Errorf(api.ErrCodeProtocolViolation,
			"new %s message started while %s message is still fragmented", t, c.last)
	}
	c.last = t
	return nil
}

// next validates a CONTINUATION frame and returns the type it continues.
func (c *continuationTracker) next() (FragmentType, error) {
	if c.last == FragmentNone {
		return FragmentNone, api.NewError(api.ErrCodeProtocolViolation,
			"invalid continuation frame: no fragmented message in progress")
	}
	return c.last, nil
}

func (c *continuationTracker) end() {
	c.last = FragmentNone
}

func (c *continuationTracker) open() bool {
	return c.last != FragmentNone
}
