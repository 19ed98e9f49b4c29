// control/policy.go
// Author: momentics <momentics@gmail.com>
//
// Validation policy for one WebSocket session: payload and message size
// ceilings, streaming buffer size, idle timeout and role.

package control

import (
	"fmt"
	"time"

	"github.com/momentics/hioload-wsmsg/api"
)

const (
	DefaultMaxPayloadSize = 64 * 1024
	DefaultMaxMessageSize = 16 * 1024
	DefaultBufferSize     = 64 * 1024
	DefaultIdleTimeout    = 300 * time.Second
)

// Policy holds the static validation rules of a session. A Policy handed to
// a dispatcher is cloned; mutating the original afterwards has no effect on
// the running session.
type Policy struct {
	MaxPayloadSize int
	MaxMessageSize int64
	BufferSize     int
	IdleTimeout    time.Duration
	Behavior       api.Behavior
}

// DefaultPolicy returns the defaults for the given role.
func DefaultPolicy(behavior api.Behavior) *Policy {
	return &Policy{
		MaxPayloadSize: DefaultMaxPayloadSize,
		MaxMessageSize: DefaultMaxMessageSize,
		BufferSize:     DefaultBufferSize,
		IdleTimeout:    DefaultIdleTimeout,
		Behavior:       behavior,
	}
}

// NewServerPolicy returns server defaults.
func NewServerPolicy() *Policy { return DefaultPolicy(api.BehaviorServer) }

// NewClientPolicy returns client defaults.
func NewClientPolicy() *Policy { return DefaultPolicy(api.BehaviorClient) }

// Clone returns an independent copy.
func (p *Policy) Clone() *Policy {
	cp := *p
	return &cp
}

// Validate checks the policy invariants.
func (p *Policy) Validate() error {
	if p.BufferSize <= 0 {
		return api.Errorf(api.ErrCodeInvalidArgument, "buffer size must be positive, got %d", p.BufferSize)
	}
	if p.MaxPayloadSize < p.BufferSize {
		return api.Errorf(api.ErrCodeInvalidArgument,
			"max payload size %d is smaller than buffer size %d", p.MaxPayloadSize, p.BufferSize)
	}
	if p.MaxMessageSize <= 0 {
		return api.Errorf(api.ErrCodeInvalidArgument, "max message size must be 1 byte or larger, got %d", p.MaxMessageSize)
	}
	if p.IdleTimeout < 0 {
		return api.Errorf(api.ErrCodeInvalidArgument, "idle timeout must not be negative, got %s", p.IdleTimeout)
	}
	return nil
}

// SetMaxMessageSize updates the message ceiling.
func (p *Policy) SetMaxMessageSize(n int64) error {
	if n <= 0 {
		return api.Errorf(api.ErrCodeInvalidArgument, "max message size must be 1 byte or larger, got %d", n)
	}
	p.MaxMessageSize = n
	return nil
}

// SetMaxPayloadSize updates the per-frame ceiling. It may not drop below
// the buffer size.
func (p *Policy) SetMaxPayloadSize(n int) error {
	if n < p.BufferSize {
		return api.Errorf(api.ErrCodeInvalidArgument,
			"cannot have payload size %d be smaller than buffer size %d", n, p.BufferSize)
	}
	p.MaxPayloadSize = n
	return nil
}

// AssertValidMessageSize fails with ErrMessageTooLarge when a message of
// the requested size would exceed MaxMessageSize.
func (p *Policy) AssertValidMessageSize(requested int64) error {
	if requested > p.MaxMessageSize {
		return api.Errorf(api.ErrCodeMessageTooLarge,
			"requested message size [%d] exceeds maximum size [%d]", requested, p.MaxMessageSize).
			WithContext("limit", p.MaxMessageSize)
	}
	return nil
}

// AssertValidPayloadLength fails with ErrMessageTooLarge when a single frame
// payload exceeds MaxPayloadSize.
func (p *Policy) AssertValidPayloadLength(n int64) error {
	if n > int64(p.MaxPayloadSize) {
		return api.Errorf(api.ErrCodeMessageTooLarge,
			"requested payload length [%d] exceeds maximum size [%d]", n, p.MaxPayloadSize).
			WithContext("limit", p.MaxPayloadSize)
	}
	return nil
}

func (p *Policy) String() string {
	return fmt.Sprintf("Policy[behavior=%s,maxPayload=%d,maxMessage=%d,buffer=%d,idle=%s]",
		p.Behavior, p.MaxPayloadSize, p.MaxMessageSize, p.BufferSize, p.IdleTimeout)
}
