// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations.

package api

// SessionStatus enumerates the lifecycle of a connection as driven by the
// dispatcher.
type SessionStatus int32

const (
	SessionOpen SessionStatus = iota
	SessionTerminating
	SessionClosed
)

func (s SessionStatus) String() string {
	switch s {
	case SessionOpen:
		return "open"
	case SessionTerminating:
		return "terminating"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Behavior selects client or server role rules.
type Behavior int

const (
	BehaviorServer Behavior = iota
	BehaviorClient
)

func (b Behavior) String() string {
	if b == BehaviorClient {
		return "client"
	}
	return "server"
}
