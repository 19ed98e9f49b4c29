// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Policy loading from TOML files. Keys missing from the file keep the role
// defaults.

package control

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/momentics/hioload-wsmsg/api"
)

type fileConfig struct {
	Behavior       string `toml:"behavior"`
	MaxPayloadSize int    `toml:"max_payload_size"`
	MaxMessageSize int64  `toml:"max_message_size"`
	BufferSize     int    `toml:"buffer_size"`
	IdleTimeout    string `toml:"idle_timeout"`
	IdleTimeoutMS  int64  `toml:"idle_timeout_ms"`
}

// LoadPolicy reads a policy from a TOML file.
func LoadPolicy(path string) (*Policy, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	return policyFromFile(raw, meta)
}

// ParsePolicy reads a policy from TOML text.
func ParsePolicy(data string) (*Policy, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	return policyFromFile(raw, meta)
}

func policyFromFile(raw fileConfig, meta toml.MetaData) (*Policy, error) {
	behavior := api.BehaviorServer
	if meta.IsDefined("behavior") {
		b, err := parseBehavior(raw.Behavior)
		if err != nil {
			return nil, err
		}
		behavior = b
	}
	p := DefaultPolicy(behavior)

	// Buffer size goes first so the payload ceiling is checked against the
	// configured value rather than the default.
	if meta.IsDefined("buffer_size") {
		p.BufferSize = raw.BufferSize
	}
	if meta.IsDefined("max_payload_size") {
		p.MaxPayloadSize = raw.MaxPayloadSize
	}
	if meta.IsDefined("max_message_size") {
		p.MaxMessageSize = raw.MaxMessageSize
	}
	if meta.IsDefined("idle_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.IdleTimeout))
		if err != nil {
			return nil, fmt.Errorf("parse idle_timeout: %w", err)
		}
		p.IdleTimeout = d
	}
	if meta.IsDefined("idle_timeout_ms") {
		p.IdleTimeout = time.Duration(raw.IdleTimeoutMS) * time.Millisecond
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown policy keys: %v", undecoded)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	return p, nil
}

func parseBehavior(raw string) (api.Behavior, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "server", "":
		return api.BehaviorServer, nil
	case "client":
		return api.BehaviorClient, nil
	default:
		return api.BehaviorServer, fmt.Errorf("unknown behavior %q", raw)
	}
}
