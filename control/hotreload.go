// control/hotreload.go
// Holds the policy handed to new connections and reloads it from disk.
// Sessions clone the policy when they start, so a reload only affects
// connections opened afterwards.

package control

import (
	"sync"
	"sync/atomic"
)

// PolicyStore publishes the current policy to connection factories.
type PolicyStore struct {
	cur   atomic.Pointer[Policy]
	mu    sync.Mutex
	hooks []func(*Policy)
}

// NewPolicyStore starts from a copy of p.
func NewPolicyStore(p *Policy) (*PolicyStore, error) {
	s := &PolicyStore{}
	if err := s.Set(p); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns a copy of the active policy.
func (s *PolicyStore) Current() *Policy {
	return s.cur.Load().Clone()
}

// RegisterReloadHook adds a listener called with each new policy.
func (s *PolicyStore) RegisterReloadHook(fn func(*Policy)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Set validates and publishes p, then runs the reload hooks synchronously.
func (s *PolicyStore) Set(p *Policy) error {
	cp := p.Clone()
	if err := cp.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.Store(cp)
	for _, fn := range s.hooks {
		fn(cp.Clone())
	}
	return nil
}

// Reload reads path and publishes the result. On error the active policy
// is kept.
func (s *PolicyStore) Reload(path string) error {
	p, err := LoadPolicy(path)
	if err != nil {
		return err
	}
	return s.Set(p)
}
