// File: internal/session/registry.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe registry of live connections.

package session

import (
	"hash/fnv"
	"sync"
)

// Terminator is the part of a connection the registry needs.
type Terminator interface {
	Terminate(code int, reason string)
}

// Registry maps connection ids to live connections.
type Registry struct {
	shards []*shard
	mask   uint32
}

type shard struct {
	mu    sync.RWMutex
	conns map[string]Terminator
}

// NewRegistry constructs a registry with shardCount shards, rounded up to
// a power of two.
func NewRegistry(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = 16
	}
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*shard, m)
	for i := range shards {
		shards[i] = &shard{conns: make(map[string]Terminator)}
	}
	return &Registry{shards: shards, mask: m - 1}
}

func (r *Registry) shard(id string) *shard {
	return r.shards[fnv32(id)&r.mask]
}

// Add registers t under id. It reports false when id is already taken.
func (r *Registry) Add(id string, t Terminator) bool {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.conns[id]; ok {
		return false
	}
	sh.conns[id] = t
	return true
}

// Get fetches a connection if present.
func (r *Registry) Get(id string) (Terminator, bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	t, ok := sh.conns[id]
	return t, ok
}

// Remove forgets id without terminating it.
func (r *Registry) Remove(id string) {
	sh := r.shard(id)
	sh.mu.Lock()
	delete(sh.conns, id)
	sh.mu.Unlock()
}

// Len counts registered connections.
func (r *Registry) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.conns)
		sh.mu.RUnlock()
	}
	return n
}

// Range calls fn for every connection. fn runs outside the shard locks
// and may call back into the registry.
func (r *Registry) Range(fn func(id string, t Terminator)) {
	for _, sh := range r.shards {
		sh.mu.RLock()
		ids := make([]string, 0, len(sh.conns))
		conns := make([]Terminator, 0, len(sh.conns))
		for id, t := range sh.conns {
			ids = append(ids, id)
			conns = append(conns, t)
		}
		sh.mu.RUnlock()
		for i := range ids {
			fn(ids[i], conns[i])
		}
	}
}

// TerminateAll terminates every registered connection with code and
// reason and returns how many were asked to.
func (r *Registry) TerminateAll(code int, reason string) int {
	n := 0
	r.Range(func(_ string, t Terminator) {
		t.Terminate(code, reason)
		n++
	})
	return n
}

func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
