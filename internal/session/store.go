// File: internal/session/store.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe session registry.

package session

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/momentics/hioload-transport/api"
)

// Registry maps session ids to accepted connections.
type Registry[T any] struct {
	shards []*shard[T]
	mask   uint32
}

type shard[T any] struct {
	mu       sync.RWMutex
	sessions map[string]T
}

// NewRegistry constructs a registry with shardCount shards, rounded up to a
// power of two.
func NewRegistry[T any](shardCount int) *Registry[T] {
	if shardCount <= 0 {
		shardCount = 16
	}
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*shard[T], m)
	for i := range shards {
		shards[i] = &shard[T]{sessions: make(map[string]T)}
	}
	return &Registry[T]{shards: shards, mask: m - 1}
}

func (r *Registry[T]) shard(id string) *shard[T] {
	return r.shards[fnv32(id)&r.mask]
}

// Add registers v under id. An id already present is rejected.
func (r *Registry[T]) Add(id string, v T) error {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[id]; ok {
		return api.NewError(api.ErrCodeAlreadyExists, "session already registered").WithContext("id", id)
	}
	sh.sessions[id] = v
	return nil
}

// Remove drops id and returns what was stored under it.
func (r *Registry[T]) Remove(id string) (T, bool) {
	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.sessions[id]
	if ok {
		delete(sh.sessions, id)
	}
	return v, ok
}

// Find fetches a session if present.
func (r *Registry[T]) Find(id string) (T, bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok := sh.sessions[id]
	return v, ok
}

// Iterate returns a snapshot of all sessions ordered by id. Callers may
// Add or Remove while walking the snapshot.
func (r *Registry[T]) Iterate() []T {
	type kv struct {
		id string
		v  T
	}
	var all []kv
	for _, sh := range r.shards {
		sh.mu.RLock()
		for id, v := range sh.sessions {
			all = append(all, kv{id, v})
		}
		sh.mu.RUnlock()
	}
	sort.Slice(all, func(i, j int) bool { return all[i].id < all[j].id })
	out := make([]T, len(all))
	for i := range all {
		out[i] = all[i].v
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry[T]) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// fnv32 hashes a string to uint32.
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
