package cache

import (
	"sync"
	"time"
)

// entry is an immutable value stamped with its insertion time.
type entry[T any] struct {
	value     T
	createdAt time.Time
}

// stale reports whether e has outlived ttl at now. The boundary instant
// createdAt+ttl is already stale.
func (e entry[T]) stale(now time.Time, ttl time.Duration) bool {
	return !now.Before(e.createdAt.Add(ttl))
}

// space is one independently locked key space. Reads share the lock;
// writes and clears hold it exclusively.
type space[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
}

func newSpace[T any]() *space[T] {
	return &space[T]{entries: make(map[string]entry[T])}
}

// lookup returns the entry under key, if any, without judging freshness.
func (s *space[T]) lookup(key string) (entry[T], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// store replaces whatever is held under key.
func (s *space[T]) store(key string, val T, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry[T]{value: val, createdAt: now}
}

func (s *space[T]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.entries)
}

func (s *space[T]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
