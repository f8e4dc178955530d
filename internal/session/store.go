// Package session holds per-user transient state: the awaiting-input session
// and the pending broadcast draft. Both are process-local.
package session

import (
	"sync"
	"time"
)

type entry[V any] struct {
	val     V
	touched time.Time
}

// store is a mutex-guarded map keyed by user id with last-touched tracking.
type store[V any] struct {
	mu  sync.Mutex
	m   map[int64]entry[V]
	now func() time.Time
}

func newStore[V any](now func() time.Time) *store[V] {
	if now == nil {
		now = time.Now
	}
	return &store[V]{m: make(map[int64]entry[V]), now: now}
}

func (s *store[V]) put(id int64, v V) {
	s.mu.Lock()
	s.m[id] = entry[V]{val: v, touched: s.now()}
	s.mu.Unlock()
}

func (s *store[V]) get(id int64) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[id]
	if !ok {
		var zero V
		return zero, false
	}
	e.touched = s.now()
	s.m[id] = e
	return e.val, true
}

func (s *store[V]) update(id int64, fn func(*V)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[id]
	if !ok {
		return false
	}
	fn(&e.val)
	e.touched = s.now()
	s.m[id] = e
	return true
}

func (s *store[V]) del(id int64) {
	s.mu.Lock()
	delete(s.m, id)
	s.mu.Unlock()
}

func (s *store[V]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// sweep drops entries untouched for longer than idle and returns how many.
func (s *store[V]) sweep(now time.Time, idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.m {
		if now.Sub(e.touched) > idle {
			delete(s.m, id)
			n++
		}
	}
	return n
}
