// Package ratelimit provides per-key request limiting for the HTTP server.
// Each key (normally the client IP) gets its own token bucket that allows a
// fixed number of requests per window, refilled evenly across the window.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Store maintains per-key limiters.
type Store struct {
	mu       sync.Mutex
	limiters map[string]*entry
	every    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

// NewStore creates a Store allowing max requests per window for each key.
// Keys idle for longer than one window are evicted by Prune.
func NewStore(window time.Duration, max int) *Store {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Store{
		limiters: make(map[string]*entry),
		every:    rate.Every(window / time.Duration(max)),
		burst:    max,
		idle:     window,
		now:      time.Now,
	}
}

// WithClock replaces the time source. It is intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Allow reports whether a request for key is permitted right now. When it is
// not, the returned duration is how long the caller should wait.
func (s *Store) Allow(key string) (bool, time.Duration) {
	now := s.now()

	s.mu.Lock()
	e, ok := s.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(s.every, s.burst)}
		s.limiters[key] = e
	}
	e.lastSeen = now
	s.mu.Unlock()

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, 0
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

// Prune drops limiters that have not been used for a full window and
// returns how many were removed.
func (s *Store) Prune() int {
	cutoff := s.now().Add(-s.idle)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(s.limiters, k)
			n++
		}
	}
	return n
}

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}
