package engine

import (
	"context"
	"sync"
	"time"
)

// RateLimitState captures per-host rate limiting state.
type RateLimitState struct {
	RequestCount int
	WindowStart  time.Time
	BackoffUntil *time.Time
	Last429At    *time.Time
}

func (s *RateLimitState) clone() *RateLimitState {
	if s == nil {
		return nil
	}
	c := *s
	if s.BackoffUntil != nil {
		v := *s.BackoffUntil
		c.BackoffUntil = &v
	}
	if s.Last429At != nil {
		v := *s.Last429At
		c.Last429At = &v
	}
	return &c
}

// MemoryStore keeps rate limit state for the life of the process.
type MemoryStore struct {
	mu    sync.Mutex
	state map[string]*RateLimitState
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: make(map[string]*RateLimitState)}
}

// GetRateLimit returns a copy of the stored state, or nil when none exists.
func (m *MemoryStore) GetRateLimit(_ context.Context, host string) (*RateLimitState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[host].clone(), nil
}

// UpdateRateLimit replaces the stored state for host.
func (m *MemoryStore) UpdateRateLimit(_ context.Context, host string, state *RateLimitState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		m.state = make(map[string]*RateLimitState)
	}
	m.state[host] = state.clone()
	return nil
}

