package engine

import (
	"sync"
	"time"
)

// CooldownStore tracks the last firing time per rule id.
// Params: keyed timestamp map behind a mutex.
// Returns: injected cooldown state shared across evaluation ticks.
type CooldownStore struct {
	mu    sync.Mutex
	fired map[string]time.Time
}

// NewCooldownStore creates an empty cooldown store.
// Params: none.
// Returns: ready store.
func NewCooldownStore() *CooldownStore {
	return &CooldownStore{fired: make(map[string]time.Time)}
}

// Ready reports whether a rule's cooldown window has elapsed.
// Params: rule id, cooldown period, and current time.
// Returns: true when the rule has never fired or the period has passed.
func (s *CooldownStore) Ready(ruleID string, period time.Duration, now time.Time) bool {
	if period <= 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.fired[ruleID]
	if !ok {
		return true
	}
	return now.Sub(last) >= period
}

// MarkFired stamps the rule's last firing time.
// Params: rule id and firing time.
// Returns: nothing.
func (s *CooldownStore) MarkFired(ruleID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired[ruleID] = now
}
