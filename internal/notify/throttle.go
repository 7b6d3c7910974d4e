package notify

import (
	"sync"
	"time"

	"alertengine/internal/domain"
)

// ThrottleStore tracks last notification time per (type, component) key.
// Params: mutex-guarded keyed timestamp map.
// Returns: process-local throttle state independent of rule cooldowns.
type ThrottleStore struct {
	mu   sync.Mutex
	sent map[string]time.Time
}

// NewThrottleStore creates an empty throttle store.
// Params: none.
// Returns: initialized store.
func NewThrottleStore() *ThrottleStore {
	return &ThrottleStore{sent: make(map[string]time.Time)}
}

// LastSent returns the last dispatch attempt time for one key.
// Params: throttle key.
// Returns: timestamp and presence flag.
func (s *ThrottleStore) LastSent(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.sent[key]
	return last, ok
}

// MarkSent records one dispatch attempt for a key.
// Params: throttle key and attempt time.
// Returns: timestamp stored.
func (s *ThrottleStore) MarkSent(key string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[key] = now
}

// ThrottleKey builds the throttle map key for one alert.
// Params: alert carrying type and optional component.
// Returns: "<type>/<component-or-global>" key.
func ThrottleKey(alert domain.Alert) string {
	component := alert.Component
	if component == "" {
		component = "global"
	}
	return string(alert.Type) + "/" + component
}

// ThrottleInterval returns the minimum spacing between dispatches by severity.
// Params: alert severity.
// Returns: zero for CRITICAL (never throttled), widening windows below.
func ThrottleInterval(severity domain.Severity) time.Duration {
	switch severity {
	case domain.SeverityCritical:
		return 0
	case domain.SeverityHigh:
		return 60 * time.Second
	case domain.SeverityMedium:
		return 300 * time.Second
	case domain.SeverityLow:
		return 900 * time.Second
	default:
		return 3600 * time.Second
	}
}
