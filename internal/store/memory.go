package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"alertengine/internal/domain"
)

// MemoryStore keeps alerts and rules in process memory for single-instance mode.
// Params: in-memory maps plus an active-alert dedup index.
// Returns: store implementation without external dependencies.
type MemoryStore struct {
	mu          sync.RWMutex
	alerts      map[string]domain.Alert
	order       []string
	activeIndex map[string]string
	rules       map[string]domain.AlertRule
	ruleOrder   []string
}

// NewMemoryStore creates an empty in-memory alert store.
// Params: none.
// Returns: initialized store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts:      make(map[string]domain.Alert),
		activeIndex: make(map[string]string),
		rules:       make(map[string]domain.AlertRule),
	}
}

// Get returns one alert by id.
// Params: alert id.
// Returns: stored alert or domain.ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, id string) (domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	alert, ok := s.alerts[id]
	if !ok {
		return domain.Alert{}, fmt.Errorf("%w: id %q", domain.ErrNotFound, id)
	}
	return cloneAlert(alert), nil
}

// FindActiveByKey looks up the ACTIVE alert for one dedup key.
// Params: alert type, optional component, and producer source.
// Returns: matching alert, presence flag, and lookup error.
func (s *MemoryStore) FindActiveByKey(_ context.Context, alertType domain.AlertType, component, source string) (domain.Alert, bool, error) {
	key := domain.BuildDedupKey(alertType, component, source)
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.activeIndex[key]
	if !ok {
		return domain.Alert{}, false, nil
	}
	alert, ok := s.alerts[id]
	if !ok || alert.Status != domain.StatusActive {
		return domain.Alert{}, false, nil
	}
	return cloneAlert(alert), true, nil
}

// Insert stores one new alert and claims its dedup slot when ACTIVE.
// Params: alert record with a fresh id.
// Returns: domain.ErrConflict when another ACTIVE alert holds the dedup key.
func (s *MemoryStore) Insert(_ context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alerts[alert.ID]; exists {
		return fmt.Errorf("%w: alert id %q already stored", domain.ErrConflict, alert.ID)
	}
	if alert.Status == domain.StatusActive {
		key := alert.DedupKey()
		if heldBy, taken := s.activeIndex[key]; taken {
			if held, ok := s.alerts[heldBy]; ok && held.Status == domain.StatusActive {
				return fmt.Errorf("%w: active alert %q already holds key %q", domain.ErrConflict, heldBy, key)
			}
		}
		s.activeIndex[key] = alert.ID
	}
	s.alerts[alert.ID] = cloneAlert(alert)
	s.order = append(s.order, alert.ID)
	return nil
}

// Update replaces one stored alert and maintains the dedup index.
// Params: alert record with an existing id.
// Returns: domain.ErrNotFound when id is unknown.
func (s *MemoryStore) Update(_ context.Context, alert domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alerts[alert.ID]; !exists {
		return fmt.Errorf("%w: id %q", domain.ErrNotFound, alert.ID)
	}
	key := alert.DedupKey()
	if alert.Status == domain.StatusActive {
		s.activeIndex[key] = alert.ID
	} else if s.activeIndex[key] == alert.ID {
		delete(s.activeIndex, key)
	}
	s.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

// Query returns alerts matching all filters, newest first.
// Params: filter set; zero filters return everything.
// Returns: alerts ordered by CreatedAt descending, stable.
func (s *MemoryStore) Query(_ context.Context, filters domain.Filters) ([]domain.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]domain.Alert, 0, len(s.order))
	for _, id := range s.order {
		alert := s.alerts[id]
		if !filters.Match(alert) {
			continue
		}
		matched = append(matched, cloneAlert(alert))
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

// ListRules returns all stored rules in seed order.
// Params: none.
// Returns: rule list copy.
func (s *MemoryStore) ListRules(_ context.Context) ([]domain.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rules := make([]domain.AlertRule, 0, len(s.ruleOrder))
	for _, id := range s.ruleOrder {
		rules = append(rules, cloneRule(s.rules[id]))
	}
	return rules, nil
}

// PutRule creates or replaces one rule.
// Params: rule record with a non-empty id.
// Returns: nil (in-memory write).
func (s *MemoryStore) PutRule(_ context.Context, rule domain.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[rule.ID]; !exists {
		s.ruleOrder = append(s.ruleOrder, rule.ID)
	}
	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

// Close releases memory store resources.
// Params: none.
// Returns: nil.
func (s *MemoryStore) Close() error {
	return nil
}

// cloneAlert detaches the metadata map so callers cannot mutate stored state.
// Params: source alert.
// Returns: alert copy with copied metadata.
func cloneAlert(alert domain.Alert) domain.Alert {
	if len(alert.Metadata) == 0 {
		return alert
	}
	metadata := make(map[string]string, len(alert.Metadata))
	for key, value := range alert.Metadata {
		metadata[key] = value
	}
	alert.Metadata = metadata
	return alert
}

// cloneRule detaches slices and nested conditions from stored rules.
// Params: source rule.
// Returns: rule copy safe to hand to callers.
func cloneRule(rule domain.AlertRule) domain.AlertRule {
	rule.NotificationChannels = append([]string(nil), rule.NotificationChannels...)
	if rule.AutoResolveCondition != nil {
		cond := *rule.AutoResolveCondition
		rule.AutoResolveCondition = &cond
	}
	return rule
}
