// Package manager owns the alert lifecycle: creation with deduplication,
// acknowledge/resolve/suppress transitions, filtered queries, and statistics.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"alertengine/internal/clock"
	"alertengine/internal/domain"
	"alertengine/internal/metrics"
	"alertengine/internal/store"

	"github.com/google/uuid"
)

// notifyTimeout bounds background notification dispatch per alert.
const notifyTimeout = 30 * time.Second

// Notifier dispatches notifications for one alert without surfacing errors.
// Params: context, alert snapshot, and extra requested channels.
// Returns: nothing; delivery failures stay inside the dispatcher.
type Notifier interface {
	SendNotifications(ctx context.Context, alert domain.Alert, requested []string)
}

// Manager coordinates alert state changes over the store and dispatcher.
// Params: store, notifier, logger, and clock dependencies.
// Returns: concurrency-safe alert lifecycle operations.
type Manager struct {
	store    store.AlertStore
	notifier Notifier
	logger   *slog.Logger
	clock    clock.Clock

	mu   sync.Mutex
	keys map[string]*sync.Mutex

	notifyWG sync.WaitGroup
}

// New creates the alert manager.
// Params: alert store, notifier, logger, and clock.
// Returns: manager ready for use.
func New(alertStore store.AlertStore, notifier Notifier, logger *slog.Logger, clk clock.Clock) *Manager {
	return &Manager{
		store:    alertStore,
		notifier: notifier,
		logger:   logger,
		clock:    clk,
		keys:     make(map[string]*sync.Mutex),
	}
}

// keyLock returns the mutex guarding one dedup key.
// Params: dedup key.
// Returns: per-key mutex, created on first use.
func (m *Manager) keyLock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.keys[key]
	if !ok {
		lock = &sync.Mutex{}
		m.keys[key] = lock
	}
	return lock
}

// CreateAlert records a new alert or folds the draft into the ACTIVE alert
// sharing its dedup key. Deduplicated drafts increment the occurrence count
// and refresh LastOccurrence without producing a second record.
// Params: context and alert draft.
// Returns: stored alert (new or incremented) or validation/store error.
func (m *Manager) CreateAlert(ctx context.Context, draft domain.Draft) (domain.Alert, error) {
	if err := validateDraft(draft); err != nil {
		return domain.Alert{}, err
	}

	key := domain.BuildDedupKey(draft.Type, draft.Component, draft.Source)
	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	existing, found, err := m.store.FindActiveByKey(ctx, draft.Type, draft.Component, draft.Source)
	if err != nil {
		return domain.Alert{}, err
	}
	if found {
		return m.foldDuplicate(ctx, existing, draft)
	}

	now := m.clock.Now()
	alert := domain.Alert{
		ID:             uuid.NewString(),
		Type:           draft.Type,
		Severity:       draft.Severity,
		Status:         domain.StatusActive,
		Component:      draft.Component,
		Source:         draft.Source,
		Title:          draft.Title,
		Message:        draft.Message,
		MetricValue:    draft.MetricValue,
		Threshold:      draft.Threshold,
		Metadata:       copyMetadata(draft.Metadata),
		Count:          occurrenceCount(draft),
		CreatedAt:      now,
		LastOccurrence: now,
	}

	if err := m.store.Insert(ctx, alert); err != nil {
		// A racing creation on another instance can claim the dedup slot
		// between FindActiveByKey and Insert when the store is shared.
		if errors.Is(err, domain.ErrConflict) {
			winner, found, findErr := m.store.FindActiveByKey(ctx, draft.Type, draft.Component, draft.Source)
			if findErr == nil && found {
				return m.foldDuplicate(ctx, winner, draft)
			}
		}
		return domain.Alert{}, err
	}

	metrics.AlertsCreated.WithLabelValues(string(alert.Severity), string(alert.Type)).Inc()
	metrics.ActiveAlerts.WithLabelValues(string(alert.Severity)).Inc()
	m.logger.Info("alert created",
		"id", alert.ID, "type", alert.Type, "severity", alert.Severity,
		"component", alert.Component, "source", alert.Source)

	m.dispatchAsync(alert, draft.Channels)
	return alert, nil
}

// foldDuplicate merges one draft into the ACTIVE alert holding its dedup key.
// Notification is attempted again for the merged occurrence; the dispatcher's
// severity throttle decides whether anything actually goes out.
// Params: context, existing alert, and incoming draft.
// Returns: updated alert with incremented count.
func (m *Manager) foldDuplicate(ctx context.Context, existing domain.Alert, draft domain.Draft) (domain.Alert, error) {
	existing.Count += occurrenceCount(draft)
	existing.LastOccurrence = m.clock.Now()
	if draft.MetricValue != nil {
		existing.MetricValue = draft.MetricValue
	}
	if draft.Threshold != nil {
		existing.Threshold = draft.Threshold
	}
	if err := m.store.Update(ctx, existing); err != nil {
		return domain.Alert{}, err
	}

	metrics.AlertsDeduplicated.WithLabelValues(string(existing.Type)).Inc()
	m.logger.Debug("alert deduplicated",
		"id", existing.ID, "type", existing.Type, "count", existing.Count)

	m.dispatchAsync(existing, draft.Channels)
	return existing, nil
}

// AcknowledgeAlert marks an alert as seen by an operator. Acknowledging an
// already-ACKNOWLEDGED alert is idempotent and keeps the first acknowledger.
// Params: context, alert id, and acknowledging user.
// Returns: updated alert; ErrNotFound for unknown ids, ErrConflict for
// RESOLVED alerts.
func (m *Manager) AcknowledgeAlert(ctx context.Context, id, userID string) (domain.Alert, error) {
	alert, err := m.store.Get(ctx, id)
	if err != nil {
		return domain.Alert{}, err
	}
	if alert.Status == domain.StatusResolved {
		return domain.Alert{}, fmt.Errorf("%w: alert %s is already resolved", domain.ErrConflict, id)
	}
	if alert.Status == domain.StatusAcknowledged {
		return alert, nil
	}

	wasActive := alert.Status == domain.StatusActive
	now := m.clock.Now()
	alert.Status = domain.StatusAcknowledged
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = userID
	if err := m.store.Update(ctx, alert); err != nil {
		return domain.Alert{}, err
	}

	metrics.AlertTransitions.WithLabelValues(string(domain.StatusAcknowledged)).Inc()
	if wasActive {
		metrics.ActiveAlerts.WithLabelValues(string(alert.Severity)).Dec()
	}
	m.logger.Info("alert acknowledged", "id", alert.ID, "user", userID)
	return alert, nil
}

// ResolveAlert closes an alert. RESOLVED is terminal.
// Params: context, alert id, and resolving user.
// Returns: updated alert; ErrNotFound for unknown ids, ErrConflict when the
// alert is already resolved.
func (m *Manager) ResolveAlert(ctx context.Context, id, userID string) (domain.Alert, error) {
	alert, err := m.store.Get(ctx, id)
	if err != nil {
		return domain.Alert{}, err
	}
	if alert.Status == domain.StatusResolved {
		return domain.Alert{}, fmt.Errorf("%w: alert %s is already resolved", domain.ErrConflict, id)
	}

	wasActive := alert.Status == domain.StatusActive
	now := m.clock.Now()
	alert.Status = domain.StatusResolved
	alert.ResolvedAt = &now
	alert.ResolvedBy = userID
	if err := m.store.Update(ctx, alert); err != nil {
		return domain.Alert{}, err
	}

	metrics.AlertTransitions.WithLabelValues(string(domain.StatusResolved)).Inc()
	if wasActive {
		metrics.ActiveAlerts.WithLabelValues(string(alert.Severity)).Dec()
	}
	m.logger.Info("alert resolved", "id", alert.ID, "user", userID)
	return alert, nil
}

// SuppressAlert mutes an alert until now + duration. Expiry is lazy: reads
// observe the stale SUPPRESSED state and the caller decides what to do with
// it; nothing flips the alert back to ACTIVE automatically.
// Params: context, alert id, and suppression window.
// Returns: updated alert; ErrNotFound for unknown ids, ErrConflict for
// RESOLVED alerts, ErrValidation for non-positive durations.
func (m *Manager) SuppressAlert(ctx context.Context, id string, duration time.Duration) (domain.Alert, error) {
	if duration <= 0 {
		return domain.Alert{}, fmt.Errorf("%w: suppression duration must be positive", domain.ErrValidation)
	}

	alert, err := m.store.Get(ctx, id)
	if err != nil {
		return domain.Alert{}, err
	}
	if alert.Status == domain.StatusResolved {
		return domain.Alert{}, fmt.Errorf("%w: alert %s is already resolved", domain.ErrConflict, id)
	}

	wasActive := alert.Status == domain.StatusActive
	expires := m.clock.Now().Add(duration)
	alert.Status = domain.StatusSuppressed
	alert.ExpiresAt = &expires
	if err := m.store.Update(ctx, alert); err != nil {
		return domain.Alert{}, err
	}

	metrics.AlertTransitions.WithLabelValues(string(domain.StatusSuppressed)).Inc()
	if wasActive {
		metrics.ActiveAlerts.WithLabelValues(string(alert.Severity)).Dec()
	}
	m.logger.Info("alert suppressed", "id", alert.ID, "until", expires)
	return alert, nil
}

// GetAlert fetches one alert by id.
// Params: context and alert id.
// Returns: alert or ErrNotFound.
func (m *Manager) GetAlert(ctx context.Context, id string) (domain.Alert, error) {
	return m.store.Get(ctx, id)
}

// GetAlerts returns alerts matching the filters, newest first, with optional
// 1-indexed pagination. Total always reflects the pre-pagination match count.
// Params: context, filters, and page selection (zero Limit disables paging).
// Returns: page of alerts plus total matched.
func (m *Manager) GetAlerts(ctx context.Context, filters domain.Filters, page domain.Page) (domain.AlertPage, error) {
	matched, err := m.store.Query(ctx, filters)
	if err != nil {
		return domain.AlertPage{}, err
	}

	total := len(matched)
	if page.Limit <= 0 {
		return domain.AlertPage{Alerts: matched, Total: total}, nil
	}

	number := page.Number
	if number <= 0 {
		number = 1
	}
	start := (number - 1) * page.Limit
	if start >= total {
		return domain.AlertPage{Alerts: []domain.Alert{}, Total: total}, nil
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return domain.AlertPage{Alerts: matched[start:end], Total: total}, nil
}

// ActiveAlertsForRule lists ACTIVE alerts created by one rule.
// Params: context and rule id.
// Returns: alerts whose metadata carries the rule id.
func (m *Manager) ActiveAlertsForRule(ctx context.Context, ruleID string) ([]domain.Alert, error) {
	active, err := m.store.Query(ctx, domain.Filters{Statuses: []domain.Status{domain.StatusActive}})
	if err != nil {
		return nil, err
	}
	var matched []domain.Alert
	for _, alert := range active {
		if alert.Metadata[domain.MetadataRuleID] == ruleID {
			matched = append(matched, alert)
		}
	}
	return matched, nil
}

// Close waits for in-flight background notification dispatches.
// Params: none.
// Returns: nil after all dispatch goroutines finish.
func (m *Manager) Close() error {
	m.notifyWG.Wait()
	return nil
}

// dispatchAsync sends notifications without blocking the creation path.
// Params: alert snapshot and rule-requested channels.
// Returns: nothing; delivery runs on its own bounded context.
func (m *Manager) dispatchAsync(alert domain.Alert, requested []string) {
	if m.notifier == nil {
		return
	}
	m.notifyWG.Add(1)
	go func() {
		defer m.notifyWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		m.notifier.SendNotifications(ctx, alert, requested)
	}()
}

// validateDraft rejects malformed creation input.
// Params: alert draft.
// Returns: ErrValidation describing the first problem found.
func validateDraft(draft domain.Draft) error {
	if !draft.Type.Valid() {
		return fmt.Errorf("%w: unknown alert type %q", domain.ErrValidation, draft.Type)
	}
	if !draft.Severity.Valid() {
		return fmt.Errorf("%w: unknown severity %q", domain.ErrValidation, draft.Severity)
	}
	if strings.TrimSpace(draft.Title) == "" {
		return fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if strings.TrimSpace(draft.Message) == "" {
		return fmt.Errorf("%w: message is required", domain.ErrValidation)
	}
	if draft.Count < 0 {
		return fmt.Errorf("%w: count must not be negative", domain.ErrValidation)
	}
	return nil
}

// occurrenceCount normalizes the draft occurrence count.
// Params: alert draft.
// Returns: draft count, minimum 1.
func occurrenceCount(draft domain.Draft) int {
	if draft.Count > 0 {
		return draft.Count
	}
	return 1
}

// copyMetadata detaches draft metadata from the caller.
// Params: source metadata map.
// Returns: independent copy, nil for empty input.
func copyMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
