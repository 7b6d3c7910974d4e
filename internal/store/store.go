// Package store provides durable keyed persistence for alerts and rules.
package store

import (
	"context"

	"alertengine/internal/domain"
)

// AlertStore provides alert and rule persistence operations.
// Params: keyed CRUD for alerts, dedup-key lookup, filtered queries, rules.
// Returns: backend persistence behavior.
//
// Implementations wrap backend faults in domain.ErrStore and report missing
// records as domain.ErrNotFound.
type AlertStore interface {
	Get(ctx context.Context, id string) (domain.Alert, error)
	FindActiveByKey(ctx context.Context, alertType domain.AlertType, component, source string) (domain.Alert, bool, error)
	Insert(ctx context.Context, alert domain.Alert) error
	Update(ctx context.Context, alert domain.Alert) error
	Query(ctx context.Context, filters domain.Filters) ([]domain.Alert, error)
	ListRules(ctx context.Context) ([]domain.AlertRule, error)
	PutRule(ctx context.Context, rule domain.AlertRule) error
	Close() error
}
