package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"alertengine/internal/config"
	"alertengine/internal/domain"

	"github.com/nats-io/nats.go"
)

const alertKeyPrefix = "id/"

// NATSStore persists alerts and rules in JetStream KV buckets.
// Params: NATS connection and KV bucket handles for alerts and rules.
// Returns: KV-backed store implementation for multi-instance deployments.
//
// The alerts bucket holds two key families: "id/<alert-id>" with the alert
// payload and the bare dedup key holding the id of the ACTIVE alert for that
// (type, component, source) tuple. Claiming the dedup key with a KV Create is
// the compare-and-swap insert that keeps the one-ACTIVE-per-key invariant
// across racing instances.
type NATSStore struct {
	nc       *nats.Conn
	alertsKV nats.KeyValue
	rulesKV  nats.KeyValue
}

// NewNATSStore connects and opens (or creates) the KV buckets.
// Params: NATS store settings from config.
// Returns: initialized store or setup error.
func NewNATSStore(settings config.NATSStoreConfig) (*NATSStore, error) {
	nc, err := nats.Connect(strings.Join(settings.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("%w: connect nats: %s", domain.ErrStore, err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("%w: jetstream init: %s", domain.ErrStore, err)
	}

	alertsKV, err := openBucket(js, settings.AlertsBucket, settings.AllowCreateBuckets)
	if err != nil {
		nc.Close()
		return nil, err
	}
	rulesKV, err := openBucket(js, settings.RulesBucket, settings.AllowCreateBuckets)
	if err != nil {
		nc.Close()
		return nil, err
	}

	return &NATSStore{nc: nc, alertsKV: alertsKV, rulesKV: rulesKV}, nil
}

// openBucket opens one KV bucket, creating it when allowed.
// Params: JetStream context, bucket name, and create permission.
// Returns: bucket handle or setup error.
func openBucket(js nats.JetStreamContext, bucket string, allowCreate bool) (nats.KeyValue, error) {
	kv, err := js.KeyValue(bucket)
	if err == nil {
		return kv, nil
	}
	if !allowCreate {
		return nil, fmt.Errorf("%w: open bucket %q: %s", domain.ErrStore, bucket, err)
	}
	kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: bucket})
	if err != nil {
		return nil, fmt.Errorf("%w: create bucket %q: %s", domain.ErrStore, bucket, err)
	}
	return kv, nil
}

// Get returns one alert by id.
// Params: alert id.
// Returns: stored alert, domain.ErrNotFound, or domain.ErrStore.
func (s *NATSStore) Get(_ context.Context, id string) (domain.Alert, error) {
	entry, err := s.alertsKV.Get(alertKeyPrefix + id)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return domain.Alert{}, fmt.Errorf("%w: id %q", domain.ErrNotFound, id)
		}
		return domain.Alert{}, fmt.Errorf("%w: get alert %q: %s", domain.ErrStore, id, err)
	}
	return decodeAlert(entry.Value())
}

// FindActiveByKey looks up the ACTIVE alert for one dedup key.
// Params: alert type, optional component, and producer source.
// Returns: matching alert, presence flag, and lookup error.
func (s *NATSStore) FindActiveByKey(ctx context.Context, alertType domain.AlertType, component, source string) (domain.Alert, bool, error) {
	key := domain.BuildDedupKey(alertType, component, source)
	entry, err := s.alertsKV.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return domain.Alert{}, false, nil
		}
		return domain.Alert{}, false, fmt.Errorf("%w: get dedup key %q: %s", domain.ErrStore, key, err)
	}

	alert, err := s.Get(ctx, string(entry.Value()))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Stale index entry; the alert record is gone.
			return domain.Alert{}, false, nil
		}
		return domain.Alert{}, false, err
	}
	if alert.Status != domain.StatusActive {
		return domain.Alert{}, false, nil
	}
	return alert, true, nil
}

// Insert stores one new alert, claiming its dedup slot with a KV Create.
// Params: alert record with a fresh id.
// Returns: domain.ErrConflict when another ACTIVE alert holds the dedup key.
func (s *NATSStore) Insert(ctx context.Context, alert domain.Alert) error {
	if alert.Status == domain.StatusActive {
		if err := s.claimDedupKey(ctx, alert); err != nil {
			return err
		}
	}
	return s.putAlert(alert)
}

// claimDedupKey takes the dedup slot or proves the current holder inactive.
// Params: context and alert claiming the slot.
// Returns: domain.ErrConflict when an ACTIVE holder exists.
func (s *NATSStore) claimDedupKey(ctx context.Context, alert domain.Alert) error {
	key := alert.DedupKey()
	if _, err := s.alertsKV.Create(key, []byte(alert.ID)); err == nil {
		return nil
	} else if !errors.Is(err, nats.ErrKeyExists) {
		return fmt.Errorf("%w: claim dedup key %q: %s", domain.ErrStore, key, err)
	}

	holder, active, err := s.FindActiveByKey(ctx, alert.Type, alert.Component, alert.Source)
	if err != nil {
		return err
	}
	if active {
		return fmt.Errorf("%w: active alert %q already holds key %q", domain.ErrConflict, holder.ID, key)
	}
	if _, err := s.alertsKV.Put(key, []byte(alert.ID)); err != nil {
		return fmt.Errorf("%w: replace stale dedup key %q: %s", domain.ErrStore, key, err)
	}
	return nil
}

// Update replaces one stored alert and maintains the dedup index.
// Params: alert record with an existing id.
// Returns: domain.ErrNotFound when id is unknown.
func (s *NATSStore) Update(_ context.Context, alert domain.Alert) error {
	existingKey := alertKeyPrefix + alert.ID
	if _, err := s.alertsKV.Get(existingKey); err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return fmt.Errorf("%w: id %q", domain.ErrNotFound, alert.ID)
		}
		return fmt.Errorf("%w: get alert %q: %s", domain.ErrStore, alert.ID, err)
	}

	if err := s.putAlert(alert); err != nil {
		return err
	}

	key := alert.DedupKey()
	if alert.Status == domain.StatusActive {
		if _, err := s.alertsKV.Put(key, []byte(alert.ID)); err != nil {
			return fmt.Errorf("%w: update dedup key %q: %s", domain.ErrStore, key, err)
		}
		return nil
	}
	entry, err := s.alertsKV.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil
		}
		return fmt.Errorf("%w: get dedup key %q: %s", domain.ErrStore, key, err)
	}
	if string(entry.Value()) == alert.ID {
		if err := s.alertsKV.Delete(key); err != nil {
			return fmt.Errorf("%w: release dedup key %q: %s", domain.ErrStore, key, err)
		}
	}
	return nil
}

// Query returns alerts matching all filters, newest first.
// Params: filter set; zero filters return everything.
// Returns: alerts ordered by CreatedAt descending, stable.
func (s *NATSStore) Query(_ context.Context, filters domain.Filters) ([]domain.Alert, error) {
	keys, err := s.alertsKV.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return []domain.Alert{}, nil
		}
		return nil, fmt.Errorf("%w: list alert keys: %s", domain.ErrStore, err)
	}
	sort.Strings(keys)

	matched := make([]domain.Alert, 0, len(keys))
	for _, key := range keys {
		if !strings.HasPrefix(key, alertKeyPrefix) {
			continue
		}
		entry, err := s.alertsKV.Get(key)
		if err != nil {
			if errors.Is(err, nats.ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("%w: get alert key %q: %s", domain.ErrStore, key, err)
		}
		alert, err := decodeAlert(entry.Value())
		if err != nil {
			return nil, err
		}
		if !filters.Match(alert) {
			continue
		}
		matched = append(matched, alert)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

// ListRules returns all stored rules ordered by id.
// Params: none.
// Returns: decoded rule list.
func (s *NATSStore) ListRules(_ context.Context) ([]domain.AlertRule, error) {
	keys, err := s.rulesKV.Keys()
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return []domain.AlertRule{}, nil
		}
		return nil, fmt.Errorf("%w: list rule keys: %s", domain.ErrStore, err)
	}
	sort.Strings(keys)

	rules := make([]domain.AlertRule, 0, len(keys))
	for _, key := range keys {
		entry, err := s.rulesKV.Get(key)
		if err != nil {
			if errors.Is(err, nats.ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("%w: get rule %q: %s", domain.ErrStore, key, err)
		}
		var rule domain.AlertRule
		if err := json.Unmarshal(entry.Value(), &rule); err != nil {
			return nil, fmt.Errorf("%w: decode rule %q: %s", domain.ErrStore, key, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// PutRule creates or replaces one rule keyed by its id.
// Params: rule record with a non-empty id.
// Returns: encode or KV write error.
func (s *NATSStore) PutRule(_ context.Context, rule domain.AlertRule) error {
	body, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("%w: encode rule %q: %s", domain.ErrStore, rule.ID, err)
	}
	if _, err := s.rulesKV.Put(rule.ID, body); err != nil {
		return fmt.Errorf("%w: put rule %q: %s", domain.ErrStore, rule.ID, err)
	}
	return nil
}

// Close closes the NATS connection.
// Params: none.
// Returns: nil after connection close.
func (s *NATSStore) Close() error {
	if s == nil || s.nc == nil {
		return nil
	}
	s.nc.Close()
	return nil
}

// putAlert encodes and writes one alert payload.
// Params: alert record.
// Returns: encode or KV write error.
func (s *NATSStore) putAlert(alert domain.Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("%w: encode alert %q: %s", domain.ErrStore, alert.ID, err)
	}
	if _, err := s.alertsKV.Put(alertKeyPrefix+alert.ID, body); err != nil {
		return fmt.Errorf("%w: put alert %q: %s", domain.ErrStore, alert.ID, err)
	}
	return nil
}

// decodeAlert parses one stored alert payload.
// Params: KV entry value.
// Returns: alert record or decode error.
func decodeAlert(body []byte) (domain.Alert, error) {
	var alert domain.Alert
	if err := json.Unmarshal(body, &alert); err != nil {
		return domain.Alert{}, fmt.Errorf("%w: decode alert: %s", domain.ErrStore, err)
	}
	return alert, nil
}
