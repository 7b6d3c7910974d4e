// Package metricsource feeds rule evaluation with the latest observed value
// of each named metric. Samples arrive over NATS and land in an in-memory
// cache; lookups older than the staleness window are rejected so rules never
// fire on dead data.
package metricsource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"alertengine/internal/clock"
)

// sample is one cached metric observation.
type sample struct {
	value      float64
	observedAt time.Time
}

// Cache holds the latest sample per metric name.
// Params: staleness window and clock.
// Returns: concurrency-safe metric source for the rule engine.
type Cache struct {
	mu         sync.RWMutex
	samples    map[string]sample
	staleAfter time.Duration
	clock      clock.Clock
}

// NewCache creates an empty sample cache.
// Params: staleness window and clock.
// Returns: ready cache.
func NewCache(staleAfter time.Duration, clk clock.Clock) *Cache {
	return &Cache{
		samples:    make(map[string]sample),
		staleAfter: staleAfter,
		clock:      clk,
	}
}

// Observe records one metric sample, replacing any previous value.
// Params: metric name, value, and observation time.
// Returns: nothing.
func (c *Cache) Observe(name string, value float64, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples[name] = sample{value: value, observedAt: at}
}

// GetCurrentMetric returns the latest non-stale sample for one metric.
// Params: context and metric name.
// Returns: sample value, or an error for unknown or stale metrics.
func (c *Cache) GetCurrentMetric(_ context.Context, name string) (float64, error) {
	c.mu.RLock()
	entry, ok := c.samples[name]
	c.mu.RUnlock()

	if !ok {
		return 0, fmt.Errorf("no sample for metric %q", name)
	}
	if c.staleAfter > 0 {
		age := c.clock.Now().Sub(entry.observedAt)
		if age > c.staleAfter {
			return 0, fmt.Errorf("sample for metric %q is stale (age %s)", name, age.Round(time.Second))
		}
	}
	return entry.value, nil
}
