package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler drives periodic rule evaluation on a fixed interval.
// Start and Stop are idempotent and safe to call from one control goroutine.
// Params: engine, tick interval, and logger.
// Returns: background evaluation loop with an immediate first pass.
type Scheduler struct {
	engine   *RuleEngine
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewScheduler creates the evaluation scheduler.
// Params: rule engine, tick interval, and logger.
// Returns: stopped scheduler.
func NewScheduler(engine *RuleEngine, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		engine:   engine,
		interval: interval,
		logger:   logger,
	}
}

// StartMonitoring launches the evaluation loop. Calling it while running is
// a no-op. The first evaluation runs immediately, then on every tick.
// Params: none.
// Returns: nothing.
func (s *Scheduler) StartMonitoring() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.running = true

	s.logger.Info("rule evaluation started", "interval", s.interval.String())
	go s.loop(s.stop, s.done)
}

// StopMonitoring prevents further ticks and waits for an in-flight pass to
// run to completion. The pass is never interrupted mid-evaluation; stopping
// only keeps the next tick from being scheduled. Calling it while stopped is
// a no-op.
// Params: none.
// Returns: nothing.
func (s *Scheduler) StopMonitoring() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stop := s.stop
	done := s.done
	s.running = false
	s.stop = nil
	s.done = nil
	s.mu.Unlock()

	close(stop)
	<-done
	s.logger.Info("rule evaluation stopped")
}

// loop runs evaluation passes until stopped.
// Params: stop signal and completion channel.
// Returns: nothing; closes done on exit.
func (s *Scheduler) loop(stop, done chan struct{}) {
	defer close(done)

	s.evaluate()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.evaluate()
		}
	}
}

// evaluate runs one pass and logs a listing failure. Each pass carries a
// fresh background context so stopping the scheduler cannot abort metric
// fetches already underway.
// Params: none.
// Returns: nothing.
func (s *Scheduler) evaluate() {
	if err := s.engine.EvaluateRules(context.Background()); err != nil {
		s.logger.Error("rule evaluation pass failed", "error", err.Error())
	}
}
