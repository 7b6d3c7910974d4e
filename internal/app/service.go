// Package app composes configuration, storage, notification, and rule
// evaluation into one runnable service with an operational HTTP endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"alertengine/internal/clock"
	"alertengine/internal/config"
	"alertengine/internal/engine"
	"alertengine/internal/logging"
	"alertengine/internal/manager"
	"alertengine/internal/metricsource"
	"alertengine/internal/notify"
	"alertengine/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service composes runtime dependencies and process lifecycle.
// Params: config snapshot and shared runtime components.
// Returns: runnable alert engine service.
type Service struct {
	cfg        config.Config
	logger     *slog.Logger
	closeLog   func()
	store      store.AlertStore
	dispatcher *notify.Dispatcher
	manager    *manager.Manager
	engine     *engine.RuleEngine
	scheduler  *engine.Scheduler
	metricSub  interface{ Close() error }
	httpSrv    *http.Server
	readyFlag  atomic.Bool
	clock      clock.Clock
}

// NewService builds the service from a config source.
// Params: config source and clock implementation.
// Returns: initialized service or setup error.
func NewService(source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	alertStore, err := buildStore(cfg)
	if err != nil {
		closeLog()
		return nil, err
	}

	dispatcher := notify.NewDispatcher(cfg.Notify, logger, clk)
	alertManager := manager.New(alertStore, dispatcher, logger, clk)

	sampleCache := metricsource.NewCache(
		time.Duration(cfg.Metric.StaleAfterSec)*time.Second, clk)
	ruleEngine := engine.New(alertStore, sampleCache, alertManager,
		engine.NewCooldownStore(), logger, clk)
	interval := time.Duration(cfg.Service.EvaluationIntervalSec) * time.Second
	scheduler := engine.NewScheduler(ruleEngine, interval, logger)

	service := &Service{
		cfg:        cfg,
		logger:     logger,
		closeLog:   closeLog,
		store:      alertStore,
		dispatcher: dispatcher,
		manager:    alertManager,
		engine:     ruleEngine,
		scheduler:  scheduler,
		clock:      clk,
	}

	if err := service.seedRules(context.Background()); err != nil {
		service.cleanupInitResources()
		return nil, err
	}
	if cfg.Metric.Enabled {
		subscriber, err := metricsource.NewSubscriber(cfg.Metric, sampleCache, logger)
		if err != nil {
			service.cleanupInitResources()
			return nil, err
		}
		service.metricSub = subscriber
	}
	service.buildOpsServer()

	return service, nil
}

// Manager exposes the alert lifecycle operations for embedding callers.
// Params: none.
// Returns: alert manager.
func (s *Service) Manager() *manager.Manager {
	return s.manager
}

// Engine exposes on-demand rule evaluation for embedding callers.
// Params: none.
// Returns: rule engine.
func (s *Service) Engine() *engine.RuleEngine {
	return s.engine
}

// Run starts the service and blocks until a shutdown signal or context end.
// Params: root context for the service runtime.
// Returns: terminal run error.
func (s *Service) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	if s.httpSrv != nil {
		go func() {
			s.logger.Info("ops server starting", "listen", s.cfg.Ops.Listen)
			err := s.httpSrv.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	s.scheduler.StartMonitoring()
	s.readyFlag.Store(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		_ = s.shutdown()
		return fmt.Errorf("ops server failed: %w", err)
	case <-sigChan:
		return s.shutdown()
	}
}

// shutdown closes runtime resources in dependency order.
// Params: none.
// Returns: first close error.
func (s *Service) shutdown() error {
	s.readyFlag.Store(false)
	s.scheduler.StopMonitoring()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var firstErr error
	markErr := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("ops server shutdown failed", "error", err.Error())
			markErr(fmt.Errorf("ops server shutdown: %w", err))
		}
	}
	if s.metricSub != nil {
		if err := s.metricSub.Close(); err != nil {
			s.logger.Error("metric source close failed", "error", err.Error())
			markErr(fmt.Errorf("metric source close: %w", err))
		}
	}
	if err := s.manager.Close(); err != nil {
		markErr(fmt.Errorf("manager close: %w", err))
	}
	if err := s.dispatcher.Close(); err != nil {
		s.logger.Error("dispatcher close failed", "error", err.Error())
		markErr(fmt.Errorf("dispatcher close: %w", err))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("store close failed", "error", err.Error())
		markErr(fmt.Errorf("store close: %w", err))
	}
	if s.closeLog != nil {
		s.closeLog()
	}
	return firstErr
}

// cleanupInitResources closes partially initialized resources on startup failures.
// Params: none.
// Returns: all acquired resources closed best-effort.
func (s *Service) cleanupInitResources() {
	if s.metricSub != nil {
		_ = s.metricSub.Close()
		s.metricSub = nil
	}
	if s.dispatcher != nil {
		_ = s.dispatcher.Close()
		s.dispatcher = nil
	}
	if s.store != nil {
		_ = s.store.Close()
		s.store = nil
	}
	if s.closeLog != nil {
		s.closeLog()
		s.closeLog = nil
	}
}

// seedRules writes configured rules into the store at startup.
// Params: context for store writes.
// Returns: first rule write error.
func (s *Service) seedRules(ctx context.Context) error {
	rules := config.BuildRules(s.cfg)
	for _, rule := range rules {
		if err := s.store.PutRule(ctx, rule); err != nil {
			return fmt.Errorf("seed rule %s: %w", rule.ID, err)
		}
	}
	if len(rules) > 0 {
		s.logger.Info("rules seeded", "count", len(rules))
	}
	return nil
}

// buildOpsServer wires health, readiness, and metrics endpoints.
// Params: none.
// Returns: nothing; the server stays nil when the ops endpoint is disabled.
func (s *Service) buildOpsServer() {
	if !s.cfg.Ops.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Ops.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ok"))
	})
	mux.HandleFunc(s.cfg.Ops.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if !s.readyFlag.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			_, _ = writer.Write([]byte("not-ready"))
			return
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte("ready"))
	})
	mux.Handle(s.cfg.Ops.MetricsPath, promhttp.Handler())

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Ops.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// buildStore creates the persistence backend from config.
// Params: root config snapshot.
// Returns: selected store backend.
func buildStore(cfg config.Config) (store.AlertStore, error) {
	if cfg.Store.Backend == config.StoreBackendNATS {
		return store.NewNATSStore(cfg.Store.NATS)
	}
	return store.NewMemoryStore(), nil
}
