package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"alertengine/internal/domain"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultEvaluationIntervalSec = 30
	defaultOpsListen             = ":9464"
	defaultMetricsPath           = "/metrics"
	defaultHealthPath            = "/healthz"
	defaultReadyPath             = "/readyz"
	defaultAlertsBucket          = "alerts"
	defaultRulesBucket           = "alert_rules"
	defaultNATSURL               = "nats://127.0.0.1:4222"
	defaultBroadcastSubject      = "alerts.notifications"
	defaultSampleSubject         = "metrics.samples"
	defaultSampleStaleAfterSec   = 300
	defaultHTTPTimeoutSec        = 10
	defaultSMTPPort              = 25

	// StoreBackendMemory keeps alert state in process memory.
	StoreBackendMemory = "memory"
	// StoreBackendNATS keeps alert state in JetStream KV buckets.
	StoreBackendNATS = "nats"
)

// ConfigSource selects one config file or one fragment directory.
// Params: mutually exclusive file and directory paths.
// Returns: load target for snapshot building.
type ConfigSource struct {
	File string
	Dir  string
}

// FromCLI validates CLI source flags into a config source.
// Params: --config-file and --config-dir flag values.
// Returns: config source or flag usage error.
func FromCLI(filePath, dirPath string) (ConfigSource, error) {
	filePath = strings.TrimSpace(filePath)
	dirPath = strings.TrimSpace(dirPath)

	if filePath == "" && dirPath == "" {
		return ConfigSource{}, errors.New("either --config-file or --config-dir must be provided")
	}
	if filePath != "" && dirPath != "" {
		return ConfigSource{}, errors.New("config source must be either file or dir")
	}

	if filePath != "" {
		return ConfigSource{File: filePath}, nil
	}
	return ConfigSource{Dir: dirPath}, nil
}

// Config is the full service configuration snapshot.
// Params: service, log, store, ops, metric source, notify, and rule sections.
// Returns: validated runtime settings.
type Config struct {
	Service ServiceConfig `toml:"service"`
	Log     LogConfig     `toml:"log"`
	Store   StoreConfig   `toml:"store"`
	Ops     OpsConfig     `toml:"ops"`
	Metric  MetricConfig  `toml:"metric_source"`
	Notify  NotifyConfig  `toml:"notify"`
	Rule    []RuleConfig  `toml:"rule"`
}

// MetricConfig holds the NATS metric sample feed settings.
// Params: server URLs, sample subject, and staleness window.
// Returns: metric source construction input.
type MetricConfig struct {
	Enabled       bool     `toml:"enabled"`
	URL           []string `toml:"url"`
	Subject       string   `toml:"subject"`
	StaleAfterSec int      `toml:"stale_after_sec"`
}

// ServiceConfig holds evaluation loop settings.
// Params: rule evaluation interval in seconds.
// Returns: scheduler cadence.
type ServiceConfig struct {
	EvaluationIntervalSec int `toml:"evaluation_interval_sec"`
}

// LogConfig groups log sink settings.
// Params: console and file sinks.
// Returns: logging setup input.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig describes one log output.
// Params: enabled flag, level, format, and file path for file sinks.
// Returns: one sink definition.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// StoreConfig selects the alert store backend.
// Params: backend name and NATS settings when applicable.
// Returns: store construction input.
type StoreConfig struct {
	Backend string          `toml:"backend"`
	NATS    NATSStoreConfig `toml:"nats"`
}

// NATSStoreConfig holds JetStream KV backend settings.
// Params: server URLs and bucket names.
// Returns: NATS store construction input.
type NATSStoreConfig struct {
	URL                []string `toml:"url"`
	AlertsBucket       string   `toml:"alerts_bucket"`
	RulesBucket        string   `toml:"rules_bucket"`
	AllowCreateBuckets bool     `toml:"allow_create_buckets"`
}

// OpsConfig holds the operational HTTP endpoint settings.
// Params: listen address and health/readiness/metrics paths.
// Returns: ops server construction input.
type OpsConfig struct {
	Enabled     bool   `toml:"enabled"`
	Listen      string `toml:"listen"`
	MetricsPath string `toml:"metrics_path"`
	HealthPath  string `toml:"health_path"`
	ReadyPath   string `toml:"ready_path"`
}

// NotifyRetry describes per-channel retry policy.
// Params: attempt cap and backoff shape.
// Returns: retry settings for dispatcher sends.
type NotifyRetry struct {
	Enabled        bool   `toml:"enabled"`
	MaxAttempts    int    `toml:"max_attempts"`
	Backoff        string `toml:"backoff"`
	InitialMS      int    `toml:"initial_ms"`
	MaxMS          int    `toml:"max_ms"`
	LogEachAttempt bool   `toml:"log_each_attempt"`
}

// NotifyConfig groups all notification channel settings.
// Params: one section per transport.
// Returns: dispatcher construction input.
type NotifyConfig struct {
	Websocket WebsocketNotifier `toml:"websocket"`
	Email     EmailNotifier     `toml:"email"`
	Slack     SlackNotifier     `toml:"slack"`
	Push      PushNotifier      `toml:"push"`
	Telegram  TelegramNotifier  `toml:"telegram"`
}

// WebsocketNotifier configures the NATS broadcast feeding UI websockets.
// Params: server URLs and broadcast subject.
// Returns: websocket channel settings.
type WebsocketNotifier struct {
	Enabled bool        `toml:"enabled"`
	URL     []string    `toml:"url"`
	Subject string      `toml:"subject"`
	Retry   NotifyRetry `toml:"retry"`
}

// EmailNotifier configures the SMTP channel.
// Params: relay host/port, sender, recipients, and optional auth.
// Returns: email channel settings.
type EmailNotifier struct {
	Enabled  bool        `toml:"enabled"`
	Host     string      `toml:"host"`
	Port     int         `toml:"port"`
	From     string      `toml:"from"`
	To       []string    `toml:"to"`
	Username string      `toml:"username"`
	Password string      `toml:"password"`
	Retry    NotifyRetry `toml:"retry"`
}

// SlackNotifier configures the Slack incoming-webhook channel.
// Params: webhook URL and request timeout.
// Returns: slack channel settings.
type SlackNotifier struct {
	Enabled    bool        `toml:"enabled"`
	WebhookURL string      `toml:"webhook_url"`
	TimeoutSec int         `toml:"timeout_sec"`
	Retry      NotifyRetry `toml:"retry"`
}

// PushNotifier configures the generic push gateway channel.
// Params: endpoint URL, method, headers, and timeout.
// Returns: push channel settings.
type PushNotifier struct {
	Enabled    bool              `toml:"enabled"`
	URL        string            `toml:"url"`
	Method     string            `toml:"method"`
	Headers    map[string]string `toml:"headers"`
	TimeoutSec int               `toml:"timeout_sec"`
	Retry      NotifyRetry       `toml:"retry"`
}

// TelegramNotifier configures the Telegram Bot API channel.
// Params: bot token, chat id, and optional API base URL.
// Returns: telegram channel settings.
type TelegramNotifier struct {
	Enabled  bool        `toml:"enabled"`
	BotToken string      `toml:"bot_token"`
	ChatID   string      `toml:"chat_id"`
	APIBase  string      `toml:"api_base"`
	Retry    NotifyRetry `toml:"retry"`
}

// RuleConfig is one declarative alert rule from TOML.
// Params: trigger, delivery, cooldown, and auto-resolution settings.
// Returns: raw rule converted via BuildRules.
type RuleConfig struct {
	ID          string            `toml:"id"`
	Name        string            `toml:"name"`
	Enabled     *bool             `toml:"enabled"`
	AlertType   string            `toml:"alert_type"`
	Severity    string            `toml:"severity"`
	Component   string            `toml:"component"`
	Condition   ConditionConfig   `toml:"condition"`
	Channels    []string          `toml:"channels"`
	CooldownMS  int64             `toml:"cooldown_ms"`
	AutoResolve AutoResolveConfig `toml:"auto_resolve"`
}

// ConditionConfig is one metric comparison from TOML.
// Params: metric name, operator token, threshold, and hold duration.
// Returns: raw condition for rule conversion.
type ConditionConfig struct {
	Metric     string  `toml:"metric"`
	Operator   string  `toml:"operator"`
	Value      float64 `toml:"value"`
	DurationMS int64   `toml:"duration_ms"`
}

// AutoResolveConfig enables rule-driven resolution.
// Params: enabled flag and secondary condition.
// Returns: raw auto-resolve settings.
type AutoResolveConfig struct {
	Enabled   bool            `toml:"enabled"`
	Condition ConditionConfig `toml:"condition"`
}

// LoadSnapshot loads, defaults, and validates one config snapshot.
// Params: config source (file or fragment directory).
// Returns: validated config or load/validation error.
func LoadSnapshot(src ConfigSource) (Config, error) {
	var cfg Config
	var err error
	if src.File != "" {
		cfg, err = loadFile(src.File)
	} else {
		cfg, err = loadDir(src.Dir)
	}
	if err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile reads one TOML config file.
// Params: file path.
// Returns: decoded config or read/decode error.
func loadFile(path string) (Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(body, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config file %q: %w", path, err)
	}
	return cfg, nil
}

// loadDir reads and merges TOML files from one directory in name order.
// Params: directory containing config fragments.
// Returns: merged config snapshot or load/decode error.
func loadDir(dir string) (Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Config{}, fmt.Errorf("read config dir %q: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(entry.Name())) != ".toml" {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return Config{}, fmt.Errorf("no .toml files found in %q", dir)
	}
	sort.Strings(files)

	var merged Config
	for _, file := range files {
		fragment, err := loadFile(file)
		if err != nil {
			return Config{}, err
		}
		mergeConfig(&merged, fragment)
	}
	return merged, nil
}

// mergeConfig overlays one fragment onto the destination at section level.
// Params: destination config and next fragment; rules append.
// Returns: merged configuration side-effect in dst.
func mergeConfig(dst *Config, src Config) {
	if src.Service != (ServiceConfig{}) {
		dst.Service = src.Service
	}
	if src.Log != (LogConfig{}) {
		dst.Log = src.Log
	}
	if src.Store.Backend != "" || len(src.Store.NATS.URL) > 0 {
		dst.Store = src.Store
	}
	if src.Ops != (OpsConfig{}) {
		dst.Ops = src.Ops
	}
	if src.Metric.Enabled || len(src.Metric.URL) > 0 || src.Metric.Subject != "" {
		dst.Metric = src.Metric
	}
	if hasNotifyConfig(src.Notify) {
		dst.Notify = src.Notify
	}
	if len(src.Rule) > 0 {
		dst.Rule = append(dst.Rule, src.Rule...)
	}
}

// hasNotifyConfig reports whether any channel section is present.
// Params: notify fragment.
// Returns: true when at least one channel carries settings.
func hasNotifyConfig(cfg NotifyConfig) bool {
	return cfg.Websocket.Enabled || cfg.Email.Enabled || cfg.Slack.Enabled ||
		cfg.Push.Enabled || cfg.Telegram.Enabled ||
		len(cfg.Websocket.URL) > 0 || cfg.Email.Host != "" ||
		cfg.Slack.WebhookURL != "" || cfg.Push.URL != "" || cfg.Telegram.BotToken != ""
}

// applyDefaults fills zero-valued settings with service defaults.
// Params: mutable config snapshot.
// Returns: defaults applied in place.
func applyDefaults(cfg *Config) {
	if cfg.Service.EvaluationIntervalSec <= 0 {
		cfg.Service.EvaluationIntervalSec = defaultEvaluationIntervalSec
	}

	if !cfg.Log.Console.Enabled && !cfg.Log.File.Enabled {
		cfg.Log.Console.Enabled = true
	}
	if cfg.Log.Console.Level == "" {
		cfg.Log.Console.Level = "info"
	}
	if cfg.Log.Console.Format == "" {
		cfg.Log.Console.Format = "line"
	}
	if cfg.Log.File.Level == "" {
		cfg.Log.File.Level = "info"
	}
	if cfg.Log.File.Format == "" {
		cfg.Log.File.Format = "json"
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreBackendMemory
	}
	if len(cfg.Store.NATS.URL) == 0 {
		cfg.Store.NATS.URL = []string{defaultNATSURL}
	}
	if cfg.Store.NATS.AlertsBucket == "" {
		cfg.Store.NATS.AlertsBucket = defaultAlertsBucket
	}
	if cfg.Store.NATS.RulesBucket == "" {
		cfg.Store.NATS.RulesBucket = defaultRulesBucket
	}

	if cfg.Ops.Listen == "" {
		cfg.Ops.Listen = defaultOpsListen
	}
	if cfg.Ops.MetricsPath == "" {
		cfg.Ops.MetricsPath = defaultMetricsPath
	}
	if cfg.Ops.HealthPath == "" {
		cfg.Ops.HealthPath = defaultHealthPath
	}
	if cfg.Ops.ReadyPath == "" {
		cfg.Ops.ReadyPath = defaultReadyPath
	}

	if len(cfg.Notify.Websocket.URL) == 0 {
		cfg.Notify.Websocket.URL = []string{defaultNATSURL}
	}
	if cfg.Notify.Websocket.Subject == "" {
		cfg.Notify.Websocket.Subject = defaultBroadcastSubject
	}
	if len(cfg.Metric.URL) == 0 {
		cfg.Metric.URL = []string{defaultNATSURL}
	}
	if cfg.Metric.Subject == "" {
		cfg.Metric.Subject = defaultSampleSubject
	}
	if cfg.Metric.StaleAfterSec <= 0 {
		cfg.Metric.StaleAfterSec = defaultSampleStaleAfterSec
	}
	if cfg.Notify.Email.Port <= 0 {
		cfg.Notify.Email.Port = defaultSMTPPort
	}
	if cfg.Notify.Slack.TimeoutSec <= 0 {
		cfg.Notify.Slack.TimeoutSec = defaultHTTPTimeoutSec
	}
	if cfg.Notify.Push.TimeoutSec <= 0 {
		cfg.Notify.Push.TimeoutSec = defaultHTTPTimeoutSec
	}
}

// validateConfig rejects inconsistent snapshots before service start.
// Params: config snapshot after defaults.
// Returns: first validation error.
func validateConfig(cfg Config) error {
	switch cfg.Store.Backend {
	case StoreBackendMemory, StoreBackendNATS:
	default:
		return fmt.Errorf("store.backend %q is not supported", cfg.Store.Backend)
	}

	for _, sink := range []struct {
		name string
		cfg  LogSinkConfig
	}{{"console", cfg.Log.Console}, {"file", cfg.Log.File}} {
		if !sink.cfg.Enabled {
			continue
		}
		switch sink.cfg.Format {
		case "line", "json":
		default:
			return fmt.Errorf("log.%s.format %q is not supported", sink.name, sink.cfg.Format)
		}
	}
	if cfg.Log.File.Enabled && strings.TrimSpace(cfg.Log.File.Path) == "" {
		return errors.New("log.file.path is required when file sink is enabled")
	}

	seenRuleIDs := make(map[string]struct{}, len(cfg.Rule))
	for index, rule := range cfg.Rule {
		if err := validateRule(rule); err != nil {
			return fmt.Errorf("rule[%d]: %w", index, err)
		}
		id := ruleID(rule)
		if _, dup := seenRuleIDs[id]; dup {
			return fmt.Errorf("rule[%d]: duplicate rule id %q", index, id)
		}
		seenRuleIDs[id] = struct{}{}
	}
	return nil
}

// validateRule checks one rule fragment.
// Params: raw rule config.
// Returns: first field error.
func validateRule(rule RuleConfig) error {
	if strings.TrimSpace(rule.Name) == "" {
		return errors.New("name is required")
	}
	if !domain.AlertType(rule.AlertType).Valid() {
		return fmt.Errorf("alert_type %q is not recognized", rule.AlertType)
	}
	if !domain.Severity(rule.Severity).Valid() {
		return fmt.Errorf("severity %q is not recognized", rule.Severity)
	}
	if err := validateCondition(rule.Condition); err != nil {
		return fmt.Errorf("condition: %w", err)
	}
	if rule.CooldownMS < 0 {
		return errors.New("cooldown_ms must not be negative")
	}
	if rule.AutoResolve.Enabled {
		if err := validateCondition(rule.AutoResolve.Condition); err != nil {
			return fmt.Errorf("auto_resolve.condition: %w", err)
		}
	}
	return nil
}

// validateCondition checks one condition fragment.
// Params: raw condition config.
// Returns: first field error.
func validateCondition(cond ConditionConfig) error {
	if strings.TrimSpace(cond.Metric) == "" {
		return errors.New("metric is required")
	}
	if !domain.Operator(cond.Operator).Valid() {
		return fmt.Errorf("operator %q is not one of gt/gte/lt/lte/eq/neq", cond.Operator)
	}
	if cond.DurationMS < 0 {
		return errors.New("duration_ms must not be negative")
	}
	return nil
}

// ruleID returns the effective rule id, falling back to the sanitized name.
// Params: raw rule config.
// Returns: non-empty rule identifier.
func ruleID(rule RuleConfig) string {
	if id := strings.TrimSpace(rule.ID); id != "" {
		return id
	}
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(rule.Name), " ", "-"))
}

// BuildRules converts validated rule fragments into domain rules.
// Params: config snapshot after LoadSnapshot.
// Returns: rules ready for store seeding.
func BuildRules(cfg Config) []domain.AlertRule {
	rules := make([]domain.AlertRule, 0, len(cfg.Rule))
	for _, raw := range cfg.Rule {
		enabled := true
		if raw.Enabled != nil {
			enabled = *raw.Enabled
		}
		rule := domain.AlertRule{
			ID:                   ruleID(raw),
			Name:                 strings.TrimSpace(raw.Name),
			Enabled:              enabled,
			AlertType:            domain.AlertType(raw.AlertType),
			Severity:             domain.Severity(raw.Severity),
			Component:            strings.TrimSpace(raw.Component),
			Condition:            buildCondition(raw.Condition),
			NotificationChannels: append([]string(nil), raw.Channels...),
			CooldownPeriod:       time.Duration(raw.CooldownMS) * time.Millisecond,
			AutoResolve:          raw.AutoResolve.Enabled,
		}
		if raw.AutoResolve.Enabled {
			cond := buildCondition(raw.AutoResolve.Condition)
			rule.AutoResolveCondition = &cond
		}
		rules = append(rules, rule)
	}
	return rules
}

// buildCondition converts one condition fragment into the domain shape.
// Params: raw condition config.
// Returns: domain condition.
func buildCondition(cond ConditionConfig) domain.Condition {
	return domain.Condition{
		Metric:   strings.TrimSpace(cond.Metric),
		Operator: domain.Operator(cond.Operator),
		Value:    cond.Value,
		Duration: time.Duration(cond.DurationMS) * time.Millisecond,
	}
}
