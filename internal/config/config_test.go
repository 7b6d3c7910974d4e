package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"alertengine/internal/domain"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const fullConfig = `
[service]
evaluation_interval_sec = 15

[store]
backend = "memory"

[ops]
enabled = true
listen = ":9464"

[notify.websocket]
enabled = true
url = ["nats://127.0.0.1:4222"]
subject = "alerts.notifications"

[notify.telegram]
enabled = true
bot_token = "token"
chat_id = "-100200300"

[[rule]]
id = "cpu-high"
name = "High CPU"
alert_type = "HIGH_CPU_USAGE"
severity = "HIGH"
component = "SYSTEM_RESOURCES"
channels = ["telegram"]
cooldown_ms = 3600000

[rule.condition]
metric = "cpu_usage"
operator = "gt"
value = 80.0

[rule.auto_resolve]
enabled = true

[rule.auto_resolve.condition]
metric = "cpu_usage"
operator = "lt"
value = 75.0
`

func TestLoadSnapshotFromFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), "config.toml", fullConfig)
	cfg, err := LoadSnapshot(ConfigSource{File: path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Service.EvaluationIntervalSec != 15 {
		t.Fatalf("expected interval 15, got %d", cfg.Service.EvaluationIntervalSec)
	}
	if cfg.Store.Backend != StoreBackendMemory {
		t.Fatalf("expected memory backend, got %s", cfg.Store.Backend)
	}
	// Untouched sections get defaults.
	if !cfg.Log.Console.Enabled || cfg.Log.Console.Format != "line" {
		t.Fatalf("expected console defaults, got %+v", cfg.Log.Console)
	}
	if cfg.Ops.MetricsPath != "/metrics" || cfg.Ops.HealthPath != "/healthz" {
		t.Fatalf("expected ops path defaults, got %+v", cfg.Ops)
	}
	if cfg.Metric.Subject != "metrics.samples" || cfg.Metric.StaleAfterSec != 300 {
		t.Fatalf("expected metric source defaults, got %+v", cfg.Metric)
	}
	if len(cfg.Rule) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(cfg.Rule))
	}
}

func TestBuildRulesConversion(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), "config.toml", fullConfig)
	cfg, err := LoadSnapshot(ConfigSource{File: path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	rules := BuildRules(cfg)
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	rule := rules[0]
	if rule.ID != "cpu-high" || !rule.Enabled {
		t.Fatalf("unexpected rule identity: %+v", rule)
	}
	if rule.AlertType != domain.TypeHighCPUUsage || rule.Severity != domain.SeverityHigh {
		t.Fatalf("unexpected rule classification: %+v", rule)
	}
	if rule.Condition.Operator != domain.OperatorGT || rule.Condition.Value != 80 {
		t.Fatalf("unexpected condition: %+v", rule.Condition)
	}
	if rule.CooldownPeriod != time.Hour {
		t.Fatalf("expected 1h cooldown, got %s", rule.CooldownPeriod)
	}
	if !rule.AutoResolve || rule.AutoResolveCondition == nil {
		t.Fatalf("expected auto-resolve enabled: %+v", rule)
	}
	if rule.AutoResolveCondition.Operator != domain.OperatorLT || rule.AutoResolveCondition.Value != 75 {
		t.Fatalf("unexpected auto-resolve condition: %+v", rule.AutoResolveCondition)
	}
	if len(rule.NotificationChannels) != 1 || rule.NotificationChannels[0] != "telegram" {
		t.Fatalf("unexpected channels: %v", rule.NotificationChannels)
	}
}

func TestRuleIDFallsBackToName(t *testing.T) {
	t.Parallel()

	body := `
[[rule]]
name = "Slow Response Time"
alert_type = "SLOW_RESPONSE_TIME"
severity = "MEDIUM"

[rule.condition]
metric = "response_time_ms"
operator = "gt"
value = 500.0
`
	path := writeConfig(t, t.TempDir(), "config.toml", body)
	cfg, err := LoadSnapshot(ConfigSource{File: path})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rules := BuildRules(cfg)
	if rules[0].ID != "slow-response-time" {
		t.Fatalf("expected derived id, got %q", rules[0].ID)
	}
}

func TestLoadDirMergesFragmentsInOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, "10-service.toml", "[service]\nevaluation_interval_sec = 5\n")
	writeConfig(t, dir, "20-rules.toml", `
[[rule]]
name = "Queue Backlog"
alert_type = "QUEUE_BACKLOG"
severity = "LOW"

[rule.condition]
metric = "queue_depth"
operator = "gte"
value = 1000.0
`)
	writeConfig(t, dir, "30-service-override.toml", "[service]\nevaluation_interval_sec = 60\n")

	cfg, err := LoadSnapshot(ConfigSource{Dir: dir})
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if cfg.Service.EvaluationIntervalSec != 60 {
		t.Fatalf("expected later fragment to win, got %d", cfg.Service.EvaluationIntervalSec)
	}
	if len(cfg.Rule) != 1 {
		t.Fatalf("expected rules preserved across fragments, got %d", len(cfg.Rule))
	}
}

func TestValidationRejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		body    string
		wantSub string
	}{
		{
			"unknown backend",
			"[store]\nbackend = \"postgres\"\n",
			"store.backend",
		},
		{
			"file sink without path",
			"[log.file]\nenabled = true\n",
			"log.file.path",
		},
		{
			"unknown operator",
			`
[[rule]]
name = "Bad"
alert_type = "HIGH_CPU_USAGE"
severity = "HIGH"

[rule.condition]
metric = "cpu_usage"
operator = "between"
value = 80.0
`,
			"operator",
		},
		{
			"unknown alert type",
			`
[[rule]]
name = "Bad"
alert_type = "NOT_A_TYPE"
severity = "HIGH"

[rule.condition]
metric = "cpu_usage"
operator = "gt"
value = 80.0
`,
			"alert_type",
		},
		{
			"duplicate rule ids",
			`
[[rule]]
id = "dup"
name = "One"
alert_type = "HIGH_CPU_USAGE"
severity = "HIGH"

[rule.condition]
metric = "cpu_usage"
operator = "gt"
value = 80.0

[[rule]]
id = "dup"
name = "Two"
alert_type = "HIGH_MEMORY_USAGE"
severity = "HIGH"

[rule.condition]
metric = "memory_usage"
operator = "gt"
value = 90.0
`,
			"duplicate rule id",
		},
	}
	for _, tc := range cases {
		path := writeConfig(t, t.TempDir(), "config.toml", tc.body)
		_, err := LoadSnapshot(ConfigSource{File: path})
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.wantSub) {
			t.Fatalf("%s: expected error mentioning %q, got %v", tc.name, tc.wantSub, err)
		}
	}
}

func TestFromCLIRequiresExactlyOneSource(t *testing.T) {
	t.Parallel()

	if _, err := FromCLI("", ""); err == nil {
		t.Fatalf("expected error for no source")
	}
	if _, err := FromCLI("a.toml", "conf.d"); err == nil {
		t.Fatalf("expected error for both sources")
	}
	src, err := FromCLI(" a.toml ", "")
	if err != nil {
		t.Fatalf("file source: %v", err)
	}
	if src.File != "a.toml" {
		t.Fatalf("expected trimmed file path, got %q", src.File)
	}
}
