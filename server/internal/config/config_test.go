package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	// Server section absent entirely.
	p := writeConfig(t, "other: {}\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.GRPCPort != DefaultGRPCPort {
		t.Errorf("grpc_port: got %d, want %d", s.GRPCPort, DefaultGRPCPort)
	}
	if s.HTTPPort != DefaultHTTPPort {
		t.Errorf("http_port: got %d, want %d", s.HTTPPort, DefaultHTTPPort)
	}
	if s.State.TTL != DefaultStateTTL {
		t.Errorf("state.ttl: got %v, want %v", s.State.TTL, DefaultStateTTL)
	}
	if s.Stress.Window != 60*time.Second {
		t.Errorf("stress.window: got %v, want 60s", s.Stress.Window)
	}
	if s.Stress.LogCapacity != 200 {
		t.Errorf("stress.log_capacity: got %d, want 200", s.Stress.LogCapacity)
	}
	if s.Stress.StreamInterval != 5*time.Second {
		t.Errorf("stress.stream_interval: got %v, want 5s", s.Stress.StreamInterval)
	}
	if len(s.Alerts.Rules) != 1 || s.Alerts.Rules[0].Condition != DefaultCalmingRule {
		t.Errorf("alerts.rules: got %+v, want the default calming rule", s.Alerts.Rules)
	}
	if s.Storage.Backend != "memory" {
		t.Errorf("storage.backend: got %q, want memory", s.Storage.Backend)
	}

	pol, err := s.Pricing.Policy()
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if pol.TaxRate.String() != "0.085" || pol.FlatShipping.String() != "5.99" {
		t.Errorf("pricing: got tax=%s shipping=%s", pol.TaxRate, pol.FlatShipping)
	}
}

func TestLoad_FullServer(t *testing.T) {
	p := writeConfig(t, `server:
  grpc_port: 9090
  http_port: 9091
  log:
    level: debug
  auth:
    mode: apikey
    key_env: MY_KEY
    header: x-ease-key
  rate_limit:
    requests_per_second: 5
    burst: 10
  state:
    ttl: 2h
  pricing:
    tax_rate: "0.07"
    free_shipping_threshold: "50"
    flat_shipping: "4.50"
  stress:
    window: 30s
    log_capacity: 50
    medium_threshold: 30
    high_threshold: 60
    stream_interval: 2s
  alerts:
    rules:
      - name: calm
        condition: "score >= 8"
        cooldown: 1m
    webhooks:
      - type: slack
        url_env: SLACK_URL
  storage:
    backend: sqlite
    path: /tmp/senseease.db
    retention: 48h
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.Server
	if s.GRPCPort != 9090 {
		t.Errorf("grpc_port: got %d, want 9090", s.GRPCPort)
	}
	if s.Log.Level != "debug" {
		t.Errorf("log.level: got %q", s.Log.Level)
	}
	if s.Auth.EffectiveHeader() != "x-ease-key" {
		t.Errorf("header: got %q, want x-ease-key", s.Auth.EffectiveHeader())
	}
	if s.RateLimit.Burst != 10 {
		t.Errorf("rate_limit.burst: got %d", s.RateLimit.Burst)
	}
	if s.Stress.Window != 30*time.Second || s.Stress.LogCapacity != 50 {
		t.Errorf("stress: got %+v", s.Stress)
	}
	scorer := s.Stress.Scorer()
	if scorer.HighThreshold != 60 {
		t.Errorf("scorer.HighThreshold: got %v", scorer.HighThreshold)
	}
	if len(s.Alerts.Rules) != 1 || s.Alerts.Rules[0].Name != "calm" {
		t.Errorf("alerts.rules: got %+v", s.Alerts.Rules)
	}
	if s.Alerts.Rules[0].Cooldown != time.Minute {
		t.Errorf("cooldown: got %v", s.Alerts.Rules[0].Cooldown)
	}
	if s.Storage.Retention != 48*time.Hour {
		t.Errorf("retention: got %v", s.Storage.Retention)
	}
	pol := s.Pricing.MustPolicy()
	if pol.FreeShippingThreshold.String() != "50" {
		t.Errorf("threshold: got %s", pol.FreeShippingThreshold)
	}
}

func TestLoad_KeyEnvResolution(t *testing.T) {
	t.Setenv("TEST_SERVER_KEY", "supersecret")
	p := writeConfig(t, `server:
  auth:
    mode: apikey
    key_env: TEST_SERVER_KEY
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if k := cfg.Server.Auth.Key(); k != "supersecret" {
		t.Errorf("Key(): got %q, want supersecret", k)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown auth mode", "server:\n  auth:\n    mode: oauth2\n"},
		{"bad port", "server:\n  http_port: 70000\n"},
		{"bad tax rate", "server:\n  pricing:\n    tax_rate: lots\n"},
		{"negative shipping", "server:\n  pricing:\n    flat_shipping: \"-1\"\n"},
		{"inverted thresholds", "server:\n  stress:\n    medium_threshold: 80\n    high_threshold: 70\n"},
		{"rule without condition", "server:\n  alerts:\n    rules:\n      - name: x\n"},
		{"unknown webhook", "server:\n  alerts:\n    webhooks:\n      - type: pager\n"},
		{"sqlite without path", "server:\n  storage:\n    backend: sqlite\n"},
		{"unknown backend", "server:\n  storage:\n    backend: mongo\n"},
		{"burst missing", "server:\n  rate_limit:\n    requests_per_second: 3\n    burst: 0\n"},
		{"bad log level", "server:\n  log:\n    level: chatty\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.yaml)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLogConfig_SlogLevel(t *testing.T) {
	if (LogConfig{Level: "debug"}).SlogLevel().String() != "DEBUG" {
		t.Error("debug level not mapped")
	}
	if (LogConfig{}).SlogLevel().String() != "INFO" {
		t.Error("empty level should default to INFO")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	p := writeConfig(t, "server:\n  http_port: 8081\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, p, func(c *Config) { got <- c })
	}()

	// Give the watcher a moment to register before writing.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-got:
			// A truncate-then-write can surface an intermediate empty file.
			if c.Server.HTTPPort != 8082 {
				continue
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Watch: %v", err)
			}
			return
		case <-tick.C:
			if err := os.WriteFile(p, []byte("server:\n  http_port: 8082\n"), 0o600); err != nil {
				t.Fatalf("rewrite: %v", err)
			}
		case <-deadline:
			t.Fatal("no reload observed within 5s")
		}
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	def, _ := Parse(nil)
	s := cfg.Server
	if s.HTTPPort != def.Server.HTTPPort || s.State.TTL != def.Server.State.TTL {
		t.Errorf("example diverges from defaults: http_port=%d ttl=%v", s.HTTPPort, s.State.TTL)
	}
	if s.Pricing != def.Server.Pricing {
		t.Errorf("example pricing = %+v, want %+v", s.Pricing, def.Server.Pricing)
	}
	if s.Stress != def.Server.Stress {
		t.Errorf("example stress = %+v, want %+v", s.Stress, def.Server.Stress)
	}
	if len(s.Alerts.Rules) != 1 || s.Alerts.Rules[0].Condition != DefaultCalmingRule {
		t.Errorf("example rules = %+v", s.Alerts.Rules)
	}
}
