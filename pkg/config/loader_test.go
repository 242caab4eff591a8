package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RouterType != RouterTypeGorilla {
		t.Errorf("expected router type gorilla, got %s", cfg.RouterType)
	}
	if cfg.HTTP.Port != 8080 || cfg.Management.Port != 9090 {
		t.Errorf("unexpected ports %d/%d", cfg.HTTP.Port, cfg.Management.Port)
	}
	if cfg.SSE.HistoryCapacity != 10 || !cfg.SSE.AutoGenerateIDs {
		t.Errorf("unexpected sse defaults %+v", cfg.SSE)
	}
	if cfg.SSE.HeartbeatDelay != time.Second {
		t.Errorf("expected heartbeat delay 1s, got %v", cfg.SSE.HeartbeatDelay)
	}
	if cfg.SSE.LastEventIDQueryParam != "last_event_id" {
		t.Errorf("unexpected query param %q", cfg.SSE.LastEventIDQueryParam)
	}
	if err := NewViperLoader("", "").Validate(cfg); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestViperLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewViperLoader("", "").Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := DefaultConfig()
	if cfg.SSE != want.SSE || cfg.HTTP != want.HTTP {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestViperLoader_Precedence(t *testing.T) {
	// Given: a file, env overrides and a changed flag
	path := writeConfig(t, `
router_type: gin
http:
  port: 8181
sse:
  history_capacity: 5
  heartbeat_interval: 3s
  endpoint: /stream
`)
	t.Setenv("SSE_HTTP_PORT", "8282")
	t.Setenv("SSE_SSE_HISTORY_CAPACITY", "7")
	t.Setenv("SSE_OBSERVABILITY_REQUEST_LOGGING_EXCLUDED_PATH_PREFIXES", "/health,/ready")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", 0, "")
	flags.Int("history-capacity", 0, "")
	if err := flags.Parse([]string{"--history-capacity=9"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	// When
	loader := NewViperLoader(path, "SSE").WithFlags(flags)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	// Then: flags > env > file > defaults
	if cfg.RouterType != RouterTypeGin {
		t.Errorf("expected router from file, got %s", cfg.RouterType)
	}
	if cfg.HTTP.Port != 8282 {
		t.Errorf("expected env port 8282, got %d", cfg.HTTP.Port)
	}
	if cfg.SSE.HistoryCapacity != 9 {
		t.Errorf("expected flag capacity 9, got %d", cfg.SSE.HistoryCapacity)
	}
	if cfg.SSE.HeartbeatInterval != 3*time.Second {
		t.Errorf("expected file interval 3s, got %v", cfg.SSE.HeartbeatInterval)
	}
	if cfg.SSE.Endpoint != "/stream" || cfg.SSE.ClientsEndpoint != "/clients" {
		t.Errorf("unexpected endpoints %q %q", cfg.SSE.Endpoint, cfg.SSE.ClientsEndpoint)
	}
	if got := cfg.Observability.RequestLogging.ExcludedPathPrefixes; len(got) != 2 || got[1] != "/ready" {
		t.Errorf("unexpected excluded prefixes %v", got)
	}
	if loader.ConfigFileUsed() != path {
		t.Errorf("expected config file %q, got %q", path, loader.ConfigFileUsed())
	}
}

func TestViperLoader_MissingFile(t *testing.T) {
	_, err := NewViperLoader(filepath.Join(t.TempDir(), "missing.yaml"), "").Load()
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RouterType = "chi"
	cfg.SSE.HistoryCapacity = -1
	cfg.SSE.PublishEndpoint = cfg.SSE.Endpoint
	cfg.Observability.LogLevel = "loud"

	err := NewViperLoader("", "").Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"router_type", "history_capacity", "duplicates", "log_level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 4 {
		t.Fatalf("expected 4 joined errors, got %v", err)
	}
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "relative endpoint", mutate: func(c *Config) { c.SSE.Endpoint = "events" }, want: "sse.endpoint"},
		{name: "same ports", mutate: func(c *Config) { c.Management.Port = c.HTTP.Port }, want: "management.port"},
		{name: "negative interval", mutate: func(c *Config) { c.SSE.HeartbeatInterval = -time.Second }, want: "heartbeat_interval"},
		{name: "zero burst", mutate: func(c *Config) { c.SSE.PublishBurst = 0 }, want: "publish_burst"},
		{name: "zero rate", mutate: func(c *Config) { c.SSE.PublishRateLimit = 0 }, want: "publish_rate_limit"},
		{name: "tracing without endpoint", mutate: func(c *Config) {
			c.Observability.TracingEnabled = true
			c.Observability.TracingEndpoint = " "
		}, want: "tracing_endpoint"},
		{name: "bad sample rate", mutate: func(c *Config) {
			c.Observability.TracingEnabled = true
			c.Observability.TracingSampleRate = 2
		}, want: "tracing_sample_rate"},
		{name: "bad format", mutate: func(c *Config) { c.Observability.LogFormat = "xml" }, want: "log_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := NewViperLoader("", "").Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate_AcceptsEveryRouterType(t *testing.T) {
	for _, routerType := range []string{RouterTypeGorilla, RouterTypeGin, RouterTypeNetHTTP} {
		cfg := DefaultConfig()
		cfg.RouterType = routerType
		if err := NewViperLoader("", "").Validate(cfg); err != nil {
			t.Errorf("%s: unexpected error: %v", routerType, err)
		}
	}
}

func TestValidate_Normalizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RouterType = " GIN "
	cfg.SSE.Endpoint = " /events "
	cfg.Observability.LogLevel = "WARNING"
	cfg.Observability.LogFormat = "console"
	cfg.Observability.RequestLogging.ExcludedPathPrefixes = []string{" ", "/metrics "}

	if err := NewViperLoader("", "").Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.RouterType != "gin" || cfg.SSE.Endpoint != "/events" {
		t.Errorf("expected normalized router/endpoint, got %q %q", cfg.RouterType, cfg.SSE.Endpoint)
	}
	if cfg.Observability.LogLevel != "warn" || cfg.Observability.LogFormat != "text" {
		t.Errorf("unexpected normalized logging %q %q", cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	}
	if got := cfg.Observability.RequestLogging.ExcludedPathPrefixes; len(got) != 1 || got[0] != "/metrics" {
		t.Errorf("unexpected prefixes %v", got)
	}
}

func TestProperty_HistoryCapacityFromEnv(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("any non-negative capacity set through env is loaded", prop.ForAll(
		func(capacity int) bool {
			t.Setenv("SSE_SSE_HISTORY_CAPACITY", strconv.Itoa(capacity))
			cfg, err := NewViperLoader("", "").Load()
			return err == nil && cfg.SSE.HistoryCapacity == capacity
		},
		gen.IntRange(0, 100000),
	))
	properties.TestingRun(t)
}
