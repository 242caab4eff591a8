// Package config loads the service configuration from defaults, an optional
// file, environment variables and command-line flags.
package config

import "time"

// Router type constants
const (
	RouterTypeGorilla = "gorilla"
	RouterTypeGin     = "gin"
	RouterTypeNetHTTP = "nethttp"
)

// Config is the root configuration structure.
type Config struct {
	RouterType    string              `mapstructure:"router_type" yaml:"router_type"`
	Service       ServiceConfig       `mapstructure:"service" yaml:"service"`
	HTTP          HTTPConfig          `mapstructure:"http" yaml:"http"`
	Management    ManagementConfig    `mapstructure:"management" yaml:"management"`
	SSE           SSEConfig           `mapstructure:"sse" yaml:"sse"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// HTTPConfig configures the public server carrying the event streams.
// WriteTimeout bounds ordinary responses only; stream handlers lift it.
type HTTPConfig struct {
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// ManagementConfig configures the management server (health, metrics, version).
type ManagementConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Port         int           `mapstructure:"port" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// SSEConfig configures the broadcasters and the demo producers.
type SSEConfig struct {
	Endpoint              string        `mapstructure:"endpoint" yaml:"endpoint"`
	ClientsEndpoint       string        `mapstructure:"clients_endpoint" yaml:"clients_endpoint"`
	PublishEndpoint       string        `mapstructure:"publish_endpoint" yaml:"publish_endpoint"`
	HistoryCapacity       int           `mapstructure:"history_capacity" yaml:"history_capacity"`
	AutoGenerateIDs       bool          `mapstructure:"auto_generate_ids" yaml:"auto_generate_ids"`
	HeartbeatInterval     time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	HeartbeatDelay        time.Duration `mapstructure:"heartbeat_delay" yaml:"heartbeat_delay"`
	LastEventIDQueryParam string        `mapstructure:"last_event_id_query_param" yaml:"last_event_id_query_param"`
	PublishRateLimit      float64       `mapstructure:"publish_rate_limit" yaml:"publish_rate_limit"`
	PublishBurst          int           `mapstructure:"publish_burst" yaml:"publish_burst"`
	// DemoInterval enables the random number producer when > 0.
	DemoInterval time.Duration `mapstructure:"demo_interval" yaml:"demo_interval"`
	// Console enables the stdin producer.
	Console bool `mapstructure:"console" yaml:"console"`
}

// ObservabilityConfig configures logging and tracing.
type ObservabilityConfig struct {
	LogLevel          string               `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string               `mapstructure:"log_format" yaml:"log_format"`
	TracingEnabled    bool                 `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
	TracingEndpoint   string               `mapstructure:"tracing_endpoint" yaml:"tracing_endpoint"`
	TracingSampleRate float64              `mapstructure:"tracing_sample_rate" yaml:"tracing_sample_rate"`
	TracingInsecure   bool                 `mapstructure:"tracing_insecure" yaml:"tracing_insecure"`
	RequestLogging    RequestLoggingConfig `mapstructure:"request_logging" yaml:"request_logging"`
}

// RequestLoggingConfig configures HTTP request logging middleware behavior.
type RequestLoggingConfig struct {
	Enabled              bool     `mapstructure:"enabled" yaml:"enabled"`
	ExcludedPathPrefixes []string `mapstructure:"excluded_path_prefixes" yaml:"excluded_path_prefixes"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RouterType: RouterTypeGorilla,
		Service: ServiceConfig{
			Name:        "ssedemo",
			Environment: "development",
		},
		HTTP: HTTPConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Management: ManagementConfig{
			Enabled:      true,
			Port:         9090,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		SSE: SSEConfig{
			Endpoint:              "/events",
			ClientsEndpoint:       "/clients",
			PublishEndpoint:       "/publish",
			HistoryCapacity:       10,
			AutoGenerateIDs:       true,
			HeartbeatInterval:     15 * time.Second,
			HeartbeatDelay:        time.Second,
			LastEventIDQueryParam: "last_event_id",
			PublishRateLimit:      10,
			PublishBurst:          20,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			TracingEndpoint:   "localhost:4317",
			TracingSampleRate: 1.0,
			TracingInsecure:   true,
			RequestLogging: RequestLoggingConfig{
				Enabled:              true,
				ExcludedPathPrefixes: []string{"/health", "/metrics"},
			},
		},
	}
}
