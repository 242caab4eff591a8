package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/nimburion/ssebroadcast/pkg/observability/logger"
)

// DefaultEnvPrefix prefixes every environment variable, e.g. SSE_HTTP_PORT.
const DefaultEnvPrefix = "SSE"

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader with precedence flags > env > file > defaults.
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      *pflag.FlagSet
	v          *viper.Viper
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"router":             "router_type",
	"port":               "http.port",
	"management-port":    "management.port",
	"history-capacity":   "sse.history_capacity",
	"heartbeat-interval": "sse.heartbeat_interval",
	"demo-interval":      "sse.demo_interval",
	"console":            "sse.console",
	"log-level":          "observability.log_level",
	"log-format":         "observability.log_format",
}

// NewViperLoader creates a loader. configFile may be empty; an empty
// envPrefix falls back to DefaultEnvPrefix.
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	if strings.TrimSpace(envPrefix) == "" {
		envPrefix = DefaultEnvPrefix
	}
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  strings.ToUpper(strings.TrimSpace(envPrefix)),
	}
}

// WithFlags binds changed flags of fs as the highest precedence source.
func (l *ViperLoader) WithFlags(fs *pflag.FlagSet) *ViperLoader {
	l.flags = fs
	return l
}

// Load reads, merges, unmarshals and validates the configuration.
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()
	l.v = v
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	if err := l.bindEnvVars(v); err != nil {
		return nil, err
	}
	if err := l.bindFlags(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the file read by the last Load, if any.
func (l *ViperLoader) ConfigFileUsed() string {
	if l.v == nil {
		return ""
	}
	return l.v.ConfigFileUsed()
}

// bindEnvVars binds every key to PREFIX_<KEY>, with dots turned into
// underscores, so nested keys work without AutomaticEnv.
func (l *ViperLoader) bindEnvVars(v *viper.Viper) error {
	for _, key := range v.AllKeys() {
		env := l.envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	return nil
}

func (l *ViperLoader) bindFlags(v *viper.Viper) error {
	if l.flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := l.flags.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// setDefaults registers every key with its default so env binding and
// unmarshalling see the full key set.
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("router_type", cfg.RouterType)
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("http.port", cfg.HTTP.Port)
	v.SetDefault("http.read_timeout", cfg.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", cfg.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", cfg.HTTP.IdleTimeout)
	v.SetDefault("http.shutdown_timeout", cfg.HTTP.ShutdownTimeout)

	v.SetDefault("management.enabled", cfg.Management.Enabled)
	v.SetDefault("management.port", cfg.Management.Port)
	v.SetDefault("management.read_timeout", cfg.Management.ReadTimeout)
	v.SetDefault("management.write_timeout", cfg.Management.WriteTimeout)

	v.SetDefault("sse.endpoint", cfg.SSE.Endpoint)
	v.SetDefault("sse.clients_endpoint", cfg.SSE.ClientsEndpoint)
	v.SetDefault("sse.publish_endpoint", cfg.SSE.PublishEndpoint)
	v.SetDefault("sse.history_capacity", cfg.SSE.HistoryCapacity)
	v.SetDefault("sse.auto_generate_ids", cfg.SSE.AutoGenerateIDs)
	v.SetDefault("sse.heartbeat_interval", cfg.SSE.HeartbeatInterval)
	v.SetDefault("sse.heartbeat_delay", cfg.SSE.HeartbeatDelay)
	v.SetDefault("sse.last_event_id_query_param", cfg.SSE.LastEventIDQueryParam)
	v.SetDefault("sse.publish_rate_limit", cfg.SSE.PublishRateLimit)
	v.SetDefault("sse.publish_burst", cfg.SSE.PublishBurst)
	v.SetDefault("sse.demo_interval", cfg.SSE.DemoInterval)
	v.SetDefault("sse.console", cfg.SSE.Console)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)
	v.SetDefault("observability.tracing_insecure", cfg.Observability.TracingInsecure)
	v.SetDefault("observability.request_logging.enabled", cfg.Observability.RequestLogging.Enabled)
	v.SetDefault("observability.request_logging.excluded_path_prefixes", cfg.Observability.RequestLogging.ExcludedPathPrefixes)
}

// Validate normalizes cfg and reports every problem at once.
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	cfg.RouterType = strings.ToLower(strings.TrimSpace(cfg.RouterType))
	switch cfg.RouterType {
	case RouterTypeGorilla, RouterTypeGin, RouterTypeNetHTTP:
	default:
		errs = append(errs, fmt.Errorf("invalid router_type: %q (must be one of: %s, %s, %s)", cfg.RouterType, RouterTypeGorilla, RouterTypeGin, RouterTypeNetHTTP))
	}

	if cfg.HTTP.Port < 0 || cfg.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port out of range: %d", cfg.HTTP.Port))
	}
	if cfg.Management.Enabled {
		if cfg.Management.Port < 0 || cfg.Management.Port > 65535 {
			errs = append(errs, fmt.Errorf("management.port out of range: %d", cfg.Management.Port))
		}
		if cfg.Management.Port != 0 && cfg.Management.Port == cfg.HTTP.Port {
			errs = append(errs, errors.New("management.port must differ from http.port"))
		}
	}
	if cfg.HTTP.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("http.shutdown_timeout must not be negative"))
	}

	sse := &cfg.SSE
	endpoints := map[string]*string{
		"sse.endpoint":         &sse.Endpoint,
		"sse.clients_endpoint": &sse.ClientsEndpoint,
		"sse.publish_endpoint": &sse.PublishEndpoint,
	}
	seen := make(map[string]string, len(endpoints))
	for _, key := range []string{"sse.endpoint", "sse.clients_endpoint", "sse.publish_endpoint"} {
		path := strings.TrimSpace(*endpoints[key])
		*endpoints[key] = path
		if !strings.HasPrefix(path, "/") {
			errs = append(errs, fmt.Errorf("%s must start with '/': %q", key, path))
			continue
		}
		if other, dup := seen[path]; dup {
			errs = append(errs, fmt.Errorf("%s duplicates %s: %q", key, other, path))
		}
		seen[path] = key
	}
	if sse.HistoryCapacity < 0 {
		errs = append(errs, fmt.Errorf("sse.history_capacity must not be negative: %d", sse.HistoryCapacity))
	}
	if sse.HeartbeatInterval < 0 {
		errs = append(errs, errors.New("sse.heartbeat_interval must not be negative"))
	}
	if sse.HeartbeatDelay < 0 {
		errs = append(errs, errors.New("sse.heartbeat_delay must not be negative"))
	}
	if sse.DemoInterval < 0 {
		errs = append(errs, errors.New("sse.demo_interval must not be negative"))
	}
	if sse.PublishRateLimit <= 0 {
		errs = append(errs, fmt.Errorf("sse.publish_rate_limit must be positive: %v", sse.PublishRateLimit))
	}
	if sse.PublishBurst < 1 {
		errs = append(errs, fmt.Errorf("sse.publish_burst must be at least 1: %d", sse.PublishBurst))
	}
	sse.LastEventIDQueryParam = strings.TrimSpace(sse.LastEventIDQueryParam)

	obs := &cfg.Observability
	if level, err := logger.ParseLogLevel(obs.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("observability.log_level: %w", err))
	} else {
		obs.LogLevel = string(level)
	}
	if format, err := logger.ParseLogFormat(obs.LogFormat); err != nil {
		errs = append(errs, fmt.Errorf("observability.log_format: %w", err))
	} else {
		obs.LogFormat = string(format)
	}
	if obs.TracingEnabled {
		if strings.TrimSpace(obs.TracingEndpoint) == "" {
			errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
		}
		if obs.TracingSampleRate < 0 || obs.TracingSampleRate > 1 {
			errs = append(errs, fmt.Errorf("observability.tracing_sample_rate must be within [0,1]: %v", obs.TracingSampleRate))
		}
	}
	obs.RequestLogging.ExcludedPathPrefixes = normalizeStringSlice(obs.RequestLogging.ExcludedPathPrefixes)

	return errors.Join(errs...)
}

func normalizeStringSlice(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
