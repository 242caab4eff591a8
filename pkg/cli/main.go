// Package cli builds the cobra command tree shared by the service binaries.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/nimburion/ssebroadcast/pkg/config"
	"github.com/nimburion/ssebroadcast/pkg/observability/logger"
	"github.com/nimburion/ssebroadcast/pkg/version"
)

// ServiceCommandOptions defines callbacks for service-specific logic.
type ServiceCommandOptions struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string

	// Required: server startup logic
	RunServer func(ctx context.Context, cfg *config.Config, log logger.Logger) error

	// Optional: custom config validation (runs after the built-in validation)
	ValidateConfig func(cfg *config.Config) error

	// Optional: additional custom commands
	CustomCommands []*cobra.Command
}

// NewServiceCommand creates the root command with serve, version and config
// subcommands. Running the root command without a subcommand serves.
func NewServiceCommand(opts ServiceCommandOptions) *cobra.Command {
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = config.DefaultEnvPrefix
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	var serviceNameOverride string
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	flags.StringVar(&serviceNameOverride, "service-name", "", "service name override")
	registerConfigFlags(flags)

	loadConfig := func(fs *pflag.FlagSet) (*config.Config, logger.Logger, error) {
		return LoadConfigAndLogger(cfgPath, opts.EnvPrefix, opts.ValidateConfig, fs, opts.Name, serviceNameOverride)
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Current(opts.Name)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service:    %s\n", info.Service)
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
			fmt.Fprintf(out, "Go:         %s\n", info.GoVersion)
		},
	})

	if opts.RunServer != nil {
		serveCmd := &cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP servers",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, log, err := loadConfig(cmd.Flags())
				if err != nil {
					return err
				}
				defer syncLogger(log)
				return opts.RunServer(cmd.Context(), cfg, log)
			},
		}
		rootCmd.AddCommand(serveCmd)
		rootCmd.RunE = serveCmd.RunE
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfigOnly(cfgPath, opts, cmd.Flags(), serviceNameOverride); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	})
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigOnly(cfgPath, opts, cmd.Flags(), serviceNameOverride)
			if err != nil {
				return err
			}
			formatted, err := formatConfig(cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatted)
			return nil
		},
	})
	rootCmd.AddCommand(configCmd)

	for _, customCmd := range opts.CustomCommands {
		rootCmd.AddCommand(customCmd)
	}

	return rootCmd
}

// registerConfigFlags declares the flags the config loader binds. Only flags
// set on the command line override file and environment values.
func registerConfigFlags(fs *pflag.FlagSet) {
	defaults := config.DefaultConfig()
	fs.String("router", defaults.RouterType, "router implementation (gorilla, gin, nethttp)")
	fs.Int("port", defaults.HTTP.Port, "public HTTP port")
	fs.Int("management-port", defaults.Management.Port, "management HTTP port")
	fs.Int("history-capacity", defaults.SSE.HistoryCapacity, "number of messages kept for replay")
	fs.Duration("heartbeat-interval", defaults.SSE.HeartbeatInterval, "keep-alive interval, 0 disables heartbeats")
	fs.Duration("demo-interval", defaults.SSE.DemoInterval, "random number producer interval, 0 disables it")
	fs.Bool("console", defaults.SSE.Console, "broadcast lines read from stdin")
	fs.String("log-level", defaults.Observability.LogLevel, "log level (debug, info, warn, error)")
	fs.String("log-format", defaults.Observability.LogFormat, "log format (json, text)")
}

// LoadConfigAndLogger loads and validates configuration and builds the logger
// it describes.
func LoadConfigAndLogger(
	cfgPath,
	envPrefix string,
	customValidator func(*config.Config) error,
	flags *pflag.FlagSet,
	defaultServiceName string,
	serviceNameOverride string,
) (*config.Config, logger.Logger, error) {
	cfg, err := loadConfig(cfgPath, envPrefix, customValidator, flags, defaultServiceName, serviceNameOverride)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.NewZapLogger(logger.Config{
		Level:  logger.LogLevel(cfg.Observability.LogLevel),
		Format: logger.LogFormat(cfg.Observability.LogFormat),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	logConfigIfDebug(log, cfg)
	return cfg, log, nil
}

func loadConfigOnly(cfgPath string, opts ServiceCommandOptions, flags *pflag.FlagSet, serviceNameOverride string) (*config.Config, error) {
	return loadConfig(cfgPath, opts.EnvPrefix, opts.ValidateConfig, flags, opts.Name, serviceNameOverride)
}

func loadConfig(
	cfgPath,
	envPrefix string,
	customValidator func(*config.Config) error,
	flags *pflag.FlagSet,
	defaultServiceName string,
	serviceNameOverride string,
) (*config.Config, error) {
	cfg, err := config.NewViperLoader(cfgPath, envPrefix).WithFlags(flags).Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyResolvedServiceName(cfg, defaultServiceName, serviceNameOverride)

	if customValidator != nil {
		if err := customValidator(cfg); err != nil {
			return nil, fmt.Errorf("custom validation failed: %w", err)
		}
	}
	return cfg, nil
}

func formatConfig(cfg *config.Config) (string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

// Execute runs the command and exits with appropriate code.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func syncLogger(log logger.Logger) {
	if z, ok := log.(*logger.ZapLogger); ok {
		_ = z.Sync()
	}
}

func logConfigIfDebug(log logger.Logger, cfg *config.Config) {
	if log == nil || cfg == nil {
		return
	}
	if !strings.EqualFold(cfg.Observability.LogLevel, string(logger.DebugLevel)) {
		return
	}
	log.Debug("effective configuration", "config", fmt.Sprintf("%+v", cfg))
}

func applyResolvedServiceName(cfg *config.Config, defaultServiceName, serviceNameOverride string) {
	if cfg == nil {
		return
	}
	cfg.Service.Name = resolveServiceNameValue(cfg.Service.Name, defaultServiceName, serviceNameOverride)
}

func resolveServiceNameValue(currentConfigName, defaultServiceName, serviceNameOverride string) string {
	if override := strings.TrimSpace(serviceNameOverride); override != "" {
		return override
	}
	if configured := strings.TrimSpace(currentConfigName); configured != "" {
		return configured
	}
	if fallback := strings.TrimSpace(defaultServiceName); fallback != "" {
		return fallback
	}
	return "app"
}
