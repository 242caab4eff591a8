package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimburion/ssebroadcast/pkg/config"
	"github.com/nimburion/ssebroadcast/pkg/health"
	"github.com/nimburion/ssebroadcast/pkg/observability/logger"
	"github.com/nimburion/ssebroadcast/pkg/observability/metrics"
	"github.com/nimburion/ssebroadcast/pkg/observability/tracing"
	"github.com/nimburion/ssebroadcast/pkg/server/router"
	"github.com/nimburion/ssebroadcast/pkg/server/router/factory"
	"github.com/nimburion/ssebroadcast/pkg/version"
)

// LifecycleHook defines a named startup/shutdown action.
type LifecycleHook struct {
	Name string
	Fn   func(context.Context) error
}

// RunHTTPServersOptions defines inputs for building and running the servers.
type RunHTTPServersOptions struct {
	Config *config.Config

	// PublicRouter is optional. If nil, one is created from Config.RouterType.
	PublicRouter router.Router
	// ManagementRouter is optional. If nil and management is enabled, one is created.
	ManagementRouter router.Router

	Logger logger.Logger

	HealthRegistry  *health.Registry
	MetricsRegistry *metrics.Registry

	StartupHooks        []LifecycleHook
	ShutdownHooks       []LifecycleHook
	ShutdownHookTimeout time.Duration
}

// HTTPServers groups the runtime public/management servers.
type HTTPServers struct {
	Public     *PublicAPIServer
	Management *ManagementServer
}

// BuildHTTPServers constructs the servers from config and options, filling
// in defaults for every optional dependency.
func BuildHTTPServers(opts *RunHTTPServersOptions) (*HTTPServers, error) {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Logger == nil {
		log, err := logger.NewZapLogger(logger.DefaultConfig())
		if err != nil {
			return nil, err
		}
		opts.Logger = log
	}
	if opts.HealthRegistry == nil {
		opts.HealthRegistry = health.NewRegistry()
	}
	if opts.MetricsRegistry == nil {
		opts.MetricsRegistry = metrics.NewRegistry()
	}

	if opts.PublicRouter == nil {
		r, err := factory.NewRouter(opts.Config.RouterType)
		if err != nil {
			return nil, fmt.Errorf("create public router: %w", err)
		}
		opts.PublicRouter = r
	}
	servers := &HTTPServers{
		Public: NewPublicAPIServer(opts.Config.HTTP, opts.Config.Observability, opts.PublicRouter, opts.Logger, opts.MetricsRegistry),
	}
	if !opts.Config.Management.Enabled {
		return servers, nil
	}

	if opts.ManagementRouter == nil {
		r, err := factory.NewRouter(opts.Config.RouterType)
		if err != nil {
			return nil, fmt.Errorf("create management router: %w", err)
		}
		opts.ManagementRouter = r
	}
	servers.Management = NewManagementServer(
		opts.Config.Management,
		opts.ManagementRouter,
		opts.Logger,
		opts.HealthRegistry,
		opts.MetricsRegistry,
		version.Current(resolveServiceName(opts)),
	)
	return servers, nil
}

// RunHTTPServers initializes tracing, runs startup hooks, serves until ctx is
// done or a server fails, and finally runs shutdown hooks.
func RunHTTPServers(ctx context.Context, servers *HTTPServers, opts *RunHTTPServersOptions) error {
	if servers == nil || servers.Public == nil {
		return errors.New("servers and public server are required")
	}
	if opts.Logger == nil {
		return errors.New("logger is required")
	}
	if opts.Config == nil {
		return errors.New("config is required")
	}

	versionInfo := version.Current(resolveServiceName(opts))
	opts.Logger.Info("application version metadata",
		"service", versionInfo.Service,
		"version", versionInfo.Version,
		"commit", versionInfo.Commit,
		"build_time", versionInfo.BuildTime,
	)

	tracerProvider, err := initTracerProvider(ctx, opts.Config, versionInfo)
	if err != nil {
		return fmt.Errorf("initialize tracing provider: %w", err)
	}
	defer shutdownTracerProvider(tracerProvider, opts.Logger)

	if err := runStartupHooks(ctx, opts); err != nil {
		return err
	}
	defer func() {
		if shutdownErr := runShutdownHooks(opts); shutdownErr != nil {
			opts.Logger.Error("shutdown hooks completed with errors", "error", shutdownErr)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverCount := 1
	if servers.Management != nil {
		serverCount = 2
	}
	errCh := make(chan error, serverCount)
	go func() { errCh <- servers.Public.Start(runCtx) }()
	if servers.Management != nil {
		go func() { errCh <- servers.Management.Start(runCtx) }()
	}

	var firstErr error
	for idx := 0; idx < serverCount; idx++ {
		if currentErr := <-errCh; currentErr != nil && firstErr == nil {
			firstErr = currentErr
			cancel()
		}
	}
	return firstErr
}

// RunHTTPServersWithSignals runs servers until SIGINT/SIGTERM (or signals).
func RunHTTPServersWithSignals(servers *HTTPServers, opts *RunHTTPServersOptions, signals ...os.Signal) error {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ctx, stop := signal.NotifyContext(context.Background(), signals...)
	defer stop()
	return RunHTTPServers(ctx, servers, opts)
}

func initTracerProvider(ctx context.Context, cfg *config.Config, info version.Info) (*tracing.TracerProvider, error) {
	return tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    info.Service,
		ServiceVersion: info.Version,
		Environment:    normalizeOrUnknown(cfg.Service.Environment),
		Endpoint:       cfg.Observability.TracingEndpoint,
		SampleRate:     cfg.Observability.TracingSampleRate,
		Insecure:       cfg.Observability.TracingInsecure,
		Enabled:        cfg.Observability.TracingEnabled,
	})
}

func shutdownTracerProvider(provider *tracing.TracerProvider, log logger.Logger) {
	if provider == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := provider.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown tracing provider", "error", err)
	}
}

func resolveServiceName(opts *RunHTTPServersOptions) string {
	if opts.Config != nil {
		return normalizeOrUnknown(opts.Config.Service.Name)
	}
	return version.Unknown
}

func normalizeOrUnknown(v string) string {
	if trimmed := strings.TrimSpace(v); trimmed != "" {
		return trimmed
	}
	return version.Unknown
}

func hookName(hook LifecycleHook) string {
	if name := strings.TrimSpace(hook.Name); name != "" {
		return name
	}
	return "unnamed"
}

func runStartupHooks(ctx context.Context, opts *RunHTTPServersOptions) error {
	for _, hook := range opts.StartupHooks {
		if hook.Fn == nil {
			continue
		}
		name := hookName(hook)
		opts.Logger.Info("startup hook start", "hook", name)
		if err := hook.Fn(ctx); err != nil {
			opts.Logger.Error("startup hook failed", "hook", name, "error", err)
			return fmt.Errorf("startup hook %q failed: %w", name, err)
		}
		opts.Logger.Info("startup hook complete", "hook", name)
	}
	return nil
}

func runShutdownHooks(opts *RunHTTPServersOptions) error {
	timeout := opts.ShutdownHookTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var errs []error
	for _, hook := range opts.ShutdownHooks {
		if hook.Fn == nil {
			continue
		}
		name := hookName(hook)
		hookCtx, cancel := context.WithTimeout(context.Background(), timeout)
		err := hook.Fn(hookCtx)
		cancel()
		if err != nil {
			opts.Logger.Error("shutdown hook failed", "hook", name, "error", err)
			errs = append(errs, fmt.Errorf("shutdown hook %q failed: %w", name, err))
			continue
		}
		opts.Logger.Info("shutdown hook complete", "hook", name)
	}
	return errors.Join(errs...)
}
