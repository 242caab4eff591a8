package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nimburion/ssebroadcast/pkg/config"
	"github.com/nimburion/ssebroadcast/pkg/observability/logger"
	"github.com/nimburion/ssebroadcast/pkg/server"
)

// Run serves the demo until ctx is done, SIGINT/SIGTERM arrives, or the
// console exit command is read.
func Run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := New(cfg, log)
	if err != nil {
		return err
	}

	runOpts := &server.RunHTTPServersOptions{
		Config:          cfg,
		Logger:          log,
		HealthRegistry:  a.Health(),
		MetricsRegistry: a.Metrics(),
	}
	servers, err := a.Build(ctx, cancel, runOpts)
	if err != nil {
		_ = a.Close()
		return err
	}
	return server.RunHTTPServers(ctx, servers, runOpts)
}

// Build creates the servers, mounts the streams on the public router and
// wires the broadcasters into the server lifecycle. cancel is called when
// the console asks the service to exit.
func (a *App) Build(ctx context.Context, cancel context.CancelFunc, opts *server.RunHTTPServersOptions) (*server.HTTPServers, error) {
	servers, err := server.BuildHTTPServers(opts)
	if err != nil {
		return nil, err
	}
	if err := a.RegisterRoutes(opts.PublicRouter); err != nil {
		return nil, fmt.Errorf("register stream routes: %w", err)
	}

	// Open streams never go idle, so graceful shutdown has to end them.
	servers.Public.RegisterOnShutdown(func() {
		if err := a.Close(); err != nil {
			a.log.Error("failed to close broadcasters", "error", err)
		}
	})

	opts.StartupHooks = append(opts.StartupHooks, server.LifecycleHook{
		Name: "producers",
		Fn: func(context.Context) error {
			a.StartProducers(ctx, cancel)
			return nil
		},
	})
	opts.ShutdownHooks = append(opts.ShutdownHooks, server.LifecycleHook{
		Name: "broadcasters",
		Fn:   func(context.Context) error { return a.Close() },
	})
	return servers, nil
}
