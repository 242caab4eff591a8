// Package app wires the broadcasters, producers and HTTP endpoints of the
// ssedemo service.
package app

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/nimburion/ssebroadcast/pkg/config"
	"github.com/nimburion/ssebroadcast/pkg/health"
	"github.com/nimburion/ssebroadcast/pkg/middleware/ratelimit"
	"github.com/nimburion/ssebroadcast/pkg/observability/logger"
	obsmetrics "github.com/nimburion/ssebroadcast/pkg/observability/metrics"
	"github.com/nimburion/ssebroadcast/pkg/realtime/sse"
	"github.com/nimburion/ssebroadcast/pkg/server/router"
)

const (
	// EventsStream names the main broadcaster in logs, metrics and spans.
	EventsStream = "events"
	// ClientsStream names the presence broadcaster.
	ClientsStream = "clients"

	// TopicQueryParam selects the topic a subscriber listens to.
	TopicQueryParam = "topic"
)

// App owns the two broadcasters of the demo: the events stream fed by the
// producers, and the clients stream announcing subscriber counts.
type App struct {
	cfg *config.Config
	log logger.Logger

	metrics *obsmetrics.Registry
	health  *health.Registry

	events  *sse.Broadcaster[string]
	clients *sse.Broadcaster[struct{}]

	stdin io.Reader
}

// Option customizes an App.
type Option func(*App)

// WithStdin replaces the console producer input.
func WithStdin(r io.Reader) Option {
	return func(a *App) { a.stdin = r }
}

// WithMetricsRegistry shares an existing Prometheus registry.
func WithMetricsRegistry(reg *obsmetrics.Registry) Option {
	return func(a *App) { a.metrics = reg }
}

// WithHealthRegistry shares an existing health registry.
func WithHealthRegistry(reg *health.Registry) Option {
	return func(a *App) { a.health = reg }
}

// New creates the broadcasters and registers their metrics and health checks.
func New(cfg *config.Config, log logger.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	a := &App{cfg: cfg, log: log, stdin: os.Stdin}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = obsmetrics.NewRegistry()
	}
	if a.health == nil {
		a.health = health.NewRegistry()
	}

	sseMetrics, err := sse.NewMetrics(a.metrics)
	if err != nil {
		return nil, fmt.Errorf("register sse metrics: %w", err)
	}

	a.events, err = sse.New[string](a.broadcasterConfig(EventsStream),
		sse.WithLogger(log.With("stream", EventsStream)),
		sse.WithMetrics(sseMetrics),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s broadcaster: %w", EventsStream, err)
	}
	a.clients, err = sse.New[struct{}](a.broadcasterConfig(ClientsStream),
		sse.WithLogger(log.With("stream", ClientsStream)),
		sse.WithMetrics(sseMetrics),
	)
	if err != nil {
		_ = a.events.Close()
		return nil, fmt.Errorf("create %s broadcaster: %w", ClientsStream, err)
	}

	a.events.Observe(sse.CountObserver(func(count int) {
		a.clients.SendEvent(EventsStream, strconv.Itoa(count))
	}))
	a.clients.Observe(sse.CountObserver(func(count int) {
		a.clients.SendEvent(ClientsStream, strconv.Itoa(count))
	}))

	a.health.Register(health.NewBroadcasterChecker(EventsStream, a.events))
	a.health.Register(health.NewBroadcasterChecker(ClientsStream, a.clients))
	return a, nil
}

func (a *App) broadcasterConfig(name string) sse.Config {
	return sse.Config{
		Name:              name,
		HistoryCapacity:   a.cfg.SSE.HistoryCapacity,
		AutoGenerateIDs:   a.cfg.SSE.AutoGenerateIDs,
		HeartbeatInterval: a.cfg.SSE.HeartbeatInterval,
		HeartbeatDelay:    a.cfg.SSE.HeartbeatDelay,
		HeartbeatComment:  sse.DefaultHeartbeatComment,
	}
}

// Events returns the main broadcaster. Subscriber metadata is the topic.
func (a *App) Events() *sse.Broadcaster[string] { return a.events }

// Clients returns the presence broadcaster.
func (a *App) Clients() *sse.Broadcaster[struct{}] { return a.clients }

// Metrics returns the registry holding the HTTP and SSE collectors.
func (a *App) Metrics() *obsmetrics.Registry { return a.metrics }

// Health returns the registry holding the broadcaster checks.
func (a *App) Health() *health.Registry { return a.health }

// RegisterRoutes mounts both streams and the publish endpoint on r.
func (a *App) RegisterRoutes(r router.Router) error {
	events, err := sse.NewHandler(sse.HandlerConfig[string]{
		Broadcaster:           a.events,
		Info:                  topicFromRequest,
		LastEventIDQueryParam: a.cfg.SSE.LastEventIDQueryParam,
		Logger:                a.log,
	})
	if err != nil {
		return err
	}
	clients, err := sse.NewHandler(sse.HandlerConfig[struct{}]{
		Broadcaster:           a.clients,
		LastEventIDQueryParam: a.cfg.SSE.LastEventIDQueryParam,
		Logger:                a.log,
	})
	if err != nil {
		return err
	}

	limiter := ratelimit.NewTokenBucketLimiter(a.cfg.SSE.PublishRateLimit, a.cfg.SSE.PublishBurst)

	r.GET(a.cfg.SSE.Endpoint, events.Stream())
	r.GET(a.cfg.SSE.ClientsEndpoint, clients.Stream())
	r.POST(a.cfg.SSE.PublishEndpoint, a.handlePublish, ratelimit.RateLimit(limiter, ratelimit.Config{}))
	return nil
}

// Close disconnects every subscriber of both streams.
func (a *App) Close() error {
	return errors.Join(a.events.Close(), a.clients.Close())
}

// topicFromRequest reads ?topic=. Subscribers without a topic carry no
// metadata and receive only unfiltered messages.
func topicFromRequest(r *http.Request) (string, bool) {
	topic := strings.TrimSpace(r.URL.Query().Get(TopicQueryParam))
	return topic, topic != ""
}
