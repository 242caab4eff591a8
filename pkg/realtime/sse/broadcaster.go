// Package sse implements a Server-Sent Events broadcaster: a registry of
// streaming subscribers with bounded Last-Event-ID replay, optional
// per-subscriber filtering and periodic heartbeats.
package sse

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/nimburion/ssebroadcast/pkg/observability/logger"
	"github.com/nimburion/ssebroadcast/pkg/observability/tracing"
)

const (
	// DefaultHistoryCapacity is the replay buffer size used by DefaultConfig.
	DefaultHistoryCapacity = 10
	// DefaultHeartbeatDelay is the wait before the first heartbeat.
	DefaultHeartbeatDelay = time.Second
	// DefaultHeartbeatComment is the comment sent as keep-alive.
	DefaultHeartbeatComment = "heartbeat"
)

// Config controls a Broadcaster. It is fixed for the broadcaster's lifetime.
type Config struct {
	// Name labels logs, metrics and spans.
	Name            string
	HistoryCapacity int
	AutoGenerateIDs bool
	// HeartbeatInterval enables keep-alive comments and the retry directive
	// when positive.
	HeartbeatInterval time.Duration
	HeartbeatDelay    time.Duration
	HeartbeatComment  string
}

// DefaultConfig returns a config with auto ids and heartbeats disabled.
func DefaultConfig() Config {
	return Config{
		HistoryCapacity:  DefaultHistoryCapacity,
		AutoGenerateIDs:  true,
		HeartbeatDelay:   DefaultHeartbeatDelay,
		HeartbeatComment: DefaultHeartbeatComment,
	}
}

// Predicate selects subscribers by their metadata.
type Predicate[I any] func(info I) bool

// Delivery summarizes one broadcast.
type Delivery struct {
	// ID is the id the message was sent with, generated or given.
	ID string
	// Delivered counts subscribers the message was written or queued to.
	Delivered int
	// Removed counts subscribers pruned after the pass.
	Removed int
}

// Option customizes a Broadcaster.
type Option func(*options)

type options struct {
	history    History
	historySet bool
	ids        IDGenerator
	idsSet     bool
	log        logger.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	observers  []Observer
}

// WithHistory replaces the in-memory history. Passing nil is a config error.
func WithHistory(h History) Option {
	return func(o *options) {
		o.history = h
		o.historySet = true
	}
}

// WithIDGenerator enables id assignment with g. Passing nil is a config error.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) {
		o.ids = g
		o.idsSet = true
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMetrics records broadcaster metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer starts spans on tracer instead of the global provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithObserver registers o before the broadcaster is returned.
func WithObserver(o Observer) Option {
	return func(opts *options) { opts.observers = append(opts.observers, o) }
}

// Broadcaster owns the live subscriber set and fans messages out to it.
// I is the type of the optional per-subscriber metadata used by filtered
// sends; use struct{} when no metadata is needed.
type Broadcaster[I any] struct {
	cfg     Config
	history History
	ids     IDGenerator
	retry   string
	log     logger.Logger
	metrics *Metrics
	tracer  trace.Tracer

	// mu guards the live set and every history append.
	mu          sync.Mutex
	subscribers []*Subscriber[I]
	closed      bool

	obsMu     sync.RWMutex
	observers []Observer

	stopHeartbeat context.CancelFunc
	wg            sync.WaitGroup
	// heartbeatNotifying is set while observers run on the heartbeat goroutine.
	heartbeatNotifying atomic.Bool
}

// New creates a broadcaster and starts its heartbeat when configured.
func New[I any](cfg Config, opts ...Option) (*Broadcaster[I], error) {
	if cfg.HistoryCapacity < 0 {
		return nil, configError("history capacity must not be negative")
	}
	if cfg.HeartbeatInterval < 0 {
		return nil, configError("heartbeat interval must not be negative")
	}
	if cfg.HeartbeatDelay < 0 {
		return nil, configError("heartbeat delay must not be negative")
	}
	if cfg.HeartbeatDelay == 0 {
		cfg.HeartbeatDelay = DefaultHeartbeatDelay
	}
	if strings.TrimSpace(cfg.HeartbeatComment) == "" {
		cfg.HeartbeatComment = DefaultHeartbeatComment
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.historySet && o.history == nil {
		return nil, configError("history is required")
	}
	if o.idsSet && o.ids == nil {
		return nil, configError("id generator is required")
	}
	if o.history == nil {
		o.history = NewMemoryHistory(cfg.HistoryCapacity)
	}
	if o.ids == nil && cfg.AutoGenerateIDs {
		o.ids = NewCounterIDGenerator()
	}
	if o.log == nil {
		o.log = logger.NewNopLogger()
	}
	if cfg.Name != "" {
		o.log = o.log.With("broadcaster", cfg.Name)
	}

	b := &Broadcaster[I]{
		cfg:     cfg,
		history: o.history,
		ids:     o.ids,
		log:     o.log,
		metrics: o.metrics,
		tracer:  o.tracer,
	}
	if cfg.HeartbeatInterval > 0 {
		b.retry = strconv.FormatInt(max(cfg.HeartbeatInterval.Milliseconds(), 1), 10)
	}
	for _, observer := range o.observers {
		b.Observe(observer)
	}
	b.metrics.setSubscribers(b.name(), 0)

	if cfg.HeartbeatInterval > 0 {
		b.startHeartbeat()
	}
	return b, nil
}

// Register adds a subscriber writing to sink. lastEventID is the client's
// Last-Event-ID; when it names a message still in history, every message
// after it is replayed before any live message.
func (b *Broadcaster[I]) Register(ctx context.Context, sink io.Writer, lastEventID string) (*Subscriber[I], error) {
	var zero I
	return b.register(ctx, sink, lastEventID, zero, false)
}

// RegisterWithInfo is Register for a subscriber carrying metadata, making it
// eligible for filtered sends.
func (b *Broadcaster[I]) RegisterWithInfo(ctx context.Context, sink io.Writer, lastEventID string, info I) (*Subscriber[I], error) {
	return b.register(ctx, sink, lastEventID, info, true)
}

func (b *Broadcaster[I]) register(ctx context.Context, sink io.Writer, lastEventID string, info I, hasInfo bool) (*Subscriber[I], error) {
	lastEventID = cleanField(strings.TrimSpace(lastEventID))
	_, span := tracing.StartBroadcastSpan(ctx, tracing.SpanOperationRegister, b.spanOptions(
		tracing.WithLastEventID(lastEventID),
	)...)
	defer span.End()

	if sink == nil {
		tracing.RecordError(span, ErrNilSink)
		return nil, ErrNilSink
	}
	s := newSubscriber(sink, lastEventID, info, hasInfo)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		tracing.RecordError(span, ErrClosed)
		return nil, ErrClosed
	}
	chain := b.replayChainLocked(s)
	s.replaying = len(chain) > 0
	b.subscribers = append(b.subscribers, s)
	count := len(b.subscribers)
	b.mu.Unlock()

	b.metrics.setSubscribers(b.name(), count)
	b.log.Info("sse subscriber added", "subscriber_id", s.ID(), "subscribers", count, "last_event_id", lastEventID)
	b.notifyAdded(count)

	if len(chain) > 0 {
		replayed := s.replay(chain)
		b.metrics.observeReplay(b.name(), replayed)
		b.log.Debug("sse history replayed", "subscriber_id", s.ID(), "messages", replayed)
	}
	tracing.RecordSuccess(span)
	return s, nil
}

// replayChainLocked walks history from the subscriber's last id. The walk is
// bounded by the history length so duplicate ids cannot loop.
func (b *Broadcaster[I]) replayChainLocked(s *Subscriber[I]) []*Message {
	after := s.lastID
	if after == "" {
		return nil
	}
	var chain []*Message
	for i, n := 0, b.history.Len(); i < n; i++ {
		msg, ok := b.history.Next(after)
		if !ok {
			break
		}
		after = msg.ID
		if match, filtered := msg.audience.(Predicate[I]); filtered && !s.admits(match) {
			continue
		}
		chain = append(chain, msg)
	}
	return chain
}

// Send broadcasts data to every subscriber.
func (b *Broadcaster[I]) Send(data string) Delivery {
	return b.Publish(context.Background(), Message{Data: data}, nil)
}

// SendEvent broadcasts data as an event of the given type.
func (b *Broadcaster[I]) SendEvent(event, data string) Delivery {
	return b.Publish(context.Background(), Message{Event: event, Data: data}, nil)
}

// SendWithID broadcasts data with an explicit id. A blank id is generated.
func (b *Broadcaster[I]) SendWithID(event, data, id string) Delivery {
	return b.Publish(context.Background(), Message{ID: id, Event: event, Data: data}, nil)
}

// SendTo broadcasts data to subscribers whose metadata satisfies match.
// Subscribers registered without metadata never receive filtered sends. A
// nil match selects every subscriber with metadata.
func (b *Broadcaster[I]) SendTo(match Predicate[I], data string) Delivery {
	return b.Publish(context.Background(), Message{Data: data}, filterOrAll(match))
}

// SendEventTo is SendTo with an event type.
func (b *Broadcaster[I]) SendEventTo(match Predicate[I], event, data string) Delivery {
	return b.Publish(context.Background(), Message{Event: event, Data: data}, filterOrAll(match))
}

// SendWithIDTo is SendTo with an event type and explicit id.
func (b *Broadcaster[I]) SendWithIDTo(match Predicate[I], event, data, id string) Delivery {
	return b.Publish(context.Background(), Message{ID: id, Event: event, Data: data}, filterOrAll(match))
}

// Heartbeat broadcasts the keep-alive comment immediately.
func (b *Broadcaster[I]) Heartbeat(ctx context.Context) Delivery {
	return b.Publish(ctx, Message{Comment: b.cfg.HeartbeatComment}, nil)
}

// Publish broadcasts msg to every subscriber, or only to subscribers with
// metadata satisfying match when match is not nil.
//
// Id assignment, the history append and the writes all happen under the
// registry lock, so ids follow send order and every subscriber sees messages
// in that order. Subscribers whose write fails are pruned after the pass.
//
// Line breaks in ID, Event and Retry are replaced before the message is
// stored, so the id kept in history is the id clients see on the wire.
func (b *Broadcaster[I]) Publish(ctx context.Context, msg Message, match Predicate[I]) Delivery {
	msg.audience = nil
	msg.ID = cleanField(msg.ID)
	msg.Event = cleanField(msg.Event)
	msg.Retry = cleanField(msg.Retry)
	commentOnly := msg.IsCommentOnly()
	if !commentOnly && msg.Retry == "" && b.retry != "" {
		msg.Retry = b.retry
	}
	if match != nil {
		msg.audience = match
	}

	operation := tracing.SpanOperationPublish
	if commentOnly {
		operation = tracing.SpanOperationHeartbeat
	}
	_, span := tracing.StartBroadcastSpan(ctx, operation, b.spanOptions(
		tracing.WithEventType(msg.Event),
		tracing.WithFiltered(match != nil),
	)...)
	defer span.End()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		tracing.RecordError(span, ErrClosed)
		return Delivery{}
	}
	if msg.ID == "" && !commentOnly && b.ids != nil {
		msg.ID = cleanField(b.ids.NextID(&msg))
	}
	stored := &msg
	if !commentOnly {
		b.history.Add(stored)
	}

	delivered, failed := 0, 0
	for _, s := range b.subscribers {
		if match != nil && !s.admits(match) {
			continue
		}
		if err := s.deliver(stored); err != nil {
			failed++
			b.log.Warn("sse subscriber write failed", "subscriber_id", s.ID(), "error", err)
			continue
		}
		delivered++
	}
	removed := b.pruneLocked()
	count := len(b.subscribers)
	b.mu.Unlock()

	b.metrics.observePublish(b.name(), commentOnly, delivered, failed)
	tracing.RecordDelivery(span, msg.ID, delivered, removed)
	if commentOnly {
		b.log.Debug("sse heartbeat sent", "subscribers", delivered)
	} else {
		b.log.Debug("sse message sent", "id", msg.ID, "event", msg.Event, "subscribers", delivered, "filtered", match != nil)
	}

	if removed > 0 {
		b.metrics.setSubscribers(b.name(), count)
		b.log.Info("sse subscribers removed", "removed", removed, "subscribers", count)
		b.notifyRemovedFrom(ctx, count)
	}
	tracing.RecordSuccess(span)
	return Delivery{ID: msg.ID, Delivered: delivered, Removed: removed}
}

// pruneLocked drops every disconnected subscriber from the whole live set.
func (b *Broadcaster[I]) pruneLocked() int {
	kept := b.subscribers[:0]
	for _, s := range b.subscribers {
		if s.Connected() {
			kept = append(kept, s)
		}
	}
	removed := len(b.subscribers) - len(kept)
	for i := len(kept); i < len(b.subscribers); i++ {
		b.subscribers[i] = nil
	}
	b.subscribers = kept
	return removed
}

// Count returns the number of live subscribers.
func (b *Broadcaster[I]) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Subscribers returns a snapshot of the live set.
func (b *Broadcaster[I]) Subscribers() []*Subscriber[I] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Subscriber[I](nil), b.subscribers...)
}

// Closed reports whether Close has been called.
func (b *Broadcaster[I]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Name returns the configured broadcaster name.
func (b *Broadcaster[I]) Name() string { return b.cfg.Name }

// Close stops the heartbeat and disconnects every subscriber. Later
// registrations fail with ErrClosed and later sends are dropped.
//
// Close waits for the heartbeat goroutine to exit, except when it is called
// by an observer running on that goroutine; the goroutine then exits as soon
// as the observer returns.
func (b *Broadcaster[I]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subscribers := b.subscribers
	b.subscribers = nil
	b.mu.Unlock()

	if b.stopHeartbeat != nil {
		b.stopHeartbeat()
	}
	if !b.heartbeatNotifying.Load() {
		b.wg.Wait()
	}

	for _, s := range subscribers {
		s.disconnect()
	}
	b.metrics.setSubscribers(b.name(), 0)
	if len(subscribers) > 0 {
		b.log.Info("sse subscribers removed", "removed", len(subscribers), "subscribers", 0)
		b.notifyRemoved(0)
	}
	return nil
}

func (b *Broadcaster[I]) name() string {
	if b.cfg.Name == "" {
		return "default"
	}
	return b.cfg.Name
}

func (b *Broadcaster[I]) spanOptions(extra ...tracing.BroadcastSpanOption) []tracing.BroadcastSpanOption {
	opts := []tracing.BroadcastSpanOption{tracing.WithBroadcaster(b.cfg.Name)}
	if b.tracer != nil {
		opts = append(opts, tracing.WithTracer(b.tracer))
	}
	return append(opts, extra...)
}

func filterOrAll[I any](match Predicate[I]) Predicate[I] {
	if match != nil {
		return match
	}
	return func(I) bool { return true }
}
