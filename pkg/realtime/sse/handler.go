package sse

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/nimburion/ssebroadcast/pkg/observability/logger"
	"github.com/nimburion/ssebroadcast/pkg/server/router"
)

// InfoFunc derives subscriber metadata from the streaming request. Returning
// false registers the subscriber without metadata.
type InfoFunc[I any] func(r *http.Request) (I, bool)

// HandlerConfig configures the streaming endpoint.
type HandlerConfig[I any] struct {
	Broadcaster *Broadcaster[I]
	Info        InfoFunc[I]
	// Query key for explicit Last-Event-ID fallback, default "last_event_id".
	LastEventIDQueryParam string
	Logger                logger.Logger
}

// Handler turns HTTP requests into broadcaster subscribers.
type Handler[I any] struct {
	cfg HandlerConfig[I]
	log logger.Logger
}

// NewHandler creates an SSE HTTP handler.
func NewHandler[I any](cfg HandlerConfig[I]) (*Handler[I], error) {
	if cfg.Broadcaster == nil {
		return nil, errors.New("sse broadcaster is required")
	}
	if strings.TrimSpace(cfg.LastEventIDQueryParam) == "" {
		cfg.LastEventIDQueryParam = "last_event_id"
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Handler[I]{cfg: cfg, log: log}, nil
}

// Stream returns the endpoint as a router handler.
func (h *Handler[I]) Stream() router.HandlerFunc {
	return func(c router.Context) error {
		if _, ok := c.Response().(http.Flusher); !ok {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": ErrStreamingUnsupported.Error()})
		}
		h.serve(c.Response(), c.Request())
		return nil
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler[I]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, ErrStreamingUnsupported.Error(), http.StatusInternalServerError)
		return
	}
	h.serve(w, r)
}

// serve blocks until the client goes away or the subscriber is evicted.
func (h *Handler[I]) serve(w http.ResponseWriter, r *http.Request) {
	flusher := w.(http.Flusher)

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache, must-revalidate")
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := &streamSink{w: w, flusher: flusher}
	defer sink.Close()

	ctx := r.Context()
	lastID := h.lastEventID(r)

	var (
		sub *Subscriber[I]
		err error
	)
	if info, ok := h.info(r); ok {
		sub, err = h.cfg.Broadcaster.RegisterWithInfo(ctx, sink, lastID, info)
	} else {
		sub, err = h.cfg.Broadcaster.Register(ctx, sink, lastID)
	}
	if err != nil {
		h.log.Warn("sse subscribe failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	select {
	case <-ctx.Done():
	case <-sub.Done():
	}
	h.log.Debug("sse stream finished", "subscriber_id", sub.ID(), "last_event_id", sub.LastEventID())
}

func (h *Handler[I]) info(r *http.Request) (I, bool) {
	if h.cfg.Info == nil {
		var zero I
		return zero, false
	}
	return h.cfg.Info(r)
}

func (h *Handler[I]) lastEventID(r *http.Request) string {
	lastID := strings.TrimSpace(r.Header.Get("Last-Event-ID"))
	if lastID == "" {
		lastID = strings.TrimSpace(r.URL.Query().Get(h.cfg.LastEventIDQueryParam))
	}
	return lastID
}

// streamSink flushes every write and refuses writes once the request ended.
type streamSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	closed  bool
}

func (s *streamSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSinkClosed
	}
	n, err := s.w.Write(p)
	if err != nil {
		return n, err
	}
	s.flusher.Flush()
	return n, nil
}

func (s *streamSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
