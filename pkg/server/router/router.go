// Package router abstracts the HTTP router so streaming endpoints can be
// mounted on gorilla/mux, gin-gonic or plain net/http without depending on
// any of them.
package router

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"sync"
)

// Router defines the interface for HTTP routing.
type Router interface {
	GET(path string, handler HandlerFunc, middleware ...MiddlewareFunc)
	POST(path string, handler HandlerFunc, middleware ...MiddlewareFunc)

	// Group creates a route group with common prefix and middleware
	Group(prefix string, middleware ...MiddlewareFunc) Router

	// Use applies middleware to routes registered afterwards
	Use(middleware ...MiddlewareFunc)

	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// HandlerFunc is the function signature for route handlers.
type HandlerFunc func(Context) error

// MiddlewareFunc wraps a HandlerFunc and returns a new HandlerFunc.
type MiddlewareFunc func(HandlerFunc) HandlerFunc

// Context provides access to request and response in a router-agnostic way.
type Context interface {
	Request() *http.Request
	SetRequest(r *http.Request)

	Response() ResponseWriter
	SetResponse(w ResponseWriter)

	// Param returns a URL parameter by name (e.g., /streams/:name)
	Param(name string) string
	// Query returns the first query parameter value by name
	Query(name string) string

	// Bind decodes a JSON request body into v
	Bind(v interface{}) error

	JSON(code int, v interface{}) error
	String(code int, s string) error

	Get(key string) interface{}
	Set(key string, value interface{})
}

// ResponseWriter wraps http.ResponseWriter to track response status.
// Implementations also implement http.Flusher so event streams can be pushed.
type ResponseWriter interface {
	http.ResponseWriter

	// Status returns the HTTP status code of the response
	Status() int

	// Written returns whether the response has been written
	Written() bool
}

// Chain applies route middleware then global middleware, outermost first.
func Chain(h HandlerFunc, global, route []MiddlewareFunc) HandlerFunc {
	for i := len(route) - 1; i >= 0; i-- {
		h = route[i](h)
	}
	for i := len(global) - 1; i >= 0; i-- {
		h = global[i](h)
	}
	return h
}

// FromHTTPHandler mounts a plain http.Handler as a route handler.
func FromHTTPHandler(h http.Handler) HandlerFunc {
	return func(c Context) error {
		h.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

// NewResponseWriter wraps w with status tracking.
func NewResponseWriter(w http.ResponseWriter) ResponseWriter {
	return &responseWriter{ResponseWriter: w}
}

type responseWriter struct {
	http.ResponseWriter
	mu      sync.RWMutex
	status  int
	written bool
}

func (w *responseWriter) WriteHeader(code int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.written {
		return
	}
	w.status = code
	w.written = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.Written() {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) Status() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *responseWriter) Written() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.written
}

// Flush implements http.Flusher.
func (w *responseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker when the wrapped writer does.
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
