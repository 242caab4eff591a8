// Package nethttp provides a net/http based implementation of the router.Router interface.
package nethttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/nimburion/ssebroadcast/pkg/server/router"
)

// NetHTTPRouter implements router.Router on net/http with a segment matcher
// supporting ":name" parameters.
type NetHTTPRouter struct {
	table      *routeTable
	middleware []router.MiddlewareFunc
	prefix     string
}

type routeTable struct {
	mu     sync.RWMutex
	routes []route
}

type route struct {
	method   string
	segments []string
	handler  router.HandlerFunc
}

// NewRouter creates a new NetHTTPRouter.
func NewRouter() *NetHTTPRouter {
	return &NetHTTPRouter{table: &routeTable{}}
}

func (r *NetHTTPRouter) GET(path string, handler router.HandlerFunc, middleware ...router.MiddlewareFunc) {
	r.addRoute(http.MethodGet, path, handler, middleware)
}

func (r *NetHTTPRouter) POST(path string, handler router.HandlerFunc, middleware ...router.MiddlewareFunc) {
	r.addRoute(http.MethodPost, path, handler, middleware)
}

// Group creates a route group with common prefix and middleware.
func (r *NetHTTPRouter) Group(prefix string, middleware ...router.MiddlewareFunc) router.Router {
	r.table.mu.RLock()
	combined := append([]router.MiddlewareFunc{}, r.middleware...)
	r.table.mu.RUnlock()

	return &NetHTTPRouter{
		table:      r.table,
		middleware: append(combined, middleware...),
		prefix:     r.prefix + prefix,
	}
}

// Use applies middleware to routes registered afterwards.
func (r *NetHTTPRouter) Use(middleware ...router.MiddlewareFunc) {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()
	r.middleware = append(r.middleware, middleware...)
}

// ServeHTTP implements http.Handler. The route table lock is released before
// the handler runs so long-lived streams never block registration.
func (r *NetHTTPRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler, params, allowed := r.table.lookup(req.Method, req.URL.Path)
	if handler == nil {
		if len(allowed) > 0 {
			w.Header().Set("Allow", strings.Join(allowed, ", "))
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		http.NotFound(w, req)
		return
	}

	ctx := newContext(w, req, params)
	if err := handler(ctx); err != nil && !ctx.Response().Written() {
		http.Error(ctx.Response(), err.Error(), http.StatusInternalServerError)
	}
}

func (r *NetHTTPRouter) addRoute(method, path string, h router.HandlerFunc, routeMiddleware []router.MiddlewareFunc) {
	r.table.mu.Lock()
	defer r.table.mu.Unlock()

	r.table.routes = append(r.table.routes, route{
		method:   method,
		segments: splitPath(r.prefix + path),
		handler:  router.Chain(h, append([]router.MiddlewareFunc{}, r.middleware...), routeMiddleware),
	})
}

// lookup returns the first route matching method and path. When only the
// method differs it returns the methods registered for path instead.
func (t *routeTable) lookup(method, path string) (router.HandlerFunc, map[string]string, []string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	parts := splitPath(path)
	var allowed []string
	for _, rt := range t.routes {
		params, ok := matchSegments(rt.segments, parts)
		if !ok {
			continue
		}
		if rt.method == method {
			return rt.handler, params, nil
		}
		allowed = append(allowed, rt.method)
	}
	sort.Strings(allowed)
	return nil, nil, allowed
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func matchSegments(pattern, parts []string) (map[string]string, bool) {
	if len(pattern) != len(parts) {
		return nil, false
	}
	params := make(map[string]string)
	for i, segment := range pattern {
		if strings.HasPrefix(segment, ":") {
			params[segment[1:]] = parts[i]
			continue
		}
		if segment != parts[i] {
			return nil, false
		}
	}
	return params, true
}

type netHTTPContext struct {
	request  *http.Request
	response router.ResponseWriter
	params   map[string]string
	store    map[string]interface{}
	mu       sync.RWMutex
}

func newContext(w http.ResponseWriter, r *http.Request, params map[string]string) *netHTTPContext {
	return &netHTTPContext{
		request:  r,
		response: router.NewResponseWriter(w),
		params:   params,
		store:    make(map[string]interface{}),
	}
}

func (c *netHTTPContext) Request() *http.Request              { return c.request }
func (c *netHTTPContext) SetRequest(r *http.Request)          { c.request = r }
func (c *netHTTPContext) Response() router.ResponseWriter     { return c.response }
func (c *netHTTPContext) SetResponse(w router.ResponseWriter) { c.response = w }
func (c *netHTTPContext) Param(name string) string            { return c.params[name] }
func (c *netHTTPContext) Query(name string) string            { return c.request.URL.Query().Get(name) }

func (c *netHTTPContext) Bind(v interface{}) error {
	if c.request.Body == nil || c.request.Body == http.NoBody {
		return errors.New("request body is empty")
	}
	defer c.request.Body.Close()

	contentType := c.request.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		return fmt.Errorf("unsupported content type: %s", contentType)
	}
	return json.NewDecoder(c.request.Body).Decode(v)
}

func (c *netHTTPContext) JSON(code int, v interface{}) error {
	c.response.Header().Set("Content-Type", "application/json")
	c.response.WriteHeader(code)
	return json.NewEncoder(c.response).Encode(v)
}

func (c *netHTTPContext) String(code int, s string) error {
	c.response.Header().Set("Content-Type", "text/plain")
	c.response.WriteHeader(code)
	_, err := io.WriteString(c.response, s)
	return err
}

func (c *netHTTPContext) Get(key string) interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store[key]
}

func (c *netHTTPContext) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = value
}
