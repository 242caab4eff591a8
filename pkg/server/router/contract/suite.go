// Package contract holds the conformance suite every router adapter must pass.
package contract

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nimburion/ssebroadcast/pkg/server/router"
)

type request struct {
	method      string
	target      string
	body        string
	contentType string
}

type routeCase struct {
	name       string
	setup      func(t *testing.T, r router.Router)
	req        request
	wantStatus int
	wantBody   string
	wantHeader map[string]string
}

func stringHandler(body string) router.HandlerFunc {
	return func(c router.Context) error { return c.String(http.StatusOK, body) }
}

func storeMiddleware(key, value string) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			c.Set(key, value)
			return next(c)
		}
	}
}

func traceMiddleware(name string) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			trail, _ := c.Get("trail").(string)
			c.Set("trail", trail+name+">")
			return next(c)
		}
	}
}

func routeCases() []routeCase {
	return []routeCase{
		{
			name:       "get route",
			setup:      func(t *testing.T, r router.Router) { r.GET("/events", stringHandler("events")) },
			req:        request{method: http.MethodGet, target: "/events"},
			wantStatus: http.StatusOK,
			wantBody:   "events",
		},
		{
			name:       "post route",
			setup:      func(t *testing.T, r router.Router) { r.POST("/publish", stringHandler("published")) },
			req:        request{method: http.MethodPost, target: "/publish"},
			wantStatus: http.StatusOK,
			wantBody:   "published",
		},
		{
			name:       "unknown route",
			setup:      func(t *testing.T, r router.Router) { r.GET("/events", stringHandler("events")) },
			req:        request{method: http.MethodGet, target: "/missing"},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "nested groups",
			setup: func(t *testing.T, r router.Router) {
				r.Group("/api").Group("/v1").GET("/clients", stringHandler("nested"))
			},
			req:        request{method: http.MethodGet, target: "/api/v1/clients"},
			wantStatus: http.StatusOK,
			wantBody:   "nested",
		},
		{
			name: "group middleware",
			setup: func(t *testing.T, r router.Router) {
				g := r.Group("/admin", storeMiddleware("scope", "admin"))
				g.GET("/whoami", func(c router.Context) error {
					return c.String(http.StatusOK, c.Get("scope").(string))
				})
			},
			req:        request{method: http.MethodGet, target: "/admin/whoami"},
			wantStatus: http.StatusOK,
			wantBody:   "admin",
		},
		{
			name: "global before route middleware",
			setup: func(t *testing.T, r router.Router) {
				r.Use(traceMiddleware("global"))
				r.GET("/trail", func(c router.Context) error {
					return c.String(http.StatusOK, c.Get("trail").(string)+"handler")
				}, traceMiddleware("route"))
			},
			req:        request{method: http.MethodGet, target: "/trail"},
			wantStatus: http.StatusOK,
			wantBody:   "global>route>handler",
		},
		{
			name: "middleware error short-circuits",
			setup: func(t *testing.T, r router.Router) {
				r.GET("/blocked", func(c router.Context) error {
					t.Error("handler must not run")
					return nil
				}, func(router.HandlerFunc) router.HandlerFunc {
					return func(router.Context) error { return errors.New("blocked") }
				})
			},
			req:        request{method: http.MethodGet, target: "/blocked"},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "path params",
			setup: func(t *testing.T, r router.Router) {
				r.GET("/streams/:stream/topics/:topic", func(c router.Context) error {
					return c.String(http.StatusOK, c.Param("stream")+":"+c.Param("topic")+":"+c.Param("missing"))
				})
			},
			req:        request{method: http.MethodGet, target: "/streams/events/topics/sports"},
			wantStatus: http.StatusOK,
			wantBody:   "events:sports:",
		},
		{
			name: "first query value",
			setup: func(t *testing.T, r router.Router) {
				r.GET("/events", func(c router.Context) error { return c.String(http.StatusOK, c.Query("topic")) })
			},
			req:        request{method: http.MethodGet, target: "/events?topic=a&topic=b"},
			wantStatus: http.StatusOK,
			wantBody:   "a",
		},
		{
			name:       "bind json",
			setup:      bindRoute,
			req:        request{method: http.MethodPost, target: "/bind", body: `{"data":"hello"}`, contentType: "application/json"},
			wantStatus: http.StatusOK,
			wantBody:   "hello",
		},
		{
			name:       "bind malformed json",
			setup:      bindRoute,
			req:        request{method: http.MethodPost, target: "/bind", body: "{", contentType: "application/json"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bind empty body",
			setup:      bindRoute,
			req:        request{method: http.MethodPost, target: "/bind", contentType: "application/json"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "bind wrong content type",
			setup:      bindRoute,
			req:        request{method: http.MethodPost, target: "/bind", body: "data=x", contentType: "text/plain"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "json response",
			setup: func(t *testing.T, r router.Router) {
				r.GET("/json", func(c router.Context) error {
					return c.JSON(http.StatusAccepted, map[string]int{"delivered": 2})
				})
			},
			req:        request{method: http.MethodGet, target: "/json"},
			wantStatus: http.StatusAccepted,
			wantBody:   "{\"delivered\":2}\n",
			wantHeader: map[string]string{"Content-Type": "application/json"},
		},
		{
			name: "handler error after response keeps response",
			setup: func(t *testing.T, r router.Router) {
				r.GET("/late", func(c router.Context) error {
					if err := c.String(http.StatusBadRequest, "bad"); err != nil {
						return err
					}
					return errors.New("ignored")
				})
			},
			req:        request{method: http.MethodGet, target: "/late"},
			wantStatus: http.StatusBadRequest,
			wantBody:   "bad",
		},
		{
			name: "context storage",
			setup: func(t *testing.T, r router.Router) {
				r.GET("/store", func(c router.Context) error {
					if c.Get("missing") != nil {
						t.Error("missing key must be nil")
					}
					c.Set("n", 7)
					if c.Get("n") != 7 {
						t.Error("stored value not returned")
					}
					return c.String(http.StatusOK, "ok")
				})
			},
			req:        request{method: http.MethodGet, target: "/store"},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name: "response writer state",
			setup: func(t *testing.T, r router.Router) {
				r.GET("/state", func(c router.Context) error {
					rw := c.Response()
					if rw.Written() {
						t.Error("Written must be false before writes")
					}
					rw.WriteHeader(http.StatusCreated)
					if !rw.Written() || rw.Status() != http.StatusCreated {
						t.Errorf("unexpected writer state written=%v status=%d", rw.Written(), rw.Status())
					}
					return nil
				})
			},
			req:        request{method: http.MethodGet, target: "/state"},
			wantStatus: http.StatusCreated,
		},
		{
			name: "wrapped http handler",
			setup: func(t *testing.T, r router.Router) {
				r.GET("/plain", router.FromHTTPHandler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
					w.WriteHeader(http.StatusNoContent)
				})))
			},
			req:        request{method: http.MethodGet, target: "/plain"},
			wantStatus: http.StatusNoContent,
		},
	}
}

func bindRoute(t *testing.T, r router.Router) {
	r.POST("/bind", func(c router.Context) error {
		var payload struct {
			Data string `json:"data"`
		}
		if err := c.Bind(&payload); err != nil {
			return c.String(http.StatusBadRequest, "bind-error")
		}
		return c.String(http.StatusOK, payload.Data)
	})
}

// TestRouterContract runs the shared router conformance suite.
func TestRouterContract(t *testing.T, createRouter func() router.Router) {
	t.Helper()

	for _, tc := range routeCases() {
		t.Run(tc.name, func(t *testing.T) {
			r := createRouter()
			tc.setup(t, r)
			res := perform(r, tc.req)

			if res.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", res.Code, tc.wantStatus, res.Body.String())
			}
			if tc.wantBody != "" && res.Body.String() != tc.wantBody {
				t.Fatalf("body = %q, want %q", res.Body.String(), tc.wantBody)
			}
			for key, want := range tc.wantHeader {
				if got := res.Header().Get(key); !strings.Contains(got, want) {
					t.Fatalf("header %s = %q, want %q", key, got, want)
				}
			}
		})
	}

	t.Run("streaming", func(t *testing.T) {
		r := createRouter()
		r.GET("/stream", func(c router.Context) error {
			flusher, ok := c.Response().(http.Flusher)
			if !ok {
				t.Fatal("response writer must implement http.Flusher")
			}
			if _, ok := c.Response().(interface{ Unwrap() http.ResponseWriter }); !ok {
				t.Fatal("response writer must expose Unwrap for http.ResponseController")
			}
			c.Response().Header().Set("Content-Type", "text/event-stream")
			c.Response().WriteHeader(http.StatusOK)
			if _, err := io.WriteString(c.Response(), "data: one\n\n"); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		})

		res := perform(r, request{method: http.MethodGet, target: "/stream"})
		if !res.Flushed {
			t.Fatal("expected the stream to be flushed")
		}
		if res.Body.String() != "data: one\n\n" {
			t.Fatalf("unexpected stream body %q", res.Body.String())
		}
		if got := res.Header().Get("Content-Type"); got != "text/event-stream" {
			t.Fatalf("expected event-stream content type, got %q", got)
		}
	})
}

func perform(r router.Router, req request) *httptest.ResponseRecorder {
	var body io.Reader = http.NoBody
	if req.body != "" {
		body = strings.NewReader(req.body)
	}
	httpReq := httptest.NewRequest(req.method, req.target, body)
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httpReq)
	return w
}
