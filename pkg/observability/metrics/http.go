package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics tracks request duration, request count and in-flight requests.
// Long-lived event streams stay in flight until the client disconnects.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
	requests *prometheus.CounterVec
	inFlight prometheus.Gauge
}

// NewHTTPMetrics creates the HTTP collectors and registers them on reg.
func NewHTTPMetrics(reg prometheus.Registerer) (*HTTPMetrics, error) {
	m := &HTTPMetrics{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		}),
	}
	for _, c := range []prometheus.Collector{m.duration, m.requests, m.inFlight} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Record updates the duration histogram and request counter.
func (m *HTTPMetrics) Record(method, path string, status int, duration time.Duration) {
	statusStr := strconv.Itoa(status)
	m.duration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
	m.requests.WithLabelValues(method, path, statusStr).Inc()
}

// IncInFlight increments the in-flight requests gauge.
func (m *HTTPMetrics) IncInFlight() { m.inFlight.Inc() }

// DecInFlight decrements the in-flight requests gauge.
func (m *HTTPMetrics) DecInFlight() { m.inFlight.Dec() }
