package sse

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors shared by every broadcaster of a
// process. Collectors are labeled with the broadcaster name.
type Metrics struct {
	subscribers   *prometheus.GaugeVec
	messages      *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	writeFailures *prometheus.CounterVec
	replayed      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg when reg is not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sse_subscribers",
			Help: "Current number of live SSE subscribers",
		}, []string{"broadcaster"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sse_messages_total",
			Help: "Total number of messages broadcast",
		}, []string{"broadcaster", "kind"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sse_deliveries_total",
			Help: "Total number of messages handed to subscribers",
		}, []string{"broadcaster"}),
		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sse_write_failures_total",
			Help: "Total number of failed subscriber writes",
		}, []string{"broadcaster"}),
		replayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sse_replayed_messages_total",
			Help: "Total number of history messages replayed on reconnect",
		}, []string{"broadcaster"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.subscribers, m.messages, m.deliveries, m.writeFailures, m.replayed}
}

func (m *Metrics) setSubscribers(name string, count int) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(name).Set(float64(count))
}

func (m *Metrics) observePublish(name string, commentOnly bool, delivered, failed int) {
	if m == nil {
		return
	}
	kind := "event"
	if commentOnly {
		kind = "comment"
	}
	m.messages.WithLabelValues(name, kind).Inc()
	m.deliveries.WithLabelValues(name).Add(float64(delivered))
	if failed > 0 {
		m.writeFailures.WithLabelValues(name).Add(float64(failed))
	}
}

func (m *Metrics) observeReplay(name string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.replayed.WithLabelValues(name).Add(float64(count))
}
