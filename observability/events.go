package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type eventMetrics struct {
	published   *prometheus.CounterVec
	subscribers prometheus.Gauge
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the registry tracking committed events and stream clients.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "billfactor",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Committed events published to the feed, by event type.",
			}, []string{"type"}),
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "billfactor",
				Subsystem: "events",
				Name:      "stream_subscribers",
				Help:      "Currently connected event stream clients.",
			}),
		}
		prometheus.MustRegister(eventRegistry.published, eventRegistry.subscribers)
	})
	return eventRegistry
}

// RecordPublished increments the counter for the event type.
func (m *eventMetrics) RecordPublished(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.published.WithLabelValues(normalized).Inc()
}

// SetSubscribers reports the number of connected stream clients.
func (m *eventMetrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}
