package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox publish outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxMetrics tracks the outbox publisher.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	latency *prometheus.HistogramVec
	batches prometheus.Histogram
}

// NewOutboxMetrics registers the publisher metrics; a nil registerer yields a
// no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox rows handled by the publisher, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "publish_lag_seconds",
			Help:      "Time from outbox commit to Pub/Sub acknowledgement.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 30, 120, 600, 3600},
		}, []string{"event_type"}),
		batches: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "batch_rows",
			Help:      "Rows claimed per publisher batch.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
	}
	reg.MustRegister(m.events, m.latency, m.batches)
	return m
}

// ObserveEvent counts one row. Lag is recorded only for published rows.
func (m *OutboxMetrics) ObserveEvent(eventType, outcome string, createdAt, now time.Time) {
	if m == nil || m.events == nil {
		return
	}
	eventType = normalizeLabel(eventType)
	m.events.WithLabelValues(eventType, outcome).Inc()
	if outcome == OutboxPublished && !createdAt.IsZero() {
		m.latency.WithLabelValues(eventType).Observe(now.Sub(createdAt).Seconds())
	}
}

func (m *OutboxMetrics) ObserveBatch(rows int) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.Observe(float64(rows))
}
