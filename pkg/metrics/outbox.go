package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics records publishing pipeline activity.
type OutboxMetrics struct {
	published        *prometheus.CounterVec
	retried          *prometheus.CounterVec
	terminal         *prometheus.CounterVec
	publishDuration  prometheus.Histogram
	pending          prometheus.Gauge
	failed           prometheus.Gauge
	oldestPendingAge prometheus.Gauge
}

// NewOutboxMetrics registers the outbox pipeline metrics on the provided registerer.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_published",
		Help: "Events successfully published to the broker.",
	}, []string{"topic"})
	retried := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_retried",
		Help: "Publish attempts that failed and were scheduled for retry.",
	}, []string{"topic"})
	terminal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_failed",
		Help: "Events marked failed after exhausting retries.",
	}, []string{"topic"})
	publishDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "outbox_publish_duration_seconds",
		Help:    "Duration of individual broker publish calls in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_pending_events",
		Help: "Events waiting to be published.",
	})
	failed := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_failed_events",
		Help: "Events currently in the failed state.",
	})
	oldestPendingAge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "outbox_oldest_pending_age_seconds",
		Help: "Age of the oldest pending event in seconds.",
	})
	reg.MustRegister(published, retried, terminal, publishDuration, pending, failed, oldestPendingAge)
	return &OutboxMetrics{
		published:        published,
		retried:          retried,
		terminal:         terminal,
		publishDuration:  publishDuration,
		pending:          pending,
		failed:           failed,
		oldestPendingAge: oldestPendingAge,
	}
}

// IncPublished increments the published counter for the destination topic.
func (o *OutboxMetrics) IncPublished(topic string) {
	if o == nil || o.published == nil {
		return
	}
	o.published.WithLabelValues(normalizeLabel(topic)).Inc()
}

// IncRetried increments the retry counter for the destination topic.
func (o *OutboxMetrics) IncRetried(topic string) {
	if o == nil || o.retried == nil {
		return
	}
	o.retried.WithLabelValues(normalizeLabel(topic)).Inc()
}

// IncTerminal increments the terminal-failure counter for the destination topic.
func (o *OutboxMetrics) IncTerminal(topic string) {
	if o == nil || o.terminal == nil {
		return
	}
	o.terminal.WithLabelValues(normalizeLabel(topic)).Inc()
}

// ObservePublishDuration records the duration of a single publish call.
func (o *OutboxMetrics) ObservePublishDuration(duration time.Duration) {
	if o == nil || o.publishDuration == nil {
		return
	}
	o.publishDuration.Observe(duration.Seconds())
}

// SetPending records the current number of pending events.
func (o *OutboxMetrics) SetPending(count int64) {
	if o == nil || o.pending == nil {
		return
	}
	o.pending.Set(float64(count))
}

// SetFailed records the current number of failed events.
func (o *OutboxMetrics) SetFailed(count int64) {
	if o == nil || o.failed == nil {
		return
	}
	o.failed.Set(float64(count))
}

// SetOldestPendingAge records the age of the oldest pending event.
func (o *OutboxMetrics) SetOldestPendingAge(age time.Duration) {
	if o == nil || o.oldestPendingAge == nil {
		return
	}
	o.oldestPendingAge.Set(age.Seconds())
}
