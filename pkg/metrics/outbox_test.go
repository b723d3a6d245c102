package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestOutboxMetricsExportsCountersByTopic(t *testing.T) {
	reg := prometheus.NewRegistry()
	outboxMetrics := NewOutboxMetrics(reg)
	topic := "fiber-events"
	outboxMetrics.IncPublished(topic)
	outboxMetrics.IncPublished(topic)
	outboxMetrics.IncRetried(topic)
	outboxMetrics.IncTerminal(topic)
	outboxMetrics.ObservePublishDuration(120 * time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "outbox_events_published", "topic", topic); err != nil {
		t.Fatalf("fetch published: %v", err)
	} else if got != 2 {
		t.Fatalf("expected published=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "outbox_events_retried", "topic", topic); err != nil {
		t.Fatalf("fetch retried: %v", err)
	} else if got != 1 {
		t.Fatalf("expected retried=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "outbox_events_failed", "topic", topic); err != nil {
		t.Fatalf("fetch failed: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failed=1, got %f", got)
	}

	mf := findMetricFamily(mfs, "outbox_publish_duration_seconds")
	if mf == nil {
		t.Fatal("publish duration histogram not found")
	}
	if sum := mf.GetMetric()[0].GetHistogram().GetSampleSum(); sum <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", sum)
	}
}

func TestOutboxMetricsExportsBacklogGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	outboxMetrics := NewOutboxMetrics(reg)
	outboxMetrics.SetPending(12)
	outboxMetrics.SetFailed(3)
	outboxMetrics.SetOldestPendingAge(90 * time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got := fetchGaugeValue(t, mfs, "outbox_pending_events"); got != 12 {
		t.Fatalf("expected pending=12, got %f", got)
	}
	if got := fetchGaugeValue(t, mfs, "outbox_failed_events"); got != 3 {
		t.Fatalf("expected failed=3, got %f", got)
	}
	if got := fetchGaugeValue(t, mfs, "outbox_oldest_pending_age_seconds"); got != 90 {
		t.Fatalf("expected age=90, got %f", got)
	}
}

func TestOutboxMetricsNilRegistererIsNoop(t *testing.T) {
	outboxMetrics := NewOutboxMetrics(nil)
	outboxMetrics.IncPublished("fiber-events")
	outboxMetrics.SetPending(1)
	outboxMetrics.ObservePublishDuration(time.Second)
}

func fetchGaugeValue(t *testing.T, mfs []*dto.MetricFamily, name string) float64 {
	t.Helper()
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		t.Fatalf("gauge %q not found", name)
	}
	return mf.GetMetric()[0].GetGauge().GetValue()
}
