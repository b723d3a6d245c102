package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fabricmgmt/eventing-backend/pkg/config"
	"github.com/fabricmgmt/eventing-backend/pkg/logger"
	"github.com/fabricmgmt/eventing-backend/pkg/outbox"
)

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

type fakeOutboxAdmin struct {
	stats       outbox.Stats
	statsErr    error
	lastCeiling int
	replayed    int64
	replayErr   error
}

func (f *fakeOutboxAdmin) PendingStats(context.Context) (outbox.Stats, error) {
	if f.statsErr != nil {
		return outbox.Stats{}, f.statsErr
	}
	return f.stats, nil
}

func (f *fakeOutboxAdmin) ResetFailed(_ context.Context, ceiling int) (int64, error) {
	f.lastCeiling = ceiling
	if f.replayErr != nil {
		return 0, f.replayErr
	}
	return f.replayed, nil
}

func newTestRouter(t *testing.T, params RouterParams) http.Handler {
	t.Helper()
	if params.Config == nil {
		params.Config = &config.Config{App: config.AppConfig{Env: "test"}}
	}
	if params.Logger == nil {
		params.Logger = logger.New(logger.Options{ServiceName: "ops-test"})
	}
	return NewRouter(params)
}

func TestHealthLiveReturnsOK(t *testing.T) {
	handler := newTestRouter(t, RouterParams{})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Fabric-Env"); got != "test" {
		t.Fatalf("expected env header, got %q", got)
	}
}

func TestHealthReadyChecksDependencies(t *testing.T) {
	handler := newTestRouter(t, RouterParams{
		DB:     fakePinger{},
		Redis:  fakePinger{},
		PubSub: fakePinger{},
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthReadyFailsWhenDependencyDown(t *testing.T) {
	handler := newTestRouter(t, RouterParams{
		DB:    fakePinger{},
		Redis: fakePinger{err: errors.New("connection refused")},
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "DEPENDENCY_ERROR") {
		t.Fatalf("expected dependency error code, got %s", rec.Body.String())
	}
}

func TestOutboxStatsEndpoint(t *testing.T) {
	oldest := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	admin := &fakeOutboxAdmin{stats: outbox.Stats{Pending: 5, Failed: 1, OldestPending: &oldest}}
	handler := newTestRouter(t, RouterParams{Outbox: admin})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ops/outbox/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Data outboxStatsResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data.Pending != 5 || body.Data.Failed != 1 {
		t.Fatalf("unexpected stats %+v", body.Data)
	}
	if body.Data.OldestPending == nil || !body.Data.OldestPending.Equal(oldest) {
		t.Fatalf("unexpected oldest pending %v", body.Data.OldestPending)
	}
}

func TestOutboxReplayEndpoint(t *testing.T) {
	admin := &fakeOutboxAdmin{replayed: 4}
	handler := newTestRouter(t, RouterParams{Outbox: admin})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ops/outbox/replay", strings.NewReader(`{"ceiling":10}`))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if admin.lastCeiling != 10 {
		t.Fatalf("expected ceiling 10, got %d", admin.lastCeiling)
	}
	var body struct {
		Data replayResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data.Replayed != 4 {
		t.Fatalf("expected 4 replayed, got %d", body.Data.Replayed)
	}
}

func TestOutboxReplayRejectsNegativeCeiling(t *testing.T) {
	admin := &fakeOutboxAdmin{}
	handler := newTestRouter(t, RouterParams{Outbox: admin})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/ops/outbox/replay", strings.NewReader(`{"ceiling":-1}`))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "outbox_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	handler := newTestRouter(t, RouterParams{Registry: reg})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "outbox_test_total 1") {
		t.Fatalf("expected counter exposition, got %s", rec.Body.String())
	}
}
