package ops

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fabricmgmt/eventing-backend/pkg/config"
	"github.com/fabricmgmt/eventing-backend/pkg/logger"
	"github.com/fabricmgmt/eventing-backend/pkg/outbox"
)

// Pinger is the readiness surface a dependency exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

type outboxAdmin interface {
	PendingStats(ctx context.Context) (outbox.Stats, error)
	ResetFailed(ctx context.Context, ceiling int) (int64, error)
}

// RouterParams wire the operational HTTP surface.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       Pinger
	Redis    Pinger
	PubSub   Pinger
	Outbox   outboxAdmin
	Registry *prometheus.Registry
}

// NewRouter builds the ops handler: health probes, Prometheus metrics,
// and the outbox admin endpoints.
func NewRouter(params RouterParams) http.Handler {
	logg := params.Logger
	r := chi.NewRouter()
	r.Use(
		recoverer(logg),
		requestID(logg),
		logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", healthLive(params.Config))
		r.Get("/ready", healthReady(params))
	})

	if params.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(params.Registry, promhttp.HandlerOpts{}))
	}

	if params.Outbox != nil {
		r.Route("/ops/outbox", func(r chi.Router) {
			r.Get("/stats", outboxStats(params.Outbox, logg))
			r.Post("/replay", outboxReplay(params.Outbox, logg))
		})
	}

	return r
}

func healthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if cfg != nil {
			w.Header().Set("X-Fabric-Env", cfg.App.Env)
		}
		writeSuccess(w, map[string]string{"status": "ok"})
	}
}

func healthReady(params RouterParams) http.HandlerFunc {
	checks := []struct {
		name   string
		pinger Pinger
	}{
		{"database", params.DB},
		{"redis", params.Redis},
		{"pubsub", params.PubSub},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		for _, check := range checks {
			if check.pinger == nil {
				continue
			}
			if err := check.pinger.Ping(ctx); err != nil {
				writeError(ctx, params.Logger, w,
					pkgErrDependency(check.name, err))
				return
			}
		}
		if params.Config != nil {
			w.Header().Set("X-Fabric-Env", params.Config.App.Env)
		}
		writeSuccess(w, map[string]string{"status": "ready"})
	}
}
