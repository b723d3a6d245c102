package ops

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	pkgerrors "github.com/fabricmgmt/eventing-backend/pkg/errors"
	"github.com/fabricmgmt/eventing-backend/pkg/logger"
)

type outboxStatsResponse struct {
	Pending       int64      `json:"pending"`
	Failed        int64      `json:"failed"`
	OldestPending *time.Time `json:"oldestPending,omitempty"`
}

func outboxStats(admin outboxAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		stats, err := admin.PendingStats(ctx)
		if err != nil {
			writeError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "outbox stats unavailable"))
			return
		}
		writeSuccess(w, outboxStatsResponse{
			Pending:       stats.Pending,
			Failed:        stats.Failed,
			OldestPending: stats.OldestPending,
		})
	}
}

type replayRequest struct {
	Ceiling int `json:"ceiling"`
}

type replayResponse struct {
	Replayed int64 `json:"replayed"`
}

// outboxReplay requeues failed events on demand, ahead of the scheduled
// replay sweep.
func outboxReplay(admin outboxAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req replayRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid replay request"))
				return
			}
		}
		if req.Ceiling < 0 {
			writeError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "ceiling must be non-negative"))
			return
		}

		replayed, err := admin.ResetFailed(ctx, req.Ceiling)
		if err != nil {
			writeError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replay failed"))
			return
		}
		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{
				"rows_replayed": replayed,
				"ceiling":       req.Ceiling,
			})
			logg.Info(logCtx, "manual replay triggered")
		}
		writeSuccess(w, replayResponse{Replayed: replayed})
	}
}

func pkgErrDependency(name string, err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s unavailable", name))
}
