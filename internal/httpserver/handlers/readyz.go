package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/x402hub/paygate/internal/httpserver/deps"
	"github.com/x402hub/paygate/internal/logger"
)

type readyzResponse struct {
	Ready  bool            `json:"ready"`
	Checks map[string]bool `json:"checks,omitempty"`
}

// Readyz reports whether the backing stores answer. A single-tenant setup
// without redis or postgres is always ready.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]bool{}
		ready := true

		if d.RedisClient != nil {
			ok := d.RedisClient.Ping(ctx).Err() == nil
			checks["redis"] = ok
			if !ok {
				ready = false
			}
		}
		if d.PG != nil {
			err := d.PG.Ping(ctx)
			checks["postgres"] = err == nil
			if err != nil {
				ready = false
				d.Logger.Warn("readiness: postgres ping failed", logger.Error(err))
			}
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, readyzResponse{Ready: ready, Checks: checks})
	}
}
