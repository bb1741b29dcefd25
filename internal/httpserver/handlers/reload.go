package handlers

import (
	"net/http"

	"github.com/x402hub/paygate/internal/httpserver/deps"
	"github.com/x402hub/paygate/internal/logger"
)

// Reload triggers an immediate reload of the protected-patterns file.
func Reload(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Reloader == nil {
			writeError(w, http.StatusNotFound, "No patterns file configured")
			return
		}

		if err := d.Reloader.Reload(r.Context()); err != nil {
			d.Logger.Error("manual patterns reload failed",
				logger.String("remote_ip", r.RemoteAddr), logger.Error(err))
			writeError(w, http.StatusInternalServerError, "Reload failed")
			return
		}

		d.Logger.Info("manual patterns reload triggered via endpoint",
			logger.String("remote_ip", r.RemoteAddr))
		w.WriteHeader(http.StatusAccepted)
		if _, err := w.Write([]byte("✅ Reload triggered successfully\n")); err != nil {
			d.Logger.Debug("failed to write response", logger.Error(err))
		}
	}
}
