package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/x402hub/paygate/internal/httpserver/deps"
	"github.com/x402hub/paygate/internal/httpserver/handlers"
)

func init() { Register(registerPipeline) }

// registerPipeline mounts the catch-all proxy pipeline. Explicit routes
// (/healthz, /readyz, /api) take precedence in chi regardless of
// registration order.
func registerPipeline(r chi.Router, d deps.Deps) {
	r.Handle("/*", handlers.Pipeline(d))
}
