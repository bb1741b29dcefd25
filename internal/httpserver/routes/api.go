package routes

import (
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/x402hub/paygate/internal/httpserver/deps"
	"github.com/x402hub/paygate/internal/httpserver/handlers"
	"github.com/x402hub/paygate/internal/httpserver/mw"
)

func init() { Register(registerAPI) }

// registerAPI mounts the management API. It is host-gated, IP-gated and
// rate-limited; it never goes through the proxy pipeline.
func registerAPI(r chi.Router, d deps.Deps) {
	if d.PG == nil {
		// Single-tenant mode has no durable store to manage.
		return
	}

	r.Route("/api", func(api chi.Router) {
		api.Use(mw.EnforceHost(d.PlatformHosts, d.Logger))
		api.Use(mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger))
		api.Use(mw.RateLimit(mw.RateLimitConfig{
			Burst:             20,
			RefillPerIPPerMin: 60,
			MaxEntries:        10000,
			SweepInterval:     time.Minute,
			IdleTTL:           15 * time.Minute,
			TrustProxy:        d.TrustProxy,
		}))

		api.Route("/tenants", func(t chi.Router) {
			t.Get("/", handlers.ListTenants(d))
			t.Post("/", handlers.CreateTenant(d))
			t.Get("/{id}", handlers.GetTenant(d))
			t.Patch("/{id}", handlers.UpdateTenant(d))
			t.Delete("/{id}", handlers.DeleteTenant(d))
		})

		api.Route("/routes", func(rt chi.Router) {
			rt.Get("/", handlers.ListRoutes(d))
			rt.Post("/", handlers.CreateRoute(d))
			rt.Get("/{id}", handlers.GetRoute(d))
			rt.Patch("/{id}", handlers.UpdateRoute(d))
			rt.Delete("/{id}", handlers.DeleteRoute(d))
		})

		api.Route("/stats", func(st chi.Router) {
			st.Get("/", handlers.GetStats(d))
			st.Get("/revenue", handlers.GetRevenue(d))
		})
	})
}
