package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/x402hub/paygate/internal/domain"
	"github.com/x402hub/paygate/internal/gate"
	"github.com/x402hub/paygate/internal/httpserver/deps"
	"github.com/x402hub/paygate/internal/logger"
	"github.com/x402hub/paygate/internal/utils"
)

// Pipeline is the catch-all proxy handler: resolve tenant, classify the
// path, run the payment gate on protected rules, forward to the origin and
// record usage. Management routes are registered separately and never reach
// it.
func Pipeline(d deps.Deps) http.HandlerFunc {
	now := d.TimeNow
	if now == nil {
		now = time.Now
	}

	return func(w http.ResponseWriter, r *http.Request) {
		start := now()
		path := r.URL.Path

		rc, cfg, ok := buildRouteContext(w, r, d)
		if !ok {
			return
		}

		// Built-in public endpoints answer directly, even for resolved
		// tenants, and are never recorded.
		switch path {
		case domain.BuiltinHealthPath:
			Healthz(d)(w, r)
			return
		case domain.BuiltinConfigPath:
			BuiltinConfig(d)(w, r)
			return
		}

		if !rc.Protected() {
			status, err := d.Forwarder.Forward(w, r, rc, nil)
			if err != nil {
				status = failForward(w, d, err, status)
			}
			recordUsage(d, cfg, rc, r, status, false, start)
			return
		}

		dec, err := d.Gate.Check(r.Context(), r, rc)
		if err != nil {
			if errors.Is(err, gate.ErrMisconfigured) {
				writeError(w, http.StatusInternalServerError,
					"Server misconfigured: JWT_SECRET not set. See README for setup instructions.")
				return
			}
			d.Logger.Error("payment gate failed",
				logger.String("path", path), logger.Error(err))
			writeError(w, http.StatusBadGateway, "Payment verification failed")
			return
		}

		if !dec.Allow {
			writeGateResponse(w, dec)
			return
		}

		fresh := dec.FreshToken != ""

		if path == domain.BuiltinProtectedPath {
			// Probe endpoint: served directly, cookie set before the
			// body is written.
			if fresh {
				http.SetCookie(w, gate.CredentialCookie(dec.FreshToken, d.Gate.CredentialTTL()))
			}
			BuiltinProtected()(w, r)
			return
		}

		var cookies []*http.Cookie
		if fresh {
			cookies = []*http.Cookie{gate.CredentialCookie(dec.FreshToken, d.Gate.CredentialTTL())}
		}

		status, err := d.Forwarder.Forward(w, r, rc, cookies)
		if err != nil {
			status = failForward(w, d, err, status)
		}
		recordUsage(d, cfg, rc, r, status, fresh, start)
	}
}

// buildRouteContext resolves the tenant (or falls back to single-tenant
// config) and matches the path against the rules. It writes the error
// response itself and returns ok=false when the request is already answered.
func buildRouteContext(w http.ResponseWriter, r *http.Request, d deps.Deps) (*domain.RouteContext, *domain.TenantConfig, bool) {
	subdomain := domain.ExtractSubdomain(r.Host, d.LocalSuffixes)

	rc := &domain.RouteContext{
		Subdomain:      subdomain,
		PayTo:          d.PayTo,
		Network:        d.Network,
		FacilitatorURL: d.FacilitatorURL,
		JWTSecret:      d.JWTSecret,
		Resource:       requestScheme(r) + "://" + r.Host + r.URL.Path,
	}

	var cfg *domain.TenantConfig
	var rules []domain.RouteRule

	if subdomain != "" && d.Resolver != nil {
		resolved, err := d.Resolver.Resolve(r.Context(), subdomain)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeError(w, http.StatusNotFound, "Tenant not found: "+subdomain)
				return nil, nil, false
			}
			d.Logger.Error("tenant resolution failed",
				logger.String("subdomain", subdomain), logger.Error(err))
			writeError(w, http.StatusInternalServerError, "Tenant resolution failed")
			return nil, nil, false
		}

		cfg = resolved
		rc.Tenant = &cfg.Tenant
		rc.PayTo = cfg.Tenant.WalletAddress
		rc.Network = cfg.Tenant.Network
		rc.JWTSecret = cfg.Tenant.JWTSecret
		if cfg.Tenant.FacilitatorURL != "" {
			rc.FacilitatorURL = cfg.Tenant.FacilitatorURL
		}
		rules = domain.RulesFromRoutes(cfg.Routes)
	} else if d.Patterns != nil {
		rules = d.Patterns.Rules()
	}

	rc.Rule = domain.FindRouteRule(r.URL.Path, rules)
	return rc, cfg, true
}

func writeGateResponse(w http.ResponseWriter, dec *gate.Decision) {
	if dec.Response == nil {
		writeError(w, http.StatusPaymentRequired, "Payment required")
		return
	}
	for k, vv := range dec.Response.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(dec.Response.Status)
	_, _ = w.Write(dec.Response.Body)
}

// failForward answers a forwarding error. When the origin response already
// started, nothing more can be written; the observed status is kept for the
// usage log.
func failForward(w http.ResponseWriter, d deps.Deps, err error, status int) int {
	d.Logger.Error("origin forward failed", logger.Error(err))
	if status == 0 {
		writeError(w, http.StatusBadGateway, "Origin unreachable")
		return http.StatusBadGateway
	}
	return status
}

func recordUsage(d deps.Deps, cfg *domain.TenantConfig, rc *domain.RouteContext, r *http.Request, status int, fresh bool, start time.Time) {
	// Usage is recorded per tenant; single-tenant mode has nothing to
	// attribute it to.
	if cfg == nil || d.Recorder == nil {
		return
	}

	routeID := ""
	if rc.Rule != nil {
		routeID = rc.Rule.RouteID
	}

	d.Recorder.Record(&domain.UsageLog{
		TenantID:        cfg.Tenant.ID,
		RouteID:         routeID,
		Path:            r.URL.Path,
		Method:          r.Method,
		StatusCode:      status,
		PaymentVerified: fresh,
		ClientIP:        utils.ClientIP(r, d.TrustProxy),
		UserAgent:       r.UserAgent(),
		ResponseTimeMS:  time.Since(start).Milliseconds(),
	})
}

func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
