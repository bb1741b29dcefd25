package handlers

import (
	"net/http"
	"time"

	"github.com/x402hub/paygate/internal/httpserver/deps"
)

type builtinConfigResponse struct {
	Network           string   `json:"network"`
	PayTo             string   `json:"payTo,omitempty"`
	HasOriginURL      bool     `json:"hasOriginUrl"`
	HasOriginService  bool     `json:"hasOriginService"`
	ProtectedPatterns []string `json:"protectedPatterns"`
}

// BuiltinConfig shows the effective single-tenant configuration without
// exposing secrets. Useful for verifying a deployment.
func BuiltinConfig(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var pats []string
		if d.Patterns != nil {
			for _, rule := range d.Patterns.Rules() {
				pats = append(pats, rule.Pattern)
			}
		}
		if pats == nil {
			pats = []string{}
		}

		writeJSON(w, http.StatusOK, builtinConfigResponse{
			Network:           d.Network,
			PayTo:             redactAddress(d.PayTo),
			HasOriginURL:      d.OriginURL != "",
			HasOriginService:  d.OriginService != "",
			ProtectedPatterns: pats,
		})
	}
}

// BuiltinProtected serves the always-priced probe endpoint. It only runs
// after the gate granted access; the content is served directly, never
// proxied.
func BuiltinProtected() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"message":   "Premium content accessed!",
			"timestamp": time.Now().UnixMilli(),
			"note":      "This endpoint always requires payment or valid authentication cookie",
		})
	}
}

// redactAddress keeps only the last 6 characters of a payee address.
func redactAddress(addr string) string {
	if addr == "" {
		return ""
	}
	if len(addr) <= 6 {
		return "***"
	}
	return "***" + addr[len(addr)-6:]
}
