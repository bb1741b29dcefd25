package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/x402hub/paygate/internal/domain"
	"github.com/x402hub/paygate/internal/httpserver/deps"
	"github.com/x402hub/paygate/internal/logger"
	"github.com/x402hub/paygate/internal/scheduler"
	"github.com/x402hub/paygate/internal/sources/patterns"
)

func adminDeps() deps.Deps {
	return deps.Deps{Logger: logger.New("error", false)}
}

func assertAPIError(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantSubstr string) {
	t.Helper()
	if w.Code != wantStatus {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, wantStatus, w.Body.String())
	}
	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json body: %v", err)
	}
	if body.Success {
		t.Errorf("success = true on an error response")
	}
	if !strings.Contains(body.Error, wantSubstr) {
		t.Errorf("error = %q, want substring %q", body.Error, wantSubstr)
	}
}

func TestCreateTenantValidation(t *testing.T) {
	d := adminDeps()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantErr    string
	}{
		{"invalid json", `{`, http.StatusBadRequest, "Invalid JSON body"},
		{"unknown field", `{"subdomain":"a","bogus":1}`, http.StatusBadRequest, "Invalid JSON body"},
		{"missing fields", `{"subdomain":"acme"}`, http.StatusBadRequest, "Missing required fields"},
		{"bad subdomain", `{"subdomain":"Bad_Sub!","name":"n","wallet_address":"0x1"}`, http.StatusBadRequest, "Subdomain may only contain"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/tenants", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			CreateTenant(d)(w, req)
			assertAPIError(t, w, tc.wantStatus, tc.wantErr)
		})
	}
}

func TestCreateRouteValidation(t *testing.T) {
	d := adminDeps()

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing fields", `{"tenant_id":"t-1"}`, "Missing required fields"},
		{"relative pattern", `{"tenant_id":"t-1","pattern":"premium/*","price_usd":"$0.10"}`, "Pattern must start with /"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/routes", strings.NewReader(tc.body))
			w := httptest.NewRecorder()
			CreateRoute(d)(w, req)
			assertAPIError(t, w, http.StatusBadRequest, tc.wantErr)
		})
	}
}

func TestListRoutesRequiresTenantID(t *testing.T) {
	d := adminDeps()

	req := httptest.NewRequest(http.MethodGet, "/api/routes", nil)
	w := httptest.NewRecorder()
	ListRoutes(d)(w, req)
	assertAPIError(t, w, http.StatusBadRequest, "Missing tenant_id")
}

func TestViewTenantSecretExposure(t *testing.T) {
	tn := &domain.Tenant{ID: "t-1", Subdomain: "acme", JWTSecret: "topsecret"}

	if got := viewTenant(tn, false).JWTSecret; got != "" {
		t.Errorf("secret leaked on read: %q", got)
	}
	if got := viewTenant(tn, true).JWTSecret; got != "topsecret" {
		t.Errorf("secret missing on creation view: %q", got)
	}
}

func TestGenerateSecret(t *testing.T) {
	a, err := generateSecret()
	if err != nil {
		t.Fatal(err)
	}
	b, err := generateSecret()
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 64 {
		t.Errorf("secret length = %d, want 64 hex chars", len(a))
	}
	if a == b {
		t.Errorf("two generated secrets are identical")
	}
}

func TestReloadWithoutPatternsFile(t *testing.T) {
	d := adminDeps()

	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	w := httptest.NewRecorder()
	Reload(d)(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestReloadReplacesRules(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "patterns.yaml")
	content := "patterns:\n  - pattern: /premium/*\n    price: $0.05\n"
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	set := patterns.NewSet()
	d := adminDeps()
	d.Patterns = set
	d.Reloader = scheduler.NewPatternsReloader(file, set, d.Logger, time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/reload", nil)
	w := httptest.NewRecorder()
	Reload(d)(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", w.Code, w.Body.String())
	}
	rules := set.Rules()
	if len(rules) != 1 || rules[0].Pattern != "/premium/*" {
		t.Errorf("rules = %+v", rules)
	}
}
