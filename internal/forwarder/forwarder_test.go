package forwarder

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/x402hub/paygate/internal/bindings"
	"github.com/x402hub/paygate/internal/domain"
	"github.com/x402hub/paygate/internal/logger"
)

func newTestForwarder(reg *bindings.Registry, defaultService, defaultOrigin string) *Forwarder {
	if reg == nil {
		reg = bindings.NewRegistry()
	}
	return New(reg, defaultService, defaultOrigin, logger.New("error", false))
}

func TestSelectPriority(t *testing.T) {
	reg := bindings.NewRegistry()
	reg.Register("svc", http.NotFoundHandler())

	tests := []struct {
		name     string
		tenant   *domain.Tenant
		defSvc   string
		defURL   string
		wantMode Mode
	}{
		{"tenant binding wins", &domain.Tenant{OriginService: "svc", OriginURL: "http://o"}, "", "", ModeBinding},
		{"unregistered binding falls through", &domain.Tenant{OriginService: "ghost", OriginURL: "http://o"}, "", "", ModeOriginURL},
		{"tenant origin url", &domain.Tenant{OriginURL: "http://o"}, "", "", ModeOriginURL},
		{"default binding", nil, "svc", "", ModeBinding},
		{"default origin url", nil, "", "http://o", ModeOriginURL},
		{"dns passthrough", nil, "", "", ModeDNS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestForwarder(reg, tt.defSvc, tt.defURL)
			mode, _ := f.Select(&domain.RouteContext{Tenant: tt.tenant})
			if mode != tt.wantMode {
				t.Errorf("Select() mode = %v, want %v", mode, tt.wantMode)
			}
		})
	}
}

func TestForwardBinding(t *testing.T) {
	reg := bindings.NewRegistry()
	reg.Register("svc", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("bound"))
	}))
	f := newTestForwarder(reg, "", "")

	rc := &domain.RouteContext{Tenant: &domain.Tenant{OriginService: "svc"}}
	r := httptest.NewRequest(http.MethodGet, "http://acme.example.com/x", nil)
	w := httptest.NewRecorder()

	status, err := f.Forward(w, r, rc, nil)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if status != http.StatusTeapot {
		t.Errorf("status = %d, want 418", status)
	}
	if w.Body.String() != "bound" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestForwardOriginURLPreservesHostAndPath(t *testing.T) {
	var gotHost, gotPath, gotQuery string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte("origin"))
	}))
	defer origin.Close()

	f := newTestForwarder(nil, "", "")
	rc := &domain.RouteContext{Tenant: &domain.Tenant{OriginURL: origin.URL}}

	r := httptest.NewRequest(http.MethodGet, "http://acme.example.com/reports/q3?fmt=csv", nil)
	w := httptest.NewRecorder()

	status, err := f.Forward(w, r, rc, nil)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("status = %d", status)
	}
	if gotHost != "acme.example.com" {
		t.Errorf("origin saw Host = %q, want acme.example.com", gotHost)
	}
	if gotPath != "/reports/q3" || gotQuery != "fmt=csv" {
		t.Errorf("origin saw %s?%s", gotPath, gotQuery)
	}
	if w.Body.String() != "origin" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestForwardRewritesRedirectLocation(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	}))
	defer origin.Close()

	f := newTestForwarder(nil, "", "")
	rc := &domain.RouteContext{Tenant: &domain.Tenant{OriginURL: origin.URL}}

	r := httptest.NewRequest(http.MethodGet, "http://acme.example.com/account", nil)
	w := httptest.NewRecorder()

	status, err := f.Forward(w, r, rc, nil)
	if err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if status != http.StatusFound {
		t.Fatalf("status = %d, want 302 surfaced to client", status)
	}

	loc := w.Header().Get("Location")
	u, err := url.Parse(loc)
	if err != nil {
		t.Fatalf("location %q not a URL: %v", loc, err)
	}
	if u.Host != "acme.example.com" {
		t.Errorf("location host = %q, want proxy host", u.Host)
	}
	if u.Path != "/login" {
		t.Errorf("location path = %q, want /login", u.Path)
	}
}

func TestRewriteLocationUnparseable(t *testing.T) {
	proxied, _ := url.Parse("http://origin.internal/account")
	bad := "http://%zz"
	if got := rewriteLocation(bad, proxied, "https", "acme.example.com"); got != bad {
		t.Errorf("rewriteLocation(%q) = %q, want unchanged", bad, got)
	}
}

func TestForwardAppendsFreshCookie(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Set-Cookie", "session=abc")
		w.Write([]byte("ok"))
	}))
	defer origin.Close()

	f := newTestForwarder(nil, "", "")
	rc := &domain.RouteContext{Tenant: &domain.Tenant{OriginURL: origin.URL}}

	r := httptest.NewRequest(http.MethodGet, "http://acme.example.com/x", nil)
	w := httptest.NewRecorder()

	cookie := &http.Cookie{Name: "auth_token", Value: "tok", Path: "/", HttpOnly: true}
	if _, err := f.Forward(w, r, rc, []*http.Cookie{cookie}); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}

	cookies := w.Header().Values("Set-Cookie")
	if len(cookies) != 2 {
		t.Fatalf("Set-Cookie headers = %d, want origin's plus fresh credential", len(cookies))
	}
	var found bool
	for _, c := range cookies {
		if strings.HasPrefix(c, "auth_token=tok") {
			found = true
		}
	}
	if !found {
		t.Errorf("fresh credential missing from %v", cookies)
	}
}

func TestForwardStripsHopHeaders(t *testing.T) {
	var sawConnection string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawConnection = r.Header.Get("Keep-Alive")
		w.Write([]byte("ok"))
	}))
	defer origin.Close()

	f := newTestForwarder(nil, "", "")
	rc := &domain.RouteContext{Tenant: &domain.Tenant{OriginURL: origin.URL}}

	r := httptest.NewRequest(http.MethodGet, "http://acme.example.com/x", nil)
	r.Header.Set("Keep-Alive", "timeout=5")
	w := httptest.NewRecorder()

	if _, err := f.Forward(w, r, rc, nil); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if sawConnection != "" {
		t.Errorf("hop-by-hop header leaked to origin: %q", sawConnection)
	}
}
