package forwarder

import (
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/x402hub/paygate/internal/bindings"
	"github.com/x402hub/paygate/internal/domain"
	"github.com/x402hub/paygate/internal/logger"
	"github.com/x402hub/paygate/internal/utils"
)

// Mode identifies the forwarding strategy picked for a request.
type Mode int

const (
	// ModeBinding calls a registered in-process handler.
	ModeBinding Mode = iota
	// ModeOriginURL rewrites scheme/host/port to an external origin.
	ModeOriginURL
	// ModeDNS re-issues the request to its own host and lets DNS route it.
	ModeDNS
)

func (m Mode) String() string {
	switch m {
	case ModeBinding:
		return "binding"
	case ModeOriginURL:
		return "origin_url"
	case ModeDNS:
		return "dns"
	default:
		return "unknown"
	}
}

// hop-by-hop headers, stripped from proxied requests and responses.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder relays requests to the tenant's origin. Strategy priority:
// bound service, then explicit origin URL, then DNS passthrough. Tenant
// settings win over the process-wide defaults.
type Forwarder struct {
	client           *http.Client
	registry         *bindings.Registry
	defaultService   string
	defaultOriginURL string
	log              logger.Logger
}

func New(registry *bindings.Registry, defaultService, defaultOriginURL string, log logger.Logger) *Forwarder {
	return &Forwarder{
		// Redirects are surfaced to the client, not followed, so their
		// Location headers can be rewritten back to the proxy host.
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		registry:         registry,
		defaultService:   defaultService,
		defaultOriginURL: defaultOriginURL,
		log:              log,
	}
}

// Select returns the strategy for a tenant. rc.Tenant may be nil
// (single-tenant mode), in which case only the defaults apply.
func (f *Forwarder) Select(rc *domain.RouteContext) (Mode, string) {
	service, originURL := f.defaultService, f.defaultOriginURL
	if rc != nil && rc.Tenant != nil {
		if rc.Tenant.OriginService != "" {
			service = rc.Tenant.OriginService
		}
		if rc.Tenant.OriginURL != "" {
			originURL = rc.Tenant.OriginURL
		}
	}

	if service != "" {
		if _, ok := f.registry.Lookup(service); ok {
			return ModeBinding, service
		}
	}
	if originURL != "" {
		return ModeOriginURL, originURL
	}
	return ModeDNS, ""
}

// Forward relays the request to the origin and writes the response. Extra
// cookies (a freshly issued credential) are appended before headers flush.
// It returns the origin's status code.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, rc *domain.RouteContext, extraCookies []*http.Cookie) (int, error) {
	ww := &cookieWriter{ResponseWriter: w, cookies: extraCookies}

	mode, target := f.Select(rc)
	switch mode {
	case ModeBinding:
		h, _ := f.registry.Lookup(target)
		h.ServeHTTP(ww, r)
		return ww.Status(), nil
	case ModeOriginURL:
		return f.forwardToURL(ww, r, target)
	default:
		return f.forwardDNS(ww, r)
	}
}

// forwardToURL rewrites scheme, host and port to the origin while keeping
// the path, query, headers, body and original Host header intact.
func (f *Forwarder) forwardToURL(w *cookieWriter, r *http.Request, originURL string) (int, error) {
	target, err := url.Parse(originURL)
	if err != nil {
		return 0, fmt.Errorf("parse origin url %q: %w", originURL, err)
	}

	proxied := *r.URL
	proxied.Scheme = target.Scheme
	proxied.Host = target.Host

	out, err := f.outboundRequest(r, &proxied)
	if err != nil {
		return 0, err
	}
	// Preserve the original Host header so the origin sees the tenant's
	// public hostname.
	out.Host = r.Host

	resp, err := f.client.Do(out)
	if err != nil {
		return 0, fmt.Errorf("forward to %s: %w", target.Host, err)
	}
	defer utils.Close(resp.Body)

	if loc := resp.Header.Get("Location"); loc != "" {
		resp.Header.Set("Location", rewriteLocation(loc, &proxied, requestScheme(r), r.Host))
	}

	return writeResponse(w, resp)
}

// forwardDNS re-issues the request against its own hostname. DNS has to
// resolve the host to the real origin; nothing is rewritten.
func (f *Forwarder) forwardDNS(w *cookieWriter, r *http.Request) (int, error) {
	proxied := *r.URL
	proxied.Scheme = requestScheme(r)
	proxied.Host = r.Host

	out, err := f.outboundRequest(r, &proxied)
	if err != nil {
		return 0, err
	}

	resp, err := f.client.Do(out)
	if err != nil {
		return 0, fmt.Errorf("forward to %s: %w", r.Host, err)
	}
	defer utils.Close(resp.Body)

	return writeResponse(w, resp)
}

func (f *Forwarder) outboundRequest(r *http.Request, target *url.URL) (*http.Request, error) {
	out, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), r.Body)
	if err != nil {
		return nil, fmt.Errorf("build outbound request: %w", err)
	}
	out.Header = r.Header.Clone()
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}
	if r.ContentLength > 0 {
		out.ContentLength = r.ContentLength
	}
	return out, nil
}

// rewriteLocation resolves a redirect target against the proxied URL and
// points it back at the proxy's own scheme, host and port so the client
// stays on the proxy domain. An unparseable Location is returned unchanged.
func rewriteLocation(location string, proxied *url.URL, scheme, host string) string {
	locURL, err := url.Parse(location)
	if err != nil {
		return location
	}
	resolved := proxied.ResolveReference(locURL)
	resolved.Scheme = scheme
	resolved.Host = host
	return resolved.String()
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

func writeResponse(w *cookieWriter, resp *http.Response) (int, error) {
	for _, h := range hopHeaders {
		resp.Header.Del(h)
	}
	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		return resp.StatusCode, fmt.Errorf("copy response body: %w", err)
	}
	return resp.StatusCode, nil
}

// cookieWriter appends pending Set-Cookie headers right before the header
// block is flushed and records the final status code.
type cookieWriter struct {
	http.ResponseWriter
	cookies []*http.Cookie
	status  int
}

func (w *cookieWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
		for _, c := range w.cookies {
			if v := c.String(); v != "" {
				w.Header().Add("Set-Cookie", v)
			}
		}
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *cookieWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *cookieWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
