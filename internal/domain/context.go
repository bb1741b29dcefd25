package domain

// RouteContext is the immutable per-request routing decision. It is built
// once after tenant resolution and pattern matching, then passed down the
// pipeline; nothing downstream mutates shared configuration.
type RouteContext struct {
	// Subdomain is empty in single-tenant mode.
	Subdomain string
	// Tenant is nil in single-tenant mode.
	Tenant *Tenant
	// Rule is nil for public paths.
	Rule *RouteRule

	PayTo          string
	Network        string
	FacilitatorURL string
	JWTSecret      string

	// Resource is the full URL of the requested resource, used in payment
	// challenges.
	Resource string
}

// Protected reports whether the request hit a priced rule.
func (rc *RouteContext) Protected() bool {
	return rc.Rule != nil
}
