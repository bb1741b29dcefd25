package domain

import (
	"errors"
	"time"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// TenantStatus is the lifecycle state of a tenant account.
type TenantStatus string

const (
	StatusActive    TenantStatus = "active"
	StatusSuspended TenantStatus = "suspended"
	StatusTrial     TenantStatus = "trial"
	StatusInactive  TenantStatus = "inactive"
)

// Tenant is a customer account owning a subdomain, a payee identity and
// routing rules. Exactly one of OriginService / OriginURL / neither
// determines the forwarding strategy.
type Tenant struct {
	ID             string       `json:"id"`
	Subdomain      string       `json:"subdomain"`
	Name           string       `json:"name"`
	OriginURL      string       `json:"origin_url,omitempty"`
	OriginService  string       `json:"origin_service,omitempty"`
	WalletAddress  string       `json:"wallet_address"`
	Network        string       `json:"network"`
	FacilitatorURL string       `json:"facilitator_url,omitempty"`
	JWTSecret      string       `json:"jwt_secret,omitempty"`
	Status         TenantStatus `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// ProtectedRoute is a priced path rule scoped to a tenant.
// Disabling a route is a soft delete (Enabled flip), never a physical delete,
// so historical usage-log joins keep working.
type ProtectedRoute struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Pattern     string    `json:"pattern"`
	PriceUSD    string    `json:"price_usd"`
	Description string    `json:"description,omitempty"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TenantConfig is the denormalized, read-optimized cache entry: the tenant
// plus its currently-enabled routes, stamped when it was built.
type TenantConfig struct {
	Tenant   Tenant           `json:"tenant"`
	Routes   []ProtectedRoute `json:"routes"`
	CachedAt time.Time        `json:"cached_at"`
}

// UsageLog is one append-only record per completed request.
// PaymentVerified is true only when a credential was freshly issued for this
// request, not when a cached cookie was accepted.
type UsageLog struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	RouteID         string    `json:"route_id,omitempty"`
	Path            string    `json:"path"`
	Method          string    `json:"method"`
	StatusCode      int       `json:"status_code"`
	PaymentVerified bool      `json:"payment_verified"`
	ClientIP        string    `json:"client_ip,omitempty"`
	UserAgent       string    `json:"user_agent,omitempty"`
	ResponseTimeMS  int64     `json:"response_time_ms"`
	Timestamp       time.Time `json:"timestamp"`
}
