package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/x402hub/paygate/internal/domain"
	"github.com/x402hub/paygate/internal/httpserver/deps"
	"github.com/x402hub/paygate/internal/logger"
	"github.com/x402hub/paygate/internal/store/postgres"
)

var subdomainRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// tenantView is a tenant as exposed by the management API. The signing
// secret is only returned once, on creation.
type tenantView struct {
	ID             string              `json:"id"`
	Subdomain      string              `json:"subdomain"`
	Name           string              `json:"name"`
	OriginURL      string              `json:"origin_url,omitempty"`
	OriginService  string              `json:"origin_service,omitempty"`
	WalletAddress  string              `json:"wallet_address"`
	Network        string              `json:"network"`
	FacilitatorURL string              `json:"facilitator_url,omitempty"`
	JWTSecret      string              `json:"jwt_secret,omitempty"`
	Status         domain.TenantStatus `json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

func viewTenant(t *domain.Tenant, withSecret bool) tenantView {
	v := tenantView{
		ID:             t.ID,
		Subdomain:      t.Subdomain,
		Name:           t.Name,
		OriginURL:      t.OriginURL,
		OriginService:  t.OriginService,
		WalletAddress:  t.WalletAddress,
		Network:        t.Network,
		FacilitatorURL: t.FacilitatorURL,
		Status:         t.Status,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
	if withSecret {
		v.JWTSecret = t.JWTSecret
	}
	return v
}

// ListTenants handles GET /api/tenants.
func ListTenants(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenants, err := d.PG.ListActiveTenants(r.Context())
		if err != nil {
			d.Logger.Error("failed to list tenants", logger.Error(err))
			writeAPIError(w, http.StatusInternalServerError, "Failed to fetch tenants")
			return
		}

		views := make([]tenantView, 0, len(tenants))
		for i := range tenants {
			views = append(views, viewTenant(&tenants[i], false))
		}
		writeData(w, http.StatusOK, views)
	}
}

type tenantDetail struct {
	tenantView
	Routes []domain.ProtectedRoute `json:"routes"`
	Stats  *postgres.TenantStats   `json:"stats"`
}

// GetTenant handles GET /api/tenants/{id}: the tenant, its routes and its
// aggregate usage.
func GetTenant(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		t, err := d.PG.GetTenant(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeAPIError(w, http.StatusNotFound, "Tenant not found")
				return
			}
			d.Logger.Error("failed to fetch tenant", logger.String("id", id), logger.Error(err))
			writeAPIError(w, http.StatusInternalServerError, "Failed to fetch tenant")
			return
		}

		routes, err := d.PG.ListRoutesByTenant(r.Context(), id)
		if err != nil {
			d.Logger.Error("failed to fetch tenant routes", logger.String("id", id), logger.Error(err))
			writeAPIError(w, http.StatusInternalServerError, "Failed to fetch tenant")
			return
		}
		if routes == nil {
			routes = []domain.ProtectedRoute{}
		}

		stats, err := d.PG.GetTenantStats(r.Context(), id)
		if err != nil {
			d.Logger.Error("failed to fetch tenant stats", logger.String("id", id), logger.Error(err))
			writeAPIError(w, http.StatusInternalServerError, "Failed to fetch tenant")
			return
		}

		writeData(w, http.StatusOK, tenantDetail{
			tenantView: viewTenant(t, false),
			Routes:     routes,
			Stats:      stats,
		})
	}
}

type createTenantRequest struct {
	Subdomain      string `json:"subdomain"`
	Name           string `json:"name"`
	WalletAddress  string `json:"wallet_address"`
	Network        string `json:"network"`
	OriginURL      string `json:"origin_url"`
	OriginService  string `json:"origin_service"`
	FacilitatorURL string `json:"facilitator_url"`
	JWTSecret      string `json:"jwt_secret"`
}

// CreateTenant handles POST /api/tenants. The signing secret is generated
// when absent and included in the response exactly once.
func CreateTenant(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createTenantRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAPIError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		req.Subdomain = strings.ToLower(strings.TrimSpace(req.Subdomain))
		if req.Subdomain == "" || req.Name == "" || req.WalletAddress == "" {
			writeAPIError(w, http.StatusBadRequest,
				"Missing required fields: subdomain, name, wallet_address")
			return
		}
		if !subdomainRe.MatchString(req.Subdomain) {
			writeAPIError(w, http.StatusBadRequest,
				"Subdomain may only contain lowercase letters, digits and hyphens")
			return
		}

		secret := req.JWTSecret
		if secret == "" {
			var err error
			secret, err = generateSecret()
			if err != nil {
				d.Logger.Error("failed to generate tenant secret", logger.Error(err))
				writeAPIError(w, http.StatusInternalServerError, "Failed to create tenant")
				return
			}
		}
		network := req.Network
		if network == "" {
			network = "base-sepolia"
		}

		now := time.Now().UTC()
		t := &domain.Tenant{
			ID:             uuid.NewString(),
			Subdomain:      req.Subdomain,
			Name:           req.Name,
			OriginURL:      req.OriginURL,
			OriginService:  req.OriginService,
			WalletAddress:  req.WalletAddress,
			Network:        network,
			FacilitatorURL: req.FacilitatorURL,
			JWTSecret:      secret,
			Status:         domain.StatusActive,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		if err := d.PG.CreateTenant(r.Context(), t); err != nil {
			if errors.Is(err, postgres.ErrDuplicateSubdomain) {
				writeAPIError(w, http.StatusConflict, "Subdomain already exists")
				return
			}
			d.Logger.Error("failed to create tenant", logger.Error(err))
			writeAPIError(w, http.StatusInternalServerError, "Failed to create tenant")
			return
		}

		invalidateTenant(d, r, t.Subdomain)
		writeData(w, http.StatusCreated, viewTenant(t, true))
	}
}

type updateTenantRequest struct {
	WalletAddress  *string `json:"wallet_address"`
	Network        *string `json:"network"`
	OriginURL      *string `json:"origin_url"`
	OriginService  *string `json:"origin_service"`
	FacilitatorURL *string `json:"facilitator_url"`
	Name           *string `json:"name"`
}

// UpdateTenant handles PATCH /api/tenants/{id}.
func UpdateTenant(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req updateTenantRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAPIError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		err := d.PG.UpdateTenant(r.Context(), id, postgres.TenantUpdate{
			WalletAddress:  req.WalletAddress,
			Network:        req.Network,
			OriginURL:      req.OriginURL,
			OriginService:  req.OriginService,
			FacilitatorURL: req.FacilitatorURL,
			Name:           req.Name,
		})
		if err != nil {
			switch {
			case errors.Is(err, postgres.ErrNoFields):
				writeAPIError(w, http.StatusBadRequest, "No fields to update")
			case errors.Is(err, domain.ErrNotFound):
				writeAPIError(w, http.StatusNotFound, "Tenant not found")
			default:
				d.Logger.Error("failed to update tenant", logger.String("id", id), logger.Error(err))
				writeAPIError(w, http.StatusInternalServerError, "Failed to update tenant")
			}
			return
		}

		if t, err := d.PG.GetTenant(r.Context(), id); err == nil {
			invalidateTenant(d, r, t.Subdomain)
		}
		writeMessage(w, "Tenant updated")
	}
}

// DeleteTenant handles DELETE /api/tenants/{id}. Tenants are deactivated,
// never removed.
func DeleteTenant(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		t, err := d.PG.GetTenant(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeAPIError(w, http.StatusNotFound, "Tenant not found")
				return
			}
			d.Logger.Error("failed to fetch tenant", logger.String("id", id), logger.Error(err))
			writeAPIError(w, http.StatusInternalServerError, "Failed to delete tenant")
			return
		}

		if err := d.PG.DeactivateTenant(r.Context(), id); err != nil {
			d.Logger.Error("failed to deactivate tenant", logger.String("id", id), logger.Error(err))
			writeAPIError(w, http.StatusInternalServerError, "Failed to delete tenant")
			return
		}

		invalidateTenant(d, r, t.Subdomain)
		writeMessage(w, "Tenant deactivated")
	}
}

// invalidateTenant drops the cached config after any write. Failures are
// logged, not surfaced: the cache expires on its own.
func invalidateTenant(d deps.Deps, r *http.Request, subdomain string) {
	if d.Resolver == nil {
		return
	}
	if err := d.Resolver.Invalidate(r.Context(), subdomain); err != nil {
		d.Logger.Warn("failed to invalidate tenant cache",
			logger.String("subdomain", subdomain), logger.Error(err))
	}
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
