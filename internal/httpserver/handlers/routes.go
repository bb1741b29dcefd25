package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/x402hub/paygate/internal/domain"
	"github.com/x402hub/paygate/internal/httpserver/deps"
	"github.com/x402hub/paygate/internal/logger"
	"github.com/x402hub/paygate/internal/store/postgres"
)

// ListRoutes handles GET /api/routes?tenant_id=...
func ListRoutes(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			writeAPIError(w, http.StatusBadRequest, "Missing tenant_id query parameter")
			return
		}

		routes, err := d.PG.ListEnabledRoutes(r.Context(), tenantID)
		if err != nil {
			d.Logger.Error("failed to list routes", logger.String("tenant_id", tenantID), logger.Error(err))
			writeAPIError(w, http.StatusInternalServerError, "Failed to fetch routes")
			return
		}
		if routes == nil {
			routes = []domain.ProtectedRoute{}
		}
		writeData(w, http.StatusOK, routes)
	}
}

// GetRoute handles GET /api/routes/{id}.
func GetRoute(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		route, err := d.PG.GetRoute(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeAPIError(w, http.StatusNotFound, "Route not found")
				return
			}
			d.Logger.Error("failed to fetch route", logger.String("id", id), logger.Error(err))
			writeAPIError(w, http.StatusInternalServerError, "Failed to fetch route")
			return
		}
		writeData(w, http.StatusOK, route)
	}
}

type createRouteRequest struct {
	TenantID    string `json:"tenant_id"`
	Pattern     string `json:"pattern"`
	PriceUSD    string `json:"price_usd"`
	Description string `json:"description"`
}

// CreateRoute handles POST /api/routes.
func CreateRoute(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRouteRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAPIError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		if req.TenantID == "" || req.Pattern == "" || req.PriceUSD == "" {
			writeAPIError(w, http.StatusBadRequest,
				"Missing required fields: tenant_id, pattern, price_usd")
			return
		}
		if !strings.HasPrefix(req.Pattern, "/") {
			writeAPIError(w, http.StatusBadRequest, "Pattern must start with /")
			return
		}

		t, err := d.PG.GetTenant(r.Context(), req.TenantID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeAPIError(w, http.StatusNotFound, "Tenant not found")
				return
			}
			d.Logger.Error("failed to fetch tenant", logger.String("id", req.TenantID), logger.Error(err))
			writeAPIError(w, http.StatusInternalServerError, "Failed to create route")
			return
		}

		now := time.Now().UTC()
		route := &domain.ProtectedRoute{
			ID:          uuid.NewString(),
			TenantID:    req.TenantID,
			Pattern:     req.Pattern,
			PriceUSD:    req.PriceUSD,
			Description: req.Description,
			Enabled:     true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := d.PG.CreateRoute(r.Context(), route); err != nil {
			d.Logger.Error("failed to create route", logger.Error(err))
			writeAPIError(w, http.StatusInternalServerError, "Failed to create route")
			return
		}

		invalidateTenant(d, r, t.Subdomain)
		writeData(w, http.StatusCreated, route)
	}
}

type updateRouteRequest struct {
	Pattern     *string `json:"pattern"`
	PriceUSD    *string `json:"price_usd"`
	Description *string `json:"description"`
	Enabled     *bool   `json:"enabled"`
}

// UpdateRoute handles PATCH /api/routes/{id}.
func UpdateRoute(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req updateRouteRequest
		if err := decodeJSON(r, &req); err != nil {
			writeAPIError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if req.Pattern != nil && !strings.HasPrefix(*req.Pattern, "/") {
			writeAPIError(w, http.StatusBadRequest, "Pattern must start with /")
			return
		}

		err := d.PG.UpdateRoute(r.Context(), id, postgres.RouteUpdate{
			Pattern:     req.Pattern,
			PriceUSD:    req.PriceUSD,
			Description: req.Description,
			Enabled:     req.Enabled,
		})
		if err != nil {
			switch {
			case errors.Is(err, postgres.ErrNoFields):
				writeAPIError(w, http.StatusBadRequest, "No fields to update")
			case errors.Is(err, domain.ErrNotFound):
				writeAPIError(w, http.StatusNotFound, "Route not found")
			default:
				d.Logger.Error("failed to update route", logger.String("id", id), logger.Error(err))
				writeAPIError(w, http.StatusInternalServerError, "Failed to update route")
			}
			return
		}

		invalidateRouteTenant(d, r, id)
		writeMessage(w, "Route updated")
	}
}

// DeleteRoute handles DELETE /api/routes/{id}. Routes are disabled, never
// removed.
func DeleteRoute(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := d.PG.DisableRoute(r.Context(), id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeAPIError(w, http.StatusNotFound, "Route not found")
				return
			}
			d.Logger.Error("failed to disable route", logger.String("id", id), logger.Error(err))
			writeAPIError(w, http.StatusInternalServerError, "Failed to delete route")
			return
		}

		invalidateRouteTenant(d, r, id)
		writeMessage(w, "Route disabled")
	}
}

func invalidateRouteTenant(d deps.Deps, r *http.Request, routeID string) {
	route, err := d.PG.GetRoute(r.Context(), routeID)
	if err != nil {
		return
	}
	t, err := d.PG.GetTenant(r.Context(), route.TenantID)
	if err != nil {
		return
	}
	invalidateTenant(d, r, t.Subdomain)
}
