package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/x402hub/paygate/internal/domain"
)

const routeColumns = `id, tenant_id, pattern, price_usd, COALESCE(description, ''), enabled, created_at, updated_at`

func scanRoute(row pgx.Row) (*domain.ProtectedRoute, error) {
	var r domain.ProtectedRoute
	err := row.Scan(&r.ID, &r.TenantID, &r.Pattern, &r.PriceUSD, &r.Description,
		&r.Enabled, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListEnabledRoutes returns a tenant's enabled routes in stored (creation) order.
// Order matters: the pattern matcher takes the first match.
func (s *Store) ListEnabledRoutes(ctx context.Context, tenantID string) ([]domain.ProtectedRoute, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+routeColumns+` FROM protected_routes
		 WHERE tenant_id = $1 AND enabled ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list enabled routes for %s: %w", tenantID, err)
	}
	defer rows.Close()

	var routes []domain.ProtectedRoute
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		routes = append(routes, *r)
	}
	return routes, rows.Err()
}

// ListRoutesByTenant returns all of a tenant's routes, newest first (admin view).
func (s *Store) ListRoutesByTenant(ctx context.Context, tenantID string) ([]domain.ProtectedRoute, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+routeColumns+` FROM protected_routes
		 WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list routes for %s: %w", tenantID, err)
	}
	defer rows.Close()

	var routes []domain.ProtectedRoute
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		routes = append(routes, *r)
	}
	return routes, rows.Err()
}

// GetRoute returns a route by id.
func (s *Store) GetRoute(ctx context.Context, id string) (*domain.ProtectedRoute, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+routeColumns+` FROM protected_routes WHERE id = $1`, id)
	r, err := scanRoute(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get route %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get route %s: %w", id, err)
	}
	return r, nil
}

// CreateRoute inserts a new protected route.
func (s *Store) CreateRoute(ctx context.Context, r *domain.ProtectedRoute) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO protected_routes (id, tenant_id, pattern, price_usd, description, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`,
		r.ID, r.TenantID, r.Pattern, r.PriceUSD, r.Description, r.Enabled, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create route for %s: %w", r.TenantID, err)
	}
	return nil
}

// RouteUpdate holds the optional fields of a partial route update.
type RouteUpdate struct {
	Pattern     *string
	PriceUSD    *string
	Description *string
	Enabled     *bool
}

// UpdateRoute applies a partial update and bumps updated_at.
func (s *Store) UpdateRoute(ctx context.Context, id string, upd RouteUpdate) error {
	sets := make([]string, 0, 4)
	args := []any{id}

	if upd.Pattern != nil {
		args = append(args, *upd.Pattern)
		sets = append(sets, fmt.Sprintf("pattern = $%d", len(args)))
	}
	if upd.PriceUSD != nil {
		args = append(args, *upd.PriceUSD)
		sets = append(sets, fmt.Sprintf("price_usd = $%d", len(args)))
	}
	if upd.Description != nil {
		args = append(args, *upd.Description)
		sets = append(sets, fmt.Sprintf("description = NULLIF($%d, '')", len(args)))
	}
	if upd.Enabled != nil {
		args = append(args, *upd.Enabled)
		sets = append(sets, fmt.Sprintf("enabled = $%d", len(args)))
	}

	if len(sets) == 0 {
		return ErrNoFields
	}
	sets = append(sets, "updated_at = now()")

	tag, err := s.pool.Exec(ctx,
		`UPDATE protected_routes SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("update route %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update route %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// DisableRoute soft-deletes a route by flipping its enabled flag. The row is
// never physically deleted so historical usage-log joins keep working.
func (s *Store) DisableRoute(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE protected_routes SET enabled = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("disable route %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("disable route %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
