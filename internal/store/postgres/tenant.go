package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/x402hub/paygate/internal/domain"
)

const tenantColumns = `id, subdomain, name, COALESCE(origin_url, ''), COALESCE(origin_service, ''),
	wallet_address, network, COALESCE(facilitator_url, ''), jwt_secret, status, created_at, updated_at`

func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	var t domain.Tenant
	err := row.Scan(&t.ID, &t.Subdomain, &t.Name, &t.OriginURL, &t.OriginService,
		&t.WalletAddress, &t.Network, &t.FacilitatorURL, &t.JWTSecret, &t.Status,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetActiveTenantBySubdomain looks up the active tenant owning a subdomain.
// This is the hot-path query behind the config cache.
func (s *Store) GetActiveTenantBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE subdomain = $1 AND status = 'active'`,
		strings.ToLower(subdomain))
	t, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tenant %s: %w", subdomain, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get tenant by subdomain %s: %w", subdomain, err)
	}
	return t, nil
}

// GetTenant returns a tenant by id regardless of status.
func (s *Store) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	t, err := scanTenant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get tenant %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get tenant %s: %w", id, err)
	}
	return t, nil
}

// ListActiveTenants returns all active tenants, newest first.
func (s *Store) ListActiveTenants(ctx context.Context) ([]domain.Tenant, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE status = 'active' ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

// CreateTenant inserts a new tenant. Subdomain uniqueness is enforced by the
// database; violations surface as ErrDuplicateSubdomain.
func (s *Store) CreateTenant(ctx context.Context, t *domain.Tenant) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tenants (id, subdomain, name, origin_url, origin_service, wallet_address,
			network, facilitator_url, jwt_secret, status, created_at, updated_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, NULLIF($8, ''), $9, $10, $11, $12)`,
		t.ID, strings.ToLower(t.Subdomain), t.Name, t.OriginURL, t.OriginService,
		t.WalletAddress, t.Network, t.FacilitatorURL, t.JWTSecret, t.Status,
		t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create tenant %s: %w", t.Subdomain, ErrDuplicateSubdomain)
		}
		return fmt.Errorf("create tenant %s: %w", t.Subdomain, err)
	}
	return nil
}

// TenantUpdate holds the optional fields of a partial tenant update.
// Nil means "leave unchanged"; empty string clears a nullable column.
type TenantUpdate struct {
	WalletAddress  *string
	Network        *string
	OriginURL      *string
	OriginService  *string
	FacilitatorURL *string
	Name           *string
}

// UpdateTenant applies a partial update and bumps updated_at.
func (s *Store) UpdateTenant(ctx context.Context, id string, upd TenantUpdate) error {
	sets := make([]string, 0, 6)
	args := []any{id}

	add := func(col string, v *string, nullable bool) {
		if v == nil {
			return
		}
		args = append(args, *v)
		if nullable {
			sets = append(sets, fmt.Sprintf("%s = NULLIF($%d, '')", col, len(args)))
		} else {
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	add("wallet_address", upd.WalletAddress, false)
	add("network", upd.Network, false)
	add("origin_url", upd.OriginURL, true)
	add("origin_service", upd.OriginService, true)
	add("facilitator_url", upd.FacilitatorURL, true)
	add("name", upd.Name, false)

	if len(sets) == 0 {
		return ErrNoFields
	}
	sets = append(sets, "updated_at = now()")

	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return fmt.Errorf("update tenant %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update tenant %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// DeactivateTenant flips the tenant status instead of deleting the row, so
// usage logs keep their joins.
func (s *Store) DeactivateTenant(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tenants SET status = 'inactive', updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate tenant %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deactivate tenant %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
