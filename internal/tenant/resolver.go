package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/x402hub/paygate/internal/domain"
	"github.com/x402hub/paygate/internal/logger"
)

// ConfigCache is the cache side of the resolver. A (nil, nil) return from
// GetTenantConfig means a miss.
type ConfigCache interface {
	GetTenantConfig(ctx context.Context, subdomain string) (*domain.TenantConfig, error)
	PutTenantConfig(ctx context.Context, subdomain string, cfg *domain.TenantConfig, ttl time.Duration) error
	DeleteTenantConfig(ctx context.Context, subdomain string) error
}

// ConfigStore is the authoritative side of the resolver.
type ConfigStore interface {
	GetActiveTenantBySubdomain(ctx context.Context, subdomain string) (*domain.Tenant, error)
	ListEnabledRoutes(ctx context.Context, tenantID string) ([]domain.ProtectedRoute, error)
}

// Resolver turns a subdomain into a TenantConfig, cache first, database on
// miss. Cache failures degrade to database reads instead of failing the
// request.
type Resolver struct {
	cache ConfigCache
	store ConfigStore
	ttl   time.Duration
	log   logger.Logger
}

func NewResolver(cache ConfigCache, store ConfigStore, ttl time.Duration, log logger.Logger) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Resolver{cache: cache, store: store, ttl: ttl, log: log}
}

// Resolve returns the config for a subdomain. It returns domain.ErrNotFound
// when no active tenant owns the subdomain.
func (r *Resolver) Resolve(ctx context.Context, subdomain string) (*domain.TenantConfig, error) {
	cached, err := r.cache.GetTenantConfig(ctx, subdomain)
	if err != nil {
		r.log.Warn("tenant cache read failed, falling back to database",
			logger.String("subdomain", subdomain), logger.Error(err))
	}
	// Redis TTL already expires entries; the CachedAt check also rejects
	// entries written by an instance configured with a longer TTL.
	if cached != nil && time.Since(cached.CachedAt) < r.ttl {
		return cached, nil
	}

	cfg, err := r.loadFromStore(ctx, subdomain)
	if err != nil {
		return nil, err
	}

	if err := r.cache.PutTenantConfig(ctx, subdomain, cfg, r.ttl); err != nil {
		r.log.Warn("tenant cache write failed",
			logger.String("subdomain", subdomain), logger.Error(err))
	}
	return cfg, nil
}

// Invalidate drops the cached config for a subdomain. Admin handlers call it
// after any write touching the tenant or its routes.
func (r *Resolver) Invalidate(ctx context.Context, subdomain string) error {
	return r.cache.DeleteTenantConfig(ctx, subdomain)
}

func (r *Resolver) loadFromStore(ctx context.Context, subdomain string) (*domain.TenantConfig, error) {
	t, err := r.store.GetActiveTenantBySubdomain(ctx, subdomain)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	routes, err := r.store.ListEnabledRoutes(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	return &domain.TenantConfig{
		Tenant:   *t,
		Routes:   routes,
		CachedAt: time.Now().UTC(),
	}, nil
}
