package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/x402hub/paygate/internal/domain"
	"github.com/x402hub/paygate/internal/logger"
)

type fakeCache struct {
	entries map[string]*domain.TenantConfig
	getErr  error
	putErr  error
	puts    int
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]*domain.TenantConfig{}}
}

func (c *fakeCache) GetTenantConfig(_ context.Context, subdomain string) (*domain.TenantConfig, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.entries[subdomain], nil
}

func (c *fakeCache) PutTenantConfig(_ context.Context, subdomain string, cfg *domain.TenantConfig, _ time.Duration) error {
	if c.putErr != nil {
		return c.putErr
	}
	c.puts++
	c.entries[subdomain] = cfg
	return nil
}

func (c *fakeCache) DeleteTenantConfig(_ context.Context, subdomain string) error {
	c.deletes++
	delete(c.entries, subdomain)
	return nil
}

type fakeStore struct {
	tenants map[string]*domain.Tenant
	routes  map[string][]domain.ProtectedRoute
	reads   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tenants: map[string]*domain.Tenant{},
		routes:  map[string][]domain.ProtectedRoute{},
	}
}

func (s *fakeStore) GetActiveTenantBySubdomain(_ context.Context, subdomain string) (*domain.Tenant, error) {
	s.reads++
	t, ok := s.tenants[subdomain]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return t, nil
}

func (s *fakeStore) ListEnabledRoutes(_ context.Context, tenantID string) ([]domain.ProtectedRoute, error) {
	return s.routes[tenantID], nil
}

func testTenant() *domain.Tenant {
	return &domain.Tenant{
		ID:            "t-1",
		Subdomain:     "acme",
		Name:          "Acme",
		WalletAddress: "0xabc",
		Network:       "base-sepolia",
		JWTSecret:     "secret",
		Status:        domain.StatusActive,
	}
}

func TestResolveCacheMissLoadsAndCaches(t *testing.T) {
	cache := newFakeCache()
	store := newFakeStore()
	store.tenants["acme"] = testTenant()
	store.routes["t-1"] = []domain.ProtectedRoute{{ID: "r-1", TenantID: "t-1", Pattern: "/api/*", PriceUSD: "0.05", Enabled: true}}

	r := NewResolver(cache, store, 5*time.Minute, logger.New("error", false))

	cfg, err := r.Resolve(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.Tenant.ID != "t-1" {
		t.Errorf("tenant ID = %q, want t-1", cfg.Tenant.ID)
	}
	if len(cfg.Routes) != 1 || cfg.Routes[0].Pattern != "/api/*" {
		t.Errorf("routes = %+v, want one /api/* route", cfg.Routes)
	}
	if cache.puts != 1 {
		t.Errorf("cache puts = %d, want 1", cache.puts)
	}
	if cfg.CachedAt.IsZero() {
		t.Error("CachedAt not stamped")
	}
}

func TestResolveCacheHitSkipsStore(t *testing.T) {
	cache := newFakeCache()
	store := newFakeStore()
	store.tenants["acme"] = testTenant()

	cache.entries["acme"] = &domain.TenantConfig{
		Tenant:   *testTenant(),
		CachedAt: time.Now(),
	}

	r := NewResolver(cache, store, 5*time.Minute, logger.New("error", false))

	if _, err := r.Resolve(context.Background(), "acme"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if store.reads != 0 {
		t.Errorf("store reads = %d, want 0 on cache hit", store.reads)
	}
}

func TestResolveStaleEntryReloads(t *testing.T) {
	cache := newFakeCache()
	store := newFakeStore()
	store.tenants["acme"] = testTenant()

	cache.entries["acme"] = &domain.TenantConfig{
		Tenant:   *testTenant(),
		CachedAt: time.Now().Add(-10 * time.Minute),
	}

	r := NewResolver(cache, store, 5*time.Minute, logger.New("error", false))

	if _, err := r.Resolve(context.Background(), "acme"); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if store.reads != 1 {
		t.Errorf("store reads = %d, want 1 for stale entry", store.reads)
	}
}

func TestResolveUnknownSubdomain(t *testing.T) {
	r := NewResolver(newFakeCache(), newFakeStore(), 5*time.Minute, logger.New("error", false))

	_, err := r.Resolve(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrNotFound", err)
	}
}

func TestResolveCacheFailureFallsBack(t *testing.T) {
	cache := newFakeCache()
	cache.getErr = errors.New("redis down")
	cache.putErr = errors.New("redis down")
	store := newFakeStore()
	store.tenants["acme"] = testTenant()

	r := NewResolver(cache, store, 5*time.Minute, logger.New("error", false))

	cfg, err := r.Resolve(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Resolve() error = %v, want fallback to store", err)
	}
	if cfg.Tenant.Subdomain != "acme" {
		t.Errorf("subdomain = %q, want acme", cfg.Tenant.Subdomain)
	}
}

func TestInvalidate(t *testing.T) {
	cache := newFakeCache()
	cache.entries["acme"] = &domain.TenantConfig{CachedAt: time.Now()}

	r := NewResolver(cache, newFakeStore(), 5*time.Minute, logger.New("error", false))

	if err := r.Invalidate(context.Background(), "acme"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if _, ok := cache.entries["acme"]; ok {
		t.Error("entry still cached after Invalidate")
	}
}
