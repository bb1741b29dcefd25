package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/x402hub/paygate/internal/domain"
)

// DefaultTenantTTL is the default expiration for cached tenant configs (5 minutes)
const DefaultTenantTTL = 300 * time.Second

// Store handles Redis operations for the tenant config cache
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// GetTenantConfig retrieves a cached tenant config by subdomain.
// Returns (nil, nil) on cache miss.
func (s *Store) GetTenantConfig(ctx context.Context, subdomain string) (*domain.TenantConfig, error) {
	key := TenantKey(subdomain)
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get tenant config: %w", err)
	}

	var cfg domain.TenantConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tenant config: %w", err)
	}

	return &cfg, nil
}

// PutTenantConfig stores a tenant config with the given TTL
func (s *Store) PutTenantConfig(ctx context.Context, subdomain string, cfg *domain.TenantConfig, ttl time.Duration) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal tenant config: %w", err)
	}

	key := TenantKey(subdomain)
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache tenant config: %w", err)
	}
	return nil
}

// DeleteTenantConfig removes a cached tenant config.
// Callers must invoke this after any write affecting the tenant's routing data.
func (s *Store) DeleteTenantConfig(ctx context.Context, subdomain string) error {
	key := TenantKey(subdomain)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate tenant config: %w", err)
	}
	return nil
}

// FlushTenantConfigs removes all cached tenant configs
func (s *Store) FlushTenantConfigs(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, KeyPrefixTenant+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete cache key: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to flush tenant configs: %w", err)
	}
	return nil
}
