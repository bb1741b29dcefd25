package redis

import "strings"

const (
	// KeyPrefixTenant is the prefix for cached tenant configurations
	KeyPrefixTenant = "tenant:"
)

// TenantKey returns the Redis key for a cached tenant configuration
func TenantKey(subdomain string) string {
	return KeyPrefixTenant + strings.ToLower(subdomain)
}
