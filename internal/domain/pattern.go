package domain

import "strings"

// RouteRule is a priced pattern the matcher classifies paths against.
// RouteID is empty for built-in rules and dev-mode patterns.
type RouteRule struct {
	RouteID     string
	Pattern     string
	PriceUSD    string
	Description string
}

// Built-in paths are always available regardless of tenant configuration and
// cannot be shadowed by tenant rules.
const (
	BuiltinHealthPath    = "/__x402/health"
	BuiltinConfigPath    = "/__x402/config"
	BuiltinProtectedPath = "/__x402/protected"
)

// BuiltinProtectedRules are checked before any tenant-configured rule so the
// payment-flow probe behaves deterministically on every tenant.
var BuiltinProtectedRules = []RouteRule{
	{
		Pattern:     BuiltinProtectedPath,
		PriceUSD:    "$0.01",
		Description: "Access to test protected endpoint",
	},
}

// BuiltinPublicPaths never require payment and are served by built-in
// handlers instead of being proxied.
var BuiltinPublicPaths = []string{BuiltinHealthPath, BuiltinConfigPath}

// MatchesPattern reports whether path matches pattern. A pattern ending in
// "/*" matches by prefix (with the wildcard stripped); anything else requires
// exact equality.
func MatchesPattern(path, pattern string) bool {
	if strings.HasSuffix(pattern, "/*") {
		return strings.HasPrefix(path, strings.TrimSuffix(pattern, "/*"))
	}
	return path == pattern
}

// IsBuiltinPublic reports whether path is one of the always-open built-ins.
func IsBuiltinPublic(path string) bool {
	for _, p := range BuiltinPublicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// FindRouteRule returns the first rule matching path, built-ins first and then
// tenant rules in their stored order, or nil when the path is public.
func FindRouteRule(path string, rules []RouteRule) *RouteRule {
	for i := range BuiltinProtectedRules {
		if MatchesPattern(path, BuiltinProtectedRules[i].Pattern) {
			return &BuiltinProtectedRules[i]
		}
	}
	for i := range rules {
		if MatchesPattern(path, rules[i].Pattern) {
			return &rules[i]
		}
	}
	return nil
}

// RulesFromRoutes converts enabled protected routes into matcher rules,
// preserving stored order.
func RulesFromRoutes(routes []ProtectedRoute) []RouteRule {
	rules := make([]RouteRule, 0, len(routes))
	for _, r := range routes {
		rules = append(rules, RouteRule{
			RouteID:     r.ID,
			Pattern:     r.Pattern,
			PriceUSD:    r.PriceUSD,
			Description: r.Description,
		})
	}
	return rules
}
