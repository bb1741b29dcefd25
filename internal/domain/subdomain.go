package domain

import "strings"

// ExtractSubdomain returns the tenant subdomain for a request hostname, or ""
// when the request targets the platform itself.
//
// Loopback hosts and hostnames ending in one of the local/dev suffixes
// (e.g. the platform's own domain) never map to a tenant. Otherwise the
// hostname needs at least three dot-separated labels and the leftmost label,
// lowercased, is the subdomain.
//
// Examples:
//
//	ExtractSubdomain("acme.example.com", nil)  => "acme"
//	ExtractSubdomain("localhost:8080", nil)    => ""
//	ExtractSubdomain("example.com", nil)       => ""
func ExtractSubdomain(hostname string, localSuffixes []string) string {
	host := strings.ToLower(hostname)
	// Strip port if present.
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}

	if strings.Contains(host, "localhost") || host == "127.0.0.1" {
		return ""
	}
	for _, suffix := range localSuffixes {
		if suffix != "" && strings.HasSuffix(host, suffix) {
			return ""
		}
	}

	parts := strings.Split(host, ".")
	if len(parts) < 3 {
		return ""
	}
	return parts[0]
}
