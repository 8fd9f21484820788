// Package routing implements the pure (platform, tenant) -> database name
// mapping and its inverse.
package routing

import "strings"

// DatabaseType classifies a database name as the platform's main database
// or a tenant database.
type DatabaseType int

const (
	Main DatabaseType = iota
	Tenant
)

// Router maps platform/tenant identifiers to database names and back. It
// holds no state; every method is a pure function of its arguments.
type Router struct{}

// New returns a Router.
func New() *Router { return &Router{} }

// DatabaseName returns "{platform}_main" or "{platform}_{tenantID}".
func (r *Router) DatabaseName(platform string, tenantID string) string {
	p := SanitizeIdentifier(platform)
	if tenantID == "" {
		return p + "_main"
	}
	return p + "_" + SanitizeIdentifier(tenantID)
}

// PlatformFromDatabase extracts the leading platform segment of a database
// name, or "" if the name has no underscore-separated segments.
func (r *Router) PlatformFromDatabase(dbName string) string {
	parts := strings.Split(dbName, "_")
	if len(parts) >= 2 {
		return parts[0]
	}
	return ""
}

// BelongsToPlatform reports whether dbName is prefixed by platform's
// database prefix.
func (r *Router) BelongsToPlatform(dbName, platform string) bool {
	prefix := SanitizeIdentifier(platform) + "_"
	return strings.HasPrefix(dbName, prefix)
}

// IsMainDatabase reports whether dbName is a platform's main database.
func (r *Router) IsMainDatabase(dbName string) bool {
	return strings.HasSuffix(dbName, "_main")
}

// TenantIDFromDatabase returns the tenant suffix of dbName for the given
// platform, or "" if dbName is the platform's main database or doesn't
// belong to platform at all.
func (r *Router) TenantIDFromDatabase(dbName, platform string) string {
	prefix := SanitizeIdentifier(platform) + "_"
	if !strings.HasPrefix(dbName, prefix) {
		return ""
	}
	suffix := dbName[len(prefix):]
	if suffix == "main" {
		return ""
	}
	return suffix
}

// DatabaseTypeOf classifies dbName.
func (r *Router) DatabaseTypeOf(dbName string) DatabaseType {
	if strings.HasSuffix(dbName, "_main") {
		return Main
	}
	return Tenant
}

// SanitizeIdentifier normalizes s into a lowercase, PostgreSQL-identifier-
// safe token: letters/digits kept and lowercased, '-'/space become '_',
// everything else also becomes '_', leading/trailing '_' trimmed.
//
// This is a defensive, last-resort normalization applied immediately
// before database-name formation; it is not a substitute for the stricter
// registry-level identifier validation performed at registration time.
func SanitizeIdentifier(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z' || c >= '0' && c <= '9':
			b.WriteRune(c)
		case c >= 'A' && c <= 'Z':
			b.WriteRune(c - 'A' + 'a')
		case c == '_':
			b.WriteRune(c)
		default:
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
