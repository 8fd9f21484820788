package registry

import "github.com/stonescriptdb/gateway/internal/gatewayerr"

// IsValidIdentifier reports whether s is safe to use as a PostgreSQL
// identifier and as a platform/tenant name: lowercase ASCII letters,
// digits, and underscores only, starting with a letter or underscore, at
// most 63 bytes (PostgreSQL's NAMEDATALEN-1 limit).
//
// This is the strict rule (ported from the original implementation's
// pool-manager validator); it is used everywhere a platform or tenant
// identifier is accepted, superseding the looser alphanumeric-plus-
// underscore rule the original's registry validator used on its own,
// per the "Platform-name identifier strictness discrepancy" decision in
// DESIGN.md.
func IsValidIdentifier(s string) bool {
	if s == "" || len(s) > 63 {
		return false
	}
	first := s[0]
	if !(first >= 'a' && first <= 'z') && first != '_' {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_') {
			return false
		}
	}
	return true
}

// ValidatePlatformName returns a gatewayerr.Error if name is not a valid
// platform identifier.
func ValidatePlatformName(name string) error {
	if !IsValidIdentifier(name) {
		return gatewayerr.Newf(gatewayerr.KindInvalidRequest,
			"invalid platform name %q: must be lowercase alphanumeric with underscores, starting with a letter or underscore", name)
	}
	return nil
}

// ValidateTenantID returns a gatewayerr.Error if id is not a valid tenant
// identifier, including the reserved word "main" (see DESIGN.md).
func ValidateTenantID(id string) error {
	if id == "" {
		return nil
	}
	if id == "main" {
		return gatewayerr.New(gatewayerr.KindInvalidRequest, `tenant id "main" is reserved`)
	}
	if !IsValidIdentifier(id) {
		return gatewayerr.Newf(gatewayerr.KindInvalidRequest,
			"invalid tenant id %q: must be lowercase alphanumeric with underscores, starting with a letter or underscore", id)
	}
	return nil
}
