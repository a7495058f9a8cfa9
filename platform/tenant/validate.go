package tenant

import (
	"errors"
	"fmt"
	"regexp"
)

// Subdomains must be DNS-label safe: 4-32 chars, lowercase alphanumeric
// with interior hyphens only.
var subdomainPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{2,30}[a-z0-9]$`)

var (
	ErrInvalidSubdomain  = errors.New("subdomain must be 4-32 characters, lowercase alphanumeric with hyphens")
	ErrReservedSubdomain = errors.New("subdomain is reserved")
)

// DefaultReservedSubdomains are names that would collide with platform
// infrastructure routing and can never be claimed by a tenant.
var DefaultReservedSubdomains = []string{
	"www", "admin", "api", "control", "traefik",
	"grafana", "prometheus", "mail", "ftp", "ssh",
	"database", "static", "media", "cdn", "assets",
}

// ReservedSet builds a lookup set from a reserved-word list.
func ReservedSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// Validate checks subdomain format and the reserved-word set. It is pure
// and must run before any provisioning side effect.
func Validate(subdomain string, reserved map[string]struct{}) error {
	if !subdomainPattern.MatchString(subdomain) {
		return ErrInvalidSubdomain
	}
	if _, ok := reserved[subdomain]; ok {
		return fmt.Errorf("%q: %w", subdomain, ErrReservedSubdomain)
	}
	return nil
}
