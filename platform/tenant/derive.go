package tenant

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// IDLength is the fixed width of derived tenant IDs.
const IDLength = 12

// GenerateID derives the stable tenant ID from its subdomain: the first
// 12 hex characters of SHA-256(subdomain). The same subdomain always
// yields the same ID, so DB names and stack names are recomputable.
func GenerateID(subdomain string) string {
	sum := sha256.Sum256([]byte(subdomain))
	return hex.EncodeToString(sum[:])[:IDLength]
}

// DBName returns the tenant's dedicated database name.
func DBName(id string) string {
	return "nekotab_" + id
}

// DBUser returns the tenant's dedicated database role.
func DBUser(id string) string {
	return "tenant_" + id
}

// StackName returns the compute stack name for a tenant.
func StackName(id string) string {
	return "tenant-" + id
}

// ServiceName returns the web service name inside a tenant stack.
func ServiceName(id string) string {
	return StackName(id) + "_web"
}

// URL returns the public entry point for a tenant.
func URL(subdomain, domain string) string {
	return fmt.Sprintf("https://%s.%s", subdomain, domain)
}
