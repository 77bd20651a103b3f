package entities

import "strings"

type Role string

const (
	RoleAdmin        Role = "admin"
	RoleComplexAdmin Role = "complex_admin"
	RoleReception    Role = "reception"
	RoleResident     Role = "resident"
	RoleSecurity     Role = "security"
)

// ParseRole accepts role names in any case, including the upper-case
// spelling used by identity tokens.
func ParseRole(raw string) Role {
	return Role(strings.ToLower(strings.TrimSpace(raw)))
}

// NormalizeTenantKey is the canonical spelling stored on rows, events and
// idempotency scopes. Tenant routing applies the same folding.
func NormalizeTenantKey(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Principal is the verified caller supplied by the identity collaborator.
type Principal struct {
	UserID    string
	Role      Role
	TenantKey string
}
