// Package tenancy routes every governance read and write to the isolated
// namespace of one residential complex.
//
// A Router resolves a tenant key to a Handle. Handles are cached in a bounded
// LRU and evicted after an idle timeout; they hold no business state, so
// eviction only costs a reconnect. Callers never switch a process-wide
// "current schema": the Handle is passed explicitly to every data access.
package tenancy

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// Tenant identifies one residential complex. It is immutable after creation.
type Tenant struct {
	TenantID  string
	TenantKey string
	Name      string
	Schema    string
	// DSN is optional. When set the tenant lives on its own database and the
	// connector opens a dedicated pool for it.
	DSN       string
	CreatedAt time.Time
}

// Registry looks tenants up by their stable key.
type Registry interface {
	Lookup(ctx context.Context, tenantKey string) (Tenant, bool, error)
}

// Connection is an opened tenant namespace.
type Connection interface {
	Namespace() string
	Close() error
}

// Connector opens the namespace of a registered tenant.
type Connector interface {
	Open(ctx context.Context, tenant Tenant) (Connection, error)
}

// Provisioner lazily creates or validates a tenant namespace on first use.
// Provisioners must be idempotent and must never mutate business rows.
type Provisioner interface {
	Provision(ctx context.Context, tenant Tenant, conn Connection) error
}

// ProvisionerFunc adapts a function to Provisioner.
type ProvisionerFunc func(ctx context.Context, tenant Tenant, conn Connection) error

func (f ProvisionerFunc) Provision(ctx context.Context, tenant Tenant, conn Connection) error {
	return f(ctx, tenant, conn)
}

// Observer receives router lifecycle signals, typically for metrics.
type Observer interface {
	HandleCacheHit(tenantKey string)
	HandleCacheMiss(tenantKey string)
	HandleEvicted(tenantKey string)
	SecurityEvent(kind string, tenantKey string)
}

type nopObserver struct{}

func (nopObserver) HandleCacheHit(string)        {}
func (nopObserver) HandleCacheMiss(string)       {}
func (nopObserver) HandleEvicted(string)         {}
func (nopObserver) SecurityEvent(string, string) {}

var schemaPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ValidSchema reports whether name is safe to interpolate as a Postgres
// schema identifier.
func ValidSchema(name string) bool {
	return schemaPattern.MatchString(name)
}

// NormalizeKey canonicalizes tenant keys carried by principals and rows.
func NormalizeKey(tenantKey string) string {
	return strings.ToLower(strings.TrimSpace(tenantKey))
}
