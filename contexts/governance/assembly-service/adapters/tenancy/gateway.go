// Package tenancyadapter binds the platform tenant router to the assembly
// store ports. Every store handed to a use case is pinned to one handle and
// guarded against rows or writes naming another tenant.
package tenancyadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"condominia/contexts/governance/assembly-service/adapters/memory"
	postgresadapter "condominia/contexts/governance/assembly-service/adapters/postgres"
	domainerrors "condominia/contexts/governance/assembly-service/domain/errors"
	"condominia/contexts/governance/assembly-service/ports"
	"condominia/internal/platform/tenancy"
)

// Binder builds the store for one resolved handle.
type Binder func(handle *tenancy.Handle) (ports.Store, error)

type Gateway struct {
	Router *tenancy.Router
	Bind   Binder
	Logger *slog.Logger
}

func (g Gateway) WithTenant(
	ctx context.Context,
	tenantKey string,
	op func(ctx context.Context, store ports.Store) error,
) error {
	err := g.Router.Scoped(ctx, tenantKey, func(ctx context.Context, handle *tenancy.Handle) error {
		store, err := g.Bind(handle)
		if err != nil {
			return err
		}
		return op(ctx, guardedStore{inner: store, handle: handle})
	})
	return translate(err)
}

// MemoryBinder serves each namespace from its in-memory store.
func MemoryBinder(namespaces *memory.Namespaces) Binder {
	return func(handle *tenancy.Handle) (ports.Store, error) {
		return namespaces.Store(handle.Connection().Namespace()), nil
	}
}

// PostgresBinder serves each namespace from a repository qualified with the
// tenant's schema.
func PostgresBinder(logger *slog.Logger) Binder {
	return func(handle *tenancy.Handle) (ports.Store, error) {
		conn, ok := handle.Connection().(*tenancy.PostgresConnection)
		if !ok {
			return nil, fmt.Errorf("%w: tenant %q has no postgres connection", tenancy.ErrNamespaceUnavailable, handle.TenantKey())
		}
		return postgresadapter.NewRepository(conn.DB(), conn.Namespace(), logger), nil
	}
}

// translate maps router failures onto the governance error kinds while
// keeping the router's sentinel in the chain.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tenancy.ErrUnknownTenant):
		return fmt.Errorf("%w: %w", domainerrors.ErrUnknownTenant, err)
	case errors.Is(err, tenancy.ErrCrossTenantAccess):
		return fmt.Errorf("%w: %w", domainerrors.ErrCrossTenantAccess, err)
	case errors.Is(err, tenancy.ErrNamespaceUnavailable), errors.Is(err, tenancy.ErrInvalidNamespace):
		return fmt.Errorf("%w: %w", domainerrors.ErrStorageUnavailable, err)
	default:
		return err
	}
}

var _ ports.TenantGateway = Gateway{}
