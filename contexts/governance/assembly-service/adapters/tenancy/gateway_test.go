package tenancyadapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"condominia/contexts/governance/assembly-service/adapters/memory"
	"condominia/contexts/governance/assembly-service/domain/entities"
	domainerrors "condominia/contexts/governance/assembly-service/domain/errors"
	"condominia/contexts/governance/assembly-service/ports"
	"condominia/internal/platform/tenancy"
)

func newGateway(t *testing.T) (Gateway, *memory.Namespaces) {
	t.Helper()
	router, err := tenancy.NewRouter(
		tenancy.NewMemoryRegistry(
			tenancy.Tenant{TenantKey: "torre-norte", Schema: "torre_norte"},
			tenancy.Tenant{TenantKey: "torre-sul", Schema: "torre_sul"},
		),
		tenancy.MemoryConnector{},
		tenancy.Options{},
	)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	namespaces := memory.NewNamespaces()
	return Gateway{Router: router, Bind: MemoryBinder(namespaces)}, namespaces
}

func seededAssembly(tenantKey string) entities.Assembly {
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	return entities.Assembly{
		AssemblyID:     "asm-1",
		TenantKey:      tenantKey,
		Title:          "Ordinary",
		Type:           entities.AssemblyTypeOrdinary,
		ScheduledStart: now,
		Agenda:         []entities.AgendaItem{{Numeral: 1, Topic: "Budget", Duration: time.Hour}},
		Status:         entities.AssemblyStatusPlanned,
		QuorumPct:      50,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestGatewayRoutesEachTenantToItsNamespace(t *testing.T) {
	gateway, namespaces := newGateway(t)
	ctx := context.Background()

	err := gateway.WithTenant(ctx, "torre-norte", func(ctx context.Context, store ports.Store) error {
		return store.CreateAssembly(ctx, seededAssembly("torre-norte"), nil)
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := namespaces.Store("torre_norte").GetAssembly(ctx, "asm-1"); err != nil {
		t.Fatalf("assembly should live in torre_norte: %v", err)
	}

	err = gateway.WithTenant(ctx, "torre-sul", func(ctx context.Context, store ports.Store) error {
		_, err := store.GetAssembly(ctx, "asm-1")
		return err
	})
	if !errors.Is(err, domainerrors.ErrAssemblyNotFound) {
		t.Fatalf("expected torre-sul to miss the assembly, got %v", err)
	}
}

func TestGatewayRejectsWritesNamingAnotherTenant(t *testing.T) {
	gateway, _ := newGateway(t)
	ctx := context.Background()

	err := gateway.WithTenant(ctx, "torre-norte", func(ctx context.Context, store ports.Store) error {
		return store.CreateAssembly(ctx, seededAssembly("torre-sul"), nil)
	})
	if domainerrors.KindOf(err) != domainerrors.KindCrossTenantAccess {
		t.Fatalf("expected cross-tenant access, got %v", err)
	}
	if !errors.Is(err, tenancy.ErrCrossTenantAccess) {
		t.Fatalf("router sentinel should stay in the chain: %v", err)
	}

	err = gateway.WithTenant(ctx, "torre-norte", func(ctx context.Context, store ports.Store) error {
		return store.InsertVote(ctx, entities.Vote{AssemblyID: "asm-1", TenantKey: "torre-sul", AgendaNumeral: 1, ResidentID: "r"})
	})
	if domainerrors.KindOf(err) != domainerrors.KindCrossTenantAccess {
		t.Fatalf("expected cross-tenant vote rejection, got %v", err)
	}
}

func TestGatewayRejectsForeignRowsOnRead(t *testing.T) {
	gateway, namespaces := newGateway(t)
	ctx := context.Background()

	// A row carrying another tenant's key inside torre_norte stands in for a
	// misrouted write.
	if err := namespaces.Store("torre_norte").CreateAssembly(ctx, seededAssembly("torre-sul"), nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	err := gateway.WithTenant(ctx, "torre-norte", func(ctx context.Context, store ports.Store) error {
		_, err := store.ListAssemblies(ctx, ports.AssemblyFilter{})
		return err
	})
	if domainerrors.KindOf(err) != domainerrors.KindCrossTenantAccess {
		t.Fatalf("expected cross-tenant access, got %v", err)
	}
}

func TestGatewayTranslatesRouterFailures(t *testing.T) {
	gateway, _ := newGateway(t)
	err := gateway.WithTenant(context.Background(), "ghost", func(context.Context, ports.Store) error {
		t.Fatalf("op must not run for an unknown tenant")
		return nil
	})
	if domainerrors.KindOf(err) != domainerrors.KindUnknownTenant {
		t.Fatalf("expected unknown tenant, got %v", err)
	}
	if !errors.Is(err, tenancy.ErrUnknownTenant) {
		t.Fatalf("router sentinel should stay in the chain: %v", err)
	}

	if !errors.Is(translate(tenancy.ErrNamespaceUnavailable), domainerrors.ErrStorageUnavailable) {
		t.Fatalf("namespace failures are storage unavailability")
	}
	if !domainerrors.Retryable(translate(tenancy.ErrInvalidNamespace)) {
		t.Fatalf("invalid namespaces surface as retryable storage failures")
	}
	plain := errors.New("boom")
	if translate(plain) != plain {
		t.Fatalf("unrelated errors pass through unchanged")
	}
}
