package queries

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "condominia/contexts/governance/assembly-service/application"
	"condominia/contexts/governance/assembly-service/domain/entities"
	domainerrors "condominia/contexts/governance/assembly-service/domain/errors"
	"condominia/contexts/governance/assembly-service/domain/services"
	"condominia/contexts/governance/assembly-service/ports"
)

// QueryUseCase serves the read side. Every figure is recomputed from stored
// rows on each call; nothing here caches a counter.
type QueryUseCase struct {
	Tenants ports.TenantGateway
	Clock   ports.Clock
	Policy  services.DecisionPolicy
	Logger  *slog.Logger
}

func (uc QueryUseCase) GetAssembly(ctx context.Context, actor entities.Principal, assemblyID string) (entities.Assembly, error) {
	if err := services.Authorize(actor, services.CapabilityReadResults); err != nil {
		return entities.Assembly{}, err
	}
	var assembly entities.Assembly
	err := uc.Tenants.WithTenant(ctx, actor.TenantKey, func(ctx context.Context, store ports.Store) error {
		var err error
		assembly, err = store.GetAssembly(ctx, strings.TrimSpace(assemblyID))
		return err
	})
	return assembly, err
}

func (uc QueryUseCase) ListAssemblies(
	ctx context.Context,
	actor entities.Principal,
	filter ports.AssemblyFilter,
) ([]entities.Assembly, error) {
	if err := services.Authorize(actor, services.CapabilityReadResults); err != nil {
		return nil, err
	}
	var items []entities.Assembly
	err := uc.Tenants.WithTenant(ctx, actor.TenantKey, func(ctx context.Context, store ports.Store) error {
		var err error
		items, err = store.ListAssemblies(ctx, filter)
		return err
	})
	return items, err
}

func (uc QueryUseCase) ListAttendance(
	ctx context.Context,
	actor entities.Principal,
	assemblyID string,
) ([]entities.AttendanceRecord, error) {
	if err := services.Authorize(actor, services.CapabilityReadResults); err != nil {
		return nil, err
	}
	var records []entities.AttendanceRecord
	err := uc.Tenants.WithTenant(ctx, actor.TenantKey, func(ctx context.Context, store ports.Store) error {
		if _, err := store.GetAssembly(ctx, strings.TrimSpace(assemblyID)); err != nil {
			return err
		}
		var err error
		records, err = store.ListAttendance(ctx, strings.TrimSpace(assemblyID))
		return err
	})
	return records, err
}

// Quorum aggregates verified attendance against the frozen voter weights.
func (uc QueryUseCase) Quorum(ctx context.Context, actor entities.Principal, assemblyID string) (entities.QuorumSnapshot, error) {
	if err := services.Authorize(actor, services.CapabilityReadResults); err != nil {
		return entities.QuorumSnapshot{}, err
	}
	var snapshot entities.QuorumSnapshot
	err := uc.Tenants.WithTenant(ctx, actor.TenantKey, func(ctx context.Context, store ports.Store) error {
		assembly, err := store.GetAssembly(ctx, strings.TrimSpace(assemblyID))
		if err != nil {
			return err
		}
		snapshot, err = uc.quorum(ctx, store, assembly)
		return err
	})
	return snapshot, err
}

// Tally aggregates one agenda item's votes. It is safe to call while voting
// continues and is stable once the item's window has closed.
func (uc QueryUseCase) Tally(
	ctx context.Context,
	actor entities.Principal,
	assemblyID string,
	agendaNumeral int,
) (entities.Tally, error) {
	if err := services.Authorize(actor, services.CapabilityReadResults); err != nil {
		return entities.Tally{}, err
	}
	id := strings.TrimSpace(assemblyID)
	var tally entities.Tally
	err := uc.Tenants.WithTenant(ctx, actor.TenantKey, func(ctx context.Context, store ports.Store) error {
		assembly, err := store.GetAssembly(ctx, id)
		if err != nil {
			return err
		}
		item, ok := assembly.AgendaItem(agendaNumeral)
		if !ok {
			return domainerrors.Reject(domainerrors.ErrAgendaItemNotFound, id).Item(agendaNumeral)
		}
		votes, err := store.ListVotesByItem(ctx, id, agendaNumeral)
		if err != nil {
			return err
		}
		tally = services.ComputeTally(assembly, item, votes, uc.Policy.RuleFor(assembly.Type), uc.now())
		return nil
	})
	return tally, err
}

// Results assembles every item's tally with a quorum snapshot.
func (uc QueryUseCase) Results(ctx context.Context, actor entities.Principal, assemblyID string) (entities.AssemblyResults, error) {
	if err := services.Authorize(actor, services.CapabilityReadResults); err != nil {
		return entities.AssemblyResults{}, err
	}
	return uc.ResultsForTenant(ctx, actor.TenantKey, assemblyID)
}

// ResultsForTenant serves trusted in-process callers such as the result
// publisher, which act on events rather than on behalf of a principal.
func (uc QueryUseCase) ResultsForTenant(ctx context.Context, tenantKey string, assemblyID string) (entities.AssemblyResults, error) {
	logger := application.ResolveLogger(uc.Logger)
	id := strings.TrimSpace(assemblyID)
	var results entities.AssemblyResults
	err := uc.Tenants.WithTenant(ctx, tenantKey, func(ctx context.Context, store ports.Store) error {
		assembly, err := store.GetAssembly(ctx, id)
		if err != nil {
			return err
		}
		quorum, err := uc.quorum(ctx, store, assembly)
		if err != nil {
			return err
		}
		votes, err := store.ListVotesByAssembly(ctx, id)
		if err != nil {
			return err
		}
		now := uc.now()
		rule := uc.Policy.RuleFor(assembly.Type)
		results = entities.AssemblyResults{
			AssemblyID:    assembly.AssemblyID,
			TenantKey:     assembly.TenantKey,
			Title:         assembly.Title,
			Type:          assembly.Type,
			Status:        assembly.Status,
			Authoritative: assembly.Status == entities.AssemblyStatusCompleted,
			Void:          assembly.Status == entities.AssemblyStatusCancelled,
			CancelReason:  assembly.CancelReason,
			StartedAt:     assembly.StartedAt,
			EndedAt:       assembly.EndedAt,
			Quorum:        quorum,
			Items:         make([]entities.Tally, 0, len(assembly.Agenda)),
			ComputedAt:    now,
		}
		for _, item := range assembly.Agenda {
			results.Items = append(results.Items, services.ComputeTally(assembly, item, votes, rule, now))
		}
		return nil
	})
	if err != nil {
		logger.Warn("assembly results unavailable",
			"event", "governance_results_failed",
			"module", "governance/assembly-service",
			"layer", "application",
			"tenant_key", strings.TrimSpace(tenantKey),
			"assembly_id", id,
			"error", err.Error(),
		)
		return entities.AssemblyResults{}, err
	}
	return results, nil
}

func (uc QueryUseCase) quorum(ctx context.Context, store ports.Store, assembly entities.Assembly) (entities.QuorumSnapshot, error) {
	voters, err := store.ListEligibleVoters(ctx, assembly.AssemblyID)
	if err != nil {
		return entities.QuorumSnapshot{}, err
	}
	records, err := store.ListAttendance(ctx, assembly.AssemblyID)
	if err != nil {
		return entities.QuorumSnapshot{}, err
	}
	return services.ComputeQuorum(assembly, voters, records, uc.now()), nil
}

func (uc QueryUseCase) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
