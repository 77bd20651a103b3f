package commands

import (
	"context"
	"strings"
	"time"

	application "condominia/contexts/governance/assembly-service/application"
	"condominia/contexts/governance/assembly-service/domain/entities"
	domainerrors "condominia/contexts/governance/assembly-service/domain/errors"
	"condominia/contexts/governance/assembly-service/domain/services"
	"condominia/contexts/governance/assembly-service/ports"
)

type TransitionCommand struct {
	Actor      entities.Principal
	AssemblyID string
}

type CancelAssemblyCommand struct {
	Actor      entities.Principal
	AssemblyID string
	Reason     string
}

// BeginAssembly moves a planned assembly in progress once its scheduled
// start has passed. The start instant anchors every voting window.
func (uc AssemblyUseCase) BeginAssembly(ctx context.Context, cmd TransitionCommand) (entities.Assembly, error) {
	now := resolveNow(uc.Clock)
	return uc.transition(ctx, cmd.Actor, cmd.AssemblyID, EventAssemblyStarted, func(assembly entities.Assembly) (ports.StatusTransition, error) {
		if assembly.Status != entities.AssemblyStatusPlanned {
			return ports.StatusTransition{}, domainerrors.Reject(domainerrors.ErrInvalidTransition, assembly.AssemblyID).
				Because("cannot begin from " + string(assembly.Status))
		}
		if now.Before(assembly.ScheduledStart) {
			return ports.StatusTransition{}, domainerrors.Reject(domainerrors.ErrInvalidTransition, assembly.AssemblyID).
				Because("scheduled start " + assembly.ScheduledStart.Format(time.RFC3339) + " not reached")
		}
		startedAt := now
		return ports.StatusTransition{
			AssemblyID: assembly.AssemblyID,
			From:       []entities.AssemblyStatus{entities.AssemblyStatusPlanned},
			To:         entities.AssemblyStatusInProgress,
			StartedAt:  &startedAt,
			UpdatedAt:  now,
		}, nil
	})
}

// CompleteAssembly closes an assembly after its last voting window. From
// here on tallies are authoritative and vote writes are refused.
func (uc AssemblyUseCase) CompleteAssembly(ctx context.Context, cmd TransitionCommand) (entities.Assembly, error) {
	now := resolveNow(uc.Clock)
	return uc.transition(ctx, cmd.Actor, cmd.AssemblyID, EventAssemblyCompleted, func(assembly entities.Assembly) (ports.StatusTransition, error) {
		if assembly.Status != entities.AssemblyStatusInProgress {
			return ports.StatusTransition{}, domainerrors.Reject(domainerrors.ErrInvalidTransition, assembly.AssemblyID).
				Because("cannot complete from " + string(assembly.Status))
		}
		if votingEnds, ok := services.VotingEndsAt(assembly); ok && now.Before(votingEnds) {
			return ports.StatusTransition{}, domainerrors.Reject(domainerrors.ErrInvalidTransition, assembly.AssemblyID).
				Because("voting stays open until " + votingEnds.Format(time.RFC3339))
		}
		endedAt := now
		return ports.StatusTransition{
			AssemblyID: assembly.AssemblyID,
			From:       []entities.AssemblyStatus{entities.AssemblyStatusInProgress},
			To:         entities.AssemblyStatusCompleted,
			EndedAt:    &endedAt,
			UpdatedAt:  now,
		}, nil
	})
}

// CancelAssembly terminates a planned or running assembly. Stored votes stay
// for audit but no tally of the assembly is ever authoritative.
func (uc AssemblyUseCase) CancelAssembly(ctx context.Context, cmd CancelAssemblyCommand) (entities.Assembly, error) {
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return entities.Assembly{}, domainerrors.Invalid("cancel reason is required")
	}
	now := resolveNow(uc.Clock)
	return uc.transition(ctx, cmd.Actor, cmd.AssemblyID, EventAssemblyCancelled, func(assembly entities.Assembly) (ports.StatusTransition, error) {
		if assembly.Status.Terminal() {
			return ports.StatusTransition{}, domainerrors.Reject(domainerrors.ErrInvalidTransition, assembly.AssemblyID).
				Because("cannot cancel from " + string(assembly.Status))
		}
		endedAt := now
		return ports.StatusTransition{
			AssemblyID:   assembly.AssemblyID,
			From:         []entities.AssemblyStatus{entities.AssemblyStatusPlanned, entities.AssemblyStatusInProgress},
			To:           entities.AssemblyStatusCancelled,
			EndedAt:      &endedAt,
			CancelReason: reason,
			UpdatedAt:    now,
		}, nil
	})
}

// transition loads the assembly, lets plan decide the compare-and-swap and
// applies it. Losing a race surfaces the store's ErrInvalidTransition.
func (uc AssemblyUseCase) transition(
	ctx context.Context,
	actor entities.Principal,
	rawAssemblyID string,
	eventType string,
	plan func(entities.Assembly) (ports.StatusTransition, error),
) (entities.Assembly, error) {
	logger := application.ResolveLogger(uc.Logger)
	tenantKey := entities.NormalizeTenantKey(actor.TenantKey)
	assemblyID := strings.TrimSpace(rawAssemblyID)
	logger.Info("assembly transition processing started",
		"event", "governance_assembly_transition_started",
		"module", "governance/assembly-service",
		"layer", "application",
		"tenant_key", tenantKey,
		"assembly_id", assemblyID,
		"transition", eventType,
		"actor_id", strings.TrimSpace(actor.UserID),
	)
	if assemblyID == "" {
		return entities.Assembly{}, domainerrors.Invalid("assembly id is required")
	}
	if err := services.Authorize(actor, services.CapabilityTransitionAssembly); err != nil {
		logger.Warn("assembly transition forbidden",
			"event", "governance_assembly_transition_forbidden",
			"module", "governance/assembly-service",
			"layer", "application",
			"tenant_key", tenantKey,
			"assembly_id", assemblyID,
			"actor_id", strings.TrimSpace(actor.UserID),
			"role", string(actor.Role),
		)
		return entities.Assembly{}, err
	}

	var (
		result     entities.Assembly
		transition ports.StatusTransition
	)
	err := uc.Tenants.WithTenant(ctx, tenantKey, func(ctx context.Context, store ports.Store) error {
		assembly, err := store.GetAssembly(ctx, assemblyID)
		if err != nil {
			return err
		}
		transition, err = plan(assembly)
		if err != nil {
			return err
		}
		result, err = store.TransitionAssembly(ctx, transition)
		return err
	})
	if err != nil {
		logger.Warn("assembly transition rejected",
			"event", "governance_assembly_transition_rejected",
			"module", "governance/assembly-service",
			"layer", "application",
			"tenant_key", tenantKey,
			"assembly_id", assemblyID,
			"transition", eventType,
			"error", err.Error(),
		)
		return entities.Assembly{}, err
	}

	data := map[string]any{
		"status":   string(result.Status),
		"actor_id": strings.TrimSpace(actor.UserID),
	}
	if result.StartedAt != nil {
		data["started_at"] = result.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if result.EndedAt != nil {
		data["ended_at"] = result.EndedAt.UTC().Format(time.RFC3339Nano)
	}
	if result.CancelReason != "" {
		data["reason"] = result.CancelReason
	}
	appendCommittedEvent(ctx, logger, uc.Outbox, uc.IDGen, eventType, tenantKey, assemblyID, transition.UpdatedAt, data)
	logger.Info("assembly transitioned",
		"event", "governance_assembly_transitioned",
		"module", "governance/assembly-service",
		"layer", "application",
		"tenant_key", tenantKey,
		"assembly_id", assemblyID,
		"status", string(result.Status),
	)
	return result, nil
}
