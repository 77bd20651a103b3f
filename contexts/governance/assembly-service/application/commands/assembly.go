package commands

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

// CreateAssemblyCommand schedules a new assembly for the actor's tenant.
type CreateAssemblyCommand struct {
	Actor          entities.Principal
	IdempotencyKey string
	Title          string
	Type           entities.AssemblyType
	ScheduledStart time.Time
	Location       string
	Agenda         []entities.AgendaItem
	QuorumPct      float64
}

type CreateAssemblyResult struct {
	Assembly entities.Assembly
	Replayed bool
}

// UpdateAssemblyCommand revises a planned assembly. Nil fields are kept.
type UpdateAssemblyCommand struct {
	Actor          entities.Principal
	AssemblyID     string
	Title          *string
	Location       *string
	ScheduledStart *time.Time
	Agenda         []entities.AgendaItem
	QuorumPct      *float64
}

type DeleteAssemblyCommand struct {
	Actor      entities.Principal
	AssemblyID string
}

// AssemblyUseCase owns the assembly lifecycle: scheduling, planned edits,
// deletion and the status transitions in transitions.go.
type AssemblyUseCase struct {
	Tenants        ports.TenantGateway
	Idempotency    ports.IdempotencyStore
	Outbox         ports.OutboxWriter
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	IdempotencyTTL time.Duration
	Logger         *slog.Logger
}

// CreateAssembly validates the agenda, freezes the eligible voter set from
// the tenant's resident records and stores the assembly as planned.
func (uc AssemblyUseCase) CreateAssembly(ctx context.Context, cmd CreateAssemblyCommand) (CreateAssemblyResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	tenantKey := entities.NormalizeTenantKey(cmd.Actor.TenantKey)
	logger.Info("assembly create processing started",
		"event", "governance_assembly_create_started",
		"module", "governance/assembly-service",
		"layer", "application",
		"tenant_key", tenantKey,
		"organizer_id", strings.TrimSpace(cmd.Actor.UserID),
	)

	title := strings.TrimSpace(cmd.Title)
	assemblyType := cmd.Type
	if assemblyType == "" {
		assemblyType = entities.AssemblyTypeOrdinary
	}
	agenda, err := validateCreate(title, assemblyType, cmd.ScheduledStart, cmd.QuorumPct, cmd.Agenda)
	if err != nil {
		logger.Warn("assembly create validation failed",
			"event", "governance_assembly_create_validation_failed",
			"module", "governance/assembly-service",
			"layer", "application",
			"tenant_key", tenantKey,
			"error", err.Error(),
		)
		return CreateAssemblyResult{}, err
	}
	if err := services.Authorize(cmd.Actor, services.CapabilityManageAssembly); err != nil {
		logger.Warn("assembly create forbidden",
			"event", "governance_assembly_create_forbidden",
			"module", "governance/assembly-service",
			"layer", "application",
			"tenant_key", tenantKey,
			"organizer_id", strings.TrimSpace(cmd.Actor.UserID),
			"role", string(cmd.Actor.Role),
		)
		return CreateAssemblyResult{}, err
	}

	now := resolveNow(uc.Clock)
	idempotencyKey := strings.TrimSpace(cmd.IdempotencyKey)
	requestHash := hashRequest(map[string]any{
		"op":              "create_assembly",
		"tenant_key":      tenantKey,
		"organizer_id":    strings.TrimSpace(cmd.Actor.UserID),
		"title":           title,
		"type":            string(assemblyType),
		"scheduled_start": cmd.ScheduledStart.UTC(),
		"location":        strings.TrimSpace(cmd.Location),
		"agenda":          agenda,
		"quorum_pct":      cmd.QuorumPct,
	})
	if idempotencyKey != "" && uc.Idempotency != nil {
		record, found, err := uc.Idempotency.Get(ctx, scopedIdempotencyKey(tenantKey, idempotencyKey), now)
		if err != nil {
			logger.Error("assembly create idempotency lookup failed",
				"event", "governance_assembly_create_idempotency_lookup_failed",
				"module", "governance/assembly-service",
				"layer", "application",
				"tenant_key", tenantKey,
				"error", err.Error(),
			)
			return CreateAssemblyResult{}, err
		}
		if found {
			if record.RequestHash != requestHash {
				logger.Warn("assembly create idempotency conflict",
					"event", "governance_assembly_create_idempotency_conflict",
					"module", "governance/assembly-service",
					"layer", "application",
					"tenant_key", tenantKey,
				)
				return CreateAssemblyResult{}, domainerrors.ErrIdempotencyConflict
			}
			var existing entities.Assembly
			err := uc.Tenants.WithTenant(ctx, tenantKey, func(ctx context.Context, store ports.Store) error {
				var err error
				existing, err = store.GetAssembly(ctx, record.ResourceID)
				return err
			})
			if err != nil {
				return CreateAssemblyResult{}, err
			}
			logger.Info("assembly create replayed",
				"event", "governance_assembly_create_replayed",
				"module", "governance/assembly-service",
				"layer", "application",
				"tenant_key", tenantKey,
				"assembly_id", existing.AssemblyID,
			)
			return CreateAssemblyResult{Assembly: existing, Replayed: true}, nil
		}
	}

	var assembly entities.Assembly
	err = uc.Tenants.WithTenant(ctx, tenantKey, func(ctx context.Context, store ports.Store) error {
		residents, err := store.ListEligibleResidents(ctx)
		if err != nil {
			return err
		}
		assemblyID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		voters, totalUnits := freezeVoters(assemblyID, tenantKey, residents)
		if len(voters) == 0 {
			return domainerrors.Invalid("tenant has no eligible voters")
		}
		assembly = entities.Assembly{
			AssemblyID:         assemblyID,
			TenantKey:          tenantKey,
			Title:              title,
			Type:               assemblyType,
			ScheduledStart:     cmd.ScheduledStart.UTC(),
			Location:           strings.TrimSpace(cmd.Location),
			Agenda:             agenda,
			Status:             entities.AssemblyStatusPlanned,
			QuorumPct:          cmd.QuorumPct,
			TotalEligibleUnits: totalUnits,
			OrganizerID:        strings.TrimSpace(cmd.Actor.UserID),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		return store.CreateAssembly(ctx, assembly, voters)
	})
	if err != nil {
		logger.Error("assembly create failed",
			"event", "governance_assembly_create_failed",
			"module", "governance/assembly-service",
			"layer", "application",
			"tenant_key", tenantKey,
			"error", err.Error(),
		)
		return CreateAssemblyResult{}, err
	}

	appendCommittedEvent(ctx, logger, uc.Outbox, uc.IDGen, EventAssemblyCreated, tenantKey, assembly.AssemblyID, now, map[string]any{
		"title":                assembly.Title,
		"type":                 string(assembly.Type),
		"scheduled_start":      assembly.ScheduledStart.Format(time.RFC3339),
		"agenda_items":         len(assembly.Agenda),
		"quorum_pct":           assembly.QuorumPct,
		"total_eligible_units": assembly.TotalEligibleUnits,
		"organizer_id":         assembly.OrganizerID,
	})
	if idempotencyKey != "" && uc.Idempotency != nil {
		if err := uc.Idempotency.Put(ctx, ports.IdempotencyRecord{
			Key:         scopedIdempotencyKey(tenantKey, idempotencyKey),
			RequestHash: requestHash,
			ResourceID:  assembly.AssemblyID,
			ExpiresAt:   now.Add(uc.resolveIdempotencyTTL()),
		}); err != nil {
			return CreateAssemblyResult{}, err
		}
	}

	logger.Info("assembly created",
		"event", "governance_assembly_created",
		"module", "governance/assembly-service",
		"layer", "application",
		"tenant_key", tenantKey,
		"assembly_id", assembly.AssemblyID,
		"agenda_items", len(assembly.Agenda),
		"total_eligible_units", assembly.TotalEligibleUnits,
	)
	return CreateAssemblyResult{Assembly: assembly}, nil
}

// UpdateAssembly applies planned-only edits. The write is conditional on the
// stored status, so an assembly begun concurrently is never overwritten.
func (uc AssemblyUseCase) UpdateAssembly(ctx context.Context, cmd UpdateAssemblyCommand) (entities.Assembly, error) {
	logger := application.ResolveLogger(uc.Logger)
	tenantKey := entities.NormalizeTenantKey(cmd.Actor.TenantKey)
	assemblyID := strings.TrimSpace(cmd.AssemblyID)
	if assemblyID == "" {
		return entities.Assembly{}, domainerrors.Invalid("assembly id is required")
	}
	if err := services.Authorize(cmd.Actor, services.CapabilityManageAssembly); err != nil {
		return entities.Assembly{}, err
	}

	now := resolveNow(uc.Clock)
	var updated entities.Assembly
	err := uc.Tenants.WithTenant(ctx, tenantKey, func(ctx context.Context, store ports.Store) error {
		assembly, err := store.GetAssembly(ctx, assemblyID)
		if err != nil {
			return err
		}
		if assembly.Status != entities.AssemblyStatusPlanned {
			return domainerrors.Reject(domainerrors.ErrInvalidTransition, assemblyID).
				Because("only planned assemblies can be edited")
		}
		if cmd.Title != nil {
			assembly.Title = strings.TrimSpace(*cmd.Title)
		}
		if cmd.Location != nil {
			assembly.Location = strings.TrimSpace(*cmd.Location)
		}
		if cmd.ScheduledStart != nil {
			assembly.ScheduledStart = cmd.ScheduledStart.UTC()
		}
		if cmd.QuorumPct != nil {
			assembly.QuorumPct = *cmd.QuorumPct
		}
		agenda := assembly.Agenda
		if cmd.Agenda != nil {
			agenda = cmd.Agenda
		}
		assembly.Agenda, err = validateCreate(assembly.Title, assembly.Type, assembly.ScheduledStart, assembly.QuorumPct, agenda)
		if err != nil {
			return err
		}
		assembly.UpdatedAt = now
		if err := store.UpdatePlannedAssembly(ctx, assembly); err != nil {
			return err
		}
		updated = assembly
		return nil
	})
	if err != nil {
		logger.Warn("assembly update rejected",
			"event", "governance_assembly_update_rejected",
			"module", "governance/assembly-service",
			"layer", "application",
			"tenant_key", tenantKey,
			"assembly_id", assemblyID,
			"error", err.Error(),
		)
		return entities.Assembly{}, err
	}
	appendCommittedEvent(ctx, logger, uc.Outbox, uc.IDGen, EventAssemblyUpdated, tenantKey, assemblyID, now, map[string]any{
		"title":        updated.Title,
		"agenda_items": len(updated.Agenda),
		"quorum_pct":   updated.QuorumPct,
		"updated_by":   strings.TrimSpace(cmd.Actor.UserID),
	})
	logger.Info("assembly updated",
		"event", "governance_assembly_updated",
		"module", "governance/assembly-service",
		"layer", "application",
		"tenant_key", tenantKey,
		"assembly_id", assemblyID,
	)
	return updated, nil
}

// DeleteAssembly removes a planned assembly and its frozen voter set.
func (uc AssemblyUseCase) DeleteAssembly(ctx context.Context, cmd DeleteAssemblyCommand) error {
	logger := application.ResolveLogger(uc.Logger)
	tenantKey := entities.NormalizeTenantKey(cmd.Actor.TenantKey)
	assemblyID := strings.TrimSpace(cmd.AssemblyID)
	if assemblyID == "" {
		return domainerrors.Invalid("assembly id is required")
	}
	if err := services.Authorize(cmd.Actor, services.CapabilityManageAssembly); err != nil {
		return err
	}
	err := uc.Tenants.WithTenant(ctx, tenantKey, func(ctx context.Context, store ports.Store) error {
		return store.DeletePlannedAssembly(ctx, assemblyID)
	})
	if err != nil {
		logger.Warn("assembly delete rejected",
			"event", "governance_assembly_delete_rejected",
			"module", "governance/assembly-service",
			"layer", "application",
			"tenant_key", tenantKey,
			"assembly_id", assemblyID,
			"error", err.Error(),
		)
		return err
	}
	now := resolveNow(uc.Clock)
	appendCommittedEvent(ctx, logger, uc.Outbox, uc.IDGen, EventAssemblyDeleted, tenantKey, assemblyID, now, map[string]any{
		"deleted_by": strings.TrimSpace(cmd.Actor.UserID),
	})
	logger.Info("assembly deleted",
		"event", "governance_assembly_deleted",
		"module", "governance/assembly-service",
		"layer", "application",
		"tenant_key", tenantKey,
		"assembly_id", assemblyID,
	)
	return nil
}

func (uc AssemblyUseCase) resolveIdempotencyTTL() time.Duration {
	if uc.IdempotencyTTL <= 0 {
		return defaultIdempotencyTTL
	}
	return uc.IdempotencyTTL
}

func validateCreate(
	title string,
	assemblyType entities.AssemblyType,
	scheduledStart time.Time,
	quorumPct float64,
	agenda []entities.AgendaItem,
) ([]entities.AgendaItem, error) {
	if title == "" {
		return nil, domainerrors.Invalid("title is required")
	}
	if !assemblyType.Valid() {
		return nil, domainerrors.Invalid("type must be ordinary or extraordinary")
	}
	if scheduledStart.IsZero() {
		return nil, domainerrors.Invalid("scheduled start is required")
	}
	if err := services.ValidateQuorumPct(quorumPct); err != nil {
		return nil, err
	}
	return services.NormalizeAgenda(agenda)
}

// freezeVoters snapshots active residents into the assembly's voter set.
// Residents without an explicit weight carry one unit.
func freezeVoters(assemblyID string, tenantKey string, residents []ports.Resident) ([]entities.EligibleVoter, float64) {
	voters := make([]entities.EligibleVoter, 0, len(residents))
	seen := make(map[string]struct{}, len(residents))
	total := 0.0
	for _, resident := range residents {
		residentID := strings.TrimSpace(resident.ResidentID)
		if !resident.Active || residentID == "" {
			continue
		}
		if _, dup := seen[residentID]; dup {
			continue
		}
		seen[residentID] = struct{}{}
		weight := resident.Weight
		if weight <= 0 {
			weight = 1
		}
		voters = append(voters, entities.EligibleVoter{
			AssemblyID: assemblyID,
			TenantKey:  tenantKey,
			ResidentID: residentID,
			UnitID:     strings.TrimSpace(resident.UnitID),
			Weight:     weight,
		})
		total += weight
	}
	return voters, total
}

func scopedIdempotencyKey(tenantKey string, key string) string {
	return tenantKey + ":" + key
}
