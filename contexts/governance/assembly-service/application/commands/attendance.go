package commands

import (
	"context"
	"log/slog"
	"strings"

	application "condominia/contexts/governance/assembly-service/application"
	"condominia/contexts/governance/assembly-service/domain/entities"
	domainerrors "condominia/contexts/governance/assembly-service/domain/errors"
	"condominia/contexts/governance/assembly-service/domain/services"
	"condominia/contexts/governance/assembly-service/ports"
)

// CheckInCommand confirms attendance. An empty ResidentID checks in the
// actor; a delegate name marks proxy attendance.
type CheckInCommand struct {
	Actor        entities.Principal
	AssemblyID   string
	ResidentID   string
	DelegateName string
}

type VerifyAttendanceCommand struct {
	Actor      entities.Principal
	AssemblyID string
	ResidentID string
}

type AttendanceUseCase struct {
	Tenants ports.TenantGateway
	Outbox  ports.OutboxWriter
	Clock   ports.Clock
	IDGen   ports.IDGenerator
	Logger  *slog.Logger
}

// CheckIn is idempotent per (assembly, resident): checking in again
// refreshes the confirmation time and never counts twice.
func (uc AttendanceUseCase) CheckIn(ctx context.Context, cmd CheckInCommand) (entities.AttendanceRecord, error) {
	logger := application.ResolveLogger(uc.Logger)
	tenantKey := entities.NormalizeTenantKey(cmd.Actor.TenantKey)
	assemblyID := strings.TrimSpace(cmd.AssemblyID)
	residentID := strings.TrimSpace(cmd.ResidentID)
	if residentID == "" {
		residentID = strings.TrimSpace(cmd.Actor.UserID)
	}
	if assemblyID == "" || residentID == "" {
		return entities.AttendanceRecord{}, domainerrors.Invalid("assembly id and resident id are required")
	}
	if err := services.AuthorizeFor(cmd.Actor, residentID, services.CapabilityCheckInOthers); err != nil {
		logger.Warn("attendance check-in forbidden",
			"event", "governance_attendance_check_in_forbidden",
			"module", "governance/assembly-service",
			"layer", "application",
			"tenant_key", tenantKey,
			"assembly_id", assemblyID,
			"resident_id", residentID,
			"actor_id", strings.TrimSpace(cmd.Actor.UserID),
		)
		return entities.AttendanceRecord{}, err
	}

	now := resolveNow(uc.Clock)
	var stored entities.AttendanceRecord
	err := uc.Tenants.WithTenant(ctx, tenantKey, func(ctx context.Context, store ports.Store) error {
		assembly, err := store.GetAssembly(ctx, assemblyID)
		if err != nil {
			return err
		}
		if err := requireOpenSession(assembly); err != nil {
			return err
		}
		voters, err := store.ListEligibleVoters(ctx, assemblyID)
		if err != nil {
			return err
		}
		if _, ok := findVoter(voters, residentID); !ok {
			return domainerrors.Reject(domainerrors.ErrNotEligibleToVote, assemblyID).
				Resident(residentID).
				Because("resident is not in the frozen voter set")
		}
		stored, err = store.UpsertAttendance(ctx, entities.AttendanceRecord{
			AssemblyID:   assemblyID,
			TenantKey:    tenantKey,
			ResidentID:   residentID,
			DelegateName: strings.TrimSpace(cmd.DelegateName),
			Confirmed:    true,
			ConfirmedAt:  now,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
		return err
	})
	if err != nil {
		logger.Warn("attendance check-in rejected",
			"event", "governance_attendance_check_in_rejected",
			"module", "governance/assembly-service",
			"layer", "application",
			"tenant_key", tenantKey,
			"assembly_id", assemblyID,
			"resident_id", residentID,
			"error", err.Error(),
		)
		return entities.AttendanceRecord{}, err
	}

	appendCommittedEvent(ctx, logger, uc.Outbox, uc.IDGen, EventAttendanceCheckedIn, tenantKey, assemblyID, now, map[string]any{
		"resident_id":   residentID,
		"delegate_name": stored.DelegateName,
		"checked_in_by": strings.TrimSpace(cmd.Actor.UserID),
	})
	logger.Info("attendance checked in",
		"event", "governance_attendance_checked_in",
		"module", "governance/assembly-service",
		"layer", "application",
		"tenant_key", tenantKey,
		"assembly_id", assemblyID,
		"resident_id", residentID,
		"proxy", stored.DelegateName != "",
	)
	return stored, nil
}

// Verify flips verified on a confirmed record. Only verified attendance
// counts toward quorum and admits the resident to the ballot.
func (uc AttendanceUseCase) Verify(ctx context.Context, cmd VerifyAttendanceCommand) (entities.AttendanceRecord, error) {
	logger := application.ResolveLogger(uc.Logger)
	tenantKey := entities.NormalizeTenantKey(cmd.Actor.TenantKey)
	assemblyID := strings.TrimSpace(cmd.AssemblyID)
	residentID := strings.TrimSpace(cmd.ResidentID)
	if assemblyID == "" || residentID == "" {
		return entities.AttendanceRecord{}, domainerrors.Invalid("assembly id and resident id are required")
	}
	if err := services.Authorize(cmd.Actor, services.CapabilityVerifyAttendance); err != nil {
		logger.Warn("attendance verify forbidden",
			"event", "governance_attendance_verify_forbidden",
			"module", "governance/assembly-service",
			"layer", "application",
			"tenant_key", tenantKey,
			"assembly_id", assemblyID,
			"actor_id", strings.TrimSpace(cmd.Actor.UserID),
			"role", string(cmd.Actor.Role),
		)
		return entities.AttendanceRecord{}, err
	}

	now := resolveNow(uc.Clock)
	verifier := strings.TrimSpace(cmd.Actor.UserID)
	var record entities.AttendanceRecord
	err := uc.Tenants.WithTenant(ctx, tenantKey, func(ctx context.Context, store ports.Store) error {
		assembly, err := store.GetAssembly(ctx, assemblyID)
		if err != nil {
			return err
		}
		if err := requireOpenSession(assembly); err != nil {
			return err
		}
		record, err = store.MarkAttendanceVerified(ctx, assemblyID, residentID, verifier, now)
		return err
	})
	if err != nil {
		logger.Warn("attendance verify rejected",
			"event", "governance_attendance_verify_rejected",
			"module", "governance/assembly-service",
			"layer", "application",
			"tenant_key", tenantKey,
			"assembly_id", assemblyID,
			"resident_id", residentID,
			"error", err.Error(),
		)
		return entities.AttendanceRecord{}, err
	}

	appendCommittedEvent(ctx, logger, uc.Outbox, uc.IDGen, EventAttendanceVerified, tenantKey, assemblyID, now, map[string]any{
		"resident_id": residentID,
		"verified_by": verifier,
	})
	logger.Info("attendance verified",
		"event", "governance_attendance_verified",
		"module", "governance/assembly-service",
		"layer", "application",
		"tenant_key", tenantKey,
		"assembly_id", assemblyID,
		"resident_id", residentID,
		"verified_by", verifier,
	)
	return record, nil
}

// requireOpenSession refuses attendance writes on terminal assemblies.
func requireOpenSession(assembly entities.Assembly) error {
	switch assembly.Status {
	case entities.AssemblyStatusCompleted:
		return domainerrors.Reject(domainerrors.ErrSessionClosed, assembly.AssemblyID)
	case entities.AssemblyStatusCancelled:
		return domainerrors.Reject(domainerrors.ErrSessionNotActive, assembly.AssemblyID).Because("assembly was cancelled")
	}
	return nil
}

func findVoter(voters []entities.EligibleVoter, residentID string) (entities.EligibleVoter, bool) {
	for _, voter := range voters {
		if voter.ResidentID == residentID {
			return voter, true
		}
	}
	return entities.EligibleVoter{}, false
}
