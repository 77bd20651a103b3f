package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "condominia/contexts/governance/assembly-service/application"
	"condominia/contexts/governance/assembly-service/domain/entities"
	domainerrors "condominia/contexts/governance/assembly-service/domain/errors"
	"condominia/contexts/governance/assembly-service/domain/services"
	"condominia/contexts/governance/assembly-service/ports"
)

// CastVoteCommand records one ballot. An empty ResidentID votes as the actor.
type CastVoteCommand struct {
	Actor         entities.Principal
	AssemblyID    string
	AgendaNumeral int
	ResidentID    string
	Choice        string
}

type VoteUseCase struct {
	Tenants ports.TenantGateway
	Outbox  ports.OutboxWriter
	Clock   ports.Clock
	IDGen   ports.IDGenerator
	Logger  *slog.Logger
}

// CastVote admits at most one vote per (assembly, agenda numeral, resident).
// Preconditions are checked in a fixed order so each rejection is distinct;
// the final uniqueness check is the store's constraint, not a prior read.
func (uc VoteUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (entities.Vote, error) {
	logger := application.ResolveLogger(uc.Logger)
	tenantKey := entities.NormalizeTenantKey(cmd.Actor.TenantKey)
	assemblyID := strings.TrimSpace(cmd.AssemblyID)
	residentID := strings.TrimSpace(cmd.ResidentID)
	if residentID == "" {
		residentID = strings.TrimSpace(cmd.Actor.UserID)
	}
	logger.Info("vote cast processing started",
		"event", "governance_vote_cast_started",
		"module", "governance/assembly-service",
		"layer", "application",
		"tenant_key", tenantKey,
		"assembly_id", assemblyID,
		"agenda_numeral", cmd.AgendaNumeral,
		"resident_id", residentID,
	)
	if assemblyID == "" || residentID == "" || cmd.AgendaNumeral <= 0 || strings.TrimSpace(cmd.Choice) == "" {
		return entities.Vote{}, domainerrors.Invalid("assembly id, agenda numeral, resident id and choice are required")
	}
	if err := services.AuthorizeFor(cmd.Actor, residentID, services.CapabilityVoteOnBehalf); err != nil {
		logger.Warn("vote cast forbidden",
			"event", "governance_vote_cast_forbidden",
			"module", "governance/assembly-service",
			"layer", "application",
			"tenant_key", tenantKey,
			"assembly_id", assemblyID,
			"resident_id", residentID,
			"actor_id", strings.TrimSpace(cmd.Actor.UserID),
		)
		return entities.Vote{}, err
	}

	now := resolveNow(uc.Clock)
	var vote entities.Vote
	err := uc.Tenants.WithTenant(ctx, tenantKey, func(ctx context.Context, store ports.Store) error {
		assembly, err := store.GetAssembly(ctx, assemblyID)
		if err != nil {
			return err
		}
		switch assembly.Status {
		case entities.AssemblyStatusInProgress:
		case entities.AssemblyStatusCompleted:
			return domainerrors.Reject(domainerrors.ErrSessionClosed, assemblyID).Item(cmd.AgendaNumeral)
		default:
			return domainerrors.Reject(domainerrors.ErrSessionNotActive, assemblyID).
				Item(cmd.AgendaNumeral).
				Because("assembly is " + string(assembly.Status))
		}

		item, ok := assembly.AgendaItem(cmd.AgendaNumeral)
		if !ok {
			return domainerrors.Reject(domainerrors.ErrAgendaItemNotFound, assemblyID).Item(cmd.AgendaNumeral)
		}
		window, ok := services.WindowFor(assembly, item.Numeral)
		if !ok || !window.Contains(now) {
			return domainerrors.Reject(domainerrors.ErrVotingWindowClosed, assemblyID).
				Item(item.Numeral).
				Because(describeWindow(window, now))
		}
		choice, ok := item.CanonicalChoice(cmd.Choice)
		if !ok {
			return &domainerrors.Rejection{
				Err:           domainerrors.ErrValidation,
				AssemblyID:    assemblyID,
				AgendaNumeral: item.Numeral,
				Reason:        fmt.Sprintf("choice must be one of %s", strings.Join(item.Choices(), ", ")),
			}
		}

		voters, err := store.ListEligibleVoters(ctx, assemblyID)
		if err != nil {
			return err
		}
		if err := uc.admitItem(ctx, store, assembly, item.Numeral, voters, now); err != nil {
			return err
		}

		record, found, err := store.GetAttendance(ctx, assemblyID, residentID)
		if err != nil {
			return err
		}
		voter, eligible := findVoter(voters, residentID)
		if !found || !record.CanVote() || !eligible {
			return domainerrors.Reject(domainerrors.ErrNotEligibleToVote, assemblyID).
				Item(item.Numeral).
				Resident(residentID).
				Because("verified attendance is required")
		}

		voteID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		vote = entities.Vote{
			VoteID:        voteID,
			AssemblyID:    assemblyID,
			TenantKey:     tenantKey,
			AgendaNumeral: item.Numeral,
			ResidentID:    residentID,
			Choice:        choice,
			Weight:        voter.Weight,
			CastBy:        strings.TrimSpace(cmd.Actor.UserID),
			CastAt:        now,
		}
		if err := store.InsertVote(ctx, vote); err != nil {
			if domainerrors.KindOf(err) == domainerrors.KindDuplicateVote {
				return domainerrors.Reject(domainerrors.ErrDuplicateVote, assemblyID).
					Item(item.Numeral).
					Resident(residentID)
			}
			return err
		}
		return nil
	})
	if err != nil {
		logger.Warn("vote cast rejected",
			"event", "governance_vote_cast_rejected",
			"module", "governance/assembly-service",
			"layer", "application",
			"tenant_key", tenantKey,
			"assembly_id", assemblyID,
			"agenda_numeral", cmd.AgendaNumeral,
			"resident_id", residentID,
			"reason", string(domainerrors.KindOf(err)),
			"error", err.Error(),
		)
		return entities.Vote{}, err
	}

	appendCommittedEvent(ctx, logger, uc.Outbox, uc.IDGen, EventVoteCast, tenantKey, assemblyID, now, map[string]any{
		"vote_id":        vote.VoteID,
		"agenda_numeral": vote.AgendaNumeral,
		"resident_id":    vote.ResidentID,
		"choice":         vote.Choice,
		"weight":         vote.Weight,
		"cast_by":        vote.CastBy,
	})
	logger.Info("vote cast",
		"event", "governance_vote_cast",
		"module", "governance/assembly-service",
		"layer", "application",
		"tenant_key", tenantKey,
		"assembly_id", assemblyID,
		"agenda_numeral", vote.AgendaNumeral,
		"resident_id", vote.ResidentID,
		"vote_id", vote.VoteID,
		"weight", vote.Weight,
	)
	return vote, nil
}

// admitItem evaluates quorum once per agenda item. The first admitted vote
// stores a gate; later votes consult only the gate so quorum cannot flap
// mid-item. Nothing is stored while quorum is short.
func (uc VoteUseCase) admitItem(
	ctx context.Context,
	store ports.Store,
	assembly entities.Assembly,
	numeral int,
	voters []entities.EligibleVoter,
	now time.Time,
) error {
	if _, found, err := store.GetItemGate(ctx, assembly.AssemblyID, numeral); err != nil || found {
		return err
	}
	records, err := store.ListAttendance(ctx, assembly.AssemblyID)
	if err != nil {
		return err
	}
	quorum := services.ComputeQuorum(assembly, voters, records, now)
	if !quorum.Reached {
		return domainerrors.Reject(domainerrors.ErrQuorumNotMet, assembly.AssemblyID).
			Item(numeral).
			Because(fmt.Sprintf("%.2f%% of units present, %.2f%% required", quorum.CurrentPct, quorum.RequiredPct))
	}
	gate, err := store.OpenItemGate(ctx, entities.ItemGate{
		AssemblyID:     assembly.AssemblyID,
		TenantKey:      assembly.TenantKey,
		AgendaNumeral:  numeral,
		ConfirmedUnits: quorum.ConfirmedUnits,
		QuorumPct:      quorum.CurrentPct,
		RequiredPct:    quorum.RequiredPct,
		OpenedAt:       now,
	})
	if err != nil {
		return err
	}
	application.ResolveLogger(uc.Logger).Info("agenda item opened for voting",
		"event", "governance_agenda_item_opened",
		"module", "governance/assembly-service",
		"layer", "application",
		"tenant_key", assembly.TenantKey,
		"assembly_id", assembly.AssemblyID,
		"agenda_numeral", numeral,
		"quorum_pct", gate.QuorumPct,
	)
	return nil
}

func describeWindow(window entities.VotingWindow, now time.Time) string {
	if window.Start.IsZero() {
		return "agenda item has no voting window"
	}
	if now.Before(window.Start) {
		return "window opens at " + window.Start.Format(time.RFC3339)
	}
	return "window closed at " + window.End.Format(time.RFC3339)
}
