package httpadapter

import (
	"context"
	"log/slog"
	"time"

	"condominia/contexts/governance/assembly-service/application/commands"
	"condominia/contexts/governance/assembly-service/application/queries"
	"condominia/contexts/governance/assembly-service/domain/entities"
	"condominia/contexts/governance/assembly-service/ports"
	httptransport "condominia/contexts/governance/assembly-service/transport/http"
)

type Handler struct {
	Assemblies commands.AssemblyUseCase
	Attendance commands.AttendanceUseCase
	Votes      commands.VoteUseCase
	Queries    queries.QueryUseCase
	Logger     *slog.Logger
}

func (h Handler) CreateAssemblyHandler(
	ctx context.Context,
	actor entities.Principal,
	idempotencyKey string,
	req httptransport.CreateAssemblyRequest,
) (httptransport.AssemblyResponse, error) {
	result, err := h.Assemblies.CreateAssembly(ctx, commands.CreateAssemblyCommand{
		Actor:          actor,
		IdempotencyKey: idempotencyKey,
		Title:          req.Title,
		Type:           entities.AssemblyType(req.Type),
		ScheduledStart: req.ScheduledStart,
		Location:       req.Location,
		Agenda:         agendaFromPayload(req.Agenda),
		QuorumPct:      req.QuorumPct,
	})
	if err != nil {
		return httptransport.AssemblyResponse{}, err
	}
	response := mapAssembly(result.Assembly)
	response.Replayed = result.Replayed
	return response, nil
}

func (h Handler) UpdateAssemblyHandler(
	ctx context.Context,
	actor entities.Principal,
	assemblyID string,
	req httptransport.UpdateAssemblyRequest,
) (httptransport.AssemblyResponse, error) {
	var agenda []entities.AgendaItem
	if len(req.Agenda) > 0 {
		agenda = agendaFromPayload(req.Agenda)
	}
	assembly, err := h.Assemblies.UpdateAssembly(ctx, commands.UpdateAssemblyCommand{
		Actor:          actor,
		AssemblyID:     assemblyID,
		Title:          req.Title,
		Location:       req.Location,
		ScheduledStart: req.ScheduledStart,
		Agenda:         agenda,
		QuorumPct:      req.QuorumPct,
	})
	if err != nil {
		return httptransport.AssemblyResponse{}, err
	}
	return mapAssembly(assembly), nil
}

func (h Handler) DeleteAssemblyHandler(ctx context.Context, actor entities.Principal, assemblyID string) error {
	return h.Assemblies.DeleteAssembly(ctx, commands.DeleteAssemblyCommand{
		Actor:      actor,
		AssemblyID: assemblyID,
	})
}

func (h Handler) BeginAssemblyHandler(ctx context.Context, actor entities.Principal, assemblyID string) (httptransport.AssemblyResponse, error) {
	assembly, err := h.Assemblies.BeginAssembly(ctx, commands.TransitionCommand{Actor: actor, AssemblyID: assemblyID})
	if err != nil {
		return httptransport.AssemblyResponse{}, err
	}
	return mapAssembly(assembly), nil
}

func (h Handler) CompleteAssemblyHandler(ctx context.Context, actor entities.Principal, assemblyID string) (httptransport.AssemblyResponse, error) {
	assembly, err := h.Assemblies.CompleteAssembly(ctx, commands.TransitionCommand{Actor: actor, AssemblyID: assemblyID})
	if err != nil {
		return httptransport.AssemblyResponse{}, err
	}
	return mapAssembly(assembly), nil
}

func (h Handler) CancelAssemblyHandler(
	ctx context.Context,
	actor entities.Principal,
	assemblyID string,
	req httptransport.CancelAssemblyRequest,
) (httptransport.AssemblyResponse, error) {
	assembly, err := h.Assemblies.CancelAssembly(ctx, commands.CancelAssemblyCommand{
		Actor:      actor,
		AssemblyID: assemblyID,
		Reason:     req.Reason,
	})
	if err != nil {
		return httptransport.AssemblyResponse{}, err
	}
	return mapAssembly(assembly), nil
}

func (h Handler) GetAssemblyHandler(ctx context.Context, actor entities.Principal, assemblyID string) (httptransport.AssemblyResponse, error) {
	assembly, err := h.Queries.GetAssembly(ctx, actor, assemblyID)
	if err != nil {
		return httptransport.AssemblyResponse{}, err
	}
	return mapAssembly(assembly), nil
}

func (h Handler) ListAssembliesHandler(
	ctx context.Context,
	actor entities.Principal,
	status string,
	limit int,
) (httptransport.AssemblyListResponse, error) {
	items, err := h.Queries.ListAssemblies(ctx, actor, ports.AssemblyFilter{
		Status: entities.AssemblyStatus(status),
		Limit:  limit,
	})
	if err != nil {
		return httptransport.AssemblyListResponse{}, err
	}
	response := httptransport.AssemblyListResponse{Items: make([]httptransport.AssemblyResponse, 0, len(items))}
	for _, item := range items {
		response.Items = append(response.Items, mapAssembly(item))
	}
	return response, nil
}

func (h Handler) CheckInHandler(
	ctx context.Context,
	actor entities.Principal,
	assemblyID string,
	req httptransport.CheckInRequest,
) (httptransport.AttendanceResponse, error) {
	record, err := h.Attendance.CheckIn(ctx, commands.CheckInCommand{
		Actor:        actor,
		AssemblyID:   assemblyID,
		ResidentID:   req.ResidentID,
		DelegateName: req.DelegateName,
	})
	if err != nil {
		return httptransport.AttendanceResponse{}, err
	}
	return mapAttendance(record), nil
}

func (h Handler) VerifyAttendanceHandler(
	ctx context.Context,
	actor entities.Principal,
	assemblyID string,
	req httptransport.VerifyAttendanceRequest,
) (httptransport.AttendanceResponse, error) {
	record, err := h.Attendance.Verify(ctx, commands.VerifyAttendanceCommand{
		Actor:      actor,
		AssemblyID: assemblyID,
		ResidentID: req.ResidentID,
	})
	if err != nil {
		return httptransport.AttendanceResponse{}, err
	}
	return mapAttendance(record), nil
}

func (h Handler) ListAttendanceHandler(
	ctx context.Context,
	actor entities.Principal,
	assemblyID string,
) (httptransport.AttendanceListResponse, error) {
	records, err := h.Queries.ListAttendance(ctx, actor, assemblyID)
	if err != nil {
		return httptransport.AttendanceListResponse{}, err
	}
	response := httptransport.AttendanceListResponse{Items: make([]httptransport.AttendanceResponse, 0, len(records))}
	for _, record := range records {
		response.Items = append(response.Items, mapAttendance(record))
	}
	return response, nil
}

func (h Handler) CastVoteHandler(
	ctx context.Context,
	actor entities.Principal,
	assemblyID string,
	agendaNumeral int,
	req httptransport.CastVoteRequest,
) (httptransport.VoteResponse, error) {
	vote, err := h.Votes.CastVote(ctx, commands.CastVoteCommand{
		Actor:         actor,
		AssemblyID:    assemblyID,
		AgendaNumeral: agendaNumeral,
		ResidentID:    req.ResidentID,
		Choice:        req.Choice,
	})
	if err != nil {
		return httptransport.VoteResponse{}, err
	}
	return httptransport.VoteResponse{
		VoteID:        vote.VoteID,
		AssemblyID:    vote.AssemblyID,
		AgendaNumeral: vote.AgendaNumeral,
		ResidentID:    vote.ResidentID,
		Choice:        vote.Choice,
		Weight:        vote.Weight,
		CastBy:        vote.CastBy,
		CastAt:        vote.CastAt,
	}, nil
}

func (h Handler) QuorumHandler(ctx context.Context, actor entities.Principal, assemblyID string) (httptransport.QuorumResponse, error) {
	snapshot, err := h.Queries.Quorum(ctx, actor, assemblyID)
	if err != nil {
		return httptransport.QuorumResponse{}, err
	}
	return mapQuorum(snapshot), nil
}

func (h Handler) TallyHandler(
	ctx context.Context,
	actor entities.Principal,
	assemblyID string,
	agendaNumeral int,
) (httptransport.TallyResponse, error) {
	tally, err := h.Queries.Tally(ctx, actor, assemblyID, agendaNumeral)
	if err != nil {
		return httptransport.TallyResponse{}, err
	}
	return mapTally(tally), nil
}

func (h Handler) ResultsHandler(ctx context.Context, actor entities.Principal, assemblyID string) (httptransport.ResultsResponse, error) {
	results, err := h.Queries.Results(ctx, actor, assemblyID)
	if err != nil {
		return httptransport.ResultsResponse{}, err
	}
	response := httptransport.ResultsResponse{
		AssemblyID:    results.AssemblyID,
		Title:         results.Title,
		Type:          string(results.Type),
		Status:        string(results.Status),
		Authoritative: results.Authoritative,
		Void:          results.Void,
		CancelReason:  results.CancelReason,
		StartedAt:     results.StartedAt,
		EndedAt:       results.EndedAt,
		Quorum:        mapQuorum(results.Quorum),
		Items:         make([]httptransport.TallyResponse, 0, len(results.Items)),
		ComputedAt:    results.ComputedAt,
	}
	for _, item := range results.Items {
		response.Items = append(response.Items, mapTally(item))
	}
	return response, nil
}

func agendaFromPayload(items []httptransport.AgendaItemPayload) []entities.AgendaItem {
	agenda := make([]entities.AgendaItem, 0, len(items))
	for _, item := range items {
		agenda = append(agenda, entities.AgendaItem{
			Numeral:  item.Numeral,
			Topic:    item.Topic,
			Duration: time.Duration(item.DurationMinutes) * time.Minute,
			Notes:    item.Notes,
			Options:  item.Options,
		})
	}
	return agenda
}

func mapAssembly(assembly entities.Assembly) httptransport.AssemblyResponse {
	agenda := make([]httptransport.AgendaItemPayload, 0, len(assembly.Agenda))
	for _, item := range assembly.Agenda {
		agenda = append(agenda, httptransport.AgendaItemPayload{
			Numeral:         item.Numeral,
			Topic:           item.Topic,
			DurationMinutes: int(item.Duration / time.Minute),
			Notes:           item.Notes,
			Options:         item.Options,
		})
	}
	return httptransport.AssemblyResponse{
		AssemblyID:         assembly.AssemblyID,
		Title:              assembly.Title,
		Type:               string(assembly.Type),
		Status:             string(assembly.Status),
		ScheduledStart:     assembly.ScheduledStart,
		Location:           assembly.Location,
		Agenda:             agenda,
		QuorumPct:          assembly.QuorumPct,
		TotalEligibleUnits: assembly.TotalEligibleUnits,
		OrganizerID:        assembly.OrganizerID,
		StartedAt:          assembly.StartedAt,
		EndedAt:            assembly.EndedAt,
		CancelReason:       assembly.CancelReason,
	}
}

func mapAttendance(record entities.AttendanceRecord) httptransport.AttendanceResponse {
	return httptransport.AttendanceResponse{
		AssemblyID:   record.AssemblyID,
		ResidentID:   record.ResidentID,
		DelegateName: record.DelegateName,
		Confirmed:    record.Confirmed,
		ConfirmedAt:  record.ConfirmedAt,
		Verified:     record.Verified,
		VerifiedBy:   record.VerifiedBy,
		VerifiedAt:   record.VerifiedAt,
	}
}

func mapQuorum(snapshot entities.QuorumSnapshot) httptransport.QuorumResponse {
	return httptransport.QuorumResponse{
		AssemblyID:         snapshot.AssemblyID,
		ConfirmedResidents: snapshot.ConfirmedResidents,
		ConfirmedUnits:     snapshot.ConfirmedUnits,
		TotalEligibleUnits: snapshot.TotalEligibleUnits,
		CurrentPct:         snapshot.CurrentPct,
		RequiredPct:        snapshot.RequiredPct,
		Reached:            snapshot.Reached,
		EvaluatedAt:        snapshot.EvaluatedAt,
	}
}

func mapTally(tally entities.Tally) httptransport.TallyResponse {
	response := httptransport.TallyResponse{
		AssemblyID:         tally.AssemblyID,
		AgendaNumeral:      tally.AgendaNumeral,
		Topic:              tally.Topic,
		Units:              tally.Units,
		Ballots:            tally.Ballots,
		CastUnits:          tally.CastUnits,
		BallotCount:        tally.BallotCount,
		TotalEligibleUnits: tally.TotalEligibleUnits,
		TurnoutPct:         tally.TurnoutPct,
		State:              string(tally.State),
		Final:              tally.Final,
		Authoritative:      tally.Authoritative,
		LeadingOption:      tally.LeadingOption,
		ComputedAt:         tally.ComputedAt,
	}
	if !tally.NamedOptions {
		passed := tally.Passed
		response.Passed = &passed
		response.DecisionRule = tally.DecisionRule
	}
	return response
}
