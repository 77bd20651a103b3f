package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"condominia/contexts/governance/assembly-service/domain/entities"
	domainerrors "condominia/contexts/governance/assembly-service/domain/errors"
	"condominia/contexts/governance/assembly-service/ports"
)

type attendanceKey struct {
	assemblyID string
	residentID string
}

type itemKey struct {
	assemblyID string
	numeral    int
}

type voteKey struct {
	assemblyID string
	numeral    int
	residentID string
}

// Store holds one tenant namespace in memory. Map keys mirror the unique
// constraints of the relational schema.
type Store struct {
	mu sync.RWMutex

	assemblies map[string]entities.Assembly
	voters     map[string][]entities.EligibleVoter
	attendance map[attendanceKey]entities.AttendanceRecord
	votes      map[voteKey]entities.Vote
	gates      map[itemKey]entities.ItemGate
	residents  map[string]ports.Resident
}

func NewStore() *Store {
	return &Store{
		assemblies: make(map[string]entities.Assembly),
		voters:     make(map[string][]entities.EligibleVoter),
		attendance: make(map[attendanceKey]entities.AttendanceRecord),
		votes:      make(map[voteKey]entities.Vote),
		gates:      make(map[itemKey]entities.ItemGate),
		residents:  make(map[string]ports.Resident),
	}
}

// SetResident seeds the resident projection eligible voters are frozen from.
func (s *Store) SetResident(resident ports.Resident) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resident.ResidentID = strings.TrimSpace(resident.ResidentID)
	resident.UnitID = strings.TrimSpace(resident.UnitID)
	s.residents[resident.ResidentID] = resident
}

func (s *Store) ListEligibleResidents(_ context.Context) ([]ports.Resident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]ports.Resident, 0, len(s.residents))
	for _, resident := range s.residents {
		if resident.Active {
			items = append(items, resident)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ResidentID < items[j].ResidentID })
	return items, nil
}

func (s *Store) CreateAssembly(_ context.Context, assembly entities.Assembly, voters []entities.EligibleVoter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.assemblies[assembly.AssemblyID]; exists {
		return domainerrors.Reject(domainerrors.ErrIdempotencyConflict, assembly.AssemblyID).Because("assembly id already used")
	}
	s.assemblies[assembly.AssemblyID] = cloneAssembly(assembly)
	s.voters[assembly.AssemblyID] = append([]entities.EligibleVoter(nil), voters...)
	return nil
}

func (s *Store) GetAssembly(_ context.Context, assemblyID string) (entities.Assembly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assembly, ok := s.assemblies[strings.TrimSpace(assemblyID)]
	if !ok {
		return entities.Assembly{}, domainerrors.Reject(domainerrors.ErrAssemblyNotFound, strings.TrimSpace(assemblyID))
	}
	return cloneAssembly(assembly), nil
}

func (s *Store) ListAssemblies(_ context.Context, filter ports.AssemblyFilter) ([]entities.Assembly, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Assembly, 0, len(s.assemblies))
	for _, assembly := range s.assemblies {
		if filter.Status != "" && assembly.Status != filter.Status {
			continue
		}
		items = append(items, cloneAssembly(assembly))
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].ScheduledStart.Equal(items[j].ScheduledStart) {
			return items[i].AssemblyID < items[j].AssemblyID
		}
		return items[i].ScheduledStart.Before(items[j].ScheduledStart)
	})
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

// TransitionAssembly is the compare-and-swap on status; the write lock makes
// the check and the write one step.
func (s *Store) TransitionAssembly(_ context.Context, transition ports.StatusTransition) (entities.Assembly, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	assembly, ok := s.assemblies[transition.AssemblyID]
	if !ok {
		return entities.Assembly{}, domainerrors.Reject(domainerrors.ErrAssemblyNotFound, transition.AssemblyID)
	}
	if !statusIn(assembly.Status, transition.From) {
		return entities.Assembly{}, domainerrors.Reject(domainerrors.ErrInvalidTransition, transition.AssemblyID).
			Because("status changed to " + string(assembly.Status))
	}
	assembly.Status = transition.To
	if transition.StartedAt != nil {
		startedAt := transition.StartedAt.UTC()
		assembly.StartedAt = &startedAt
	}
	if transition.EndedAt != nil {
		endedAt := transition.EndedAt.UTC()
		assembly.EndedAt = &endedAt
	}
	if transition.CancelReason != "" {
		assembly.CancelReason = transition.CancelReason
	}
	assembly.UpdatedAt = transition.UpdatedAt.UTC()
	s.assemblies[assembly.AssemblyID] = assembly
	return cloneAssembly(assembly), nil
}

func (s *Store) UpdatePlannedAssembly(_ context.Context, assembly entities.Assembly) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.assemblies[assembly.AssemblyID]
	if !ok {
		return domainerrors.Reject(domainerrors.ErrAssemblyNotFound, assembly.AssemblyID)
	}
	if current.Status != entities.AssemblyStatusPlanned {
		return domainerrors.Reject(domainerrors.ErrInvalidTransition, assembly.AssemblyID).
			Because("only planned assemblies can be edited")
	}
	current.Title = assembly.Title
	current.Location = assembly.Location
	current.ScheduledStart = assembly.ScheduledStart.UTC()
	current.Agenda = append([]entities.AgendaItem(nil), assembly.Agenda...)
	current.QuorumPct = assembly.QuorumPct
	current.UpdatedAt = assembly.UpdatedAt.UTC()
	s.assemblies[assembly.AssemblyID] = current
	return nil
}

func (s *Store) DeletePlannedAssembly(_ context.Context, assemblyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := strings.TrimSpace(assemblyID)
	current, ok := s.assemblies[id]
	if !ok {
		return domainerrors.Reject(domainerrors.ErrAssemblyNotFound, id)
	}
	if current.Status != entities.AssemblyStatusPlanned {
		return domainerrors.Reject(domainerrors.ErrInvalidTransition, id).Because("only planned assemblies can be deleted")
	}
	delete(s.assemblies, id)
	delete(s.voters, id)
	for key := range s.attendance {
		if key.assemblyID == id {
			delete(s.attendance, key)
		}
	}
	return nil
}

func (s *Store) ListEligibleVoters(_ context.Context, assemblyID string) ([]entities.EligibleVoter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entities.EligibleVoter(nil), s.voters[strings.TrimSpace(assemblyID)]...), nil
}

func (s *Store) UpsertAttendance(_ context.Context, record entities.AttendanceRecord) (entities.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attendanceKey{assemblyID: record.AssemblyID, residentID: record.ResidentID}
	if existing, ok := s.attendance[key]; ok {
		existing = existing.Recheck(record)
		s.attendance[key] = existing
		return existing, nil
	}
	record.Confirmed = true
	s.attendance[key] = record
	return record, nil
}

func (s *Store) MarkAttendanceVerified(
	_ context.Context,
	assemblyID string,
	residentID string,
	verifiedBy string,
	verifiedAt time.Time,
) (entities.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attendanceKey{assemblyID: strings.TrimSpace(assemblyID), residentID: strings.TrimSpace(residentID)}
	record, ok := s.attendance[key]
	if !ok || !record.Confirmed {
		return entities.AttendanceRecord{}, domainerrors.Reject(domainerrors.ErrAttendanceNotFound, key.assemblyID).Resident(key.residentID)
	}
	at := verifiedAt.UTC()
	record.Verified = true
	record.VerifiedBy = strings.TrimSpace(verifiedBy)
	record.VerifiedAt = &at
	record.UpdatedAt = at
	s.attendance[key] = record
	return record, nil
}

func (s *Store) GetAttendance(_ context.Context, assemblyID string, residentID string) (entities.AttendanceRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.attendance[attendanceKey{assemblyID: strings.TrimSpace(assemblyID), residentID: strings.TrimSpace(residentID)}]
	return record, ok, nil
}

func (s *Store) ListAttendance(_ context.Context, assemblyID string) ([]entities.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id := strings.TrimSpace(assemblyID)
	items := make([]entities.AttendanceRecord, 0)
	for key, record := range s.attendance {
		if key.assemblyID == id {
			items = append(items, record)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ResidentID < items[j].ResidentID })
	return items, nil
}

// InsertVote fails on an existing identity triple, like the unique index
// does in postgres.
func (s *Store) InsertVote(_ context.Context, vote entities.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := voteKey{assemblyID: vote.AssemblyID, numeral: vote.AgendaNumeral, residentID: vote.ResidentID}
	if _, exists := s.votes[key]; exists {
		return domainerrors.ErrDuplicateVote
	}
	s.votes[key] = vote
	return nil
}

func (s *Store) ListVotesByItem(_ context.Context, assemblyID string, agendaNumeral int) ([]entities.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id := strings.TrimSpace(assemblyID)
	items := make([]entities.Vote, 0)
	for key, vote := range s.votes {
		if key.assemblyID == id && key.numeral == agendaNumeral {
			items = append(items, vote)
		}
	}
	sortVotes(items)
	return items, nil
}

func (s *Store) ListVotesByAssembly(_ context.Context, assemblyID string) ([]entities.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id := strings.TrimSpace(assemblyID)
	items := make([]entities.Vote, 0)
	for key, vote := range s.votes {
		if key.assemblyID == id {
			items = append(items, vote)
		}
	}
	sortVotes(items)
	return items, nil
}

func (s *Store) GetItemGate(_ context.Context, assemblyID string, agendaNumeral int) (entities.ItemGate, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gate, ok := s.gates[itemKey{assemblyID: strings.TrimSpace(assemblyID), numeral: agendaNumeral}]
	return gate, ok, nil
}

func (s *Store) OpenItemGate(_ context.Context, gate entities.ItemGate) (entities.ItemGate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := itemKey{assemblyID: gate.AssemblyID, numeral: gate.AgendaNumeral}
	if existing, ok := s.gates[key]; ok {
		return existing, nil
	}
	s.gates[key] = gate
	return gate, nil
}

func cloneAssembly(assembly entities.Assembly) entities.Assembly {
	assembly.Agenda = append([]entities.AgendaItem(nil), assembly.Agenda...)
	for index := range assembly.Agenda {
		assembly.Agenda[index].Options = append([]string(nil), assembly.Agenda[index].Options...)
	}
	return assembly
}

func statusIn(status entities.AssemblyStatus, allowed []entities.AssemblyStatus) bool {
	for _, candidate := range allowed {
		if candidate == status {
			return true
		}
	}
	return false
}

func sortVotes(items []entities.Vote) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CastAt.Equal(items[j].CastAt) {
			return items[i].VoteID < items[j].VoteID
		}
		return items[i].CastAt.Before(items[j].CastAt)
	})
}

var _ ports.Store = (*Store)(nil)
