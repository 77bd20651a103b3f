package tenancyadapter

import (
	"context"
	"time"

	"condominia/contexts/governance/assembly-service/domain/entities"
	"condominia/contexts/governance/assembly-service/ports"
	"condominia/internal/platform/tenancy"
)

// guardedStore checks the tenant key of every entity written through it and
// every row read back. Ids alone never cross namespaces, so a mismatch means
// a misrouted call or a corrupted namespace.
type guardedStore struct {
	inner  ports.Store
	handle *tenancy.Handle
}

func (s guardedStore) CreateAssembly(ctx context.Context, assembly entities.Assembly, voters []entities.EligibleVoter) error {
	if err := s.handle.Guard(assembly.TenantKey); err != nil {
		return err
	}
	for _, voter := range voters {
		if err := s.handle.Guard(voter.TenantKey); err != nil {
			return err
		}
	}
	return s.inner.CreateAssembly(ctx, assembly, voters)
}

func (s guardedStore) GetAssembly(ctx context.Context, assemblyID string) (entities.Assembly, error) {
	assembly, err := s.inner.GetAssembly(ctx, assemblyID)
	if err != nil {
		return entities.Assembly{}, err
	}
	if err := s.handle.Guard(assembly.TenantKey); err != nil {
		return entities.Assembly{}, err
	}
	return assembly, nil
}

func (s guardedStore) ListAssemblies(ctx context.Context, filter ports.AssemblyFilter) ([]entities.Assembly, error) {
	items, err := s.inner.ListAssemblies(ctx, filter)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if err := s.handle.Guard(item.TenantKey); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (s guardedStore) TransitionAssembly(ctx context.Context, transition ports.StatusTransition) (entities.Assembly, error) {
	assembly, err := s.inner.TransitionAssembly(ctx, transition)
	if err != nil {
		return entities.Assembly{}, err
	}
	if err := s.handle.Guard(assembly.TenantKey); err != nil {
		return entities.Assembly{}, err
	}
	return assembly, nil
}

func (s guardedStore) UpdatePlannedAssembly(ctx context.Context, assembly entities.Assembly) error {
	if err := s.handle.Guard(assembly.TenantKey); err != nil {
		return err
	}
	return s.inner.UpdatePlannedAssembly(ctx, assembly)
}

func (s guardedStore) DeletePlannedAssembly(ctx context.Context, assemblyID string) error {
	if _, err := s.GetAssembly(ctx, assemblyID); err != nil {
		return err
	}
	return s.inner.DeletePlannedAssembly(ctx, assemblyID)
}

func (s guardedStore) ListEligibleVoters(ctx context.Context, assemblyID string) ([]entities.EligibleVoter, error) {
	voters, err := s.inner.ListEligibleVoters(ctx, assemblyID)
	if err != nil {
		return nil, err
	}
	for _, voter := range voters {
		if err := s.handle.Guard(voter.TenantKey); err != nil {
			return nil, err
		}
	}
	return voters, nil
}

func (s guardedStore) UpsertAttendance(ctx context.Context, record entities.AttendanceRecord) (entities.AttendanceRecord, error) {
	if err := s.handle.Guard(record.TenantKey); err != nil {
		return entities.AttendanceRecord{}, err
	}
	return s.inner.UpsertAttendance(ctx, record)
}

func (s guardedStore) MarkAttendanceVerified(
	ctx context.Context,
	assemblyID string,
	residentID string,
	verifiedBy string,
	verifiedAt time.Time,
) (entities.AttendanceRecord, error) {
	record, err := s.inner.MarkAttendanceVerified(ctx, assemblyID, residentID, verifiedBy, verifiedAt)
	if err != nil {
		return entities.AttendanceRecord{}, err
	}
	if err := s.handle.Guard(record.TenantKey); err != nil {
		return entities.AttendanceRecord{}, err
	}
	return record, nil
}

func (s guardedStore) GetAttendance(ctx context.Context, assemblyID string, residentID string) (entities.AttendanceRecord, bool, error) {
	record, found, err := s.inner.GetAttendance(ctx, assemblyID, residentID)
	if err != nil || !found {
		return record, found, err
	}
	if err := s.handle.Guard(record.TenantKey); err != nil {
		return entities.AttendanceRecord{}, false, err
	}
	return record, true, nil
}

func (s guardedStore) ListAttendance(ctx context.Context, assemblyID string) ([]entities.AttendanceRecord, error) {
	records, err := s.inner.ListAttendance(ctx, assemblyID)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if err := s.handle.Guard(record.TenantKey); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s guardedStore) InsertVote(ctx context.Context, vote entities.Vote) error {
	if err := s.handle.Guard(vote.TenantKey); err != nil {
		return err
	}
	return s.inner.InsertVote(ctx, vote)
}

func (s guardedStore) ListVotesByItem(ctx context.Context, assemblyID string, agendaNumeral int) ([]entities.Vote, error) {
	return s.guardVotes(s.inner.ListVotesByItem(ctx, assemblyID, agendaNumeral))
}

func (s guardedStore) ListVotesByAssembly(ctx context.Context, assemblyID string) ([]entities.Vote, error) {
	return s.guardVotes(s.inner.ListVotesByAssembly(ctx, assemblyID))
}

func (s guardedStore) GetItemGate(ctx context.Context, assemblyID string, agendaNumeral int) (entities.ItemGate, bool, error) {
	gate, found, err := s.inner.GetItemGate(ctx, assemblyID, agendaNumeral)
	if err != nil || !found {
		return gate, found, err
	}
	if err := s.handle.Guard(gate.TenantKey); err != nil {
		return entities.ItemGate{}, false, err
	}
	return gate, true, nil
}

func (s guardedStore) OpenItemGate(ctx context.Context, gate entities.ItemGate) (entities.ItemGate, error) {
	if err := s.handle.Guard(gate.TenantKey); err != nil {
		return entities.ItemGate{}, err
	}
	return s.inner.OpenItemGate(ctx, gate)
}

// ListEligibleResidents reads the namespace's own projection, which carries
// no tenant column.
func (s guardedStore) ListEligibleResidents(ctx context.Context) ([]ports.Resident, error) {
	return s.inner.ListEligibleResidents(ctx)
}

func (s guardedStore) guardVotes(votes []entities.Vote, err error) ([]entities.Vote, error) {
	if err != nil {
		return nil, err
	}
	for _, vote := range votes {
		if err := s.handle.Guard(vote.TenantKey); err != nil {
			return nil, err
		}
	}
	return votes, nil
}

var _ ports.Store = guardedStore{}
