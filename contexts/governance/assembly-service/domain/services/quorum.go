package services

import (
	"time"

	"condominia/contexts/governance/assembly-service/domain/entities"
)

// ComputeQuorum aggregates attendance against the frozen voter set. Only
// confirmed and verified records count, each with its voter's weight.
func ComputeQuorum(
	assembly entities.Assembly,
	voters []entities.EligibleVoter,
	records []entities.AttendanceRecord,
	now time.Time,
) entities.QuorumSnapshot {
	weights := make(map[string]float64, len(voters))
	for _, voter := range voters {
		weights[voter.ResidentID] = voter.Weight
	}

	snapshot := entities.QuorumSnapshot{
		AssemblyID:         assembly.AssemblyID,
		TotalEligibleUnits: assembly.TotalEligibleUnits,
		RequiredPct:        assembly.QuorumPct,
		EvaluatedAt:        now.UTC(),
	}
	counted := make(map[string]struct{}, len(records))
	for _, record := range records {
		if !record.CanVote() {
			continue
		}
		weight, eligible := weights[record.ResidentID]
		if !eligible {
			continue
		}
		if _, seen := counted[record.ResidentID]; seen {
			continue
		}
		counted[record.ResidentID] = struct{}{}
		snapshot.ConfirmedResidents++
		snapshot.ConfirmedUnits += weight
	}
	if snapshot.TotalEligibleUnits > 0 {
		snapshot.CurrentPct = snapshot.ConfirmedUnits / snapshot.TotalEligibleUnits * 100
	}
	snapshot.Reached = snapshot.TotalEligibleUnits > 0 && snapshot.CurrentPct >= snapshot.RequiredPct
	return snapshot
}
