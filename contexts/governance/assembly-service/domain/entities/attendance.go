package entities

import "time"

// EligibleVoter is frozen when the assembly is created so mid-session
// changes to resident records cannot move the quorum math.
type EligibleVoter struct {
	AssemblyID string
	TenantKey  string
	ResidentID string
	UnitID     string
	Weight     float64
}

// AttendanceRecord is unique per (assembly, resident).
type AttendanceRecord struct {
	AssemblyID   string
	TenantKey    string
	ResidentID   string
	DelegateName string
	Confirmed    bool
	ConfirmedAt  time.Time
	Verified     bool
	VerifiedBy   string
	VerifiedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanVote reports whether the record admits its resident to the ballot.
func (r AttendanceRecord) CanVote() bool {
	return r.Confirmed && r.Verified
}

// Recheck applies a repeated check-in to the stored record. Verification
// vouches for one delegate, so naming a different delegate clears it and
// the record waits for reception again.
func (r AttendanceRecord) Recheck(incoming AttendanceRecord) AttendanceRecord {
	if r.DelegateName != incoming.DelegateName {
		r.Verified = false
		r.VerifiedBy = ""
		r.VerifiedAt = nil
	}
	r.DelegateName = incoming.DelegateName
	r.Confirmed = true
	r.ConfirmedAt = incoming.ConfirmedAt.UTC()
	r.UpdatedAt = incoming.UpdatedAt.UTC()
	return r
}

type QuorumSnapshot struct {
	AssemblyID         string
	ConfirmedResidents int
	ConfirmedUnits     float64
	TotalEligibleUnits float64
	CurrentPct         float64
	RequiredPct        float64
	Reached            bool
	EvaluatedAt        time.Time
}
