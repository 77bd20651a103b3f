package entities

import "time"

// Vote is an immutable fact, unique per (assembly, agenda numeral, resident).
type Vote struct {
	VoteID        string
	AssemblyID    string
	TenantKey     string
	AgendaNumeral int
	ResidentID    string
	Choice        string
	Weight        float64
	CastBy        string
	CastAt        time.Time
}

// ItemGate records that quorum held when an agenda item admitted its first
// vote. It is unique per (assembly, agenda numeral) and never updated.
type ItemGate struct {
	AssemblyID     string
	TenantKey      string
	AgendaNumeral  int
	ConfirmedUnits float64
	QuorumPct      float64
	RequiredPct    float64
	OpenedAt       time.Time
}

type VotingState string

const (
	VotingStateNotOpen VotingState = "not_open"
	VotingStateOpen    VotingState = "open"
	VotingStateClosed  VotingState = "closed"
)

type VotingWindow struct {
	AgendaNumeral int
	Start         time.Time
	End           time.Time
}

// Contains reports whether at falls inside the half-open window [Start, End).
func (w VotingWindow) Contains(at time.Time) bool {
	return !at.Before(w.Start) && at.Before(w.End)
}
