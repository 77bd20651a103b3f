package entities

import "time"

// Tally is derived from Vote rows on every read and never stored.
type Tally struct {
	AssemblyID         string
	AgendaNumeral      int
	Topic              string
	NamedOptions       bool
	Units              map[string]float64
	Ballots            map[string]int
	YesUnits           float64
	NoUnits            float64
	AbstainUnits       float64
	CastUnits          float64
	BallotCount        int
	TotalEligibleUnits float64
	TurnoutPct         float64
	State              VotingState
	Final              bool
	Authoritative      bool
	DecisionRule       string
	Passed             bool
	LeadingOption      string
	ComputedAt         time.Time
}

// AssemblyResults is the read model handed to minutes and notification
// collaborators.
type AssemblyResults struct {
	AssemblyID    string
	TenantKey     string
	Title         string
	Type          AssemblyType
	Status        AssemblyStatus
	Authoritative bool
	Void          bool
	CancelReason  string
	StartedAt     *time.Time
	EndedAt       *time.Time
	Quorum        QuorumSnapshot
	Items         []Tally
	ComputedAt    time.Time
}
