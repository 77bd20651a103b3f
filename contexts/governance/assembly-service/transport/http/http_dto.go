package http

import "time"

type ErrorDetails struct {
	AssemblyID    string `json:"assembly_id,omitempty"`
	AgendaNumeral int    `json:"agenda_numeral,omitempty"`
	ResidentID    string `json:"resident_id,omitempty"`
}

type ErrorResponse struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details *ErrorDetails `json:"details,omitempty"`
}

type AgendaItemPayload struct {
	Numeral         int      `json:"numeral"`
	Topic           string   `json:"topic"`
	DurationMinutes int      `json:"duration_minutes"`
	Notes           string   `json:"notes,omitempty"`
	Options         []string `json:"options,omitempty"`
}

type CreateAssemblyRequest struct {
	Title          string              `json:"title"`
	Type           string              `json:"type"`
	ScheduledStart time.Time           `json:"scheduled_start"`
	Location       string              `json:"location,omitempty"`
	Agenda         []AgendaItemPayload `json:"agenda"`
	QuorumPct      float64             `json:"quorum_pct"`
}

type UpdateAssemblyRequest struct {
	Title          *string             `json:"title,omitempty"`
	Location       *string             `json:"location,omitempty"`
	ScheduledStart *time.Time          `json:"scheduled_start,omitempty"`
	Agenda         []AgendaItemPayload `json:"agenda,omitempty"`
	QuorumPct      *float64            `json:"quorum_pct,omitempty"`
}

type CancelAssemblyRequest struct {
	Reason string `json:"reason"`
}

type AssemblyResponse struct {
	AssemblyID         string              `json:"assembly_id"`
	Title              string              `json:"title"`
	Type               string              `json:"type"`
	Status             string              `json:"status"`
	ScheduledStart     time.Time           `json:"scheduled_start"`
	Location           string              `json:"location,omitempty"`
	Agenda             []AgendaItemPayload `json:"agenda"`
	QuorumPct          float64             `json:"quorum_pct"`
	TotalEligibleUnits float64             `json:"total_eligible_units"`
	OrganizerID        string              `json:"organizer_id"`
	StartedAt          *time.Time          `json:"started_at,omitempty"`
	EndedAt            *time.Time          `json:"ended_at,omitempty"`
	CancelReason       string              `json:"cancel_reason,omitempty"`
	Replayed           bool                `json:"replayed,omitempty"`
}

type AssemblyListResponse struct {
	Items []AssemblyResponse `json:"items"`
}

type CheckInRequest struct {
	ResidentID   string `json:"resident_id,omitempty"`
	DelegateName string `json:"delegate_name,omitempty"`
}

type VerifyAttendanceRequest struct {
	ResidentID string `json:"resident_id"`
}

type AttendanceResponse struct {
	AssemblyID   string     `json:"assembly_id"`
	ResidentID   string     `json:"resident_id"`
	DelegateName string     `json:"delegate_name,omitempty"`
	Confirmed    bool       `json:"confirmed"`
	ConfirmedAt  time.Time  `json:"confirmed_at"`
	Verified     bool       `json:"verified"`
	VerifiedBy   string     `json:"verified_by,omitempty"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
}

type AttendanceListResponse struct {
	Items []AttendanceResponse `json:"items"`
}

type CastVoteRequest struct {
	ResidentID string `json:"resident_id,omitempty"`
	Choice     string `json:"choice"`
}

type VoteResponse struct {
	VoteID        string    `json:"vote_id"`
	AssemblyID    string    `json:"assembly_id"`
	AgendaNumeral int       `json:"agenda_numeral"`
	ResidentID    string    `json:"resident_id"`
	Choice        string    `json:"choice"`
	Weight        float64   `json:"weight"`
	CastBy        string    `json:"cast_by"`
	CastAt        time.Time `json:"cast_at"`
}

type QuorumResponse struct {
	AssemblyID         string    `json:"assembly_id"`
	ConfirmedResidents int       `json:"confirmed_residents"`
	ConfirmedUnits     float64   `json:"confirmed_units"`
	TotalEligibleUnits float64   `json:"total_eligible_units"`
	CurrentPct         float64   `json:"current_pct"`
	RequiredPct        float64   `json:"required_pct"`
	Reached            bool      `json:"reached"`
	EvaluatedAt        time.Time `json:"evaluated_at"`
}

type TallyResponse struct {
	AssemblyID         string             `json:"assembly_id"`
	AgendaNumeral      int                `json:"agenda_numeral"`
	Topic              string             `json:"topic"`
	Units              map[string]float64 `json:"units"`
	Ballots            map[string]int     `json:"ballots"`
	CastUnits          float64            `json:"cast_units"`
	BallotCount        int                `json:"ballot_count"`
	TotalEligibleUnits float64            `json:"total_eligible_units"`
	TurnoutPct         float64            `json:"turnout_pct"`
	State              string             `json:"state"`
	Final              bool               `json:"final"`
	Authoritative      bool               `json:"authoritative"`
	DecisionRule       string             `json:"decision_rule,omitempty"`
	Passed             *bool              `json:"passed,omitempty"`
	LeadingOption      string             `json:"leading_option,omitempty"`
	ComputedAt         time.Time          `json:"computed_at"`
}

type ResultsResponse struct {
	AssemblyID    string          `json:"assembly_id"`
	Title         string          `json:"title"`
	Type          string          `json:"type"`
	Status        string          `json:"status"`
	Authoritative bool            `json:"authoritative"`
	Void          bool            `json:"void"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	EndedAt       *time.Time      `json:"ended_at,omitempty"`
	Quorum        QuorumResponse  `json:"quorum"`
	Items         []TallyResponse `json:"items"`
	ComputedAt    time.Time       `json:"computed_at"`
}
