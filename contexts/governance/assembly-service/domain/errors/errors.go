package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrForbidden           = errors.New("actor lacks the required capability")
	ErrAssemblyNotFound    = errors.New("assembly not found")
	ErrAgendaItemNotFound  = errors.New("agenda item not found")
	ErrAttendanceNotFound  = errors.New("attendance record not found")
	ErrInvalidTransition   = errors.New("invalid assembly status transition")
	ErrQuorumNotMet        = errors.New("quorum not met")
	ErrVotingWindowClosed  = errors.New("voting window is closed")
	ErrNotEligibleToVote   = errors.New("resident is not eligible to vote")
	ErrDuplicateVote       = errors.New("resident already voted on this agenda item")
	ErrSessionNotActive    = errors.New("assembly is not in progress")
	ErrSessionClosed       = errors.New("assembly is closed")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
	ErrUnknownTenant       = errors.New("unknown tenant")
	ErrCrossTenantAccess   = errors.New("cross-tenant access rejected")
)

// Kind names an error category callers can branch on.
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindForbidden           Kind = "forbidden"
	KindNotFound            Kind = "not_found"
	KindInvalidTransition   Kind = "invalid_transition"
	KindQuorumNotMet        Kind = "quorum_not_met"
	KindVotingWindowClosed  Kind = "voting_window_closed"
	KindNotEligibleToVote   Kind = "not_eligible_to_vote"
	KindDuplicateVote       Kind = "duplicate_vote"
	KindSessionNotActive    Kind = "session_not_active"
	KindSessionClosed       Kind = "session_closed"
	KindStorageUnavailable  Kind = "storage_unavailable"
	KindIdempotencyConflict Kind = "idempotency_conflict"
	KindUnknownTenant       Kind = "unknown_tenant"
	KindCrossTenantAccess   Kind = "cross_tenant_access"
	KindInternal            Kind = "internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrValidation, KindValidation},
	{ErrForbidden, KindForbidden},
	{ErrAssemblyNotFound, KindNotFound},
	{ErrAgendaItemNotFound, KindNotFound},
	{ErrAttendanceNotFound, KindNotFound},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrQuorumNotMet, KindQuorumNotMet},
	{ErrVotingWindowClosed, KindVotingWindowClosed},
	{ErrNotEligibleToVote, KindNotEligibleToVote},
	{ErrDuplicateVote, KindDuplicateVote},
	{ErrSessionNotActive, KindSessionNotActive},
	{ErrSessionClosed, KindSessionClosed},
	{ErrStorageUnavailable, KindStorageUnavailable},
	{ErrIdempotencyConflict, KindIdempotencyConflict},
	{ErrUnknownTenant, KindUnknownTenant},
	{ErrCrossTenantAccess, KindCrossTenantAccess},
}

// KindOf maps err to its category; unknown errors are internal.
func KindOf(err error) Kind {
	for _, candidate := range kinds {
		if errors.Is(err, candidate.err) {
			return candidate.kind
		}
	}
	return KindInternal
}

// Retryable reports whether a caller may retry the failed operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// Rejection attaches the identifiers needed to render an actionable message.
type Rejection struct {
	Err           error
	AssemblyID    string
	AgendaNumeral int
	ResidentID    string
	Reason        string
}

func (r *Rejection) Error() string {
	var parts []string
	if r.AssemblyID != "" {
		parts = append(parts, "assembly="+r.AssemblyID)
	}
	if r.AgendaNumeral > 0 {
		parts = append(parts, fmt.Sprintf("agenda_numeral=%d", r.AgendaNumeral))
	}
	if r.ResidentID != "" {
		parts = append(parts, "resident="+r.ResidentID)
	}
	if r.Reason != "" {
		parts = append(parts, r.Reason)
	}
	if len(parts) == 0 {
		return r.Err.Error()
	}
	return r.Err.Error() + " (" + strings.Join(parts, ", ") + ")"
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// Reject builds a Rejection for an assembly-level rule.
func Reject(err error, assemblyID string) *Rejection {
	return &Rejection{Err: err, AssemblyID: assemblyID}
}

func (r *Rejection) Item(numeral int) *Rejection {
	r.AgendaNumeral = numeral
	return r
}

func (r *Rejection) Resident(residentID string) *Rejection {
	r.ResidentID = residentID
	return r
}

func (r *Rejection) Because(reason string) *Rejection {
	r.Reason = reason
	return r
}

// Invalid builds a validation error naming the offending input.
func Invalid(reason string) error {
	return &Rejection{Err: ErrValidation, Reason: reason}
}

// Unavailable wraps a transient infrastructure failure.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}
