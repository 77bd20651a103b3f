package entities

import (
	"strings"
	"time"
)

type AssemblyType string

const (
	AssemblyTypeOrdinary      AssemblyType = "ordinary"
	AssemblyTypeExtraordinary AssemblyType = "extraordinary"
)

func (t AssemblyType) Valid() bool {
	return t == AssemblyTypeOrdinary || t == AssemblyTypeExtraordinary
}

type AssemblyStatus string

const (
	AssemblyStatusPlanned    AssemblyStatus = "planned"
	AssemblyStatusInProgress AssemblyStatus = "in_progress"
	AssemblyStatusCompleted  AssemblyStatus = "completed"
	AssemblyStatusCancelled  AssemblyStatus = "cancelled"
)

// Terminal reports whether no transition may leave the status.
func (s AssemblyStatus) Terminal() bool {
	return s == AssemblyStatusCompleted || s == AssemblyStatusCancelled
}

const (
	ChoiceYes     = "yes"
	ChoiceNo      = "no"
	ChoiceAbstain = "abstain"
)

// AgendaItem is one numbered, time-boxed topic. Numerals are positional,
// starting at 1.
type AgendaItem struct {
	Numeral  int
	Topic    string
	Duration time.Duration
	Notes    string
	// Options holds named ballot options; empty means yes/no/abstain.
	Options []string
}

// Choices lists the ballot choices accepted for the item.
func (i AgendaItem) Choices() []string {
	if len(i.Options) == 0 {
		return []string{ChoiceYes, ChoiceNo, ChoiceAbstain}
	}
	return append([]string(nil), i.Options...)
}

// NamedOptions reports whether the item is decided among named options
// instead of a yes/no motion.
func (i AgendaItem) NamedOptions() bool {
	return len(i.Options) > 0
}

// CanonicalChoice matches choice case-insensitively against the item's
// choices and returns the stored spelling.
func (i AgendaItem) CanonicalChoice(choice string) (string, bool) {
	value := strings.TrimSpace(choice)
	for _, candidate := range i.Choices() {
		if strings.EqualFold(candidate, value) {
			return candidate, true
		}
	}
	return "", false
}

// Assembly is a governance session of one tenant. Once in progress only
// status transitions mutate it.
type Assembly struct {
	AssemblyID         string
	TenantKey          string
	Title              string
	Type               AssemblyType
	ScheduledStart     time.Time
	Location           string
	Agenda             []AgendaItem
	Status             AssemblyStatus
	QuorumPct          float64
	TotalEligibleUnits float64
	OrganizerID        string
	StartedAt          *time.Time
	EndedAt            *time.Time
	CancelReason       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (a Assembly) AgendaItem(numeral int) (AgendaItem, bool) {
	for _, item := range a.Agenda {
		if item.Numeral == numeral {
			return item, true
		}
	}
	return AgendaItem{}, false
}
