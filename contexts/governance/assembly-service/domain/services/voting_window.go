package services

import (
	"time"

	"condominia/contexts/governance/assembly-service/domain/entities"
)

// VotingWindows lays agenda items end to end from the moment the assembly
// began. Windows are sequential and never overlap; a planned assembly has
// none.
func VotingWindows(assembly entities.Assembly) []entities.VotingWindow {
	if assembly.StartedAt == nil {
		return nil
	}
	windows := make([]entities.VotingWindow, 0, len(assembly.Agenda))
	cursor := assembly.StartedAt.UTC()
	for _, item := range assembly.Agenda {
		end := cursor.Add(item.Duration)
		windows = append(windows, entities.VotingWindow{
			AgendaNumeral: item.Numeral,
			Start:         cursor,
			End:           end,
		})
		cursor = end
	}
	return windows
}

func WindowFor(assembly entities.Assembly, numeral int) (entities.VotingWindow, bool) {
	for _, window := range VotingWindows(assembly) {
		if window.AgendaNumeral == numeral {
			return window, true
		}
	}
	return entities.VotingWindow{}, false
}

// VotingEndsAt is the close of the last agenda item's window.
func VotingEndsAt(assembly entities.Assembly) (time.Time, bool) {
	windows := VotingWindows(assembly)
	if len(windows) == 0 {
		return time.Time{}, false
	}
	return windows[len(windows)-1].End, true
}

// ItemState derives the voting state of one agenda item at now. Quorum is
// checked separately when the item admits its first vote.
func ItemState(assembly entities.Assembly, numeral int, now time.Time) entities.VotingState {
	switch assembly.Status {
	case entities.AssemblyStatusPlanned:
		return entities.VotingStateNotOpen
	case entities.AssemblyStatusCompleted, entities.AssemblyStatusCancelled:
		return entities.VotingStateClosed
	}
	window, ok := WindowFor(assembly, numeral)
	if !ok {
		return entities.VotingStateNotOpen
	}
	switch {
	case now.Before(window.Start):
		return entities.VotingStateNotOpen
	case window.Contains(now):
		return entities.VotingStateOpen
	default:
		return entities.VotingStateClosed
	}
}
