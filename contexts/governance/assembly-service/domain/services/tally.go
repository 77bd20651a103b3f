package services

import (
	"sort"
	"time"

	"condominia/contexts/governance/assembly-service/domain/entities"
)

// ComputeTally aggregates the stored votes of one agenda item. The result is
// a point-in-time snapshot; once the item's window closes it is stable.
func ComputeTally(
	assembly entities.Assembly,
	item entities.AgendaItem,
	votes []entities.Vote,
	rule DecisionRule,
	now time.Time,
) entities.Tally {
	tally := entities.Tally{
		AssemblyID:         assembly.AssemblyID,
		AgendaNumeral:      item.Numeral,
		Topic:              item.Topic,
		NamedOptions:       item.NamedOptions(),
		Units:              make(map[string]float64, len(item.Choices())),
		Ballots:            make(map[string]int, len(item.Choices())),
		TotalEligibleUnits: assembly.TotalEligibleUnits,
		State:              ItemState(assembly, item.Numeral, now),
		Authoritative:      assembly.Status == entities.AssemblyStatusCompleted,
		DecisionRule:       rule.Name(),
		ComputedAt:         now.UTC(),
	}
	for _, choice := range item.Choices() {
		tally.Units[choice] = 0
		tally.Ballots[choice] = 0
	}

	seen := make(map[string]struct{}, len(votes))
	for _, vote := range votes {
		if vote.AgendaNumeral != item.Numeral || vote.AssemblyID != assembly.AssemblyID {
			continue
		}
		// Storage guarantees one row per resident; the guard keeps a
		// misbehaving adapter from double counting.
		if _, dup := seen[vote.ResidentID]; dup {
			continue
		}
		seen[vote.ResidentID] = struct{}{}
		tally.Units[vote.Choice] += vote.Weight
		tally.Ballots[vote.Choice]++
		tally.CastUnits += vote.Weight
		tally.BallotCount++
	}

	tally.Final = tally.State == entities.VotingStateClosed
	if tally.TotalEligibleUnits > 0 {
		tally.TurnoutPct = tally.CastUnits / tally.TotalEligibleUnits * 100
	}
	if item.NamedOptions() {
		tally.LeadingOption = leadingOption(item, tally.Units)
		return tally
	}
	tally.YesUnits = tally.Units[entities.ChoiceYes]
	tally.NoUnits = tally.Units[entities.ChoiceNo]
	tally.AbstainUnits = tally.Units[entities.ChoiceAbstain]
	tally.Passed = rule.Passed(tally)
	return tally
}

// leadingOption returns the option with the most units; ties leave no leader.
func leadingOption(item entities.AgendaItem, units map[string]float64) string {
	options := item.Choices()
	sort.SliceStable(options, func(i, j int) bool {
		return units[options[i]] > units[options[j]]
	})
	if len(options) == 0 || units[options[0]] == 0 {
		return ""
	}
	if len(options) > 1 && units[options[0]] == units[options[1]] {
		return ""
	}
	return options[0]
}
