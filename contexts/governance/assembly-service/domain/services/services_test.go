package services

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"condominia/contexts/governance/assembly-service/domain/entities"
	domainerrors "condominia/contexts/governance/assembly-service/domain/errors"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var started = time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)

func runningAssembly(durations ...time.Duration) entities.Assembly {
	agenda := make([]entities.AgendaItem, 0, len(durations))
	for i, d := range durations {
		agenda = append(agenda, entities.AgendaItem{Numeral: i + 1, Topic: fmt.Sprintf("item %d", i+1), Duration: d})
	}
	at := started
	return entities.Assembly{
		AssemblyID:         "asm-1",
		TenantKey:          "torre-norte",
		Type:               entities.AssemblyTypeOrdinary,
		Status:             entities.AssemblyStatusInProgress,
		Agenda:             agenda,
		QuorumPct:          50,
		TotalEligibleUnits: 10,
		StartedAt:          &at,
	}
}

func TestVotingWindowsAreSequential(t *testing.T) {
	assembly := runningAssembly(30*time.Minute, 15*time.Minute)
	windows := VotingWindows(assembly)
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if !windows[0].Start.Equal(started) || !windows[0].End.Equal(started.Add(30*time.Minute)) {
		t.Fatalf("unexpected first window: %+v", windows[0])
	}
	if !windows[1].Start.Equal(windows[0].End) {
		t.Fatalf("second window must start when the first closes")
	}
	if windows[0].Contains(windows[0].End) {
		t.Fatalf("window end must be exclusive")
	}
	end, ok := VotingEndsAt(assembly)
	if !ok || !end.Equal(started.Add(45*time.Minute)) {
		t.Fatalf("unexpected voting end %v", end)
	}

	assembly.StartedAt = nil
	if windows := VotingWindows(assembly); windows != nil {
		t.Fatalf("planned assembly must have no windows, got %v", windows)
	}
}

func TestItemStateFollowsStatusAndClock(t *testing.T) {
	assembly := runningAssembly(30*time.Minute, 15*time.Minute)
	cases := []struct {
		name    string
		status  entities.AssemblyStatus
		numeral int
		at      time.Time
		want    entities.VotingState
	}{
		{"first item open", entities.AssemblyStatusInProgress, 1, started.Add(time.Minute), entities.VotingStateOpen},
		{"second item waiting", entities.AssemblyStatusInProgress, 2, started.Add(time.Minute), entities.VotingStateNotOpen},
		{"first item elapsed", entities.AssemblyStatusInProgress, 1, started.Add(30 * time.Minute), entities.VotingStateClosed},
		{"unknown item", entities.AssemblyStatusInProgress, 7, started, entities.VotingStateNotOpen},
		{"planned", entities.AssemblyStatusPlanned, 1, started, entities.VotingStateNotOpen},
		{"completed", entities.AssemblyStatusCompleted, 2, started, entities.VotingStateClosed},
		{"cancelled", entities.AssemblyStatusCancelled, 1, started.Add(time.Minute), entities.VotingStateClosed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assembly.Status = tc.status
			if got := ItemState(assembly, tc.numeral, tc.at); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestComputeQuorumCountsVerifiedWeightOnce(t *testing.T) {
	assembly := runningAssembly(time.Hour)
	voters := []entities.EligibleVoter{
		{ResidentID: "a", Weight: 2},
		{ResidentID: "b", Weight: 3},
		{ResidentID: "c", Weight: 5},
	}
	records := []entities.AttendanceRecord{
		{ResidentID: "a", Confirmed: true, Verified: true},
		{ResidentID: "a", Confirmed: true, Verified: true},
		{ResidentID: "b", Confirmed: true},
		{ResidentID: "stranger", Confirmed: true, Verified: true},
		{ResidentID: "c", Confirmed: true, Verified: true},
	}
	snapshot := ComputeQuorum(assembly, voters, records, started)
	if snapshot.ConfirmedResidents != 2 || snapshot.ConfirmedUnits != 7 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if snapshot.CurrentPct != 70 || !snapshot.Reached {
		t.Fatalf("expected 70%% and reached, got %+v", snapshot)
	}

	assembly.TotalEligibleUnits = 0
	if ComputeQuorum(assembly, voters, records, started).Reached {
		t.Fatalf("an assembly without eligible units can never reach quorum")
	}
}

func TestDecisionRules(t *testing.T) {
	tally := entities.Tally{YesUnits: 6, NoUnits: 4, AbstainUnits: 10}
	if !(SimpleMajority{}).Passed(tally) {
		t.Fatalf("simple majority should pass 6 against 4")
	}
	if (QualifiedMajority{Threshold: 2.0 / 3.0}).Passed(tally) {
		t.Fatalf("two thirds should fail at 60%%")
	}
	if !(QualifiedMajority{Threshold: 0.6}).Passed(tally) {
		t.Fatalf("60%% threshold should pass at 60%%")
	}
	if (SimpleMajority{}).Passed(entities.Tally{YesUnits: 3, NoUnits: 3}) {
		t.Fatalf("a tie must not pass")
	}
	if (QualifiedMajority{Threshold: 0.5}).Passed(entities.Tally{AbstainUnits: 4}) {
		t.Fatalf("only abstentions must not pass")
	}

	if _, err := ParseDecisionRule("qualified_majority", 0); err == nil {
		t.Fatalf("expected threshold error")
	}
	if _, err := ParseDecisionRule("unanimity", 1); err == nil {
		t.Fatalf("expected unknown rule error")
	}
	rule, err := ParseDecisionRule(" Qualified_Majority ", 0.75)
	if err != nil || rule.Name() != "qualified_majority" {
		t.Fatalf("unexpected rule %v, %v", rule, err)
	}

	policy := DecisionPolicy{Extraordinary: QualifiedMajority{Threshold: 0.75}}
	if policy.RuleFor(entities.AssemblyTypeOrdinary).Name() != "simple_majority" {
		t.Fatalf("missing ordinary rule should fall back to simple majority")
	}
	if policy.RuleFor(entities.AssemblyTypeExtraordinary).Name() != "qualified_majority" {
		t.Fatalf("extraordinary assemblies should use the configured rule")
	}
}

func TestComputeTallyNamedOptions(t *testing.T) {
	assembly := runningAssembly(time.Hour)
	item := entities.AgendaItem{Numeral: 1, Topic: "Facade", Duration: time.Hour, Options: []string{"Blue", "Grey", "White"}}
	votes := []entities.Vote{
		{AssemblyID: "asm-1", AgendaNumeral: 1, ResidentID: "a", Choice: "Grey", Weight: 2},
		{AssemblyID: "asm-1", AgendaNumeral: 1, ResidentID: "b", Choice: "Blue", Weight: 1},
		{AssemblyID: "asm-1", AgendaNumeral: 2, ResidentID: "c", Choice: "Blue", Weight: 5},
	}
	tally := ComputeTally(assembly, item, votes, SimpleMajority{}, started.Add(time.Minute))
	if !tally.NamedOptions || tally.LeadingOption != "Grey" {
		t.Fatalf("expected Grey to lead, got %+v", tally)
	}
	if tally.Units["White"] != 0 || tally.Ballots["Blue"] != 1 {
		t.Fatalf("unexpected option counts %+v", tally.Units)
	}
	if tally.Passed {
		t.Fatalf("named option items are never passed")
	}

	votes = append(votes, entities.Vote{AssemblyID: "asm-1", AgendaNumeral: 1, ResidentID: "d", Choice: "Blue", Weight: 1})
	if leader := ComputeTally(assembly, item, votes, SimpleMajority{}, started).LeadingOption; leader != "" {
		t.Fatalf("a tie must leave no leader, got %q", leader)
	}
}

func TestNormalizeAgendaNumbersItems(t *testing.T) {
	agenda, err := NormalizeAgenda([]entities.AgendaItem{
		{Numeral: 9, Topic: "  Budget ", Duration: time.Minute},
		{Topic: "Facade", Duration: time.Minute, Options: []string{" Blue", "Grey "}},
	})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if agenda[0].Numeral != 1 || agenda[1].Numeral != 2 || agenda[0].Topic != "Budget" {
		t.Fatalf("unexpected agenda %+v", agenda)
	}
	if agenda[1].Options[0] != "Blue" || agenda[1].Options[1] != "Grey" {
		t.Fatalf("options must be trimmed, got %v", agenda[1].Options)
	}
}

func TestAuthorizeUsesCapabilityTable(t *testing.T) {
	resident := entities.Principal{UserID: "res-1", Role: entities.RoleResident}
	if err := AuthorizeFor(resident, "res-1", CapabilityVoteOnBehalf); err != nil {
		t.Fatalf("residents act for themselves: %v", err)
	}
	err := AuthorizeFor(resident, "res-2", CapabilityVoteOnBehalf)
	if !errors.Is(err, domainerrors.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := Authorize(entities.Principal{Role: entities.RoleAdmin}, CapabilityManageAssembly); !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("expected validation error for missing user, got %v", err)
	}
	if !Allows(entities.ParseRole("RECEPTION"), CapabilityVerifyAttendance) {
		t.Fatalf("reception verifies attendance")
	}
	if Allows(entities.RoleComplexAdmin, CapabilityVerifyAttendance) {
		t.Fatalf("complex admins do not verify attendance")
	}
	if Allows(entities.Role("janitor"), CapabilityReadResults) {
		t.Fatalf("unknown roles have no capabilities")
	}
}

func TestVotingWindowProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("windows tile the agenda without gaps or overlap", prop.ForAll(
		func(minutes []int) bool {
			durations := make([]time.Duration, 0, len(minutes))
			total := time.Duration(0)
			for _, m := range minutes {
				d := time.Duration(m) * time.Minute
				durations = append(durations, d)
				total += d
			}
			assembly := runningAssembly(durations...)
			windows := VotingWindows(assembly)
			if len(windows) != len(minutes) {
				return false
			}
			cursor := started
			for i, window := range windows {
				if window.AgendaNumeral != i+1 || !window.Start.Equal(cursor) || !window.End.After(window.Start) {
					return false
				}
				cursor = window.End
			}
			end, ok := VotingEndsAt(assembly)
			return ok && end.Equal(started.Add(total))
		},
		gen.SliceOfN(6, gen.IntRange(1, 240)).SuchThat(func(v []int) bool { return len(v) > 0 }),
	))

	properties.Property("at most one item is open at any instant", prop.ForAll(
		func(minutes []int, offset int) bool {
			durations := make([]time.Duration, 0, len(minutes))
			for _, m := range minutes {
				durations = append(durations, time.Duration(m)*time.Minute)
			}
			assembly := runningAssembly(durations...)
			at := started.Add(time.Duration(offset) * time.Minute)
			open := 0
			for _, item := range assembly.Agenda {
				if ItemState(assembly, item.Numeral, at) == entities.VotingStateOpen {
					open++
				}
			}
			return open <= 1
		},
		gen.SliceOfN(5, gen.IntRange(1, 90)),
		gen.IntRange(-30, 600),
	))

	properties.TestingRun(t)
}

func TestTallyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	choices := []string{entities.ChoiceYes, entities.ChoiceNo, entities.ChoiceAbstain}
	item := entities.AgendaItem{Numeral: 1, Topic: "Budget", Duration: time.Hour}

	buildVotes := func(picks []int, weights []int) []entities.Vote {
		votes := make([]entities.Vote, 0, len(picks))
		for i, pick := range picks {
			weight := 1
			if i < len(weights) {
				weight = weights[i]
			}
			votes = append(votes, entities.Vote{
				AssemblyID:    "asm-1",
				AgendaNumeral: 1,
				ResidentID:    fmt.Sprintf("res-%d", i),
				Choice:        choices[pick],
				Weight:        float64(weight),
			})
		}
		return votes
	}

	properties.Property("choice units add up to cast units", prop.ForAll(
		func(picks []int, weights []int) bool {
			tally := ComputeTally(runningAssembly(time.Hour), item, buildVotes(picks, weights), SimpleMajority{}, started)
			sum := tally.YesUnits + tally.NoUnits + tally.AbstainUnits
			return sum == tally.CastUnits && tally.BallotCount == len(picks)
		},
		gen.SliceOf(gen.IntRange(0, 2)),
		gen.SliceOf(gen.IntRange(1, 4)),
	))

	properties.Property("vote order does not change the tally", prop.ForAll(
		func(picks []int, weights []int, seed int64) bool {
			votes := buildVotes(picks, weights)
			shuffled := append([]entities.Vote(nil), votes...)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			a := ComputeTally(runningAssembly(time.Hour), item, votes, SimpleMajority{}, started)
			b := ComputeTally(runningAssembly(time.Hour), item, shuffled, SimpleMajority{}, started)
			return a.YesUnits == b.YesUnits && a.NoUnits == b.NoUnits && a.AbstainUnits == b.AbstainUnits && a.Passed == b.Passed
		},
		gen.SliceOf(gen.IntRange(0, 2)),
		gen.SliceOf(gen.IntRange(1, 4)),
		gen.Int64(),
	))

	properties.Property("a repeated resident row is counted once", prop.ForAll(
		func(picks []int) bool {
			votes := buildVotes(picks, nil)
			doubled := append(append([]entities.Vote(nil), votes...), votes...)
			a := ComputeTally(runningAssembly(time.Hour), item, votes, SimpleMajority{}, started)
			b := ComputeTally(runningAssembly(time.Hour), item, doubled, SimpleMajority{}, started)
			return a.CastUnits == b.CastUnits && a.BallotCount == b.BallotCount
		},
		gen.SliceOf(gen.IntRange(0, 2)),
	))

	properties.TestingRun(t)
}

func TestQuorumAndElectorateProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)
	choices := []string{entities.ChoiceYes, entities.ChoiceNo, entities.ChoiceAbstain}

	electorate := func(weights []int) (entities.Assembly, []entities.EligibleVoter) {
		assembly := runningAssembly(time.Hour)
		assembly.TotalEligibleUnits = 0
		voters := make([]entities.EligibleVoter, 0, len(weights))
		for i, w := range weights {
			voters = append(voters, entities.EligibleVoter{AssemblyID: "asm-1", ResidentID: fmt.Sprintf("res-%d", i), Weight: float64(w)})
			assembly.TotalEligibleUnits += float64(w)
		}
		return assembly, voters
	}

	properties.Property("verifying more attendance never lowers the quorum", prop.ForAll(
		func(weights []int, seed int64) bool {
			assembly, voters := electorate(weights)
			order := rand.New(rand.NewSource(seed)).Perm(len(voters))
			records := make([]entities.AttendanceRecord, len(voters))
			for i, voter := range voters {
				records[i] = entities.AttendanceRecord{AssemblyID: "asm-1", ResidentID: voter.ResidentID, Confirmed: true}
			}
			previous := ComputeQuorum(assembly, voters, records, started)
			if previous.CurrentPct != 0 || previous.Reached {
				return false
			}
			for _, index := range order {
				records[index].Verified = true
				current := ComputeQuorum(assembly, voters, records, started)
				if current.CurrentPct < previous.CurrentPct || current.CurrentPct > 100 {
					return false
				}
				if previous.Reached && !current.Reached {
					return false
				}
				previous = current
			}
			return previous.CurrentPct == 100 && previous.Reached
		},
		gen.SliceOf(gen.IntRange(1, 4)).SuchThat(func(v []int) bool { return len(v) > 0 }),
		gen.Int64(),
	))

	properties.Property("cast units never exceed the frozen electorate", prop.ForAll(
		func(weights []int, picks []int) bool {
			assembly, voters := electorate(weights)
			votes := make([]entities.Vote, 0, len(voters))
			for i, voter := range voters {
				if i >= len(picks) {
					break
				}
				votes = append(votes, entities.Vote{
					AssemblyID:    "asm-1",
					AgendaNumeral: 1,
					ResidentID:    voter.ResidentID,
					Choice:        choices[picks[i]],
					Weight:        voter.Weight,
				})
			}
			tally := ComputeTally(assembly, assembly.Agenda[0], votes, SimpleMajority{}, started)
			return tally.YesUnits+tally.NoUnits+tally.AbstainUnits <= assembly.TotalEligibleUnits &&
				tally.TurnoutPct <= 100
		},
		gen.SliceOf(gen.IntRange(1, 4)),
		gen.SliceOf(gen.IntRange(0, 2)),
	))

	properties.TestingRun(t)
}
