package services

import (
	"fmt"
	"strings"

	"condominia/contexts/governance/assembly-service/domain/entities"
)

// DecisionRule decides whether a yes/no motion passed. Bylaws differ between
// complexes, so rules are configured rather than fixed.
type DecisionRule interface {
	Name() string
	Passed(tally entities.Tally) bool
}

// SimpleMajority passes when yes units exceed no units among cast votes.
type SimpleMajority struct{}

func (SimpleMajority) Name() string { return "simple_majority" }

func (SimpleMajority) Passed(tally entities.Tally) bool {
	return tally.YesUnits > tally.NoUnits
}

// QualifiedMajority passes when yes units reach Threshold of the yes+no
// units. Abstentions are not counted.
type QualifiedMajority struct {
	Threshold float64
}

func (QualifiedMajority) Name() string { return "qualified_majority" }

func (r QualifiedMajority) Passed(tally entities.Tally) bool {
	decided := tally.YesUnits + tally.NoUnits
	if decided <= 0 {
		return false
	}
	return tally.YesUnits/decided >= r.Threshold
}

// DecisionPolicy picks a rule per assembly type.
type DecisionPolicy struct {
	Ordinary      DecisionRule
	Extraordinary DecisionRule
}

func DefaultDecisionPolicy() DecisionPolicy {
	return DecisionPolicy{Ordinary: SimpleMajority{}, Extraordinary: SimpleMajority{}}
}

func (p DecisionPolicy) RuleFor(assemblyType entities.AssemblyType) DecisionRule {
	var rule DecisionRule
	if assemblyType == entities.AssemblyTypeExtraordinary {
		rule = p.Extraordinary
	} else {
		rule = p.Ordinary
	}
	if rule == nil {
		return SimpleMajority{}
	}
	return rule
}

// ParseDecisionRule builds a rule from its configured name.
func ParseDecisionRule(name string, threshold float64) (DecisionRule, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "simple_majority":
		return SimpleMajority{}, nil
	case "qualified_majority":
		if threshold <= 0 || threshold > 1 {
			return nil, fmt.Errorf("qualified majority threshold must be in (0, 1], got %v", threshold)
		}
		return QualifiedMajority{Threshold: threshold}, nil
	default:
		return nil, fmt.Errorf("unknown decision rule %q", name)
	}
}
