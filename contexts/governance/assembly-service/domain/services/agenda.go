package services

import (
	"fmt"
	"strings"

	"condominia/contexts/governance/assembly-service/domain/entities"
	domainerrors "condominia/contexts/governance/assembly-service/domain/errors"
)

// NormalizeAgenda validates the agenda and numbers items 1..n in order.
func NormalizeAgenda(items []entities.AgendaItem) ([]entities.AgendaItem, error) {
	if len(items) == 0 {
		return nil, domainerrors.Invalid("agenda requires at least one item")
	}
	normalized := make([]entities.AgendaItem, 0, len(items))
	for index, item := range items {
		numeral := index + 1
		topic := strings.TrimSpace(item.Topic)
		if topic == "" {
			return nil, domainerrors.Invalid(fmt.Sprintf("agenda item %d requires a topic", numeral))
		}
		if item.Duration <= 0 {
			return nil, domainerrors.Invalid(fmt.Sprintf("agenda item %d requires a positive duration", numeral))
		}
		options, err := normalizeOptions(numeral, item.Options)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, entities.AgendaItem{
			Numeral:  numeral,
			Topic:    topic,
			Duration: item.Duration,
			Notes:    strings.TrimSpace(item.Notes),
			Options:  options,
		})
	}
	return normalized, nil
}

func normalizeOptions(numeral int, raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if len(raw) < 2 {
		return nil, domainerrors.Invalid(fmt.Sprintf("agenda item %d needs at least two named options", numeral))
	}
	seen := make(map[string]struct{}, len(raw))
	options := make([]string, 0, len(raw))
	for _, option := range raw {
		value := strings.TrimSpace(option)
		key := strings.ToLower(value)
		if value == "" {
			return nil, domainerrors.Invalid(fmt.Sprintf("agenda item %d has an empty option", numeral))
		}
		if _, dup := seen[key]; dup {
			return nil, domainerrors.Invalid(fmt.Sprintf("agenda item %d repeats option %q", numeral, value))
		}
		seen[key] = struct{}{}
		options = append(options, value)
	}
	return options, nil
}

func ValidateQuorumPct(pct float64) error {
	if pct <= 0 || pct > 100 {
		return domainerrors.Invalid("quorum percentage must be in (0, 100]")
	}
	return nil
}
