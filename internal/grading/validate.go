package grading

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"assessment-engine/internal/domain"
)

// Limits bounds free-text answers, counted in runes.
type Limits struct {
	ShortText int
	Essay     int
}

// DefaultLimits is used when no limits are configured.
var DefaultLimits = Limits{ShortText: 500, Essay: 20000}

// ValidatePayload checks that p has the shape expected by the question kind.
// It never consults correctness, only structure.
func ValidatePayload(q domain.QuestionDefinition, p domain.Payload, limits Limits) error {
	if limits.ShortText <= 0 {
		limits.ShortText = DefaultLimits.ShortText
	}
	if limits.Essay <= 0 {
		limits.Essay = DefaultLimits.Essay
	}

	switch q.Kind {
	case domain.KindSingleSelect, domain.KindTrueFalse:
		if err := onlyFields(p, "optionIds"); err != nil {
			return err
		}
		if len(p.OptionIDs) != 1 {
			return invalid("expected exactly one option, got %d", len(p.OptionIDs))
		}
		return knownOptions(q, p.OptionIDs)
	case domain.KindMultiSelect:
		if err := onlyFields(p, "optionIds"); err != nil {
			return err
		}
		if len(p.OptionIDs) == 0 {
			return invalid("expected at least one option")
		}
		if err := distinct(p.OptionIDs); err != nil {
			return err
		}
		return knownOptions(q, p.OptionIDs)
	case domain.KindShortText, domain.KindFillBlank:
		if err := onlyFields(p, "text"); err != nil {
			return err
		}
		return boundedText(p.Text, limits.ShortText)
	case domain.KindEssay:
		if err := onlyFields(p, "text"); err != nil {
			return err
		}
		return boundedText(p.Text, limits.Essay)
	case domain.KindMatching:
		if err := onlyFields(p, "pairs"); err != nil {
			return err
		}
		if len(p.Pairs) == 0 {
			return invalid("expected at least one pair")
		}
		for optionID, key := range p.Pairs {
			if _, ok := q.Option(optionID); !ok {
				return invalid("unknown option %q", optionID)
			}
			if strings.TrimSpace(key) == "" {
				return invalid("empty match for option %q", optionID)
			}
		}
		return nil
	case domain.KindOrdering:
		if err := onlyFields(p, "order"); err != nil {
			return err
		}
		if len(p.Order) != len(q.Options) {
			return invalid("expected %d items in order, got %d", len(q.Options), len(p.Order))
		}
		if err := distinct(p.Order); err != nil {
			return err
		}
		return knownOptions(q, p.Order)
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownQuestionKind, q.Kind)
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidPayload, fmt.Sprintf(format, args...))
}

// onlyFields rejects payloads carrying fields that belong to other kinds.
func onlyFields(p domain.Payload, allowed string) error {
	set := map[string]bool{
		"optionIds": len(p.OptionIDs) > 0,
		"text":      p.Text != "",
		"pairs":     len(p.Pairs) > 0,
		"order":     len(p.Order) > 0,
	}
	for field, present := range set {
		if present && field != allowed {
			return invalid("field %q not accepted, expected %q", field, allowed)
		}
	}
	return nil
}

func knownOptions(q domain.QuestionDefinition, ids []string) error {
	for _, id := range ids {
		if _, ok := q.Option(id); !ok {
			return invalid("unknown option %q", id)
		}
	}
	return nil
}

func distinct(ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return invalid("duplicate option %q", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

func boundedText(text string, max int) error {
	if strings.TrimSpace(text) == "" {
		return invalid("expected a non-empty answer")
	}
	if n := utf8.RuneCountInString(text); n > max {
		return invalid("answer is %d characters, limit is %d", n, max)
	}
	return nil
}
