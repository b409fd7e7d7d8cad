package grading

import (
	"fmt"
	"sort"

	"assessment-engine/internal/domain"
)

// Result is the verdict for one response. IsCorrect is nil while a response awaits manual grading.
type Result struct {
	IsCorrect     *bool
	AwardedPoints int
}

// Evaluate scores a payload against its question. The payload must already have passed
// ValidatePayload; Evaluate has no side effects.
func Evaluate(q domain.QuestionDefinition, p domain.Payload) (Result, error) {
	var correct bool
	switch q.Kind {
	case domain.KindSingleSelect, domain.KindTrueFalse:
		correct = singleCorrect(q, p.OptionIDs)
	case domain.KindMultiSelect:
		correct = sameSet(correctOptionIDs(q), p.OptionIDs)
	case domain.KindShortText, domain.KindFillBlank:
		correct = textAccepted(q.AcceptedAnswers, p.Text)
	case domain.KindMatching:
		correct = pairsMatch(q, p.Pairs)
	case domain.KindOrdering:
		correct = sequenceMatches(q, p.Order)
	case domain.KindEssay:
		return Result{}, nil
	default:
		return Result{}, fmt.Errorf("%w: %q", domain.ErrUnknownQuestionKind, q.Kind)
	}

	res := Result{IsCorrect: &correct}
	if correct {
		res.AwardedPoints = q.Points
	}
	return res, nil
}

// AnswerKey renders the correct answer for review screens.
func AnswerKey(q domain.QuestionDefinition) domain.Payload {
	switch q.Kind {
	case domain.KindSingleSelect, domain.KindTrueFalse, domain.KindMultiSelect:
		return domain.Payload{OptionIDs: correctOptionIDs(q)}
	case domain.KindShortText, domain.KindFillBlank:
		if len(q.AcceptedAnswers) > 0 {
			return domain.Payload{Text: q.AcceptedAnswers[0]}
		}
	case domain.KindMatching:
		pairs := make(map[string]string, len(q.Options))
		for _, opt := range q.Options {
			pairs[opt.ID] = opt.MatchKey
		}
		return domain.Payload{Pairs: pairs}
	case domain.KindOrdering:
		return domain.Payload{Order: correctSequence(q)}
	}
	return domain.Payload{}
}

func singleCorrect(q domain.QuestionDefinition, selected []string) bool {
	if len(selected) != 1 {
		return false
	}
	opt, ok := q.Option(selected[0])
	return ok && opt.Correct
}

func correctOptionIDs(q domain.QuestionDefinition) []string {
	ids := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		if opt.Correct {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// sameSet is all-or-nothing: any missing or extra option fails.
func sameSet(want, got []string) bool {
	if len(want) != len(got) {
		return false
	}
	set := make(map[string]struct{}, len(want))
	for _, id := range want {
		set[id] = struct{}{}
	}
	for _, id := range got {
		if _, ok := set[id]; !ok {
			return false
		}
		delete(set, id)
	}
	return len(set) == 0
}

func textAccepted(accepted []string, text string) bool {
	answer := NormalizeText(text)
	if answer == "" {
		return false
	}
	for _, a := range accepted {
		if NormalizeText(a) == answer {
			return true
		}
	}
	return false
}

func pairsMatch(q domain.QuestionDefinition, pairs map[string]string) bool {
	if len(pairs) != len(q.Options) {
		return false
	}
	for _, opt := range q.Options {
		if got, ok := pairs[opt.ID]; !ok || got != opt.MatchKey {
			return false
		}
	}
	return true
}

func correctSequence(q domain.QuestionDefinition) []string {
	opts := make([]domain.AnswerOption, len(q.Options))
	copy(opts, q.Options)
	sort.SliceStable(opts, func(i, j int) bool { return opts[i].Position < opts[j].Position })
	ids := make([]string, len(opts))
	for i, opt := range opts {
		ids[i] = opt.ID
	}
	return ids
}

func sequenceMatches(q domain.QuestionDefinition, order []string) bool {
	want := correctSequence(q)
	if len(want) != len(order) {
		return false
	}
	for i := range want {
		if want[i] != order[i] {
			return false
		}
	}
	return true
}
