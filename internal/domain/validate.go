package domain

import (
	"fmt"
	"strings"
)

// Validate checks a quiz definition before it is published.
func (q QuizDefinition) Validate() error {
	if strings.TrimSpace(q.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidQuiz)
	}
	if len(q.Questions) == 0 {
		return fmt.Errorf("%w: at least one question is required", ErrInvalidQuiz)
	}
	if q.PassingScore < 0 || q.PassingScore > 100 {
		return fmt.Errorf("%w: passing score %d outside 0..100", ErrInvalidQuiz, q.PassingScore)
	}
	if q.MaxAttempts < 0 {
		return fmt.Errorf("%w: max attempts must not be negative", ErrInvalidQuiz)
	}
	if q.TimeLimitSeconds != nil && *q.TimeLimitSeconds < 0 {
		return fmt.Errorf("%w: time limit must not be negative", ErrInvalidQuiz)
	}
	if q.AvailableFrom != nil && q.AvailableUntil != nil && q.AvailableUntil.Before(*q.AvailableFrom) {
		return fmt.Errorf("%w: availability window ends before it starts", ErrInvalidQuiz)
	}

	seen := make(map[string]struct{}, len(q.Questions))
	for _, question := range q.Questions {
		if _, dup := seen[question.ID]; dup {
			return fmt.Errorf("%w: duplicate question %q", ErrInvalidQuiz, question.ID)
		}
		seen[question.ID] = struct{}{}
		if err := question.validate(); err != nil {
			return fmt.Errorf("%w: question %q: %s", ErrInvalidQuiz, question.ID, err)
		}
	}
	return nil
}

func (q QuestionDefinition) validate() error {
	if strings.TrimSpace(q.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if !q.Kind.Valid() {
		return fmt.Errorf("unsupported kind %q", q.Kind)
	}
	if q.Points < 1 {
		return fmt.Errorf("points must be at least 1")
	}

	optionIDs := make(map[string]struct{}, len(q.Options))
	correct := 0
	for _, opt := range q.Options {
		if opt.ID == "" {
			return fmt.Errorf("option id is required")
		}
		if _, dup := optionIDs[opt.ID]; dup {
			return fmt.Errorf("duplicate option %q", opt.ID)
		}
		optionIDs[opt.ID] = struct{}{}
		if opt.Correct {
			correct++
		}
	}

	switch q.Kind {
	case KindSingleSelect:
		if len(q.Options) < 2 || correct != 1 {
			return fmt.Errorf("single select needs at least two options and exactly one correct")
		}
	case KindTrueFalse:
		if len(q.Options) != 2 || correct != 1 {
			return fmt.Errorf("true/false needs two options and exactly one correct")
		}
	case KindMultiSelect:
		if len(q.Options) < 2 || correct < 1 {
			return fmt.Errorf("multi select needs at least two options and one correct")
		}
	case KindShortText, KindFillBlank:
		accepted := 0
		for _, a := range q.AcceptedAnswers {
			if strings.TrimSpace(a) != "" {
				accepted++
			}
		}
		if accepted == 0 {
			return fmt.Errorf("at least one accepted answer is required")
		}
	case KindEssay:
	case KindMatching:
		if len(q.Options) == 0 {
			return fmt.Errorf("matching needs options")
		}
		for _, opt := range q.Options {
			if strings.TrimSpace(opt.MatchKey) == "" {
				return fmt.Errorf("option %q has no match key", opt.ID)
			}
		}
	case KindOrdering:
		if len(q.Options) < 2 {
			return fmt.Errorf("ordering needs at least two options")
		}
		positions := make(map[int]struct{}, len(q.Options))
		for _, opt := range q.Options {
			if _, dup := positions[opt.Position]; dup {
				return fmt.Errorf("duplicate position %d", opt.Position)
			}
			positions[opt.Position] = struct{}{}
		}
	}
	return nil
}
