package grading

import (
	"errors"
	"strings"
	"testing"

	"assessment-engine/internal/domain"
)

func TestValidatePayload(t *testing.T) {
	ordering := domain.QuestionDefinition{
		ID:   "q-order",
		Kind: domain.KindOrdering,
		Options: []domain.AnswerOption{
			{ID: "x", Position: 1},
			{ID: "y", Position: 2},
		},
	}
	essay := domain.QuestionDefinition{ID: "q-essay", Kind: domain.KindEssay}
	short := domain.QuestionDefinition{ID: "q-short", Kind: domain.KindShortText}

	cases := []struct {
		name    string
		q       domain.QuestionDefinition
		p       domain.Payload
		wantErr bool
	}{
		{"single ok", singleSelect(), domain.Payload{OptionIDs: []string{"a"}}, false},
		{"single two options", singleSelect(), domain.Payload{OptionIDs: []string{"a", "b"}}, true},
		{"single unknown option", singleSelect(), domain.Payload{OptionIDs: []string{"z"}}, true},
		{"single with text", singleSelect(), domain.Payload{OptionIDs: []string{"a"}, Text: "a"}, true},
		{"ordering ok", ordering, domain.Payload{Order: []string{"y", "x"}}, false},
		{"ordering missing item", ordering, domain.Payload{Order: []string{"x"}}, true},
		{"ordering duplicate", ordering, domain.Payload{Order: []string{"x", "x"}}, true},
		{"essay ok", essay, domain.Payload{Text: "because"}, false},
		{"essay blank", essay, domain.Payload{Text: "   "}, true},
		{"short too long", short, domain.Payload{Text: strings.Repeat("a", 11)}, true},
	}
	limits := Limits{ShortText: 10, Essay: 100}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePayload(tc.q, tc.p, limits)
			if tc.wantErr && !errors.Is(err, domain.ErrInvalidPayload) {
				t.Fatalf("expected invalid payload, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
