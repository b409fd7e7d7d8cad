package domain

// QuestionKind is the closed set of supported question kinds.
type QuestionKind string

const (
	KindSingleSelect QuestionKind = "single_select"
	KindMultiSelect  QuestionKind = "multi_select"
	KindTrueFalse    QuestionKind = "true_false"
	KindShortText    QuestionKind = "short_text"
	KindEssay        QuestionKind = "essay"
	KindFillBlank    QuestionKind = "fill_blank"
	KindMatching     QuestionKind = "matching"
	KindOrdering     QuestionKind = "ordering"
)

// Kinds lists every supported kind.
var Kinds = []QuestionKind{
	KindSingleSelect,
	KindMultiSelect,
	KindTrueFalse,
	KindShortText,
	KindEssay,
	KindFillBlank,
	KindMatching,
	KindOrdering,
}

// Valid reports whether k is one of Kinds.
func (k QuestionKind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Objective reports whether the kind is graded by an exact-match rule.
func (k QuestionKind) Objective() bool {
	return k.Valid() && k != KindEssay
}

// UsesOptions reports whether the kind is answered by referencing option IDs.
func (k QuestionKind) UsesOptions() bool {
	switch k {
	case KindSingleSelect, KindMultiSelect, KindTrueFalse, KindMatching, KindOrdering:
		return true
	}
	return false
}

// FreeText reports whether the kind is answered with text.
func (k QuestionKind) FreeText() bool {
	switch k {
	case KindShortText, KindFillBlank, KindEssay:
		return true
	}
	return false
}
