package grading

import "strings"

// NormalizeText trims, collapses inner whitespace and case-folds s.
func NormalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
