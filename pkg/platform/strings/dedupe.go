// Package strings provides string manipulation utilities.
package strings

import (
	"strings"
)

// DedupeAndTrim removes duplicates and empty strings from a slice,
// trimming whitespace from each element. Order is preserved.
func DedupeAndTrim[S ~string](values []S) []S {
	return dedupe(values, func(s string) string { return strings.TrimSpace(s) })
}

// DedupeAndTrimLower is like DedupeAndTrim but also lowercases each element.
// Module type references are normalised through it before catalog validation.
//
//	DedupeAndTrimLower([]string{"  Audit_Management ", "audit_management", ""})
//	// Returns: []string{"audit_management"}
func DedupeAndTrimLower[S ~string](values []S) []S {
	return dedupe(values, func(s string) string { return strings.ToLower(strings.TrimSpace(s)) })
}

func dedupe[S ~string](values []S, normalize func(string) string) []S {
	if len(values) == 0 {
		return values
	}

	seen := make(map[S]struct{}, len(values))
	result := make([]S, 0, len(values))
	for _, v := range values {
		n := S(normalize(string(v)))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		result = append(result, n)
	}
	return result
}
