// Package strings provides string slice utilities.
package strings

import "sort"

// Dedupe removes repeated values from a slice. The first occurrence wins and
// order is preserved. Values are compared exactly, without trimming.
//
// Example:
//
//	Dedupe([]string{"b", "a", "b"})
//	// Returns: []string{"b", "a"}
func Dedupe(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			result = append(result, v)
		}
	}
	return result
}

// SortedUnique returns the distinct values in ascending byte order. The input
// is not modified.
func SortedUnique(values []string) []string {
	out := Dedupe(values)
	if len(out) == 0 {
		return out
	}
	out = append([]string(nil), out...)
	sort.Strings(out)
	return out
}
