// Package util provides common utility functions used across the codebase.
package util

import (
	"sort"
	"strings"
)

// JoinOrNone joins strings with ", " or returns "(none)" for empty slices.
// This is useful for displaying lists of devices, tags, or other items where
// an empty list should show a placeholder rather than nothing.
func JoinOrNone(items []string) string {
	return JoinOrDefault(items, "(none)")
}

// JoinOrDefault joins strings with ", " or returns the default value for empty slices.
func JoinOrDefault(items []string, def string) string {
	if len(items) == 0 {
		return def
	}
	return strings.Join(items, ", ")
}

// Pluralize returns singular if count is 1, otherwise plural.
func Pluralize(count int, singular, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

// LevenshteinDistance returns the minimum number of single-character edits
// (insertions, deletions, substitutions) needed to change a into b.
func LevenshteinDistance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// SuggestSimilar returns candidates within maxDistance edits of input,
// closest first. Matching is case-insensitive, and the cutoff tightens for
// short names so that near-total rewrites of a short word do not qualify.
// Returns nil when nothing is close enough.
func SuggestSimilar(input string, candidates []string, maxDistance int) []string {
	if input == "" || len(candidates) == 0 {
		return nil
	}

	lower := strings.ToLower(input)

	type scored struct {
		name string
		dist int
	}
	var matches []scored
	for _, c := range candidates {
		cl := strings.ToLower(c)
		limit := maxDistance
		longer := len(lower)
		if len(cl) > longer {
			longer = len(cl)
		}
		if half := longer / 2; half < limit {
			limit = half
		}
		d := LevenshteinDistance(lower, cl)
		if d <= limit {
			matches = append(matches, scored{name: c, dist: d})
		}
	}
	if len(matches) == 0 {
		return nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].dist < matches[j].dist
	})

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.name
	}
	return out
}
