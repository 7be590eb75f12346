package ui

import (
	"sort"
	"strings"
)

// MaxSuggestions bounds the names returned by Suggest
const MaxSuggestions = 3

// Suggest returns up to MaxSuggestions candidates within edit distance 3 of
// target, closest first. Matching ignores case.
func Suggest(target string, candidates []string) []string {
	type match struct {
		name     string
		distance int
	}

	var matches []match
	lower := strings.ToLower(target)
	for _, c := range candidates {
		if d := editDistance(lower, strings.ToLower(c)); d <= 3 {
			matches = append(matches, match{c, d})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].distance < matches[j].distance
	})

	var out []string
	for i := 0; i < len(matches) && i < MaxSuggestions; i++ {
		out = append(out, matches[i].name)
	}
	return out
}

// editDistance is the Levenshtein distance between a and b
func editDistance(a, b string) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
