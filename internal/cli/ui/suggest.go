package ui

import (
	"sort"
	"strings"
)

// Suggestion limits
const (
	DefaultMaxDistance    = 3
	DefaultMaxSuggestions = 3
)

// Suggest returns up to max candidates within maxDistance edits of target,
// closest first. Ties keep candidate order. Comparison ignores case.
func Suggest(target string, candidates []string, maxDistance, max int) []string {
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	if max <= 0 {
		max = DefaultMaxSuggestions
	}

	type scored struct {
		value    string
		distance int
	}
	target = strings.ToLower(target)

	var hits []scored
	for _, c := range candidates {
		if d := Distance(target, strings.ToLower(c)); d <= maxDistance {
			hits = append(hits, scored{c, d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].distance < hits[j].distance })

	out := make([]string, 0, max)
	for i := 0; i < len(hits) && i < max; i++ {
		out = append(out, hits[i].value)
	}
	return out
}

// Distance is the Levenshtein distance between a and b, counted in runes
func Distance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
