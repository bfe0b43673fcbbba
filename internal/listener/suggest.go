package listener

import (
	"fmt"
	"sort"
	"strings"
)

// maxEditDistance is the Levenshtein distance ceiling for a candidate to
// be considered "close" to an unknown name (original_source grounding:
// crates/daemon/src/listener/suggest_tests.rs).
const maxEditDistance = 2

// editDistance is the classic Levenshtein distance between a and b.
func editDistance(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
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

type scoredCandidate struct {
	name     string
	distance int
}

// findSimilar returns candidates within maxEditDistance or sharing a
// prefix with name, nearest first, excluding an exact self-match.
func findSimilar(name string, candidates []string) []string {
	var scored []scoredCandidate
	for _, c := range candidates {
		if c == name {
			continue
		}
		dist := editDistance(name, c)
		switch {
		case dist <= maxEditDistance:
			scored = append(scored, scoredCandidate{c, dist})
		case strings.HasPrefix(c, name) || strings.HasPrefix(name, c):
			scored = append(scored, scoredCandidate{c, dist})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].distance < scored[j].distance
	})
	out := make([]string, len(scored))
	for i, s := range scored {
		out[i] = s.name
	}
	return out
}

// formatSuggestion renders the "did you mean" tail appended to an
// unknown-name error message.
func formatSuggestion(similar []string) string {
	switch len(similar) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("\n\n  did you mean: %s?", similar[0])
	default:
		return fmt.Sprintf("\n\n  did you mean one of: %s?", strings.Join(similar, ", "))
	}
}

// formatCrossProjectSuggestion renders the "--project {ns}" hint for a
// worker/cron/queue lookup that matched a name in a different namespace
// than the one the caller queried, per spec.md §4.10.
func formatCrossProjectSuggestion(command, name, namespace string) string {
	return fmt.Sprintf("\n\n  did you mean: %s %s --project %s?", command, name, namespace)
}
