package board

import (
	"regexp"
	"strings"
)

// tokenPattern extracts runs of lowercase letters/digits — the tokenizer
// documented for spec.md's fuzzy-duplicate check (its exact shape was an
// open question in the distillation; this one is the one this repo commits
// to).
var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "that": true, "with": true,
	"this": true, "from": true, "into": true, "add": true, "fix": true,
	"implement": true, "update": true,
}

// tokenize lower-cases s, extracts alphanumeric runs, drops tokens shorter
// than 3 characters and common stopwords, and returns the resulting set.
func tokenize(s string) map[string]bool {
	lower := strings.ToLower(s)
	tokens := tokenPattern.FindAllString(lower, -1)
	set := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		set[tok] = true
	}
	return set
}

// jaccard computes the Jaccard similarity of the token sets of a and b.
func jaccard(a, b string) float64 {
	setA := tokenize(a)
	setB := tokenize(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// FindSimilarInProgress returns the in-progress tasks whose objective is at
// least threshold-similar (Jaccard over the tokenizer above) to objective.
func FindSimilarInProgress(inProgress []*Task, objective string, threshold float64) []*Task {
	var out []*Task
	for _, t := range inProgress {
		if jaccard(objective, t.Objective) >= threshold {
			out = append(out, t)
		}
	}
	return out
}
