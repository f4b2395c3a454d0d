// File: internal/resolver/scorer.go
package resolver

import (
	"strings"
	"unicode"
)

// Scorer rates how well a candidate name matches a spoken target, in [0, 1].
type Scorer interface {
	Score(target, candidate string) float64
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(target, candidate string) float64

func (f ScorerFunc) Score(target, candidate string) float64 { return f(target, candidate) }

const (
	exactScore    = 1.0
	containsScore = 0.9
	// blended scores stay below containment so a phrase match always wins.
	maxBlendScore = 0.89

	wordWeight   = 0.7
	prefixWeight = 0.3

	minContainLen = 3
)

// DefaultScorer scores exact matches 1.0, the target appearing whole inside
// the candidate 0.9, and otherwise blends the share of target words found in
// the candidate with the length of the common prefix. A candidate that merely
// appears inside a longer target gets no containment credit: "join session"
// must not land on a link called "Sessions".
type DefaultScorer struct{}

func (DefaultScorer) Score(target, candidate string) float64 {
	t, c := normalizeText(target), normalizeText(candidate)
	if t == "" || c == "" {
		return 0
	}
	if t == c {
		return exactScore
	}

	tw, cw := stems(t), stems(c)
	if strings.Join(tw, " ") == strings.Join(cw, " ") {
		return containsScore
	}
	if len(t) >= minContainLen && containsWords(cw, tw) {
		return containsScore
	}

	have := make(map[string]struct{}, len(cw))
	for _, w := range cw {
		have[w] = struct{}{}
	}
	matched := 0
	for _, w := range tw {
		if _, ok := have[w]; ok {
			matched++
		}
	}
	wordRatio := float64(matched) / float64(len(tw))
	prefixRatio := float64(commonPrefix(t, c)) / float64(max(len(t), len(c)))

	score := wordWeight*wordRatio + prefixWeight*prefixRatio
	return min(score, maxBlendScore)
}

// containsWords reports whether needle occurs as a contiguous word run in hay.
func containsWords(hay, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(hay) {
		return false
	}
outer:
	for i := 0; i+len(needle) <= len(hay); i++ {
		for j, w := range needle {
			if hay[i+j] != w {
				continue outer
			}
		}
		return true
	}
	return false
}

func commonPrefix(a, b string) int {
	n := min(len(a), len(b))
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// normalizeText lowercases s, turns punctuation into spaces and collapses runs.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// normalizeID folds an identifier to lowercase words joined by hyphens, so
// "tab_Courses", "tab-courses" and "Tab Courses" compare equal.
func normalizeID(s string) string {
	return strings.ReplaceAll(normalizeText(s), " ", "-")
}

func stems(normalized string) []string {
	words := strings.Fields(normalized)
	for i, w := range words {
		words[i] = singular(w)
	}
	return words
}

// singular strips common English plural endings.
func singular(w string) string {
	switch {
	case len(w) <= 3:
		return w
	case strings.HasSuffix(w, "ies"):
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "sses"), strings.HasSuffix(w, "shes"), strings.HasSuffix(w, "ches"), strings.HasSuffix(w, "xes"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "ss"), strings.HasSuffix(w, "us"), strings.HasSuffix(w, "is"):
		return w
	case strings.HasSuffix(w, "s"):
		return w[:len(w)-1]
	}
	return w
}

// plural is the rough inverse of singular.
func plural(w string) string {
	switch {
	case w == "":
		return w
	case strings.HasSuffix(w, "y") && len(w) > 1 && !strings.ContainsRune("aeiou", rune(w[len(w)-2])):
		return w[:len(w)-1] + "ies"
	case strings.HasSuffix(w, "s"), strings.HasSuffix(w, "sh"), strings.HasSuffix(w, "ch"), strings.HasSuffix(w, "x"):
		return w + "es"
	}
	return w + "s"
}
