// File: internal/resolver/choice.go
package resolver

import "strings"

// Choice is one selectable entry of a dropdown or list.
type Choice struct {
	Label    string `json:"label"`
	Value    string `json:"value,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// ResolveChoice picks the entry named by spoken. Positional phrases are
// checked before names so "second" selects the second entry even when an
// entry is called "Second Year". An ordinal beyond the collection falls
// through to name matching.
func (r *Resolver) ResolveChoice(choices []Choice, spoken string) (int, Strategy, bool) {
	if len(choices) == 0 || strings.TrimSpace(spoken) == "" {
		return 0, "", false
	}
	if ord, ok := ParseOrdinal(spoken); ok {
		if i, ok := IndexFor(ord, len(choices)); ok {
			return i, StrategyOrdinal, true
		}
	}

	target := normalizeText(spoken)
	for i, c := range choices {
		if normalizeText(c.Label) == target {
			return i, StrategyText, true
		}
	}
	for i, c := range choices {
		if c.Value != "" && strings.EqualFold(strings.TrimSpace(c.Value), strings.TrimSpace(spoken)) {
			return i, StrategyValue, true
		}
	}

	best, bestScore := -1, 0.0
	for i, c := range choices {
		for _, name := range []string{c.Label, c.Value} {
			if s := r.scorer.Score(spoken, name); s > bestScore {
				best, bestScore = i, s
			}
		}
	}
	if best >= 0 && bestScore >= r.threshold {
		return best, StrategyFuzzy, true
	}
	return 0, "", false
}
