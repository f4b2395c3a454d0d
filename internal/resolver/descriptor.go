// File: internal/resolver/descriptor.go
package resolver

import (
	"golang.org/x/net/html"
)

// ElementKind is the category of element a resolution looks for.
type ElementKind string

const (
	KindTab      ElementKind = "tab"
	KindButton   ElementKind = "button"
	KindInput    ElementKind = "input"
	KindDropdown ElementKind = "dropdown"
	KindList     ElementKind = "list"
	KindListItem ElementKind = "list_item"
	// KindAny covers every interactive element; generic clicks use it.
	KindAny ElementKind = "any"
)

// Strategy names the step of the chain that produced a match.
type Strategy string

const (
	StrategyExactID     Strategy = "exact_id"
	StrategySubstringID Strategy = "substring_id"
	StrategyText        Strategy = "text"
	StrategyFuzzy       Strategy = "fuzzy"
	StrategyOrdinal     Strategy = "ordinal"
	StrategyValue       Strategy = "value"
)

// ElementDescriptor describes one candidate element. Descriptors are
// recomputed on every resolution and only valid for the tree they came from.
type ElementDescriptor struct {
	Kind       ElementKind `json:"kind"`
	Identities []string    `json:"identities"`
	IsActive   bool        `json:"isActive"`
	IsDisabled bool        `json:"isDisabled"`
	XPath      string      `json:"xpath"`
	VoiceID    string      `json:"voiceId,omitempty"`
	Label      string      `json:"label"`
	Value      string      `json:"value,omitempty"`
	// Container is the voice-id of the nearest labelled ancestor. It is one
	// of the Identities but names the group, not this element.
	Container  string      `json:"container,omitempty"`
	Strategy   Strategy    `json:"strategy,omitempty"`
	Score      float64     `json:"score,omitempty"`

	Node *html.Node `json:"-"`
}

// Identifier is the most stable name for the element: its voice-id when
// declared, else its label.
func (d *ElementDescriptor) Identifier() string {
	if d.VoiceID != "" {
		return d.VoiceID
	}
	return d.Label
}

// withMatch copies d with match metadata attached.
func (d *ElementDescriptor) withMatch(s Strategy, score float64) *ElementDescriptor {
	out := *d
	out.Strategy = s
	out.Score = score
	return &out
}
