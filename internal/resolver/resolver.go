// File: internal/resolver/resolver.go
package resolver

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/internal/browser/dom"
	"github.com/xkilldash9x/voicepilot/internal/config"
)

const (
	minSubstringLen = 3
	// inheritedWeight scales scores earned through a container's name.
	inheritedWeight = 0.5
)

// Resolver maps a spoken target to an element of the current tree. It holds no
// state between calls and is safe for concurrent use.
type Resolver struct {
	scorer    Scorer
	threshold float64
	logger    *zap.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithScorer replaces the fuzzy scorer.
func WithScorer(s Scorer) Option {
	return func(r *Resolver) { r.scorer = s }
}

// New builds a resolver from configuration.
func New(cfg config.ResolverConfig, logger *zap.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		scorer:    DefaultScorer{},
		threshold: cfg.FuzzyThreshold,
		logger:    logger.Named("resolver"),
	}
	if r.threshold <= 0 {
		r.threshold = config.NewDefaultConfig().Resolver().FuzzyThreshold
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Threshold is the minimum fuzzy score accepted as a match.
func (r *Resolver) Threshold() float64 { return r.threshold }

// Resolve finds the element of the given kind named by target. A nil
// descriptor with a nil error means nothing matched; the only errors are
// context errors.
func (r *Resolver) Resolve(ctx context.Context, doc *dom.Document, target string, kind ElementKind) (*ElementDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, nil
	}

	candidates := Discover(doc, kind)
	if len(candidates) == 0 {
		return nil, nil
	}

	// Every phrasing gets the id and text strategies before any of them is
	// scored fuzzily, so "go to the courses tab" reaches the "Courses" text
	// before a partial word overlap can claim a neighbour.
	phrasings := append([]string{target}, Loosen(target)...)
	for i, p := range phrasings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if d := r.matchDeclared(candidates, p); d != nil {
			r.loosened(target, p, i)
			r.logged(d, target, kind)
			return d, nil
		}
	}
	for i, p := range phrasings {
		if d := r.matchFuzzy(candidates, p); d != nil {
			r.loosened(target, p, i)
			r.logged(d, target, kind)
			return d, nil
		}
	}
	r.logger.Debug("No element matched", zap.String("target", target), zap.String("kind", string(kind)), zap.Int("candidates", len(candidates)))
	return nil, nil
}

func (r *Resolver) loosened(target, variant string, i int) {
	if i > 0 {
		r.logger.Debug("Resolved with loosened target", zap.String("target", target), zap.String("variant", variant))
	}
}

func (r *Resolver) logged(d *ElementDescriptor, target string, kind ElementKind) {
	r.logger.Debug("Resolved element",
		zap.String("target", target),
		zap.String("kind", string(kind)),
		zap.String("strategy", string(d.Strategy)),
		zap.Float64("score", d.Score),
		zap.String("xpath", d.XPath))
}

// Match runs the strategy chain over candidates in document order: exact
// voice-id, substring of a declared id, visible text, then fuzzy score. The
// first strategy to match wins; within a strategy the earliest element wins.
func (r *Resolver) Match(candidates []*ElementDescriptor, target string) *ElementDescriptor {
	if d := r.matchDeclared(candidates, target); d != nil {
		return d
	}
	return r.matchFuzzy(candidates, target)
}

// matchDeclared covers the strategies that need the element to declare the
// target: its voice-id, one of its ids, or its visible text.
func (r *Resolver) matchDeclared(candidates []*ElementDescriptor, target string) *ElementDescriptor {
	id := normalizeID(target)
	text := normalizeText(target)
	if id == "" {
		return nil
	}

	for _, c := range candidates {
		if c.VoiceID != "" && normalizeID(c.VoiceID) == id {
			return c.withMatch(StrategyExactID, exactScore)
		}
	}

	if len(id) >= minSubstringLen {
		for _, c := range candidates {
			for _, declared := range declaredIDs(c) {
				if strings.Contains(normalizeID(declared), id) {
					return c.withMatch(StrategySubstringID, containsScore)
				}
			}
		}
	}

	for _, c := range candidates {
		for _, name := range visibleNames(c) {
			if normalizeText(name) == text {
				return c.withMatch(StrategyText, exactScore)
			}
		}
	}
	if len(text) >= minSubstringLen {
		for _, c := range candidates {
			for _, name := range visibleNames(c) {
				if containsWords(strings.Fields(normalizeText(name)), strings.Fields(text)) {
					return c.withMatch(StrategyText, containsScore)
				}
			}
		}
	}
	return nil
}

// matchFuzzy scores every identity with the Scorer. Names inherited from a
// container are shared by all its children, so they count at a discount and
// lose ties to an element's own names.
func (r *Resolver) matchFuzzy(candidates []*ElementDescriptor, target string) *ElementDescriptor {
	var best *ElementDescriptor
	bestScore, bestOwn := 0.0, false
	for _, c := range candidates {
		score, own := r.score(c, target)
		if score > bestScore || (score == bestScore && own && !bestOwn && best != nil) {
			best, bestScore, bestOwn = c, score, own
		}
	}
	if best != nil && bestScore >= r.threshold {
		return best.withMatch(StrategyFuzzy, bestScore)
	}
	return nil
}

func (r *Resolver) score(c *ElementDescriptor, target string) (float64, bool) {
	own, inherited := 0.0, 0.0
	for _, name := range c.Identities {
		s := r.scorer.Score(target, name)
		if c.Container != "" && strings.EqualFold(name, c.Container) {
			inherited = max(inherited, s*inheritedWeight)
			continue
		}
		own = max(own, s)
	}
	if inherited > own {
		return inherited, false
	}
	return own, true
}

func declaredIDs(c *ElementDescriptor) []string {
	ids := make([]string, 0, 2)
	if c.VoiceID != "" {
		ids = append(ids, c.VoiceID)
	}
	if id := dom.Attr(c.Node, "id"); id != "" {
		ids = append(ids, id)
	}
	return ids
}

// visibleNames are the names a user can read on screen or hear from a screen
// reader, as opposed to ids and form names.
func visibleNames(c *ElementDescriptor) []string {
	n := c.Node
	names := []string{dom.Text(n), dom.Attr(n, "aria-label"), dom.Attr(n, "placeholder"), dom.Attr(n, "title")}
	if c.Label != "" {
		names = append(names, c.Label)
	}
	out := names[:0]
	for _, s := range names {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
