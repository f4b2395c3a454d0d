// File: internal/resolver/resolver_test.go
package resolver_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/voicepilot/internal/browser/dom"
	"github.com/xkilldash9x/voicepilot/internal/config"
	"github.com/xkilldash9x/voicepilot/internal/resolver"
)

const coursePage = `<html><body>
<nav>
  <a href="/courses" voice-id="nav-courses">Courses</a>
  <a href="/forum">Forum</a>
</nav>
<div role="tablist" voice-id="course-tabs">
  <button role="tab" voice-id="tab-courses" aria-selected="true" aria-controls="panel-courses">Courses</button>
  <button role="tab" voice-id="tab-create" aria-selected="false">Create</button>
  <button role="tab" voice-id="tab-enrollment" disabled>Enrollment</button>
</div>
<div id="panel-courses" role="tabpanel">
  <label for="title">Course title</label>
  <input id="title" name="title" placeholder="e.g. Biology 101">
  <textarea aria-label="Description"></textarea>
  <input type="checkbox" id="agree">
  <select id="term" name="term"><option value="f">Fall</option><option value="s" selected>Spring</option></select>
  <ul voice-id="course-list"><li>Biology</li><li>Chemistry</li><li>Physics</li></ul>
  <button>Save draft</button>
  <button style="display:none">Hidden action</button>
</div>
</body></html>`

func parse(t *testing.T, markup string) *dom.Document {
	t.Helper()
	doc, err := dom.Parse(strings.NewReader(markup))
	require.NoError(t, err)
	return doc
}

func newResolver(t *testing.T, threshold float64) *resolver.Resolver {
	t.Helper()
	return resolver.New(config.ResolverConfig{FuzzyThreshold: threshold}, zaptest.NewLogger(t))
}

func TestDiscoverTabs(t *testing.T) {
	doc := parse(t, coursePage)
	tabs := resolver.Discover(doc, resolver.KindTab)
	require.Len(t, tabs, 3)

	ids := make([]string, len(tabs))
	for i, tab := range tabs {
		ids[i] = tab.Identifier()
	}
	assert.Equal(t, []string{"tab-courses", "tab-create", "tab-enrollment"}, ids)
	assert.True(t, tabs[0].IsActive)
	assert.False(t, tabs[1].IsActive)
	assert.True(t, tabs[2].IsDisabled)
	assert.Contains(t, tabs[0].Identities, "Courses")
	assert.Contains(t, tabs[0].Identities, "panel-courses")
	assert.Contains(t, tabs[0].Identities, "course-tabs", "container id is part of the identity list")
	assert.Equal(t, "course-tabs", tabs[0].Container)
}

func TestDiscoverOtherKinds(t *testing.T) {
	doc := parse(t, coursePage)

	inputs := resolver.Discover(doc, resolver.KindInput)
	require.Len(t, inputs, 2, "checkbox is not a text input")
	assert.Equal(t, "Course title", inputs[0].Label)
	assert.Equal(t, "Description", inputs[1].Label)

	dropdowns := resolver.Discover(doc, resolver.KindDropdown)
	require.Len(t, dropdowns, 1)
	assert.Equal(t, "s", dropdowns[0].Value)

	lists := resolver.Discover(doc, resolver.KindList)
	require.Len(t, lists, 1)
	assert.Equal(t, "course-list", lists[0].Identifier())
	assert.Len(t, resolver.Items(doc, lists[0].Node), 3)

	for _, b := range resolver.Discover(doc, resolver.KindButton) {
		assert.NotEqual(t, "Hidden action", b.Label, "hidden elements are not candidates")
	}
}

func TestResolveStrategies(t *testing.T) {
	doc := parse(t, coursePage)
	r := newResolver(t, 0.5)
	ctx := context.Background()

	cases := []struct {
		name     string
		target   string
		kind     resolver.ElementKind
		want     string
		strategy resolver.Strategy
		disabled bool
	}{
		{"exact voice id", "tab-create", resolver.KindTab, "tab-create", resolver.StrategyExactID, false},
		{"voice id ignores case and separators", "Tab Create", resolver.KindTab, "tab-create", resolver.StrategyExactID, false},
		{"substring of voice id", "create", resolver.KindTab, "tab-create", resolver.StrategySubstringID, false},
		{"disabled target still resolves", "enrollment", resolver.KindTab, "tab-enrollment", resolver.StrategySubstringID, true},
		{"spoken tab name", "courses tab", resolver.KindTab, "tab-courses", resolver.StrategySubstringID, false},
		{"button text", "save draft", resolver.KindButton, "Save draft", resolver.StrategyText, false},
		{"input label", "course title", resolver.KindInput, "title", resolver.StrategyText, false},
		{"aria label", "description", resolver.KindInput, "Description", resolver.StrategyText, false},
		{"link by text", "the forum link", resolver.KindAny, "Forum", resolver.StrategyText, false},
		{"fuzzy label", "save drafts now", resolver.KindButton, "Save draft", resolver.StrategyFuzzy, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := r.Resolve(ctx, doc, tc.target, tc.kind)
			require.NoError(t, err)
			require.NotNil(t, d)
			assert.Contains(t, []string{d.Identifier(), dom.Attr(d.Node, "id")}, tc.want)
			assert.Equal(t, tc.strategy, d.Strategy)
			assert.Equal(t, tc.disabled, d.IsDisabled)
		})
	}
}

func TestResolveNotFound(t *testing.T) {
	doc := parse(t, coursePage)
	r := newResolver(t, 0.5)

	d, err := r.Resolve(context.Background(), doc, "zebra migration", resolver.KindTab)
	assert.NoError(t, err)
	assert.Nil(t, d)

	d, err = r.Resolve(context.Background(), doc, "   ", resolver.KindAny)
	assert.NoError(t, err)
	assert.Nil(t, d)

	d, err = r.Resolve(context.Background(), doc, "hidden action", resolver.KindButton)
	assert.NoError(t, err)
	assert.Nil(t, d, "hidden elements never resolve")
}

func TestResolveRetriesWithLoosenedTarget(t *testing.T) {
	doc := parse(t, coursePage)
	r := newResolver(t, 0.95)

	d, err := r.Resolve(context.Background(), doc, "the create tab", resolver.KindTab)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "tab-create", d.Identifier())
	assert.Equal(t, resolver.StrategySubstringID, d.Strategy)
}

const navPage = `<html><body>
<nav><a href="/courses">Courses</a><a href="/sessions">Sessions</a></nav>
<button>Save draft</button>
</body></html>`

func TestResolveIgnoresSingleSharedWord(t *testing.T) {
	doc := parse(t, navPage)
	r := newResolver(t, 0.5)

	for _, target := range []string{"join session", "delete courses", "export session report"} {
		t.Run(target, func(t *testing.T) {
			d, err := r.Resolve(context.Background(), doc, target, resolver.KindAny)
			require.NoError(t, err)
			assert.Nil(t, d, "a link named by one word of the command is not the target")
		})
	}

	d, err := r.Resolve(context.Background(), doc, "open sessions", resolver.KindAny)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "Sessions", d.Label)
	assert.Equal(t, resolver.StrategyText, d.Strategy)
}

func TestResolveTabInAnyPosition(t *testing.T) {
	tab := map[string]string{
		"Create":     `<button role="tab">Create</button>`,
		"Courses":    `<button role="tab">Courses</button>`,
		"Enrollment": `<button role="tab">Enrollment</button>`,
	}
	orders := [][]string{
		{"Courses", "Create", "Enrollment"},
		{"Create", "Courses", "Enrollment"},
		{"Create", "Enrollment", "Courses"},
	}
	r := newResolver(t, 0.5)

	for _, order := range orders {
		var b strings.Builder
		b.WriteString(`<html><body><div role="tablist" voice-id="course-tabs">`)
		for _, name := range order {
			b.WriteString(tab[name])
		}
		b.WriteString(`</div></body></html>`)
		doc := parse(t, b.String())

		for _, target := range []string{"go to the courses tab", "courses tab", "courses"} {
			t.Run(strings.Join(order, ",")+"/"+target, func(t *testing.T) {
				d, err := r.Resolve(context.Background(), doc, target, resolver.KindTab)
				require.NoError(t, err)
				require.NotNil(t, d)
				assert.Equal(t, "Courses", d.Label)
			})
		}
	}
}

func TestFuzzyDiscountsContainerIdentity(t *testing.T) {
	doc := parse(t, `<html><body><div role="tablist" voice-id="course-tabs">
		<button role="tab">Create</button><button role="tab">Courses</button>
	</div></body></html>`)

	t.Run("own name beats a shared container name", func(t *testing.T) {
		courseish := resolver.ScorerFunc(func(_, candidate string) float64 {
			if strings.Contains(strings.ToLower(candidate), "course") {
				return 0.9
			}
			return 0
		})
		r := resolver.New(config.ResolverConfig{FuzzyThreshold: 0.5}, nil, resolver.WithScorer(courseish))
		d, err := r.Resolve(context.Background(), doc, "kurs", resolver.KindTab)
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, "Courses", d.Label)
		assert.Equal(t, resolver.StrategyFuzzy, d.Strategy)
	})

	t.Run("ties go to the element's own name", func(t *testing.T) {
		scores := map[string]float64{"Courses": 0.4, "course-tabs": 0.8}
		r := resolver.New(config.ResolverConfig{FuzzyThreshold: 0.3}, nil,
			resolver.WithScorer(resolver.ScorerFunc(func(_, candidate string) float64 { return scores[candidate] })))
		d, err := r.Resolve(context.Background(), doc, "kurs", resolver.KindTab)
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, "Courses", d.Label)
		assert.InDelta(t, 0.4, d.Score, 1e-9)
	})

	t.Run("a container name alone stays under the threshold", func(t *testing.T) {
		r := resolver.New(config.ResolverConfig{FuzzyThreshold: 0.5}, nil,
			resolver.WithScorer(resolver.ScorerFunc(func(_, candidate string) float64 {
				if candidate == "course-tabs" {
					return 0.9
				}
				return 0
			})))
		d, err := r.Resolve(context.Background(), doc, "kurs", resolver.KindTab)
		require.NoError(t, err)
		assert.Nil(t, d)
	})
}

func TestResolveIsDeterministic(t *testing.T) {
	doc := parse(t, `<html><body>
		<button>Submit</button><button>Submit</button>
	</body></html>`)
	r := newResolver(t, 0.5)

	first, err := r.Resolve(context.Background(), doc, "submit", resolver.KindButton)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "/html[1]/body[1]/button[1]", first.XPath, "earliest element wins ties")

	for i := 0; i < 5; i++ {
		again, err := r.Resolve(context.Background(), doc, "submit", resolver.KindButton)
		require.NoError(t, err)
		assert.Equal(t, first.XPath, again.XPath)
	}
}

func TestResolveHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newResolver(t, 0.5).Resolve(ctx, parse(t, coursePage), "courses", resolver.KindTab)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCustomScorer(t *testing.T) {
	doc := parse(t, coursePage)
	never := resolver.ScorerFunc(func(string, string) float64 { return 0 })
	r := resolver.New(config.ResolverConfig{FuzzyThreshold: 0.5}, nil, resolver.WithScorer(never))

	d, err := r.Resolve(context.Background(), doc, "courses tab", resolver.KindTab)
	require.NoError(t, err)
	require.NotNil(t, d, "loosened target still hits the id strategies")
	assert.Equal(t, "tab-courses", d.Identifier())
	assert.Equal(t, resolver.StrategySubstringID, d.Strategy)
}

func TestResolveChoice(t *testing.T) {
	r := newResolver(t, 0.5)
	subjects := []resolver.Choice{{Label: "Biology"}, {Label: "Chemistry"}, {Label: "Physics"}}
	terms := []resolver.Choice{{Label: "Fall", Value: "f"}, {Label: "Spring", Value: "s"}}

	cases := []struct {
		name     string
		choices  []resolver.Choice
		spoken   string
		want     int
		strategy resolver.Strategy
		ok       bool
	}{
		{"ordinal word", subjects, "second", 1, resolver.StrategyOrdinal, true},
		{"last", subjects, "the last one", 2, resolver.StrategyOrdinal, true},
		{"second to last", subjects, "second to last", 1, resolver.StrategyOrdinal, true},
		{"option number", subjects, "option three", 2, resolver.StrategyOrdinal, true},
		{"label", subjects, "chemistry", 1, resolver.StrategyText, true},
		{"plural slip", subjects, "physic", 2, resolver.StrategyFuzzy, true},
		{"value", terms, "S", 1, resolver.StrategyValue, true},
		{"ordinal out of range", subjects, "tenth", 0, "", false},
		{"no match", subjects, "astronomy", 0, "", false},
		{"empty", subjects, "", 0, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			i, s, ok := r.ResolveChoice(tc.choices, tc.spoken)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, i)
			assert.Equal(t, tc.strategy, s)
		})
	}
}
