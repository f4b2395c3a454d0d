// File: internal/resolver/scorer_test.go
package resolver_test

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/voicepilot/internal/resolver"
)

func TestDefaultScorer(t *testing.T) {
	s := resolver.DefaultScorer{}
	cases := []struct {
		target, candidate string
		want              float64
	}{
		{"Courses", "courses", 1.0},
		{"courses", "Courses tab", 0.9},
		{"courses tab", "Courses", 0.7*0.5 + 0.3*7.0/11},
		{"join session", "Sessions", 0.7 * 0.5},
		{"delete courses", "Courses", 0.7 * 0.5},
		{"course", "Courses", 0.9},
		{"art", "start", 0},
		{"course catalog", "course list", 0.5},
		{"ab", "abc", 0.2},
		{"", "anything", 0},
		{"anything", "  ", 0},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, s.Score(tc.target, tc.candidate), 1e-9, "%q vs %q", tc.target, tc.candidate)
	}
}

func TestParseOrdinal(t *testing.T) {
	cases := map[string]int{
		"first":              0,
		"1st":                0,
		"2nd":                1,
		"third":              2,
		"10th":               9,
		"the second one":     1,
		"option two":         1,
		"3":                  2,
		"last":               -1,
		"the last one":       -1,
		"second to last":     -2,
		"second last":        -2,
		"next to last":       -2,
		"third from the end": -3,
	}
	for phrase, want := range cases {
		got, ok := resolver.ParseOrdinal(phrase)
		assert.True(t, ok, phrase)
		assert.Equal(t, want, got, phrase)
	}

	for _, phrase := range []string{"", "biology", "second biology", "0", "to last"} {
		_, ok := resolver.ParseOrdinal(phrase)
		assert.False(t, ok, phrase)
	}
}

func TestIndexFor(t *testing.T) {
	i, ok := resolver.IndexFor(-1, 3)
	assert.True(t, ok)
	assert.Equal(t, 2, i)

	_, ok = resolver.IndexFor(-4, 3)
	assert.False(t, ok)
	_, ok = resolver.IndexFor(3, 3)
	assert.False(t, ok)
}

func TestLoosen(t *testing.T) {
	assert.Equal(t, []string{"courses", "course"}, resolver.Loosen("Courses tab"))
	assert.Equal(t, []string{"create", "creates"}, resolver.Loosen("the create tab"))
	assert.Equal(t, []string{"tabs"}, resolver.Loosen("tab"))
	assert.Equal(t, []string{"category"}, resolver.Loosen("categories"))
	assert.Nil(t, resolver.Loosen("  "))
}

// FuzzScorer checks scores stay in range and that the parsers never panic.
func FuzzScorer(f *testing.F) {
	f.Add([]byte("courses tab\x00Courses"))
	f.Add([]byte("second to last"))
	f.Fuzz(func(t *testing.T, data []byte) {
		c := fuzz.NewConsumer(data)
		target, err := c.GetString()
		if err != nil {
			return
		}
		candidate, err := c.GetString()
		if err != nil {
			return
		}

		score := resolver.DefaultScorer{}.Score(target, candidate)
		if score < 0 || score > 1 {
			t.Fatalf("score %v out of range for %q vs %q", score, target, candidate)
		}

		_, _ = resolver.ParseOrdinal(target)
		for _, v := range resolver.Loosen(target) {
			if v == "" {
				t.Fatalf("empty variant for %q", target)
			}
		}
	})
}
