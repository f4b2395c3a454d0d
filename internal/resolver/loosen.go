// File: internal/resolver/loosen.go
package resolver

import "strings"

// Words that name the element type or the verb rather than the element.
var fillerWords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "go": true, "open": true, "on": true,
	"in": true, "my": true, "please": true, "click": true, "select": true, "switch": true,
	"tab": true, "tabs": true, "button": true, "field": true, "input": true, "box": true,
	"dropdown": true, "menu": true, "option": true, "list": true, "item": true,
	"page": true, "link": true, "section": true,
}

// Loosen derives progressively looser variants of a target that missed:
// filler words removed, then singular and plural forms. The original target
// is never returned and variants are unique.
func Loosen(target string) []string {
	base := normalizeText(target)
	if base == "" {
		return nil
	}
	seen := map[string]bool{base: true}
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	words := strings.Fields(base)
	var kept []string
	for _, w := range words {
		if !fillerWords[w] {
			kept = append(kept, w)
		}
	}
	if len(kept) == 0 {
		kept = words
	}
	add(strings.Join(kept, " "))

	last := len(kept) - 1
	flipped := append([]string(nil), kept...)
	if s := singular(kept[last]); s != kept[last] {
		flipped[last] = s
	} else {
		flipped[last] = plural(kept[last])
	}
	add(strings.Join(flipped, " "))

	all := make([]string, len(kept))
	for i, w := range kept {
		all[i] = singular(w)
	}
	add(strings.Join(all, " "))
	return out
}
