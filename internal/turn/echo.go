// File: internal/turn/echo.go
package turn

import (
	"strings"
	"unicode"
)

// minSharedWords is how many leading words two utterances must share before
// one is treated as an echo of the other.
const minSharedWords = 3

// Overlaps reports whether a looks like a replay of b: one contains the
// other, or they open with the same few words.
func Overlaps(a, b string) bool {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	wa, wb := strings.Fields(na), strings.Fields(nb)
	shared := 0
	for shared < len(wa) && shared < len(wb) && wa[shared] == wb[shared] {
		shared++
	}
	return shared >= minSharedWords
}

// normalize lowercases s and reduces it to words separated by single spaces.
func normalize(s string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
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
