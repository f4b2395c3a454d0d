// File: internal/resolver/ordinal.go
package resolver

import (
	"strconv"
	"strings"
)

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
}

var cardinalWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

var ordinalFillers = map[string]bool{
	"the": true, "option": true, "item": true, "choice": true, "number": true, "entry": true,
	"row": true, "select": true, "choose": true, "pick": true, "please": true, "no": true,
}

// ParseOrdinal reads a positional phrase such as "second", "3rd", "option
// two" or "second to last". It returns a zero-based index, or a negative
// index counting from the end (-1 is the last item).
func ParseOrdinal(phrase string) (int, bool) {
	var words []string
	for _, w := range strings.Fields(normalizeText(phrase)) {
		if !ordinalFillers[w] {
			words = append(words, w)
		}
	}
	// "the second one", "the last one"
	if n := len(words); n >= 2 && words[n-1] == "one" {
		if _, ok := position(words[n-2]); ok || words[n-2] == "last" {
			words = words[:n-1]
		}
	}

	switch len(words) {
	case 1:
		switch words[0] {
		case "last", "final":
			return -1, true
		case "penultimate":
			return -2, true
		}
		if n, ok := position(words[0]); ok {
			return n - 1, true
		}
		if n, ok := cardinal(words[0]); ok {
			return n - 1, true
		}
	case 2:
		// "second last"
		if words[1] == "last" {
			if n, ok := position(words[0]); ok {
				return -n, true
			}
		}
		if words[0] == "next" && words[1] == "last" {
			return -2, true
		}
	case 3:
		// "second to last", "third from last", "next to last"
		if (words[1] == "to" || words[1] == "from") && (words[2] == "last" || words[2] == "end") {
			if words[0] == "next" {
				return -2, true
			}
			if n, ok := position(words[0]); ok {
				return -n, true
			}
		}
	}
	return 0, false
}

// position parses ordinal words and suffixed numerals ("2nd").
func position(w string) (int, bool) {
	if n, ok := ordinalWords[w]; ok {
		return n, true
	}
	for _, suffix := range []string{"st", "nd", "rd", "th"} {
		if digits, ok := strings.CutSuffix(w, suffix); ok {
			if n, err := strconv.Atoi(digits); err == nil && n > 0 {
				return n, true
			}
		}
	}
	return 0, false
}

func cardinal(w string) (int, bool) {
	if n, ok := cardinalWords[w]; ok {
		return n, true
	}
	if n, err := strconv.Atoi(w); err == nil && n > 0 {
		return n, true
	}
	return 0, false
}

// IndexFor maps an ordinal index onto a collection of size n.
func IndexFor(ordinal, n int) (int, bool) {
	if ordinal < 0 {
		ordinal += n
	}
	if ordinal < 0 || ordinal >= n {
		return 0, false
	}
	return ordinal, true
}
