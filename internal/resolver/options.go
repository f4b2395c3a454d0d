// File: internal/resolver/options.go
package resolver

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/voicepilot/internal/browser/dom"
)

// Options returns the selectable entries of a dropdown in document order.
// Placeholder entries ("Select a subject…") are skipped. Options of a closed
// ARIA listbox are returned even though they are hidden.
func Options(doc *dom.Document, dropdown *html.Node) []*html.Node {
	var candidates []*html.Node
	if dom.Tag(dropdown) == "select" {
		candidates = doc.QueryWithin(dropdown, ".//option")
	} else if lb := Listbox(doc, dropdown); lb != nil {
		candidates = doc.QueryWithin(lb, ".//*[@role='option']")
	}
	out := candidates[:0:0]
	for _, opt := range candidates {
		if !isPlaceholder(opt) {
			out = append(out, opt)
		}
	}
	return out
}

func isPlaceholder(opt *html.Node) bool {
	if dom.HasAttr(opt, "hidden") || dom.HasAttr(opt, "data-placeholder") {
		return true
	}
	if dom.Tag(opt) != "option" {
		return false
	}
	if v, ok := lookup(opt, "value"); ok && strings.TrimSpace(v) == "" {
		return true
	}
	return dom.HasAttr(opt, "disabled") && dom.HasAttr(opt, "selected")
}

// Listbox finds the popup a combobox controls: itself, the element named by
// aria-controls or aria-owns, or a nested listbox.
func Listbox(doc *dom.Document, n *html.Node) *html.Node {
	if dom.Attr(n, "role") == "listbox" {
		return n
	}
	for _, attr := range []string{"aria-controls", "aria-owns"} {
		if id := dom.Attr(n, attr); id != "" {
			if lb := doc.ByID(id); lb != nil {
				return lb
			}
		}
	}
	if lbs := doc.QueryWithin(n, ".//*[@role='listbox']"); len(lbs) > 0 {
		return lbs[0]
	}
	return nil
}

// ChoiceOf describes a dropdown option or list item for choice resolution.
func ChoiceOf(n *html.Node) Choice {
	c := Choice{Label: dom.Text(n), Disabled: dom.IsDisabled(n)}
	switch {
	case dom.Tag(n) == "option":
		c.Value = dom.OptionValue(n)
	case dom.Attr(n, "data-value") != "":
		c.Value = dom.Attr(n, "data-value")
	case dom.Attr(n, dom.VoiceIDAttr) != "":
		c.Value = dom.Attr(n, dom.VoiceIDAttr)
	default:
		c.Value = dom.Attr(n, "id")
	}
	return c
}

// Choices maps nodes to choices, preserving order.
func Choices(nodes []*html.Node) []Choice {
	out := make([]Choice, len(nodes))
	for i, n := range nodes {
		out[i] = ChoiceOf(n)
	}
	return out
}

// Selected returns the label of the dropdown's current selection.
func Selected(doc *dom.Document, dropdown *html.Node) string {
	if dom.Tag(dropdown) == "select" {
		for _, opt := range doc.QueryWithin(dropdown, ".//option") {
			if dom.HasAttr(opt, "selected") {
				return dom.Text(opt)
			}
		}
		return ""
	}
	if v := dom.Attr(dropdown, "data-value"); v != "" {
		return v
	}
	if lb := Listbox(doc, dropdown); lb != nil {
		for _, opt := range doc.QueryWithin(lb, ".//*[@role='option'][@aria-selected='true']") {
			return dom.Text(opt)
		}
	}
	if dom.Tag(dropdown) == "input" {
		return dom.Attr(dropdown, "value")
	}
	return ""
}

func lookup(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}
