// File: internal/resolver/discovery.go
package resolver

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/voicepilot/internal/browser/dom"
)

// interactiveXPath selects everything a user could plausibly click.
const interactiveXPath = `//a[@href] | //button | //input | //textarea | //select | //summary | //*[@contenteditable] | ` +
	`//*[@role='button' or @role='link' or @role='tab' or @role='menuitem' or @role='checkbox' or @role='radio' or @role='option' or @role='switch' or @role='combobox'] | ` +
	`//*[@onclick] | //*[@voice-id]`

var kindXPaths = map[ElementKind]string{
	KindTab: `//*[@role='tab'] | //*[@role='tablist']/* | //*[@role='tablist']//*[@data-state] | ` +
		`//*[@voice-id and (starts-with(@voice-id, 'tab-') or contains(@voice-id, '-tab'))]`,
	KindButton:   `//button | //*[@role='button'] | //input[@type='submit' or @type='button' or @type='reset']`,
	KindInput:    `//input | //textarea | //*[@contenteditable]`,
	KindDropdown: `//select | //*[@role='combobox'] | //*[@aria-haspopup='listbox']`,
	KindList:     `//ul | //ol | //table | //*[@role='list'] | //*[@role='listbox'] | //*[@role='grid']`,
	KindAny:      interactiveXPath,
}

// Discover returns a descriptor for every visible element of the kind, in
// document order. Disabled elements are included so callers can report them.
func Discover(doc *dom.Document, kind ElementKind) []*ElementDescriptor {
	expr, ok := kindXPaths[kind]
	if !ok {
		expr = interactiveXPath
	}
	var out []*ElementDescriptor
	for _, n := range doc.QueryAll(expr) {
		if dom.IsHidden(n) || !accepts(doc, kind, n) {
			continue
		}
		out = append(out, Describe(doc, n, kind))
	}
	return out
}

func accepts(doc *dom.Document, kind ElementKind, n *html.Node) bool {
	role := dom.Attr(n, "role")
	switch kind {
	case KindTab:
		// Containers matched by the voice-id heuristic are not tabs themselves.
		if role == "tablist" || role == "tabpanel" {
			return false
		}
		return len(doc.QueryWithin(n, ".//*[@role='tab']")) == 0
	case KindInput:
		return dom.IsTextInput(n)
	case KindDropdown:
		return dom.Tag(n) == "select" || role == "combobox" || dom.Attr(n, "aria-haspopup") == "listbox"
	case KindList:
		if dom.Ancestor(n, func(p *html.Node) bool { return dom.Attr(p, "role") == "tablist" }) != nil {
			return false
		}
		return len(Items(doc, n)) > 0
	case KindAny:
		if dom.Tag(n) == "input" && strings.EqualFold(dom.Attr(n, "type"), "hidden") {
			return false
		}
	}
	return true
}

// Describe builds the descriptor of n, collecting every name it can be called by.
func Describe(doc *dom.Document, n *html.Node, kind ElementKind) *ElementDescriptor {
	d := &ElementDescriptor{
		Kind:       kind,
		XPath:      dom.XPath(n),
		VoiceID:    dom.Attr(n, dom.VoiceIDAttr),
		IsActive:   isActive(n),
		IsDisabled: dom.IsDisabled(n) || (kind == KindInput && dom.IsReadOnly(n)),
		Node:       n,
	}
	if kind == KindInput || kind == KindDropdown {
		d.Value = dom.Value(n)
	}

	text := dom.Text(n)
	if dom.Tag(n) == "select" {
		// option text is not a name for the control
		text = ""
	}
	ariaLabel := dom.Attr(n, "aria-label")
	labelled := labelledByText(doc, n)
	forLabel := labelText(doc, n)
	placeholder := dom.Attr(n, "placeholder")
	title := dom.Attr(n, "title")
	name := dom.Attr(n, "name")
	id := dom.Attr(n, "id")

	identities := []string{d.VoiceID, text, ariaLabel, labelled, forLabel, placeholder, title, name, id}
	switch kind {
	case KindTab:
		d.Container = containerVoiceID(n)
		identities = append(identities, dom.Attr(n, "aria-controls"), dom.Attr(n, "value"), d.Container)
	case KindButton, KindAny:
		if dom.Tag(n) != "input" {
			identities = append(identities, dom.Attr(n, "value"))
		}
	}
	d.Identities = dedupe(identities)

	labels := []string{text, ariaLabel, labelled, forLabel, placeholder, title, name, d.VoiceID, id}
	if kind == KindInput || kind == KindDropdown {
		// a form control's text is its value, so the label comes first
		labels = []string{ariaLabel, labelled, forLabel, placeholder, title, text, name, d.VoiceID, id}
	}
	for _, l := range labels {
		if l != "" {
			d.Label = l
			break
		}
	}
	return d
}

// Items returns the visible entries of a list-like element.
func Items(doc *dom.Document, list *html.Node) []*html.Node {
	var exprs []string
	if dom.Tag(list) == "table" {
		exprs = []string{"./tbody/tr", ".//tr[td]"}
	} else {
		exprs = []string{"./li | ./*[@role='listitem'] | ./*[@role='option'] | ./*[@role='row']", ".//*[@role='listitem'] | .//*[@role='option']"}
	}
	for _, expr := range exprs {
		var items []*html.Node
		for _, n := range doc.QueryWithin(list, expr) {
			if !dom.IsHidden(n) {
				items = append(items, n)
			}
		}
		if len(items) > 0 {
			return items
		}
	}
	return nil
}

func isActive(n *html.Node) bool {
	if dom.Attr(n, "aria-selected") == "true" || dom.Attr(n, "data-state") == "active" ||
		dom.Attr(n, "aria-pressed") == "true" || dom.Attr(n, "data-active") == "true" {
		return true
	}
	if cur := dom.Attr(n, "aria-current"); cur != "" && cur != "false" {
		return true
	}
	for _, c := range strings.Fields(dom.Attr(n, "class")) {
		switch c {
		case "active", "is-active", "selected", "current":
			return true
		}
	}
	return false
}

func containerVoiceID(n *html.Node) string {
	p := dom.Ancestor(n, func(p *html.Node) bool { return dom.Attr(p, dom.VoiceIDAttr) != "" })
	return dom.Attr(p, dom.VoiceIDAttr)
}

func labelledByText(doc *dom.Document, n *html.Node) string {
	var parts []string
	for _, id := range strings.Fields(dom.Attr(n, "aria-labelledby")) {
		if el := doc.ByID(id); el != nil {
			parts = append(parts, dom.Text(el))
		}
	}
	return strings.Join(parts, " ")
}

// labelText finds the <label> naming a form control, by for= or by wrapping.
func labelText(doc *dom.Document, n *html.Node) string {
	if id := dom.Attr(n, "id"); id != "" && !strings.ContainsAny(id, `'"`) {
		if l := doc.Query(fmt.Sprintf("//label[@for='%s']", id)); l != nil {
			return dom.Text(l)
		}
	}
	if l := dom.Ancestor(n, func(p *html.Node) bool { return dom.Tag(p) == "label" }); l != nil {
		return dom.Text(l)
	}
	return ""
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
