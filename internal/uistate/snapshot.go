// File: internal/uistate/snapshot.go
package uistate

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/voicepilot/internal/browser/dom"
	"github.com/xkilldash9x/voicepilot/internal/resolver"
)

// Snapshot is a point-in-time summary of the rendered page, built for the
// intent source. It is produced per request and never cached.
type Snapshot struct {
	Route     string     `json:"route"`
	ActiveTab string     `json:"activeTab,omitempty"`
	Focused   string     `json:"focused,omitempty"`
	Tabs      []Control  `json:"tabs,omitempty"`
	Buttons   []Control  `json:"buttons"`
	Links     []Link     `json:"links,omitempty"`
	Inputs    []Input    `json:"inputs"`
	Dropdowns []Dropdown `json:"dropdowns"`
	Lists     []List     `json:"lists,omitempty"`
	Modal     *Modal     `json:"modal,omitempty"`
}

// Control is a tab or button.
type Control struct {
	ID       string `json:"id,omitempty"`
	Label    string `json:"label"`
	Active   bool   `json:"active,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

type Link struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

type Input struct {
	ID       string `json:"id,omitempty"`
	Label    string `json:"label"`
	Type     string `json:"type,omitempty"`
	Value    string `json:"value"`
	Disabled bool   `json:"disabled,omitempty"`
}

type Dropdown struct {
	ID       string   `json:"id,omitempty"`
	Label    string   `json:"label"`
	Options  []string `json:"options"`
	Selected string   `json:"selected,omitempty"`
	Disabled bool     `json:"disabled,omitempty"`
}

type List struct {
	ID    string   `json:"id,omitempty"`
	Label string   `json:"label,omitempty"`
	Items []string `json:"items"`
}

// Modal marks an open dialog.
type Modal struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
}

const modalXPath = `//dialog[@open] | //*[@role='dialog' or @role='alertdialog'] | //*[@aria-modal='true']`

// maxListItems bounds how many entries of one list are reported.
const maxListItems = 50

// Capture reads the live page and summarizes it.
func Capture(ctx context.Context, page dom.Page) (Snapshot, error) {
	doc, err := dom.Load(ctx, page)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to capture ui state: %w", err)
	}
	return Build(doc, page.CurrentRoute()), nil
}

// Build summarizes an already parsed tree.
func Build(doc *dom.Document, route string) Snapshot {
	s := Snapshot{
		Route:     route,
		Buttons:   []Control{},
		Inputs:    []Input{},
		Dropdowns: []Dropdown{},
	}

	for _, d := range resolver.Discover(doc, resolver.KindTab) {
		s.Tabs = append(s.Tabs, control(d))
		if d.IsActive && s.ActiveTab == "" {
			s.ActiveTab = d.Identifier()
		}
	}

	for _, d := range resolver.Discover(doc, resolver.KindButton) {
		if role := dom.Attr(d.Node, "role"); role == "tab" || role == "combobox" {
			continue
		}
		s.Buttons = append(s.Buttons, control(d))
	}

	for _, n := range doc.QueryAll("//a[@href]") {
		if dom.IsHidden(n) || dom.Attr(n, "role") == "tab" {
			continue
		}
		if label := dom.Text(n); label != "" {
			s.Links = append(s.Links, Link{Label: label, Href: dom.Attr(n, "href")})
		}
	}

	for _, d := range resolver.Discover(doc, resolver.KindInput) {
		s.Inputs = append(s.Inputs, Input{
			ID:       idOf(d),
			Label:    d.Label,
			Type:     dom.Attr(d.Node, "type"),
			Value:    d.Value,
			Disabled: d.IsDisabled,
		})
	}

	for _, d := range resolver.Discover(doc, resolver.KindDropdown) {
		dd := Dropdown{
			ID:       idOf(d),
			Label:    d.Label,
			Options:  []string{},
			Selected: resolver.Selected(doc, d.Node),
			Disabled: d.IsDisabled,
		}
		for _, c := range resolver.Choices(resolver.Options(doc, d.Node)) {
			dd.Options = append(dd.Options, c.Label)
		}
		s.Dropdowns = append(s.Dropdowns, dd)
	}

	for _, d := range resolver.Discover(doc, resolver.KindList) {
		l := List{ID: idOf(d), Label: dom.Attr(d.Node, "aria-label"), Items: []string{}}
		for i, item := range resolver.Items(doc, d.Node) {
			if i == maxListItems {
				break
			}
			l.Items = append(l.Items, dom.Text(item))
		}
		s.Lists = append(s.Lists, l)
	}

	if f := doc.Focused(); f != nil {
		s.Focused = resolver.Describe(doc, f, resolver.KindAny).Identifier()
	}
	s.Modal = modal(doc)
	return s
}

func control(d *resolver.ElementDescriptor) Control {
	return Control{ID: idOf(d), Label: d.Label, Active: d.IsActive, Disabled: d.IsDisabled}
}

// idOf prefers the semantic id, then the element id.
func idOf(d *resolver.ElementDescriptor) string {
	if d.VoiceID != "" {
		return d.VoiceID
	}
	return dom.Attr(d.Node, "id")
}

func modal(doc *dom.Document) *Modal {
	for _, n := range doc.QueryAll(modalXPath) {
		if dom.IsHidden(n) {
			continue
		}
		m := &Modal{ID: dom.Attr(n, dom.VoiceIDAttr), Title: dom.Attr(n, "aria-label")}
		if m.ID == "" {
			m.ID = dom.Attr(n, "id")
		}
		if m.Title == "" {
			if id := dom.Attr(n, "aria-labelledby"); id != "" {
				m.Title = dom.Text(doc.ByID(id))
			}
		}
		if m.Title == "" {
			if h := doc.QueryWithin(n, ".//h1 | .//h2 | .//h3"); len(h) > 0 {
				m.Title = dom.Text(h[0])
			}
		}
		return m
	}
	return nil
}
