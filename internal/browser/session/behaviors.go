// File: internal/browser/session/behaviors.go
package session

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/voicepilot/internal/browser/dom"
)

// clickOutcome is what a click did beyond the pointer sequence.
type clickOutcome struct {
	events   []Event
	navigate string
}

// applyClick runs the default view behaviour for a click on el, standing in
// for the handlers a component library would attach. Called with the session
// lock held.
func applyClick(el *html.Node) clickOutcome {
	var out clickOutcome
	tag := dom.Tag(el)
	role := dom.Attr(el, "role")
	inputType := strings.ToLower(dom.Attr(el, "type"))

	switch {
	case role == "tab" || isTablistChild(el):
		activateTab(el)
	case role == "option":
		selectOption(el)
	case tag == "input" && inputType == "checkbox":
		if dom.HasAttr(el, "checked") {
			removeAttr(el, "checked")
		} else {
			setAttr(el, "checked", "checked")
		}
		out.events = append(out.events, Event{Type: EventChange, XPath: dom.XPath(el), Tag: tag})
	case tag == "input" && inputType == "radio":
		checkRadio(el)
		out.events = append(out.events, Event{Type: EventChange, XPath: dom.XPath(el), Tag: tag})
	case tag == "summary":
		if details := el.Parent; dom.Tag(details) == "details" {
			toggleAttr(details, "open")
		}
	case tag == "a":
		href := dom.Attr(el, "href")
		lower := strings.ToLower(href)
		if href != "" && !strings.HasPrefix(href, "#") && !strings.HasPrefix(lower, "javascript:") && !strings.HasPrefix(lower, "mailto:") {
			out.navigate = href
		}
	case isSubmit(el):
		if form := dom.Ancestor(el, func(n *html.Node) bool { return dom.Tag(n) == "form" }); form != nil {
			out.events = append(out.events, Event{Type: EventSubmit, XPath: dom.XPath(form), Tag: "form"})
		}
	}

	if dom.HasAttr(el, "aria-expanded") {
		toggleDisclosure(el)
	}
	return out
}

func isSubmit(el *html.Node) bool {
	t := strings.ToLower(dom.Attr(el, "type"))
	switch dom.Tag(el) {
	case "button":
		return t == "" || t == "submit"
	case "input":
		return t == "submit"
	}
	return false
}

func isTablistChild(el *html.Node) bool {
	return el.Parent != nil && dom.Attr(el.Parent, "role") == "tablist" && dom.Tag(el) == "button"
}

// activateTab selects el within its tab group and reveals its panel.
func activateTab(el *html.Node) {
	group := dom.Ancestor(el, func(n *html.Node) bool { return dom.Attr(n, "role") == "tablist" })
	if group == nil {
		group = el.Parent
	}
	tabs := htmlquery.Find(group, ".//*[@role='tab']")
	if len(tabs) == 0 {
		for c := group.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				tabs = append(tabs, c)
			}
		}
	}

	root := el
	for root.Parent != nil {
		root = root.Parent
	}
	for _, tab := range tabs {
		active := tab == el
		if active {
			setAttr(tab, "aria-selected", "true")
			setAttr(tab, "data-state", "active")
		} else {
			setAttr(tab, "aria-selected", "false")
			setAttr(tab, "data-state", "inactive")
		}
		panelID := dom.Attr(tab, "aria-controls")
		if panelID == "" || strings.ContainsAny(panelID, `'"`) {
			continue
		}
		panel := htmlquery.FindOne(root, "//*[@id='"+panelID+"']")
		if panel == nil {
			continue
		}
		if active {
			removeAttr(panel, "hidden")
			setAttr(panel, "data-state", "active")
		} else {
			setAttr(panel, "hidden", "")
			setAttr(panel, "data-state", "inactive")
		}
	}
}

// selectOption marks el as the selected option of its listbox, closes the
// popup and reflects the choice on the combobox that controls it.
func selectOption(el *html.Node) {
	listbox := dom.Ancestor(el, func(n *html.Node) bool { return dom.Attr(n, "role") == "listbox" })
	if listbox == nil {
		setAttr(el, "aria-selected", "true")
		return
	}
	for _, opt := range htmlquery.Find(listbox, ".//*[@role='option']") {
		setAttr(opt, "aria-selected", "false")
	}
	setAttr(el, "aria-selected", "true")

	id := dom.Attr(listbox, "id")
	if id == "" || strings.ContainsAny(id, `'"`) {
		return
	}
	root := el
	for root.Parent != nil {
		root = root.Parent
	}
	if combo := htmlquery.FindOne(root, "//*[@aria-controls='"+id+"']"); combo != nil {
		label := dom.Text(el)
		setAttr(combo, "data-value", label)
		setAttr(combo, "aria-expanded", "false")
		if dom.Tag(combo) == "input" {
			setAttr(combo, "value", label)
		} else {
			replaceText(combo, label)
		}
		setAttr(listbox, "hidden", "")
	}
}

func checkRadio(el *html.Node) {
	name := dom.Attr(el, "name")
	if name == "" || strings.ContainsAny(name, `'"`) {
		setAttr(el, "checked", "checked")
		return
	}
	scope := dom.Ancestor(el, func(n *html.Node) bool { return dom.Tag(n) == "form" })
	if scope == nil {
		scope = el
		for scope.Parent != nil {
			scope = scope.Parent
		}
	}
	for _, radio := range htmlquery.Find(scope, ".//input[@type='radio' and @name='"+name+"']") {
		if radio == el {
			setAttr(radio, "checked", "checked")
		} else {
			removeAttr(radio, "checked")
		}
	}
}

// toggleDisclosure flips aria-expanded and shows or hides the controlled element.
func toggleDisclosure(el *html.Node) {
	expanded := dom.Attr(el, "aria-expanded") == "true"
	if expanded {
		setAttr(el, "aria-expanded", "false")
	} else {
		setAttr(el, "aria-expanded", "true")
	}

	id := dom.Attr(el, "aria-controls")
	if id == "" || strings.ContainsAny(id, `'"`) {
		return
	}
	root := el
	for root.Parent != nil {
		root = root.Parent
	}
	target := htmlquery.FindOne(root, "//*[@id='"+id+"']")
	if target == nil {
		return
	}
	if expanded {
		setAttr(target, "hidden", "")
	} else {
		removeAttr(target, "hidden")
	}
}

func toggleAttr(n *html.Node, key string) {
	if dom.HasAttr(n, key) {
		removeAttr(n, key)
		return
	}
	setAttr(n, key, "")
}
