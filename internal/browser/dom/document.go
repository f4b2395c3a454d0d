// File: internal/browser/dom/document.go
package dom

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Document is a parsed, read-only view of the page's element tree. It is
// rebuilt for every resolution and never cached across page changes.
type Document struct {
	root  *html.Node
	order map[*html.Node]int
}

// Parse builds a Document from serialized HTML.
func Parse(r io.Reader) (*Document, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse element tree: %w", err)
	}
	return NewDocument(root), nil
}

// NewDocument wraps an already parsed tree.
func NewDocument(root *html.Node) *Document {
	d := &Document{root: root, order: make(map[*html.Node]int)}
	i := 0
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		d.order[n] = i
		i++
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return d
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// Order returns the node's position in document order, or -1 for foreign nodes.
func (d *Document) Order(n *html.Node) int {
	if i, ok := d.order[n]; ok {
		return i
	}
	return -1
}

// QueryAll evaluates expr against the whole document. Results are
// de-duplicated and sorted in document order regardless of how the
// expression's unions were evaluated. An invalid expression yields nil.
func (d *Document) QueryAll(expr string) []*html.Node {
	return d.QueryWithin(d.root, expr)
}

// QueryWithin evaluates expr relative to n.
func (d *Document) QueryWithin(n *html.Node, expr string) []*html.Node {
	nodes, err := htmlquery.QueryAll(n, expr)
	if err != nil {
		return nil
	}
	seen := make(map[*html.Node]struct{}, len(nodes))
	out := nodes[:0]
	for _, node := range nodes {
		if _, dup := seen[node]; dup {
			continue
		}
		seen[node] = struct{}{}
		out = append(out, node)
	}
	sort.SliceStable(out, func(i, j int) bool { return d.Order(out[i]) < d.Order(out[j]) })
	return out
}

// Query returns the first match of expr in document order.
func (d *Document) Query(expr string) *html.Node {
	if nodes := d.QueryAll(expr); len(nodes) > 0 {
		return nodes[0]
	}
	return nil
}

// Focused returns the element marked as focused in the snapshot.
func (d *Document) Focused() *html.Node {
	return d.Query(fmt.Sprintf("//*[@%s='true']", FocusedAttr))
}

// ByID returns the element whose id attribute equals id.
func (d *Document) ByID(id string) *html.Node {
	if id == "" || strings.ContainsAny(id, `'"`) {
		return nil
	}
	return d.Query(fmt.Sprintf("//*[@id='%s']", id))
}

// -- Node helpers --

// Tag returns the lowercased element name, or "" for non-elements.
func Tag(n *html.Node) string {
	if n == nil || n.Type != html.ElementNode {
		return ""
	}
	return strings.ToLower(n.Data)
}

// Attr returns the attribute value, or "" when absent.
func Attr(n *html.Node, name string) string {
	if n == nil {
		return ""
	}
	return htmlquery.SelectAttr(n, name)
}

// HasAttr reports whether the attribute is present, even with an empty value.
func HasAttr(n *html.Node, name string) bool {
	if n == nil {
		return false
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return true
		}
	}
	return false
}

var invisibleTags = map[string]bool{
	"script": true, "style": true, "template": true, "head": true,
	"noscript": true, "meta": true, "link": true, "title": true,
}

// IsHidden reports whether the element or any ancestor is excluded from
// rendering. Visibility is judged from markup only: the hidden attribute,
// aria-hidden, inline display/visibility styles, hidden inputs and closed
// dialogs.
func IsHidden(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if selfHidden(cur) {
			return true
		}
	}
	return false
}

func selfHidden(n *html.Node) bool {
	tag := Tag(n)
	if invisibleTags[tag] {
		return true
	}
	if HasAttr(n, "hidden") || Attr(n, "aria-hidden") == "true" {
		return true
	}
	if tag == "input" && strings.EqualFold(Attr(n, "type"), "hidden") {
		return true
	}
	if tag == "dialog" && !HasAttr(n, "open") {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(Attr(n, "style")), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

// IsDisabled reports whether the element refuses interaction: a disabled
// form control (including via a disabled fieldset), aria-disabled, or the
// data-disabled marker component libraries use.
func IsDisabled(n *html.Node) bool {
	if n == nil {
		return false
	}
	if HasAttr(n, "disabled") || Attr(n, "aria-disabled") == "true" || HasAttr(n, "data-disabled") {
		return true
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if Tag(p) == "fieldset" && HasAttr(p, "disabled") {
			return true
		}
	}
	return false
}

// IsReadOnly reports whether a text control refuses edits.
func IsReadOnly(n *html.Node) bool {
	return HasAttr(n, "readonly") || Attr(n, "aria-readonly") == "true"
}

var blockTags = map[string]bool{
	"div": true, "p": true, "li": true, "br": true, "td": true, "th": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "header": true, "footer": true, "option": true,
}

var nonTextInputTypes = map[string]bool{
	"hidden": true, "submit": true, "button": true, "reset": true, "checkbox": true,
	"radio": true, "image": true, "file": true, "range": true, "color": true,
}

// IsTextInput reports whether the element accepts typed text.
func IsTextInput(n *html.Node) bool {
	switch Tag(n) {
	case "textarea":
		return true
	case "input":
		return !nonTextInputTypes[strings.ToLower(Attr(n, "type"))]
	}
	ce, ok := attrLookup(n, "contenteditable")
	return ok && (ce == "" || strings.EqualFold(ce, "true"))
}

func attrLookup(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// Value returns the current value of a form control as serialized in the snapshot.
func Value(n *html.Node) string {
	switch Tag(n) {
	case "textarea":
		return htmlquery.InnerText(n)
	case "select":
		for _, opt := range htmlquery.Find(n, ".//option") {
			if HasAttr(opt, "selected") {
				return OptionValue(opt)
			}
		}
		return ""
	case "input":
		return Attr(n, "value")
	}
	if IsTextInput(n) {
		return Text(n)
	}
	return Attr(n, "value")
}

// OptionValue returns an option's value, falling back to its text.
func OptionValue(opt *html.Node) string {
	if v, ok := attrLookup(opt, "value"); ok {
		return v
	}
	return Text(opt)
}

// Text returns the element's rendered text with whitespace collapsed. Hidden
// descendants and non-rendered content are skipped. Button-like inputs
// report their value.
func Text(n *html.Node) string {
	if n == nil {
		return ""
	}
	if Tag(n) == "input" {
		switch strings.ToLower(Attr(n, "type")) {
		case "submit", "button", "reset":
			return strings.TrimSpace(Attr(n, "value"))
		}
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
			return
		case html.ElementNode:
			if c != n && selfHidden(c) {
				return
			}
		}
		block := blockTags[Tag(c)]
		if block {
			b.WriteByte(' ')
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
		if block {
			b.WriteByte(' ')
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// Ancestor returns the nearest ancestor (excluding n) for which match is true.
func Ancestor(n *html.Node, match func(*html.Node) bool) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && match(p) {
			return p
		}
	}
	return nil
}
