// File: internal/browser/dom/xpath.go
package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// XPath builds an absolute handle for n. The path anchors on the nearest
// element carrying a quote-free id, so handles survive sibling churn above
// that anchor; otherwise it is a fully indexed path from the root. An id is
// only used as an anchor when it is unique in the tree the node belongs to.
func XPath(n *html.Node) string {
	if n == nil {
		return ""
	}
	root := n
	for root.Parent != nil {
		root = root.Parent
	}

	var steps []string
	anchored := false
	for cur := n; cur != nil && cur.Type != html.DocumentNode; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		tag := Tag(cur)
		if id := Attr(cur, "id"); usableAnchor(id) && countID(root, id) == 1 {
			steps = append(steps, fmt.Sprintf("//*[@id='%s']", id))
			anchored = true
			break
		}
		steps = append(steps, fmt.Sprintf("%s[%d]", tag, siblingIndex(cur, tag)))
	}

	if len(steps) == 0 {
		return "/"
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	path := strings.Join(steps, "/")
	if !anchored {
		path = "/" + path
	}
	return path
}

func usableAnchor(id string) bool {
	return id != "" && !strings.ContainsAny(id, `'"`)
}

// siblingIndex is the 1-based position of n among preceding siblings with the same tag.
func siblingIndex(n *html.Node, tag string) int {
	idx := 1
	for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
		if prev.Type == html.ElementNode && Tag(prev) == tag {
			idx++
		}
	}
	return idx
}

func countID(root *html.Node, id string) int {
	count := 0
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if count > 1 {
			return
		}
		if n.Type == html.ElementNode && Attr(n, "id") == id {
			count++
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return count
}
