// internal/browser/dom/xpath.go
package dom

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// GenerateUniqueXPath builds a short XPath that identifies node within its
// document. An id, or a name on a form control, anchors the path; everything
// else is addressed by tag and 1-based sibling index.
func GenerateUniqueXPath(node *html.Node) string {
	if node == nil {
		return ""
	}

	var segments []string
	for n := node; n != nil && n.Type != html.DocumentNode; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(n.Data)

		if id := htmlquery.SelectAttr(n, "id"); id != "" {
			segments = append(segments, fmt.Sprintf(`//*[@id=%s]`, xpathLiteral(id)))
			break
		}
		if isFormControl(tag) {
			if name := htmlquery.SelectAttr(n, "name"); name != "" {
				segments = append(segments, fmt.Sprintf(`(//%s[@name=%s])[%d]`, tag, xpathLiteral(name), sameNameIndex(n, name)))
				break
			}
		}
		segments = append(segments, fmt.Sprintf("%s[%d]", tag, siblingIndex(n, tag)))
	}

	if len(segments) == 0 {
		return "/"
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	path := strings.Join(segments, "/")
	if !strings.HasPrefix(path, "//") && !strings.HasPrefix(path, "(") {
		path = "/" + path
	}
	return path
}

func isFormControl(tag string) bool {
	switch tag {
	case "input", "select", "textarea", "button":
		return true
	}
	return false
}

func siblingIndex(n *html.Node, tag string) int {
	index := 1
	for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
		if prev.Type == html.ElementNode && strings.EqualFold(prev.Data, tag) {
			index++
		}
	}
	return index
}

// sameNameIndex counts earlier controls with the same name in the document,
// which radio groups have.
func sameNameIndex(n *html.Node, name string) int {
	root := n
	for root.Parent != nil {
		root = root.Parent
	}
	index := 0
	var found bool
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if found {
			return
		}
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, n.Data) && htmlquery.SelectAttr(cur, "name") == name {
			index++
			if cur == n {
				found = true
				return
			}
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	if index == 0 {
		return 1
	}
	return index
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}
