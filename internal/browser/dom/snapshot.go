// internal/browser/dom/snapshot.go
package dom

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// HiddenAttr is set by the live snapshot script on every element whose
// computed style makes it invisible, so offline matching can honour visibility.
const HiddenAttr = "data-autofill-hidden"

// Snapshot is an immutable, parsed copy of a page's DOM. All queries are pure.
type Snapshot struct {
	URL   string
	Title string

	root *html.Node
	doc  *goquery.Document
}

// Parse reads an HTML document.
func Parse(r io.Reader, url string) (*Snapshot, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DOM snapshot: %w", err)
	}
	s := &Snapshot{
		URL:  url,
		root: root,
		doc:  goquery.NewDocumentFromNode(root),
	}
	if titleNode := htmlquery.FindOne(root, "//title"); titleNode != nil {
		s.Title = strings.TrimSpace(htmlquery.InnerText(titleNode))
	}
	return s, nil
}

// ParseString is a convenience wrapper around Parse.
func ParseString(markup string) (*Snapshot, error) {
	return Parse(strings.NewReader(markup), "")
}

// Empty returns a snapshot of a blank document.
func Empty() *Snapshot {
	s, _ := ParseString("<html><head></head><body></body></html>")
	return s
}

// Nodes returns the elements matching t, in document order.
func (s *Snapshot) Nodes(t Target) []*html.Node {
	if s == nil || s.root == nil || t.IsZero() {
		return nil
	}
	var candidates []*html.Node
	if t.CSS != "" {
		candidates = s.doc.Find(t.CSS).Nodes
	} else {
		nodes, err := htmlquery.QueryAll(s.root, t.XPath)
		if err != nil {
			return nil
		}
		candidates = nodes
	}

	fragment := NormalizeText(t.Text)
	var out []*html.Node
	for _, n := range candidates {
		if n.Type != html.ElementNode {
			continue
		}
		if !t.IncludeHidden && !IsVisible(n) {
			continue
		}
		if fragment != "" && !strings.Contains(NormalizeText(nodeText(n)), fragment) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// Has reports whether at least one element matches t.
func (s *Snapshot) Has(t Target) bool {
	return len(s.Nodes(t)) > 0
}

// Count returns the number of matching elements.
func (s *Snapshot) Count(t Target) int {
	return len(s.Nodes(t))
}

// Text returns the normalised text of the first match, or "".
func (s *Snapshot) Text(t Target) string {
	nodes := s.Nodes(t)
	if len(nodes) == 0 {
		return ""
	}
	return NormalizeText(nodeText(nodes[0]))
}

// Attr returns an attribute of the first match.
func (s *Snapshot) Attr(t Target, name string) (string, bool) {
	nodes := s.Nodes(t)
	if len(nodes) == 0 {
		return "", false
	}
	for _, a := range nodes[0].Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// ContainsText reports whether the visible body text contains fragment.
func (s *Snapshot) ContainsText(fragment string) bool {
	if s == nil || s.root == nil {
		return false
	}
	body := htmlquery.FindOne(s.root, "//body")
	if body == nil {
		body = s.root
	}
	return strings.Contains(NormalizeText(visibleText(body)), NormalizeText(fragment))
}

// Describe returns a unique XPath for every match, for diagnostic logging.
func (s *Snapshot) Describe(t Target) []string {
	nodes := s.Nodes(t)
	paths := make([]string, 0, len(nodes))
	for _, n := range nodes {
		paths = append(paths, GenerateUniqueXPath(n))
	}
	return paths
}

// HTML renders the snapshot back to markup.
func (s *Snapshot) HTML() string {
	if s == nil || s.root == nil {
		return ""
	}
	var b strings.Builder
	if err := html.Render(&b, s.root); err != nil {
		return ""
	}
	return b.String()
}

// IsVisible applies the offline visibility rules to n and its ancestors:
// the hidden attribute, aria-hidden, inline display/visibility, the live
// snapshot marker, and closed <dialog> elements.
func IsVisible(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if hiddenByAttributes(cur) {
			return false
		}
	}
	return true
}

func hiddenByAttributes(n *html.Node) bool {
	isDialog := strings.EqualFold(n.Data, "dialog")
	dialogOpen := false
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "hidden", HiddenAttr:
			return true
		case "aria-hidden":
			if strings.EqualFold(strings.TrimSpace(a.Val), "true") {
				return true
			}
		case "style":
			style := strings.ToLower(strings.ReplaceAll(a.Val, " ", ""))
			if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
				return true
			}
		case "type":
			if strings.EqualFold(n.Data, "input") && strings.EqualFold(a.Val, "hidden") {
				return true
			}
		case "open":
			dialogOpen = true
		}
	}
	return isDialog && !dialogOpen
}

func nodeText(n *html.Node) string {
	return htmlquery.InnerText(n)
}

// visibleText concatenates text nodes that are not inside hidden subtrees,
// scripts or styles.
func visibleText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		switch cur.Type {
		case html.TextNode:
			b.WriteString(cur.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			tag := strings.ToLower(cur.Data)
			if tag == "script" || tag == "style" || tag == "template" || hiddenByAttributes(cur) {
				return
			}
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
