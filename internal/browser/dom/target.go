// internal/browser/dom/target.go
package dom

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoMatch is returned by page primitives when no element matches a Target.
var ErrNoMatch = errors.New("no element matches target")

// Target describes how to locate an element on a third-party page. CSS and
// XPath are alternatives (CSS wins when both are set); Text narrows the
// matches to elements whose normalised text contains the fragment,
// case-insensitively. Hidden elements never match unless IncludeHidden is set.
//
// The same Target is evaluated against offline snapshots (this package) and
// against the live page (internal/browser), which must agree on semantics.
type Target struct {
	Name          string `json:"name,omitempty"`
	CSS           string `json:"css,omitempty"`
	XPath         string `json:"xpath,omitempty"`
	Text          string `json:"text,omitempty"`
	IncludeHidden bool   `json:"includeHidden,omitempty"`
}

// CSS builds a named CSS target.
func CSS(name, selector string) Target {
	return Target{Name: name, CSS: selector}
}

// XPath builds a named XPath target.
func XPath(name, expr string) Target {
	return Target{Name: name, XPath: expr}
}

// WithText returns a copy narrowed to elements containing text.
func (t Target) WithText(text string) Target {
	t.Text = text
	return t
}

// Hidden returns a copy that also matches hidden elements, which file inputs
// and collapsed widgets usually are.
func (t Target) Hidden() Target {
	t.IncludeHidden = true
	return t
}

// Named returns a copy with a different name.
func (t Target) Named(name string) Target {
	t.Name = name
	return t
}

// IsZero reports whether the target has no locator.
func (t Target) IsZero() bool {
	return t.CSS == "" && t.XPath == ""
}

// String renders the target for logs and error messages.
func (t Target) String() string {
	loc := t.CSS
	if loc == "" {
		loc = t.XPath
	}
	var b strings.Builder
	if t.Name != "" {
		b.WriteString(t.Name)
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "(%s", loc)
	if t.Text != "" {
		fmt.Fprintf(&b, " ~ %q", t.Text)
	}
	b.WriteString(")")
	return b.String()
}

// NormalizeText collapses whitespace and lower-cases s, the comparison form
// used for every text match.
func NormalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
