// Package dom is a small element tree used by the UI runtime to gate and bind
// page fragments. Trees are built in code or parsed from HTML.
package dom

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

const (
	attrTabIndex     = "tabindex"
	attrAriaHidden   = "aria-hidden"
	attrPrevTabIndex = "data-prev-tabindex"
)

// Element is one node of the tree. Text nodes have an empty Tag.
type Element struct {
	Tag      string
	Attrs    map[string]string
	Text     string
	Hidden   bool
	Children []*Element
	Parent   *Element
}

// New builds an element and adopts children.
func New(tag string, attrs map[string]string, children ...*Element) *Element {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	e := &Element{Tag: tag, Attrs: attrs}
	if _, ok := attrs["hidden"]; ok {
		e.Hidden = true
		delete(attrs, "hidden")
	}
	e.Append(children...)
	return e
}

// TextNode builds a text node.
func TextNode(text string) *Element {
	return &Element{Text: text, Attrs: map[string]string{}}
}

// Append adopts children at the end.
func (e *Element) Append(children ...*Element) {
	for _, c := range children {
		if c == nil {
			continue
		}
		c.Parent = e
		e.Children = append(e.Children, c)
	}
}

// Clear drops all children.
func (e *Element) Clear() {
	for _, c := range e.Children {
		c.Parent = nil
	}
	e.Children = nil
}

// Attr returns an attribute value.
func (e *Element) Attr(key string) (string, bool) {
	v, ok := e.Attrs[key]
	return v, ok
}

func (e *Element) SetAttr(key, value string) {
	if e.Attrs == nil {
		e.Attrs = make(map[string]string)
	}
	e.Attrs[key] = value
}

func (e *Element) RemoveAttr(key string) { delete(e.Attrs, key) }

// SetText replaces the children with a single text node.
func (e *Element) SetText(text string) {
	e.Clear()
	e.Append(TextNode(text))
}

// TextContent concatenates all descendant text.
func (e *Element) TextContent() string {
	var b strings.Builder
	e.Walk(func(n *Element) bool {
		if n.Tag == "" {
			b.WriteString(n.Text)
		}
		return true
	})
	return b.String()
}

// Walk visits e and its descendants depth first. Returning false skips the
// node's children.
func (e *Element) Walk(fn func(*Element) bool) {
	if !fn(e) {
		return
	}
	for _, c := range e.Children {
		c.Walk(fn)
	}
}

// FindAll returns every element in the subtree matching pred.
func (e *Element) FindAll(pred func(*Element) bool) []*Element {
	var out []*Element
	e.Walk(func(n *Element) bool {
		if n.Tag != "" && pred(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// WithAttr returns the elements carrying key.
func (e *Element) WithAttr(key string) []*Element {
	return e.FindAll(func(n *Element) bool {
		_, ok := n.Attrs[key]
		return ok
	})
}

// ByID returns the first element with the given id.
func (e *Element) ByID(id string) *Element {
	found := e.FindAll(func(n *Element) bool { return n.Attrs["id"] == id })
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

// Visible reports whether neither e nor an ancestor is hidden.
func (e *Element) Visible() bool {
	for n := e; n != nil; n = n.Parent {
		if n.Hidden {
			return false
		}
	}
	return true
}

// Focusable reports whether keyboard focus can reach e.
func (e *Element) Focusable() bool {
	return e.Visible() && e.Attrs[attrTabIndex] != "-1"
}

// SetVisible shows or hides e and keeps focusability consistent: hidden
// elements are removed from the tab order and restored when shown again.
// Repeated calls with the same value change nothing.
func (e *Element) SetVisible(visible bool) {
	if e.Attrs == nil {
		e.Attrs = make(map[string]string)
	}
	if visible {
		if !e.Hidden {
			return
		}
		e.Hidden = false
		delete(e.Attrs, attrAriaHidden)
		if prev, ok := e.Attrs[attrPrevTabIndex]; ok {
			e.Attrs[attrTabIndex] = prev
			delete(e.Attrs, attrPrevTabIndex)
		} else {
			delete(e.Attrs, attrTabIndex)
		}
		return
	}

	if e.Hidden {
		return
	}
	e.Hidden = true
	e.Attrs[attrAriaHidden] = "true"
	if prev, ok := e.Attrs[attrTabIndex]; ok {
		e.Attrs[attrPrevTabIndex] = prev
	}
	e.Attrs[attrTabIndex] = "-1"
}

// Parse reads an HTML document or fragment into a tree rooted at a synthetic
// "#document" element.
func Parse(r io.Reader) (*Element, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	root := New("#document", nil)
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		root.Append(convert(c))
	}
	return root, nil
}

func convert(n *html.Node) *Element {
	switch n.Type {
	case html.TextNode:
		return TextNode(n.Data)
	case html.ElementNode:
		attrs := make(map[string]string, len(n.Attr))
		for _, a := range n.Attr {
			attrs[a.Key] = a.Val
		}
		e := New(n.Data, attrs)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			e.Append(convert(c))
		}
		return e
	}
	return nil
}

// Render writes e back as HTML. Hidden elements carry the hidden attribute.
func Render(w io.Writer, e *Element) error {
	if e.Tag == "#document" {
		for _, c := range e.Children {
			if err := Render(w, c); err != nil {
				return err
			}
		}
		return nil
	}
	return html.Render(w, toNode(e))
}

func toNode(e *Element) *html.Node {
	if e.Tag == "" {
		return &html.Node{Type: html.TextNode, Data: e.Text}
	}
	n := &html.Node{Type: html.ElementNode, Data: e.Tag}
	for _, key := range sortedKeys(e.Attrs) {
		n.Attr = append(n.Attr, html.Attribute{Key: key, Val: e.Attrs[key]})
	}
	if e.Hidden {
		n.Attr = append(n.Attr, html.Attribute{Key: "hidden"})
	}
	for _, c := range e.Children {
		n.AppendChild(toNode(c))
	}
	return n
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
