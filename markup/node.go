// Package markup turns markup text into the element tree consumed by the
// layout engine.
package markup

import (
	"sort"
	"strconv"
	"strings"
)

// Element is the input of a render: either Markup text or an already built
// *Node tree.
type Element interface {
	element()
}

// Markup is markup text that still has to be parsed.
type Markup string

func (Markup) element() {}

func (*Node) element() {}

// Node is an element or a text node. Text nodes have an empty Tag.
type Node struct {
	Tag      string            `json:"tag,omitempty"`
	Text     string            `json:"text,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Style    map[string]string `json:"style,omitempty"`
	Children []*Node           `json:"children,omitempty"`
}

// El builds an element node.
func El(tag string, style map[string]string, children ...*Node) *Node {
	return &Node{Tag: strings.ToLower(tag), Style: style, Children: children}
}

// Text builds a text node.
func Text(s string) *Node {
	return &Node{Text: s}
}

// IsText reports whether n is a text node.
func (n *Node) IsText() bool {
	return n != nil && n.Tag == ""
}

// Attr returns the attribute value or "".
func (n *Node) Attr(name string) string {
	if n == nil || n.Attrs == nil {
		return ""
	}
	return n.Attrs[name]
}

// String renders an indented outline of the tree, one node per line.
func (n *Node) String() string {
	var b strings.Builder
	n.outline(&b, 0)
	return strings.TrimSuffix(b.String(), "\n")
}

func (n *Node) outline(b *strings.Builder, depth int) {
	if n == nil {
		return
	}
	b.WriteString(strings.Repeat("  ", depth))
	if n.IsText() {
		b.WriteString(strconv.Quote(n.Text))
		b.WriteByte('\n')
		return
	}
	b.WriteString(n.Tag)
	if keys := sortedKeys(n.Attrs); len(keys) > 0 {
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(strconv.Quote(n.Attrs[k]))
		}
		b.WriteByte(']')
	}
	if keys := sortedKeys(n.Style); len(keys) > 0 {
		b.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				b.WriteString("; ")
			}
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(n.Style[k])
		}
		b.WriteByte('}')
	}
	b.WriteByte('\n')
	for _, c := range n.Children {
		c.outline(b, depth+1)
	}
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
