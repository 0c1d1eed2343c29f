package ast

import (
	"fmt"
	"io"
	"strings"
)

// Node is a generic tagged parse-tree node. Leaves carry token text in
// Contents; interior nodes carry children in source order.
type Node struct {
	Tag      string
	Contents string
	Line     int
	Col      int
	Children []*Node
}

// New creates an interior node.
func New(tag string, line, col int) *Node {
	return &Node{Tag: tag, Line: line, Col: col}
}

// Leaf creates a node holding literal token text.
func Leaf(tag, contents string, line, col int) *Node {
	return &Node{Tag: tag, Contents: contents, Line: line, Col: col}
}

// Add appends children and returns n for chaining.
func (n *Node) Add(children ...*Node) *Node {
	for _, c := range children {
		if c != nil {
			n.Children = append(n.Children, c)
		}
	}
	return n
}

// Text returns the literal token text of a leaf.
func (n *Node) Text() string {
	if n == nil {
		return ""
	}
	return n.Contents
}

// Child resolves a "|"-separated tag path, taking the first matching child
// at each level. Returns nil when any segment is missing.
func (n *Node) Child(path string) *Node {
	cur := n
	for _, tag := range strings.Split(path, "|") {
		if cur == nil {
			return nil
		}
		_, cur = cur.IndexedChild(tag, 0)
	}
	return cur
}

// ChildText is Child(path).Text().
func (n *Node) ChildText(path string) string {
	return n.Child(path).Text()
}

// IndexedChild returns the first direct child at or after start whose tag
// equals the first segment of path, resolving the remaining segments below
// it. The returned index is the position of the direct child, so callers can
// resume the search at index+1.
func (n *Node) IndexedChild(path string, start int) (int, *Node) {
	if n == nil {
		return -1, nil
	}
	head, rest, nested := strings.Cut(path, "|")
	if start < 0 {
		start = 0
	}
	for i := start; i < len(n.Children); i++ {
		c := n.Children[i]
		if c.Tag != head {
			continue
		}
		if !nested {
			return i, c
		}
		if found := c.Child(rest); found != nil {
			return i, found
		}
	}
	return -1, nil
}

// All returns every direct child with the given tag, in source order.
func (n *Node) All(tag string) []*Node {
	var out []*Node
	for i, c := n.IndexedChild(tag, 0); c != nil; i, c = n.IndexedChild(tag, i+1) {
		out = append(out, c)
	}
	return out
}

// Dump writes an indented rendering of the tree, one node per line.
func (n *Node) Dump(w io.Writer) error {
	return n.dump(w, 0)
}

func (n *Node) dump(w io.Writer, depth int) error {
	if n == nil {
		return nil
	}
	indent := strings.Repeat("  ", depth)
	var err error
	if n.Contents != "" {
		_, err = fmt.Fprintf(w, "%s%s:%d:%d %q\n", indent, n.Tag, n.Line, n.Col, n.Contents)
	} else {
		_, err = fmt.Fprintf(w, "%s%s:%d:%d\n", indent, n.Tag, n.Line, n.Col)
	}
	if err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := c.dump(w, depth+1); err != nil {
			return err
		}
	}
	return nil
}
