// Package verify parses generated C with Tree-sitter to catch emitter bugs
// before the unit is written out.
package verify

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// Problem is one syntax error or missing token.
type Problem struct {
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Kind   string `json:"kind"`
	Text   string `json:"text"`
}

func (p Problem) String() string {
	return fmt.Sprintf("%d:%d: %s %q", p.Line, p.Column, p.Kind, p.Text)
}

// Report summarizes one parsed unit.
type Report struct {
	Functions []string  `json:"functions"`
	Problems  []Problem `json:"problems,omitempty"`
}

// OK reports whether the unit parsed without errors.
func (r *Report) OK() bool {
	return len(r.Problems) == 0
}

// Verifier wraps a C parser. It is not safe for concurrent use.
type Verifier struct {
	parser *sitter.Parser
}

// New creates a Verifier with the C grammar loaded.
func New() *Verifier {
	parser := sitter.NewParser()
	parser.SetLanguage(c.GetLanguage())
	return &Verifier{parser: parser}
}

// Check parses src and collects function definitions and syntax problems.
func (v *Verifier) Check(ctx context.Context, src []byte) (*Report, error) {
	tree, err := v.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	defer tree.Close()

	r := &Report{}
	v.walk(tree.RootNode(), src, r)
	return r, nil
}

func (v *Verifier) walk(node *sitter.Node, src []byte, r *Report) {
	if node == nil {
		return
	}
	switch {
	case node.IsMissing():
		r.Problems = append(r.Problems, problem(node, "missing", node.Type()))
		return
	case node.IsError():
		r.Problems = append(r.Problems, problem(node, "error", snippet(node.Content(src))))
		return
	}

	if node.Type() == "function_definition" {
		if name := declaratorName(node.ChildByFieldName("declarator"), src); name != "" {
			r.Functions = append(r.Functions, name)
		}
	}

	// Subtrees without errors need no further problem search, but function
	// definitions live below the root.
	if !node.HasError() && node.Type() == "function_definition" {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		v.walk(node.Child(i), src, r)
	}
}

// declaratorName unwraps pointer and function declarators down to the
// identifier.
func declaratorName(n *sitter.Node, src []byte) string {
	for n != nil {
		switch n.Type() {
		case "identifier":
			return n.Content(src)
		case "function_declarator", "pointer_declarator", "parenthesized_declarator":
			next := n.ChildByFieldName("declarator")
			if next == nil && n.NamedChildCount() > 0 {
				next = n.NamedChild(0)
			}
			n = next
		default:
			return ""
		}
	}
	return ""
}

func problem(n *sitter.Node, kind, text string) Problem {
	p := n.StartPoint()
	return Problem{Line: int(p.Row) + 1, Column: int(p.Column) + 1, Kind: kind, Text: text}
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
