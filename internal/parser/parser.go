package parser

import (
	"fmt"
	"os"

	"github.com/robert-at-pretension-io/dbcc/internal/ast"
)

// Parser builds a generic tagged tree from DBC source. It checks syntax only;
// numeric validation and cross-referencing belong to the builder.
type Parser struct {
	toks []Token
	pos  int
}

// ParseFile reads and parses a DBC file.
func ParseFile(path string) (*ast.Node, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	root, err := Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	return root, nil
}

// Parse parses DBC source into a tree rooted at a "dbc" node.
func Parse(src []byte) (*ast.Node, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	return p.parseFile()
}

func (p *Parser) peek() Token {
	return p.toks[p.pos]
}

func (p *Parser) peekAt(off int) Token {
	if p.pos+off >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+off]
}

func (p *Parser) next() Token {
	t := p.toks[p.pos]
	if t.Kind != TokEOF {
		p.pos++
	}
	return t
}

func (p *Parser) errorf(t Token, format string, args ...any) error {
	return &Error{Line: t.Line, Col: t.Col, Msg: fmt.Sprintf(format, args...)}
}

func (p *Parser) isPunct(s string) bool {
	t := p.peek()
	return t.Kind == TokPunct && t.Text == s
}

func (p *Parser) expectPunct(s string) error {
	t := p.next()
	if t.Kind != TokPunct || t.Text != s {
		return p.errorf(t, "expected %q, found %s", s, t)
	}
	return nil
}

func (p *Parser) expect(kind TokenKind, tag string) (*ast.Node, error) {
	t := p.next()
	if t.Kind != kind {
		return nil, p.errorf(t, "expected %s for %s, found %s", kind, tag, t)
	}
	return ast.Leaf(tag, t.Text, t.Line, t.Col), nil
}

// number accepts an optional sign followed by a number token.
func (p *Parser) number(tag string) (*ast.Node, error) {
	t := p.next()
	sign := ""
	if t.Kind == TokPunct && (t.Text == "-" || t.Text == "+") {
		sign = t.Text
		n := p.next()
		if n.Kind != TokNumber {
			return nil, p.errorf(n, "expected number for %s, found %s", tag, n)
		}
		return ast.Leaf(tag, sign+n.Text, t.Line, t.Col), nil
	}
	if t.Kind != TokNumber {
		return nil, p.errorf(t, "expected number for %s, found %s", tag, t)
	}
	return ast.Leaf(tag, t.Text, t.Line, t.Col), nil
}

func (p *Parser) parseFile() (*ast.Node, error) {
	root := ast.New("dbc", 1, 1)
	for {
		t := p.peek()
		switch {
		case t.Kind == TokEOF:
			return root, nil
		case t.Kind == TokPunct && t.Text == ";":
			p.next()
			continue
		case t.Kind != TokIdent:
			return nil, p.errorf(t, "expected statement keyword, found %s", t)
		}

		var n *ast.Node
		var err error
		switch t.Text {
		case "VERSION":
			n, err = p.parseVersion()
		case "NS_":
			n, err = p.parseNewSymbols()
		case "BS_":
			n, err = p.parseBitTiming()
		case "BU_":
			n, err = p.parseNodes()
		case "VAL_TABLE_":
			n, err = p.parseValueTable()
		case "BO_":
			n, err = p.parseMessage()
		case "CM_":
			n, err = p.parseComment()
		case "VAL_":
			n, err = p.parseValues()
		case "SIG_VALTYPE_":
			n, err = p.parseValueType()
		case "SG_MUL_VAL_":
			n, err = p.parseMuxValues()
		case "SG_":
			err = p.errorf(t, "signal outside of a message")
		default:
			n, err = p.parseOther()
		}
		if err != nil {
			return nil, err
		}
		root.Add(n)
	}
}

func (p *Parser) parseVersion() (*ast.Node, error) {
	kw := p.next()
	s, err := p.expect(TokString, "version")
	if err != nil {
		return nil, err
	}
	s.Line, s.Col = kw.Line, kw.Col
	return s, nil
}

// parseNewSymbols consumes "NS_ :" and the indented keyword list after it.
func (p *Parser) parseNewSymbols() (*ast.Node, error) {
	kw := p.next()
	n := ast.New("ns", kw.Line, kw.Col)
	if err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.Kind == TokEOF || (t.Line > kw.Line && t.Col == 1) {
			return n, nil
		}
		p.next()
		n.Add(ast.Leaf("name", t.Text, t.Line, t.Col))
	}
}

func (p *Parser) parseBitTiming() (*ast.Node, error) {
	kw := p.next()
	n := ast.New("bs", kw.Line, kw.Col)
	if err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	for p.peek().Kind != TokEOF && p.peek().Line == kw.Line {
		p.next()
	}
	return n, nil
}

func (p *Parser) parseNodes() (*ast.Node, error) {
	kw := p.next()
	n := ast.New("nodes", kw.Line, kw.Col)
	if err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	for p.peek().Kind == TokIdent && p.peek().Line == kw.Line {
		t := p.next()
		n.Add(ast.Leaf("node", t.Text, t.Line, t.Col))
	}
	return n, nil
}

// parseItems reads "<int> "<text>"" pairs up to the terminating semicolon.
func (p *Parser) parseItems(n *ast.Node) error {
	for !p.isPunct(";") {
		start := p.peek()
		v, err := p.number("value")
		if err != nil {
			return err
		}
		s, err := p.expect(TokString, "text")
		if err != nil {
			return err
		}
		n.Add(ast.New("item", start.Line, start.Col).Add(v, s))
	}
	p.next()
	return nil
}

func (p *Parser) parseValueTable() (*ast.Node, error) {
	kw := p.next()
	n := ast.New("valtable", kw.Line, kw.Col)
	name, err := p.expect(TokIdent, "name")
	if err != nil {
		return nil, err
	}
	n.Add(name)
	if err := p.parseItems(n); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) parseMessage() (*ast.Node, error) {
	kw := p.next()
	n := ast.New("message", kw.Line, kw.Col)
	id, err := p.number("id")
	if err != nil {
		return nil, err
	}
	name, err := p.expect(TokIdent, "name")
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	dlc, err := p.number("dlc")
	if err != nil {
		return nil, err
	}
	sender, err := p.expect(TokIdent, "sender")
	if err != nil {
		return nil, err
	}
	n.Add(id, name, dlc, sender)

	for t := p.peek(); t.Kind == TokIdent && t.Text == "SG_"; t = p.peek() {
		sig, err := p.parseSignal()
		if err != nil {
			return nil, err
		}
		n.Add(sig)
	}
	return n, nil
}

func (p *Parser) parseSignal() (*ast.Node, error) {
	kw := p.next()
	n := ast.New("signal", kw.Line, kw.Col)
	name, err := p.expect(TokIdent, "name")
	if err != nil {
		return nil, err
	}
	n.Add(name)
	if t := p.peek(); t.Kind == TokIdent {
		p.next()
		n.Add(ast.Leaf("multiplexor", t.Text, t.Line, t.Col))
	}
	if err := p.expectPunct(":"); err != nil {
		return nil, err
	}

	start, err := p.number("startbit")
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("|"); err != nil {
		return nil, err
	}
	length, err := p.number("length")
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("@"); err != nil {
		return nil, err
	}
	endian, err := p.number("endianess")
	if err != nil {
		return nil, err
	}
	st := p.next()
	if st.Kind != TokPunct || (st.Text != "+" && st.Text != "-") {
		return nil, p.errorf(st, "expected sign '+' or '-', found %s", st)
	}
	n.Add(start, length, endian, ast.Leaf("sign", st.Text, st.Line, st.Col))

	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	factor, err := p.number("factor")
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(","); err != nil {
		return nil, err
	}
	offset, err := p.number("offset")
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("["); err != nil {
		return nil, err
	}
	minimum, err := p.number("minimum")
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("|"); err != nil {
		return nil, err
	}
	maximum, err := p.number("maximum")
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("]"); err != nil {
		return nil, err
	}
	unit, err := p.expect(TokString, "unit")
	if err != nil {
		return nil, err
	}
	n.Add(factor, offset, minimum, maximum, unit)

	recv := ast.New("receivers", unit.Line, unit.Col)
	for {
		t := p.peek()
		if t.Line != unit.Line {
			break
		}
		if t.Kind == TokPunct && t.Text == "," {
			p.next()
			continue
		}
		if t.Kind != TokIdent {
			break
		}
		p.next()
		recv.Add(ast.Leaf("node", t.Text, t.Line, t.Col))
	}
	n.Add(recv)
	return n, nil
}

func (p *Parser) parseComment() (*ast.Node, error) {
	kw := p.next()
	n := ast.New("comment", kw.Line, kw.Col)
	t := p.peek()
	if t.Kind == TokIdent {
		p.next()
		n.Add(ast.Leaf("kind", t.Text, t.Line, t.Col))
		switch t.Text {
		case "BO_":
			id, err := p.number("id")
			if err != nil {
				return nil, err
			}
			n.Add(id)
		case "SG_":
			id, err := p.number("id")
			if err != nil {
				return nil, err
			}
			name, err := p.expect(TokIdent, "name")
			if err != nil {
				return nil, err
			}
			n.Add(id, name)
		case "BU_", "EV_":
			name, err := p.expect(TokIdent, "name")
			if err != nil {
				return nil, err
			}
			n.Add(name)
		default:
			return nil, p.errorf(t, "unknown comment target %q", t.Text)
		}
	}
	text, err := p.expect(TokString, "text")
	if err != nil {
		return nil, err
	}
	n.Add(text)
	if err := p.expectPunct(";"); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) parseValues() (*ast.Node, error) {
	// VAL_ on environment variables names the variable instead of a message id.
	if p.peekAt(1).Kind == TokIdent {
		return p.parseOther()
	}
	kw := p.next()
	n := ast.New("values", kw.Line, kw.Col)
	id, err := p.number("id")
	if err != nil {
		return nil, err
	}
	name, err := p.expect(TokIdent, "name")
	if err != nil {
		return nil, err
	}
	n.Add(id, name)
	if err := p.parseItems(n); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) parseValueType() (*ast.Node, error) {
	kw := p.next()
	n := ast.New("valtype", kw.Line, kw.Col)
	id, err := p.number("id")
	if err != nil {
		return nil, err
	}
	name, err := p.expect(TokIdent, "name")
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	typ, err := p.number("type")
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(";"); err != nil {
		return nil, err
	}
	return n.Add(id, name, typ), nil
}

func (p *Parser) parseMuxValues() (*ast.Node, error) {
	kw := p.next()
	n := ast.New("muxval", kw.Line, kw.Col)
	id, err := p.number("id")
	if err != nil {
		return nil, err
	}
	muxed, err := p.expect(TokIdent, "multiplexed")
	if err != nil {
		return nil, err
	}
	mux, err := p.expect(TokIdent, "multiplexor")
	if err != nil {
		return nil, err
	}
	n.Add(id, muxed, mux)
	for {
		start := p.peek()
		lo, err := p.number("min")
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("-"); err != nil {
			return nil, err
		}
		hi, err := p.number("max")
		if err != nil {
			return nil, err
		}
		n.Add(ast.New("range", start.Line, start.Col).Add(lo, hi))
		if p.isPunct(",") {
			p.next()
			continue
		}
		break
	}
	if err := p.expectPunct(";"); err != nil {
		return nil, err
	}
	return n, nil
}

// parseOther keeps unsupported statements as opaque "other" nodes.
func (p *Parser) parseOther() (*ast.Node, error) {
	kw := p.next()
	n := ast.New("other", kw.Line, kw.Col).Add(ast.Leaf("keyword", kw.Text, kw.Line, kw.Col))
	for {
		t := p.next()
		switch {
		case t.Kind == TokEOF:
			return nil, p.errorf(kw, "unterminated %s statement", kw.Text)
		case t.Kind == TokPunct && t.Text == ";":
			return n, nil
		}
	}
}
