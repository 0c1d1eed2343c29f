package parser

import (
	"fmt"
	"strings"
)

// TokenKind classifies lexical tokens.
type TokenKind int

const (
	TokEOF TokenKind = iota
	TokIdent
	TokNumber
	TokString
	TokPunct
)

func (k TokenKind) String() string {
	switch k {
	case TokEOF:
		return "end of file"
	case TokIdent:
		return "identifier"
	case TokNumber:
		return "number"
	case TokString:
		return "string"
	case TokPunct:
		return "punctuation"
	}
	return "unknown"
}

// Token is a lexical token with its 1-based source position.
type Token struct {
	Kind TokenKind
	Text string
	Line int
	Col  int
}

func (t Token) String() string {
	if t.Kind == TokEOF {
		return t.Kind.String()
	}
	return fmt.Sprintf("%s %q", t.Kind, t.Text)
}

// Error is a syntax error at a source position.
type Error struct {
	Line int
	Col  int
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Msg)
}

type lexer struct {
	src  []byte
	pos  int
	line int
	col  int
}

// Lex splits DBC source into tokens. Numbers never carry a sign; the parser
// joins '+'/'-' with the following number where a signed value is expected.
func Lex(src []byte) ([]Token, error) {
	lx := &lexer{src: src, line: 1, col: 1}
	var toks []Token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Kind == TokEOF {
			return toks, nil
		}
	}
}

func (lx *lexer) peekByte(off int) byte {
	if lx.pos+off >= len(lx.src) {
		return 0
	}
	return lx.src[lx.pos+off]
}

func (lx *lexer) advance() byte {
	c := lx.src[lx.pos]
	lx.pos++
	if c == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return c
}

func (lx *lexer) skipSpaceAndComments() {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			lx.advance()
		case c == '/' && lx.peekByte(1) == '/':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.advance()
			}
		default:
			return
		}
	}
}

func (lx *lexer) next() (Token, error) {
	lx.skipSpaceAndComments()
	if lx.pos >= len(lx.src) {
		return Token{Kind: TokEOF, Line: lx.line, Col: lx.col}, nil
	}
	line, col := lx.line, lx.col
	c := lx.src[lx.pos]
	switch {
	case isIdentStart(c):
		start := lx.pos
		for lx.pos < len(lx.src) && isIdentPart(lx.src[lx.pos]) {
			lx.advance()
		}
		return Token{Kind: TokIdent, Text: string(lx.src[start:lx.pos]), Line: line, Col: col}, nil
	case isDigit(c):
		return lx.number(line, col), nil
	case c == '"':
		return lx.str(line, col)
	default:
		lx.advance()
		return Token{Kind: TokPunct, Text: string(c), Line: line, Col: col}, nil
	}
}

func (lx *lexer) number(line, col int) Token {
	start := lx.pos
	for isDigit(lx.peekByte(0)) {
		lx.advance()
	}
	if lx.peekByte(0) == '.' && isDigit(lx.peekByte(1)) {
		lx.advance()
		for isDigit(lx.peekByte(0)) {
			lx.advance()
		}
	}
	if e := lx.peekByte(0); e == 'e' || e == 'E' {
		off := 1
		if s := lx.peekByte(1); s == '+' || s == '-' {
			off = 2
		}
		if isDigit(lx.peekByte(off)) {
			for i := 0; i < off; i++ {
				lx.advance()
			}
			for isDigit(lx.peekByte(0)) {
				lx.advance()
			}
		}
	}
	return Token{Kind: TokNumber, Text: string(lx.src[start:lx.pos]), Line: line, Col: col}
}

func (lx *lexer) str(line, col int) (Token, error) {
	lx.advance() // opening quote
	var b strings.Builder
	for {
		if lx.pos >= len(lx.src) {
			return Token{}, &Error{Line: line, Col: col, Msg: "unterminated string"}
		}
		c := lx.advance()
		switch c {
		case '"':
			return Token{Kind: TokString, Text: b.String(), Line: line, Col: col}, nil
		case '\\':
			if lx.pos < len(lx.src) {
				b.WriteByte(lx.advance())
			}
		default:
			b.WriteByte(c)
		}
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
