package filter

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNull
	tokTrue
	tokFalse
	tokDot
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
	tokCompOp
)

type token struct {
	kind tokenKind
	text string
	op   CompOp
	pos  int
}

func (t token) describe() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return fmt.Sprintf("string %s", Quote(t.text))
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

type lexer struct {
	input string
	pos   int
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && strings.IndexByte(" \t\r\n", l.input[l.pos]) >= 0 {
		l.pos++
	}
	start := l.pos
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := l.input[l.pos]
	two := ""
	if l.pos+1 < len(l.input) {
		two = l.input[l.pos : l.pos+2]
	}

	switch {
	case two == "&&":
		l.pos += 2
		return token{kind: tokAnd, text: two, pos: start}, nil
	case two == "||":
		l.pos += 2
		return token{kind: tokOr, text: two, pos: start}, nil
	case two == "!=":
		l.pos += 2
		return token{kind: tokCompOp, text: two, op: Neq, pos: start}, nil
	case two == ">=":
		l.pos += 2
		return token{kind: tokCompOp, text: two, op: Gte, pos: start}, nil
	case two == "<=":
		l.pos += 2
		return token{kind: tokCompOp, text: two, op: Lte, pos: start}, nil
	}

	switch c {
	case '!':
		l.pos++
		return token{kind: tokNot, text: "!", pos: start}, nil
	case '=':
		l.pos++
		return token{kind: tokCompOp, text: "=", op: Eq, pos: start}, nil
	case '>':
		l.pos++
		return token{kind: tokCompOp, text: ">", op: Gt, pos: start}, nil
	case '<':
		l.pos++
		return token{kind: tokCompOp, text: "<", op: Lt, pos: start}, nil
	case '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case '.':
		l.pos++
		return token{kind: tokDot, text: ".", pos: start}, nil
	case '"':
		return l.lexString()
	}

	if isIdentStart(c) {
		for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
			l.pos++
		}
		word := l.input[start:l.pos]
		switch {
		case word == "null":
			return token{kind: tokNull, text: word, pos: start}, nil
		case word == "true":
			return token{kind: tokTrue, text: word, pos: start}, nil
		case word == "false":
			return token{kind: tokFalse, text: word, pos: start}, nil
		case strings.EqualFold(word, "LIKE"):
			return token{kind: tokCompOp, text: word, op: Like, pos: start}, nil
		case strings.EqualFold(word, "ILIKE"):
			return token{kind: tokCompOp, text: word, op: ILike, pos: start}, nil
		}
		return token{kind: tokIdent, text: word, pos: start}, nil
	}

	return token{}, syntaxError(start, "unexpected character %q", c)
}

// lexString reads a double-quoted literal. Only \" and \\ are escapes; any
// other backslash is kept as written.
func (l *lexer) lexString() (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case c == '"':
			l.pos++
			return token{kind: tokString, text: b.String(), pos: start}, nil
		case c == '\\' && l.pos+1 < len(l.input) && (l.input[l.pos+1] == '"' || l.input[l.pos+1] == '\\'):
			b.WriteByte(l.input[l.pos+1])
			l.pos += 2
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return token{}, syntaxError(start, "unterminated string literal")
}
