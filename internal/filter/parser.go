package filter

import (
	"fmt"
	"strings"

	"relquery/internal/apperr"
	"relquery/internal/model"
)

func syntaxError(pos int, format string, args ...any) error {
	return apperr.BadRequest("invalid filter at position %d: %s", pos, fmt.Sprintf(format, args...))
}

// Parse parses input against def. Every var must resolve to a declared
// relation chain and field; literals are typed by the field they compare with.
func Parse(def model.Definition, input string) (Expr, error) {
	p := &parser{lex: lexer{input: input}, def: def}
	if err := p.advance(); err != nil {
		return nil, err
	}
	expr, err := p.parseDisj()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, syntaxError(p.tok.pos, "unexpected %s", p.tok.describe())
	}
	return expr, nil
}

type parser struct {
	lex lexer
	tok token
	def model.Definition
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) parseDisj() (Expr, error) {
	left, err := p.parseConj()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseConj()
		if err != nil {
			return nil, err
		}
		left = Disj{Left: left, Op: Or, Right: right}
	}
	return left, nil
}

func (p *parser) parseConj() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = Conj{Left: left, Op: And, Right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	switch p.tok.kind {
	case tokNot:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Neg{Op: Not, Expr: inner}, nil
	case tokLParen:
		open := p.tok.pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseDisj()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, syntaxError(p.tok.pos, "expected ')' to close '(' at position %d, found %s", open, p.tok.describe())
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	default:
		return p.parseComparison()
	}
}

func (p *parser) parseComparison() (Expr, error) {
	v, field, err := p.parseVar()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokCompOp {
		return nil, syntaxError(p.tok.pos, "expected comparison operator after %s, found %s", v, p.tok.describe())
	}
	op := p.tok.op
	opPos := p.tok.pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	if (op == Like || op == ILike) && field.Type.Kind != model.KindString && field.Type.Kind != model.KindEnum {
		return nil, syntaxError(opPos, "%s requires a string field, %s is %s", op, v, field.Type)
	}

	lit := p.tok
	var value model.FieldValue
	switch lit.kind {
	case tokNull:
		value = field.Type.Null()
	case tokString, tokTrue, tokFalse:
		value, err = model.ParseValue(field.Type, lit.text)
		if err != nil {
			return nil, apperr.BadRequest("invalid filter at position %d: field %s expects %s: %s", lit.pos, v, field.Type, err)
		}
	default:
		return nil, syntaxError(lit.pos, "expected string literal, null, true or false after %s, found %s", op, lit.describe())
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return Comp{Left: VarExpr{Var: v}, Op: op, Right: ValExpr{Value: value}}, nil
}

// parseVar reads a dotted path and resolves it against the model metadata.
func (p *parser) parseVar() (Var, model.FieldDefinition, error) {
	if p.tok.kind != tokIdent {
		return Var{}, model.FieldDefinition{}, syntaxError(p.tok.pos, "expected field name, found %s", p.tok.describe())
	}
	segments := []token{p.tok}
	if err := p.advance(); err != nil {
		return Var{}, model.FieldDefinition{}, err
	}
	for p.tok.kind == tokDot {
		if err := p.advance(); err != nil {
			return Var{}, model.FieldDefinition{}, err
		}
		if p.tok.kind != tokIdent {
			return Var{}, model.FieldDefinition{}, syntaxError(p.tok.pos, "expected field name after '.', found %s", p.tok.describe())
		}
		segments = append(segments, p.tok)
		if err := p.advance(); err != nil {
			return Var{}, model.FieldDefinition{}, err
		}
	}

	names := make([]string, len(segments))
	for i, seg := range segments {
		names[i] = seg.text
	}
	v, field, err := ResolveVar(p.def, names)
	if err != nil {
		return Var{}, model.FieldDefinition{}, err
	}
	return v, field, nil
}

// ResolveVar walks a dotted path through def's relations. Every segment
// but the last must name a relation; the last must name a field on the
// model the chain ends at.
func ResolveVar(def model.Definition, segments []string) (Var, model.FieldDefinition, error) {
	if len(segments) == 0 {
		return Var{}, model.FieldDefinition{}, apperr.BadRequest("empty field reference")
	}
	current := def
	for i, name := range segments[:len(segments)-1] {
		rel, ok := model.Relation(current, name)
		if !ok {
			return Var{}, model.FieldDefinition{}, apperr.BadRequest("unknown relation %q on %s", strings.Join(segments[:i+1], "."), current.TableName())
		}
		current = rel.Target
	}
	fieldName := segments[len(segments)-1]
	field, ok := model.Field(current, fieldName)
	if !ok {
		return Var{}, model.FieldDefinition{}, apperr.BadRequest("unknown field %q on %s", strings.Join(segments, "."), current.TableName())
	}
	return Var{Path: append([]string(nil), segments[:len(segments)-1]...), Field: fieldName}, field, nil
}

// ParseVar resolves dotted text such as "organization.name".
func ParseVar(def model.Definition, text string) (Var, model.FieldDefinition, error) {
	return ResolveVar(def, strings.Split(text, "."))
}
