package filter

import (
	"fmt"
	"strings"
	"time"

	"relquery/internal/apperr"
	"relquery/internal/model"
)

type builderTokenKind int

const (
	btField builderTokenKind = iota
	btComp
	btLogic
	btGroup
)

type builderToken struct {
	kind  builderTokenKind
	field string
	op    CompOp
	value any
	logic LogicOp
	group *Builder
}

// Builder assembles a filter from tokens. Build renders the tokens as
// filter text and parses it, so a built filter is always identical to the
// equivalent hand-written one.
//
//	filter.New().Field("age").Gte(28).And().Field("organization.name").ILike("acme%")
type Builder struct {
	tokens []builderToken
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{}
}

// Field appends a field reference; relation paths are dotted.
func (b *Builder) Field(name string) *Builder {
	b.tokens = append(b.tokens, builderToken{kind: btField, field: name})
	return b
}

func (b *Builder) comp(op CompOp, value any) *Builder {
	b.tokens = append(b.tokens, builderToken{kind: btComp, op: op, value: value})
	return b
}

// Comparison operators take the literal the preceding field is compared
// with. A nil value renders as null.
func (b *Builder) Eq(value any) *Builder    { return b.comp(Eq, value) }
func (b *Builder) Neq(value any) *Builder   { return b.comp(Neq, value) }
func (b *Builder) Gt(value any) *Builder    { return b.comp(Gt, value) }
func (b *Builder) Gte(value any) *Builder   { return b.comp(Gte, value) }
func (b *Builder) Lt(value any) *Builder    { return b.comp(Lt, value) }
func (b *Builder) Lte(value any) *Builder   { return b.comp(Lte, value) }
func (b *Builder) Like(value any) *Builder  { return b.comp(Like, value) }
func (b *Builder) ILike(value any) *Builder { return b.comp(ILike, value) }

func (b *Builder) logic(op LogicOp) *Builder {
	b.tokens = append(b.tokens, builderToken{kind: btLogic, logic: op})
	return b
}

// Not, And and Or append the logical operators. And binds tighter than Or.
func (b *Builder) Not() *Builder { return b.logic(Not) }
func (b *Builder) And() *Builder { return b.logic(And) }
func (b *Builder) Or() *Builder  { return b.logic(Or) }

// Group appends a parenthesized sub-filter.
func (b *Builder) Group(inner *Builder) *Builder {
	b.tokens = append(b.tokens, builderToken{kind: btGroup, group: inner})
	return b
}

// Text renders the tokens in the filter language. Time values render as
// date-times; Build renders them for the field they are compared with.
func (b *Builder) Text() (string, error) {
	return b.render(nil)
}

// Build parses the rendered text against def.
func (b *Builder) Build(def model.Definition) (Expr, error) {
	text, err := b.render(def)
	if err != nil {
		return nil, err
	}
	return Parse(def, text)
}

func (b *Builder) render(def model.Definition) (string, error) {
	parts := make([]string, 0, len(b.tokens))
	field := ""
	for _, tok := range b.tokens {
		switch tok.kind {
		case btField:
			field = tok.field
			parts = append(parts, tok.field)
		case btComp:
			lit, err := literal(tok.value, isDateField(def, field))
			if err != nil {
				return "", err
			}
			parts = append(parts, tok.op.String(), lit)
		case btLogic:
			parts = append(parts, tok.logic.String())
		case btGroup:
			inner, err := tok.group.render(def)
			if err != nil {
				return "", err
			}
			parts = append(parts, "("+inner+")")
		}
	}
	return strings.Join(parts, " "), nil
}

// isDateField reports whether a dotted field reference resolves to a date
// field. Unknown fields are left for the parser to reject.
func isDateField(def model.Definition, field string) bool {
	if def == nil || field == "" {
		return false
	}
	_, fd, err := ResolveVar(def, strings.Split(field, "."))
	return err == nil && fd.Type.Kind == model.KindDate
}

func literal(value any, date bool) (string, error) {
	if value == nil {
		return "null", nil
	}
	if t, ok := value.(time.Time); ok && date {
		return Quote(model.DateValue(t).String()), nil
	}
	v, err := model.ValueOf(value)
	if err != nil {
		return "", apperr.BadRequest("invalid filter value: %s", err)
	}
	if v.IsNull() {
		return "null", nil
	}
	return Quote(v.String()), nil
}

func (b *Builder) String() string {
	text, err := b.Text()
	if err != nil {
		return fmt.Sprintf("<invalid filter: %s>", err)
	}
	return text
}
