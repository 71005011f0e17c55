// Package filter parses the textual filter language into an expression tree
// and compiles that tree to a parameterized SQL predicate.
package filter

import (
	"strings"

	"relquery/internal/model"
)

// Var is a dotted field reference. Path lists the relations traversed from
// the root model; an empty path is a local field.
type Var struct {
	Path  []string
	Field string
}

// Leaf references a field on the root model.
func Leaf(field string) Var {
	return Var{Field: field}
}

// Node prefixes v with a relation hop.
func Node(relation string, v Var) Var {
	return Var{Path: append([]string{relation}, v.Path...), Field: v.Field}
}

// IsLeaf reports whether the var stays on the root model.
func (v Var) IsLeaf() bool {
	return len(v.Path) == 0
}

func (v Var) String() string {
	if v.IsLeaf() {
		return v.Field
	}
	return strings.Join(v.Path, ".") + "." + v.Field
}

// Alias is the table alias the var's column is read from: the root table for
// local fields, otherwise the relation path joined with underscores.
func (v Var) Alias(root string) string {
	if v.IsLeaf() {
		return root
	}
	return strings.Join(v.Path, "_")
}

// CompOp is a comparison operator.
type CompOp int

const (
	Eq CompOp = iota
	Neq
	Gt
	Gte
	Lt
	Lte
	Like
	ILike
)

var compOpText = [...]string{"=", "!=", ">", ">=", "<", "<=", "LIKE", "ILIKE"}
var compOpSQL = [...]string{"=", "<>", ">", ">=", "<", "<=", "LIKE", "ILIKE"}

func (op CompOp) String() string { return compOpText[op] }

// SQL returns the operator's SQL spelling.
func (op CompOp) SQL() string { return compOpSQL[op] }

// LogicOp is a boolean connective.
type LogicOp int

const (
	Not LogicOp = iota
	And
	Or
)

func (op LogicOp) String() string {
	switch op {
	case Not:
		return "!"
	case And:
		return "&&"
	default:
		return "||"
	}
}

// SQL returns the connective's SQL spelling.
func (op LogicOp) SQL() string {
	switch op {
	case Not:
		return "NOT"
	case And:
		return "AND"
	default:
		return "OR"
	}
}

// Expr is a node of the filter tree. Trees are immutable once built.
type Expr interface {
	// String renders the node in the filter language.
	String() string
	// ToSQL compiles the node. Placeholders start at $offset+1.
	ToSQL(root string, offset int) Fragment
	isExpr()
}

// VarExpr references a field.
type VarExpr struct {
	Var Var
}

// ValExpr is a literal already typed by the field it is compared with.
type ValExpr struct {
	Value model.FieldValue
}

// Comp compares a field with a literal.
type Comp struct {
	Left  Expr
	Op    CompOp
	Right Expr
}

// Neg negates its operand.
type Neg struct {
	Op   LogicOp
	Expr Expr
}

// Conj is a binary AND.
type Conj struct {
	Left  Expr
	Op    LogicOp
	Right Expr
}

// Disj is a binary OR.
type Disj struct {
	Left  Expr
	Op    LogicOp
	Right Expr
}

func (VarExpr) isExpr() {}
func (ValExpr) isExpr() {}
func (Comp) isExpr()    {}
func (Neg) isExpr()     {}
func (Conj) isExpr()    {}
func (Disj) isExpr()    {}

func (e VarExpr) String() string { return e.Var.String() }

func (e ValExpr) String() string {
	if e.Value.IsNull() {
		return "null"
	}
	return Quote(e.Value.String())
}

func (e Comp) String() string {
	return e.Left.String() + " " + e.Op.String() + " " + e.Right.String()
}

func (e Neg) String() string {
	return e.Op.String() + "(" + e.Expr.String() + ")"
}

func (e Conj) String() string {
	return "(" + e.Left.String() + " " + e.Op.String() + " " + e.Right.String() + ")"
}

func (e Disj) String() string {
	return "(" + e.Left.String() + " " + e.Op.String() + " " + e.Right.String() + ")"
}

// Quote renders s as a string literal, escaping quotes and backslashes.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

// Vars lists every var referenced by e, left to right.
func Vars(e Expr) []Var {
	var out []Var
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case VarExpr:
			out = append(out, n.Var)
		case Comp:
			walk(n.Left)
			walk(n.Right)
		case Neg:
			walk(n.Expr)
		case Conj:
			walk(n.Left)
			walk(n.Right)
		case Disj:
			walk(n.Left)
			walk(n.Right)
		}
	}
	walk(e)
	return out
}
