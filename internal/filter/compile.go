package filter

import (
	"fmt"

	"relquery/internal/model"
	"relquery/internal/sqlutil"
)

// Fragment is a compiled predicate: SQL text with $n placeholders, the
// values bound to them in order, and the vars it references.
type Fragment struct {
	SQL  string
	Args []model.FieldValue
	Vars []Var
}

// SQLArgs returns the bound values in driver form.
func (f Fragment) SQLArgs() []any {
	out := make([]any, len(f.Args))
	for i, arg := range f.Args {
		out[i] = arg.SQLArg()
	}
	return out
}

func (f Fragment) join(sql string, other Fragment) Fragment {
	return Fragment{
		SQL:  sql,
		Args: append(append([]model.FieldValue(nil), f.Args...), other.Args...),
		Vars: append(append([]Var(nil), f.Vars...), other.Vars...),
	}
}

// Column returns the quoted column reference for v.
func (v Var) Column(root string) string {
	return sqlutil.Column(v.Alias(root), v.Field)
}

func (e VarExpr) ToSQL(root string, _ int) Fragment {
	return Fragment{SQL: e.Var.Column(root), Vars: []Var{e.Var}}
}

func (e ValExpr) ToSQL(_ string, offset int) Fragment {
	return Fragment{SQL: fmt.Sprintf("$%d", offset+1), Args: []model.FieldValue{e.Value}}
}

func (e Comp) ToSQL(root string, offset int) Fragment {
	left := e.Left.ToSQL(root, offset)
	if val, ok := e.Right.(ValExpr); ok && val.Value.IsNull() {
		switch e.Op {
		case Eq:
			return Fragment{SQL: left.SQL + " IS NULL", Args: left.Args, Vars: left.Vars}
		case Neq:
			return Fragment{SQL: left.SQL + " IS NOT NULL", Args: left.Args, Vars: left.Vars}
		}
	}
	right := e.Right.ToSQL(root, offset+len(left.Args))
	return left.join(left.SQL+" "+e.Op.SQL()+" "+right.SQL, right)
}

func (e Neg) ToSQL(root string, offset int) Fragment {
	inner := e.Expr.ToSQL(root, offset)
	inner.SQL = "(" + e.Op.SQL() + " (" + inner.SQL + "))"
	return inner
}

func (e Conj) ToSQL(root string, offset int) Fragment {
	return binaryToSQL(root, offset, e.Left, e.Op, e.Right)
}

func (e Disj) ToSQL(root string, offset int) Fragment {
	return binaryToSQL(root, offset, e.Left, e.Op, e.Right)
}

func binaryToSQL(root string, offset int, l Expr, op LogicOp, r Expr) Fragment {
	left := l.ToSQL(root, offset)
	right := r.ToSQL(root, offset+len(left.Args))
	return left.join("("+left.SQL+" "+op.SQL()+" "+right.SQL+")", right)
}

// Compile ANDs several expressions into one fragment, numbering
// placeholders from offset+1.
func Compile(root string, offset int, exprs ...Expr) Fragment {
	var out Fragment
	for i, e := range exprs {
		frag := e.ToSQL(root, offset+len(out.Args))
		if i == 0 {
			out = frag
			continue
		}
		out = out.join(out.SQL+" AND "+frag.SQL, frag)
	}
	return out
}
