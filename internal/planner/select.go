// Package planner turns queries into keyset-paginated SQL and pages the
// returned rows. Statements are built here and run by a dbexec executor.
package planner

import (
	"fmt"
	"slices"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"relquery/internal/apperr"
	"relquery/internal/cursor"
	"relquery/internal/filter"
	"relquery/internal/joins"
	"relquery/internal/model"
	"relquery/internal/sqlutil"
)

// SQLQuery is a statement with its bound arguments.
type SQLQuery struct {
	SQL  string
	Args []any
}

// Mode selects which statement shape Plan produces.
type Mode int

const (
	// ModePage fetches one window of limit+1 rows, two when a cursor is set.
	ModePage Mode = iota
	// ModeAll fetches every matching row; limit and cursor are ignored.
	ModeAll
	// ModeOne fetches the first matching row.
	ModeOne
)

func (m Mode) String() string {
	switch m {
	case ModeAll:
		return "all"
	case ModeOne:
		return "one"
	default:
		return "page"
	}
}

// Select describes one read against a model. Its methods return modified
// copies; a Select is never changed after it has been planned. Building
// errors are kept and reported by Plan.
type Select struct {
	def       model.Definition
	filters   []filter.Expr
	order     OrderBy
	cursor    *cursor.Cursor
	limit     int
	forUpdate bool
	err       error
}

// NewSelect starts an unfiltered select ordered by id ascending.
func NewSelect(def model.Definition) Select {
	return Select{def: def, order: IDAsc()}
}

// FromQuery replaces the whole state of s with q.
func (s Select) FromQuery(q Query) Select {
	out := NewSelect(s.def)
	out.err = s.err
	return out.WithQuery(q)
}

// WithQuery adds q's filter and takes its order, cursor and limit.
func (s Select) WithQuery(q Query) Select {
	if q.Filter != nil {
		s = s.Where(q.Filter)
	}
	s.order = q.OrderBy(s.def)
	s.cursor = q.Cursor
	s.limit = q.Limit
	return s
}

// Where ANDs an expression onto the select.
func (s Select) Where(e filter.Expr) Select {
	s.filters = append(slices.Clip(s.filters), e)
	return s
}

// WithFilter builds b against the model and ANDs the result.
func (s Select) WithFilter(b *filter.Builder) Select {
	expr, err := b.Build(s.def)
	if err != nil {
		return s.fail(err)
	}
	return s.Where(expr)
}

// ByID restricts the select to the row with the given id.
func (s Select) ByID(id uuid.UUID) Select {
	return s.WithFilter(filter.New().Field(s.def.IDFieldName()).Eq(id))
}

// ByField restricts the select to rows where field equals value.
func (s Select) ByField(field string, value any) Select {
	return s.WithFilter(filter.New().Field(field).Eq(value))
}

// OrderBy replaces the sort order; the cursor is kept.
func (s Select) OrderBy(o OrderBy) Select {
	s.order = o
	return s
}

// After anchors the page at c.
func (s Select) After(c cursor.Cursor) Select {
	s.cursor = &c
	return s
}

// WithLimit sets the page size; values <= 0 mean DefaultLimit.
func (s Select) WithLimit(limit int) Select {
	s.limit = limit
	return s
}

// ForUpdate locks the selected rows. The statement must run inside a
// transaction for the lock to outlive it.
func (s Select) ForUpdate() Select {
	s.forUpdate = true
	return s
}

// Accessors for the planned state.
func (s Select) Definition() model.Definition { return s.def }
func (s Select) Order() OrderBy               { return s.order }
func (s Select) Cursor() *cursor.Cursor       { return s.cursor }

// Limit is the effective page size.
func (s Select) Limit() int {
	if s.limit <= 0 {
		return DefaultLimit
	}
	return s.limit
}

// Err reports the first error recorded while building.
func (s Select) Err() error { return s.err }

func (s Select) fail(err error) Select {
	if s.err == nil {
		s.err = err
	}
	return s
}

// Plan renders the statement for mode.
//
// Without a cursor a page is one select of limit+1 rows. With a cursor it
// is the union of two selects of limit+1 rows each: rows at or after the
// cursor in the requested order, tagged _next_page = TRUE, and rows at or
// before it in the inverse order, tagged FALSE. The union is re-sorted in
// the requested order.
func (s Select) Plan(mode Mode) (SQLQuery, error) {
	if s.err != nil {
		return SQLQuery{}, s.err
	}
	root := s.def.TableName()

	var vars []filter.Var
	if s.order.Secondary != nil {
		_, field, err := resolve(s.def, *s.order.Secondary)
		if err != nil {
			return SQLQuery{}, err
		}
		if !field.Type.Sortable() {
			return SQLQuery{}, apperr.BadRequest("field is not sortable: %s", s.order.Secondary)
		}
		vars = append(vars, *s.order.Secondary)
	}

	paged := mode == ModePage && s.cursor != nil
	// A sort key read through a relation is MAX over the joined rows, so the
	// cursor comparison has to see the aggregate and goes into HAVING.
	aggregated := s.order.ReferencesRelation()
	nextFilters := s.filters
	prevFilters := s.filters
	var nextCursor, prevCursor filter.Expr
	if paged {
		var err error
		if nextCursor, err = cursorFilter(s.def, *s.cursor, s.order); err != nil {
			return SQLQuery{}, err
		}
		if prevCursor, err = cursorFilter(s.def, *s.cursor, s.order.Inverse()); err != nil {
			return SQLQuery{}, err
		}
		if !aggregated {
			nextFilters = append(slices.Clip(s.filters), nextCursor)
			prevFilters = append(slices.Clip(s.filters), prevCursor)
		}
	}

	nextWhere := filter.Compile(root, 0, nextFilters...)
	vars = append(vars, nextWhere.Vars...)
	joinClauses, err := joins.Resolve(s.def, vars)
	if err != nil {
		return SQLQuery{}, err
	}

	var groupBy []string
	if len(joinClauses) > 0 {
		groupBy = joins.GroupByColumns(s.def, s.order.ReferencesRelation())
	}
	if s.forUpdate && (paged || len(groupBy) > 0) {
		return SQLQuery{}, apperr.BadRequest("FOR UPDATE cannot be combined with a cursor or a relation filter")
	}

	b := branch{
		root:    root,
		columns: s.columns(len(groupBy) > 0),
		joins:   lo.Map(joinClauses, func(j joins.Join, _ int) string { return j.SQL }),
		groupBy: groupBy,
	}

	limit := 0
	switch mode {
	case ModePage:
		limit = s.Limit() + 1
	case ModeOne:
		limit = 1
	}

	if !paged {
		query, err := b.render(nextWhere.SQL, "", s.order, true, limit, s.forUpdate)
		if err != nil {
			return SQLQuery{}, err
		}
		return SQLQuery{SQL: query, Args: nextWhere.SQLArgs()}, nil
	}

	args := nextWhere.SQLArgs()
	var nextHaving, prevHaving filter.Fragment
	if aggregated {
		nextHaving = s.having(len(args), nextCursor)
		args = append(args, nextHaving.SQLArgs()...)
	}
	prevWhere := filter.Compile(root, len(args), prevFilters...)
	args = append(args, prevWhere.SQLArgs()...)
	if aggregated {
		prevHaving = s.having(len(args), prevCursor)
		args = append(args, prevHaving.SQLArgs()...)
	}

	next, err := b.render(nextWhere.SQL, nextHaving.SQL, s.order, true, limit, false)
	if err != nil {
		return SQLQuery{}, err
	}
	prev, err := b.render(prevWhere.SQL, prevHaving.SQL, s.order.Inverse(), false, limit, false)
	if err != nil {
		return SQLQuery{}, err
	}
	union, _, err := sq.Select("*").
		From(fmt.Sprintf("((%s) UNION ALL (%s)) AS %s", next, prev, sqlutil.QuoteIdentifier("page"))).
		OrderBy(s.order.clauses()...).
		ToSql()
	if err != nil {
		return SQLQuery{}, fmt.Errorf("failed to build union: %w", err)
	}
	return SQLQuery{SQL: union, Args: args}, nil
}

// having compiles a cursor predicate against the grouped sort value. The
// predicate only references the sort field and the root id, and the id is
// a grouping column.
func (s Select) having(offset int, e filter.Expr) filter.Fragment {
	frag := filter.Compile(s.def.TableName(), offset, e)
	col := s.order.Secondary.Column(s.def.TableName())
	frag.SQL = strings.ReplaceAll(frag.SQL, col, "MAX("+col+")")
	return frag
}

// columns lists the root fields followed by the sort aliases.
func (s Select) columns(grouped bool) []string {
	root := s.def.TableName()
	cols := lo.Map(s.def.FieldDefinitions(), func(f model.FieldDefinition, _ int) string {
		return sqlutil.Column(root, f.Name)
	})
	cols = append(cols, sqlutil.Column(root, s.def.IDFieldName())+" AS "+sqlutil.QuoteIdentifier(sortIDColumn))
	if v := s.order.Secondary; v != nil {
		expr := v.Column(root)
		if grouped && !v.IsLeaf() {
			expr = "MAX(" + expr + ")"
		}
		cols = append(cols, expr+" AS "+sqlutil.QuoteIdentifier(sortValueColumn))
	}
	return cols
}

type branch struct {
	root    string
	columns []string
	joins   []string
	groupBy []string
}

func (b branch) render(where, having string, order OrderBy, next bool, limit int, forUpdate bool) (string, error) {
	tag := "FALSE"
	if next {
		tag = "TRUE"
	}
	cols := append(slices.Clip(b.columns), tag+" AS "+sqlutil.QuoteIdentifier(nextPageColumn))

	stmt := sq.Select(cols...).From(sqlutil.QuoteIdentifier(b.root))
	for _, j := range b.joins {
		stmt = stmt.JoinClause(j)
	}
	if where != "" {
		stmt = stmt.Where(where)
	}
	if len(b.groupBy) > 0 {
		stmt = stmt.GroupBy(b.groupBy...)
	}
	if having != "" {
		stmt = stmt.Having(having)
	}
	stmt = stmt.OrderBy(order.clauses()...)
	if limit > 0 {
		stmt = stmt.Suffix(fmt.Sprintf("LIMIT %d", limit))
	}
	if forUpdate {
		stmt = stmt.Suffix("FOR UPDATE")
	}
	query, _, err := stmt.ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to build select: %w", err)
	}
	return query, nil
}

// cursorFilter selects the rows at or after c in order. The id comparison
// is inclusive in both directions, so the cursor row itself belongs to the
// next page and to the inverse scan alike.
func cursorFilter(def model.Definition, c cursor.Cursor, order OrderBy) (filter.Expr, error) {
	id := def.IDFieldName()
	if order.Secondary == nil {
		if order.Direction == Ascending {
			return filter.New().Field(id).Gte(c.ID).Build(def)
		}
		return filter.New().Field(id).Lte(c.ID).Build(def)
	}
	if c.Value == nil {
		return nil, apperr.BadRequest("invalid cursor: a cursor containing a value referencing the sort_by field is required")
	}

	v := *order.Secondary
	_, field, err := resolve(def, v)
	if err != nil {
		return nil, err
	}
	sec := v.String()
	value := *c.Value
	nullable := field.Nullable || !v.IsLeaf()

	var b *filter.Builder
	switch {
	case order.Direction == Ascending && value.IsNull():
		b = filter.New().Field(sec).Neq(nil).Or().
			Group(filter.New().Field(sec).Eq(nil).And().Field(id).Gte(c.ID))
	case order.Direction == Ascending:
		b = filter.New().Field(sec).Gt(value).Or().
			Group(filter.New().Field(sec).Eq(value).And().Field(id).Gte(c.ID))
	case value.IsNull():
		b = filter.New().Field(sec).Eq(nil).And().Field(id).Lte(c.ID)
	default:
		b = filter.New().Field(sec).Lt(value).Or().
			Group(filter.New().Field(sec).Eq(value).And().Field(id).Lte(c.ID))
		if nullable {
			b = b.Or().Field(sec).Eq(nil)
		}
	}
	return b.Build(def)
}

func resolve(def model.Definition, v filter.Var) (filter.Var, model.FieldDefinition, error) {
	return filter.ResolveVar(def, append(slices.Clone(v.Path), v.Field))
}
