package planner

import (
	"strings"

	"relquery/internal/filter"
	"relquery/internal/sqlutil"
)

// Direction is a sort direction.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// Inverse flips the direction.
func (d Direction) Inverse() Direction {
	if d == Ascending {
		return Descending
	}
	return Ascending
}

func (d Direction) String() string {
	if d == Descending {
		return "DESC"
	}
	return "ASC"
}

// nulls keeps absent values ordered before present ones in both directions.
func (d Direction) nulls() string {
	if d == Descending {
		return "NULLS LAST"
	}
	return "NULLS FIRST"
}

// Output column aliases added to every planned select.
const (
	sortIDColumn    = "_sort_id"
	sortValueColumn = "_sort_value"
	nextPageColumn  = "_next_page"
)

// OrderBy is a strict total order over a model's rows: an optional
// secondary field, always followed by the id field as the tiebreaker.
type OrderBy struct {
	Direction Direction
	// Secondary is nil when rows are ordered by id alone.
	Secondary *filter.Var
}

// IDAsc and IDDesc order by the id field alone.
func IDAsc() OrderBy  { return OrderBy{Direction: Ascending} }
func IDDesc() OrderBy { return OrderBy{Direction: Descending} }

// SecondaryAsc orders by v ascending, then by id ascending.
func SecondaryAsc(v filter.Var) OrderBy {
	return OrderBy{Direction: Ascending, Secondary: &v}
}

// SecondaryDesc orders by v descending, then by id descending.
func SecondaryDesc(v filter.Var) OrderBy {
	return OrderBy{Direction: Descending, Secondary: &v}
}

// Inverse reverses the direction and keeps the field.
func (o OrderBy) Inverse() OrderBy {
	o.Direction = o.Direction.Inverse()
	return o
}

// IsSecondary reports whether a secondary field leads the order.
func (o OrderBy) IsSecondary() bool {
	return o.Secondary != nil
}

// ReferencesRelation reports whether the sort key is read through a join.
func (o OrderBy) ReferencesRelation() bool {
	return o.Secondary != nil && !o.Secondary.IsLeaf()
}

func (o OrderBy) String() string {
	if o.Secondary == nil {
		return "id " + o.Direction.String()
	}
	return o.Secondary.String() + " " + o.Direction.String() + ", id " + o.Direction.String()
}

// clauses orders by the output aliases, so the same text works for a
// single select, for each branch of a union and for the union itself.
func (o OrderBy) clauses() []string {
	id := sqlutil.QuoteIdentifier(sortIDColumn) + " " + o.Direction.String()
	if o.Secondary == nil {
		return []string{id}
	}
	value := strings.Join([]string{
		sqlutil.QuoteIdentifier(sortValueColumn), o.Direction.String(), o.Direction.nulls(),
	}, " ")
	return []string{value, id}
}
