package planner

import (
	"strings"

	"relquery/internal/apperr"
	"relquery/internal/cursor"
	"relquery/internal/filter"
	"relquery/internal/model"
)

// DefaultLimit is the page size used when a query sets none.
const DefaultLimit = 100

// Sort names the field a query is ordered by.
type Sort struct {
	Field     filter.Var
	Direction Direction
}

// Query is a parsed request: filter, sort, cursor and page size.
type Query struct {
	Filter filter.Expr
	Sort   *Sort
	Cursor *cursor.Cursor
	Limit  int
}

// RawQuery is the request as received on the wire.
type RawQuery struct {
	Filter        string `json:"filter,omitempty" mapstructure:"filter"`
	SortBy        string `json:"sort_by,omitempty" mapstructure:"sort_by"`
	SortDirection string `json:"sort_direction,omitempty" mapstructure:"sort_direction"`
	Cursor        string `json:"cursor,omitempty" mapstructure:"cursor"`
	Limit         int    `json:"limit,omitempty" mapstructure:"limit"`
}

// ParseDirection reads the wire direction: "1" or empty is ascending,
// "-1" descending.
func ParseDirection(raw string) (Direction, error) {
	switch strings.TrimSpace(raw) {
	case "", "1":
		return Ascending, nil
	case "-1":
		return Descending, nil
	default:
		return Ascending, apperr.BadRequest("sort direction must be one of 1 or -1")
	}
}

// ParseQuery validates raw against def. The cursor is decoded with the
// sort field's type, or as id-only when sorting by id.
func ParseQuery(def model.Definition, raw RawQuery) (Query, error) {
	var q Query
	if text := strings.TrimSpace(raw.Filter); text != "" {
		expr, err := filter.Parse(def, text)
		if err != nil {
			return Query{}, err
		}
		q.Filter = expr
	}

	var valueType *model.FieldType
	if sortBy := strings.TrimSpace(raw.SortBy); sortBy != "" {
		v, field, err := filter.ParseVar(def, sortBy)
		if err != nil {
			return Query{}, err
		}
		if !field.Type.Sortable() {
			return Query{}, apperr.BadRequest("field is not sortable: %s", sortBy)
		}
		direction, err := ParseDirection(raw.SortDirection)
		if err != nil {
			return Query{}, err
		}
		q.Sort = &Sort{Field: v, Direction: direction}
		if !isIDVar(def, v) {
			valueType = &field.Type
		}
	} else if _, err := ParseDirection(raw.SortDirection); err != nil {
		return Query{}, err
	}

	if raw.Cursor != "" {
		c, err := cursor.Decode(raw.Cursor, valueType)
		if err != nil {
			return Query{}, err
		}
		q.Cursor = &c
	}
	q.Limit = raw.Limit
	return q, nil
}

// OrderBy converts the sort to a strict order over def.
func (q Query) OrderBy(def model.Definition) OrderBy {
	if q.Sort == nil {
		return IDAsc()
	}
	if isIDVar(def, q.Sort.Field) {
		return OrderBy{Direction: q.Sort.Direction}
	}
	return OrderBy{Direction: q.Sort.Direction, Secondary: &q.Sort.Field}
}

func isIDVar(def model.Definition, v filter.Var) bool {
	return v.IsLeaf() && v.Field == def.IDFieldName()
}
