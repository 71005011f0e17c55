package planner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/google/uuid"

	"relquery/internal/cursor"
	"relquery/internal/dbexec"
	"relquery/internal/model"
)

func peopleSchema() *model.Schema {
	return model.NewSchema("people",
		model.FieldDefinition{Name: "id", Type: model.TypeOf(model.KindUuid), Immutable: true, PrimaryKey: true},
		model.FieldDefinition{Name: "name", Type: model.TypeOf(model.KindString)},
		model.FieldDefinition{Name: "age", Type: model.TypeOf(model.KindInt)},
	)
}

func personID(n int) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("00000000-0000-4000-8000-%012d", n))
}

type person struct {
	id   uuid.UUID
	name string
	age  int64
	pets []int64
}

// petOwners is people with a to-many pets relation.
func petOwners() *model.Schema {
	pets := model.NewSchema("pets",
		model.FieldDefinition{Name: "id", Type: model.TypeOf(model.KindUuid), Immutable: true, PrimaryKey: true},
		model.FieldDefinition{Name: "age", Type: model.TypeOf(model.KindInt)},
		model.FieldDefinition{Name: "owner_id", Type: model.TypeOf(model.KindUuid)},
	)
	return peopleSchema().HasMany("pets", pets, "owner_id")
}

// oldestPet is the grouped sort value of a pets.age sort.
func oldestPet(p person) model.FieldValue {
	if len(p.pets) == 0 {
		return model.TypeOf(model.KindInt).Null()
	}
	return model.IntValue(slices.Max(p.pets))
}

// fakeDB answers planned selects over people from memory, evaluating the
// windows the statement describes: rows at or after the anchor in order and
// rows at or before it in the inverse order, limit+1 each.
type fakeDB struct {
	t      *testing.T
	people []person
	keep   func(person) bool
	// sortKey overrides the age column as the secondary sort value.
	sortKey func(person) model.FieldValue

	anchor  *cursor.Cursor
	order   OrderBy
	limit   int
	queries []string
}

func (db *fakeDB) fetch(s Select) Connection[*model.Record] {
	db.t.Helper()
	db.anchor = s.Cursor()
	db.order = s.Order()
	db.limit = s.Limit()
	conn, err := FetchPage(context.Background(), db, s, RecordDecoder)
	if err != nil {
		db.t.Fatalf("FetchPage: %v", err)
	}
	return conn
}

func (db *fakeDB) sortValue(p person) model.FieldValue {
	if db.sortKey != nil {
		return db.sortKey(p)
	}
	return model.IntValue(p.age)
}

func (db *fakeDB) rowCursor(p person) cursor.Cursor {
	if db.order.IsSecondary() {
		return cursor.WithValue(p.id, db.sortValue(p))
	}
	return cursor.New(p.id)
}

// cmp orders a before b in the given order.
func (db *fakeDB) cmp(order OrderBy, a, b cursor.Cursor) int {
	c, err := cursor.Compare(a, b)
	if err != nil {
		db.t.Fatalf("compare: %v", err)
	}
	if order.Direction == Descending {
		return -c
	}
	return c
}

func (db *fakeDB) scan(order OrderBy, tag bool) [][]any {
	var matched []person
	for _, p := range db.people {
		if db.keep != nil && !db.keep(p) {
			continue
		}
		if db.anchor != nil && db.cmp(order, db.rowCursor(p), *db.anchor) < 0 {
			continue
		}
		matched = append(matched, p)
	}
	slices.SortFunc(matched, func(a, b person) int {
		return db.cmp(order, db.rowCursor(a), db.rowCursor(b))
	})
	if len(matched) > db.limit+1 {
		matched = matched[:db.limit+1]
	}
	out := make([][]any, 0, len(matched))
	for _, p := range matched {
		out = append(out, []any{p.id.String(), p.name, p.age, p.id.String(), db.sortValue(p).SQLArg(), tag})
	}
	return out
}

func (db *fakeDB) QueryContext(_ context.Context, query string, _ ...any) (dbexec.Rows, error) {
	db.queries = append(db.queries, query)
	if (db.anchor != nil) != strings.Contains(query, "UNION ALL") {
		db.t.Errorf("unexpected statement shape for anchor %v: %s", db.anchor, query)
	}
	if db.anchor != nil && db.order.ReferencesRelation() {
		col := db.order.Secondary.Column("people")
		if strings.Count(query, " HAVING ") != 2 || strings.Count(query, col) != strings.Count(query, "MAX("+col+")") {
			db.t.Errorf("relation sort must compare the aggregated value: %s", query)
		}
	}
	data := db.scan(db.order, true)
	if db.anchor != nil {
		data = append(data, db.scan(db.order.Inverse(), false)...)
		slices.SortStableFunc(data, func(a, b []any) int {
			return db.cmp(db.order, db.cursorOf(a), db.cursorOf(b))
		})
	}
	return &fakeRows{
		columns: []string{"id", "name", "age", sortIDColumn, sortValueColumn, nextPageColumn},
		data:    data,
	}, nil
}

func (db *fakeDB) cursorOf(values []any) cursor.Cursor {
	id := uuid.MustParse(values[0].(string))
	if db.order.IsSecondary() {
		v, err := model.FromDB(model.TypeOf(model.KindInt), values[4])
		if err != nil {
			db.t.Fatalf("sort value: %v", err)
		}
		return cursor.WithValue(id, v)
	}
	return cursor.New(id)
}

func (db *fakeDB) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errors.New("exec not supported")
}

type fakeRows struct {
	columns []string
	data    [][]any
	pos     int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	values := r.data[r.pos-1]
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(values))
	}
	for i, d := range dest {
		*(d.(*any)) = values[i]
	}
	return nil
}

func (r *fakeRows) Columns() ([]string, error) { return r.columns, nil }
func (r *fakeRows) Err() error                 { return nil }
func (r *fakeRows) Close() error               { return nil }

func names(conn Connection[*model.Record]) []string {
	out := make([]string, 0, len(conn.Nodes))
	for _, rec := range conn.Nodes {
		v, _ := rec.Get("name")
		out = append(out, v.String())
	}
	return out
}
