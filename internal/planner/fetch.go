package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"relquery/internal/apperr"
	"relquery/internal/cursor"
	"relquery/internal/dbexec"
	"relquery/internal/logging"
	"relquery/internal/model"
	"relquery/internal/observability"
)

// RowDecoder converts a decoded record into the caller's node type.
type RowDecoder[T any] func(rec *model.Record) (T, error)

// RecordDecoder returns the record unchanged.
func RecordDecoder(rec *model.Record) (*model.Record, error) {
	return rec, nil
}

// FetchPage runs the page plan and splits the window into a Connection.
func FetchPage[T any](ctx context.Context, exec dbexec.QueryExecutor, s Select, decode RowDecoder[T]) (Connection[T], error) {
	rows, err := run(ctx, exec, s, ModePage)
	if err != nil {
		return Connection[T]{}, err
	}
	page, info, err := paginate(rows, s.cursor, s.Limit())
	if err != nil {
		return Connection[T]{}, err
	}
	nodes, err := decodeAll(page, decode)
	if err != nil {
		return Connection[T]{}, err
	}
	return Connection[T]{Nodes: nodes, PageInfo: info}, nil
}

// FetchAll returns every matching row in order.
func FetchAll[T any](ctx context.Context, exec dbexec.QueryExecutor, s Select, decode RowDecoder[T]) ([]T, error) {
	rows, err := run(ctx, exec, s, ModeAll)
	if err != nil {
		return nil, err
	}
	return decodeAll(rows, decode)
}

// FetchOne returns the first matching row or a NotFound error.
func FetchOne[T any](ctx context.Context, exec dbexec.QueryExecutor, s Select, decode RowDecoder[T]) (T, error) {
	node, ok, err := FetchOptional(ctx, exec, s, decode)
	if err != nil {
		return node, err
	}
	if !ok {
		return node, apperr.NotFound("%s not found", s.def.TableName())
	}
	return node, nil
}

// FetchOptional returns the first matching row and whether one existed.
func FetchOptional[T any](ctx context.Context, exec dbexec.QueryExecutor, s Select, decode RowDecoder[T]) (T, bool, error) {
	var zero T
	rows, err := run(ctx, exec, s, ModeOne)
	if err != nil || len(rows) == 0 {
		return zero, false, err
	}
	node, err := decode(rows[0].record)
	if err != nil {
		return zero, false, err
	}
	return node, true, nil
}

func decodeAll[T any](rows []row, decode RowDecoder[T]) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		node, err := decode(r.record)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

// run plans s, executes it and decodes the raw rows.
func run(ctx context.Context, exec dbexec.QueryExecutor, s Select, mode Mode) (rows []row, err error) {
	table := s.def.TableName()
	ctx, span := otel.Tracer("relquery/planner").Start(ctx, "planner.fetch",
		trace.WithAttributes(
			attribute.String("relquery.table", table),
			attribute.String("relquery.mode", mode.String()),
			attribute.Bool("relquery.cursor", s.cursor != nil),
		),
	)
	start := time.Now()
	defer func() {
		kind := ""
		if err != nil {
			kind = apperr.KindOf(err).Code()
			// The span keeps the driver error that clients never see.
			recorded := err
			if cause := errors.Unwrap(err); cause != nil {
				recorded = cause
			}
			span.RecordError(recorded)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("relquery.rows", len(rows)))
		span.End()
		observability.QueryMetricsFromContext(ctx).RecordFetch(ctx, table, mode.String(), time.Since(start), len(rows), kind)
	}()

	planned, err := s.Plan(mode)
	if err != nil {
		return nil, err
	}
	logger := logging.FromContext(ctx)
	logger.Debug("executing select",
		slog.String("table", table),
		slog.String("mode", mode.String()),
		slog.String("order", s.order.String()),
		slog.String("sql", planned.SQL),
		slog.Int("args", len(planned.Args)),
	)

	result, err := exec.QueryContext(ctx, planned.SQL, planned.Args...)
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	defer result.Close()

	columns, err := result.Columns()
	if err != nil {
		return nil, apperr.FromDB(err)
	}
	dec, err := newRowReader(s.def, s.order, columns)
	if err != nil {
		return nil, err
	}
	for result.Next() {
		r, err := dec.read(result)
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	if err := result.Err(); err != nil {
		return nil, apperr.FromDB(err)
	}
	logger.Debug("select returned", slog.String("table", table), slog.Int("rows", len(rows)))
	return rows, nil
}

// rowReader maps result columns onto model fields and the sort aliases.
type rowReader struct {
	columns   []string
	fields    map[string]model.FieldDefinition
	sortType  *model.FieldType
	hasSortID bool
}

func newRowReader(def model.Definition, order OrderBy, columns []string) (*rowReader, error) {
	r := &rowReader{columns: columns, fields: make(map[string]model.FieldDefinition)}
	for _, f := range def.FieldDefinitions() {
		r.fields[f.Name] = f
	}
	for _, col := range columns {
		if col == sortIDColumn {
			r.hasSortID = true
		}
	}
	if !r.hasSortID {
		return nil, apperr.Internal("result is missing the %s column", sortIDColumn)
	}
	if v := order.Secondary; v != nil {
		_, field, err := resolve(def, *v)
		if err != nil {
			return nil, err
		}
		r.sortType = &field.Type
	}
	return r, nil
}

func (r *rowReader) read(rows dbexec.Rows) (row, error) {
	raw := make([]any, len(r.columns))
	dest := make([]any, len(r.columns))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return row{}, apperr.FromDB(err)
	}

	out := row{record: model.NewRecord(len(r.fields))}
	var sortValue *model.FieldValue
	for i, col := range r.columns {
		switch col {
		case sortIDColumn:
			v, err := model.FromDB(model.TypeOf(model.KindUuid), raw[i])
			if err != nil {
				return row{}, apperr.Wrap(apperr.KindInternal, err, "decode row id")
			}
			id, ok := v.UUID()
			if !ok {
				return row{}, apperr.Internal("row id is null")
			}
			out.cursor.ID = id
		case sortValueColumn:
			if r.sortType == nil {
				continue
			}
			v, err := model.FromDB(*r.sortType, raw[i])
			if err != nil {
				return row{}, apperr.Wrap(apperr.KindInternal, err, "decode sort value")
			}
			sortValue = &v
		case nextPageColumn:
			next, ok := raw[i].(bool)
			if !ok {
				return row{}, apperr.Internal("unexpected %s value %T", nextPageColumn, raw[i])
			}
			out.next = next
		default:
			field, ok := r.fields[col]
			if !ok {
				continue
			}
			v, err := model.FromDB(field.Type, raw[i])
			if err != nil {
				return row{}, apperr.Wrap(apperr.KindInternal, err, fmt.Sprintf("decode column %s", col))
			}
			out.record.Set(col, v)
		}
	}
	if r.sortType != nil {
		if sortValue == nil {
			null := r.sortType.Null()
			sortValue = &null
		}
		out.cursor = cursor.WithValue(out.cursor.ID, *sortValue)
	}
	return out, nil
}
