package graphapi

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/graphql-go/graphql"

	"relquery/internal/apperr"
	"relquery/internal/logging"
	"relquery/internal/model"
	"relquery/internal/planner"
)

type page = planner.Connection[*model.Record]

func (b *builder) resolveList(def model.Definition) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		return b.fetchPage(p, def, nil)
	}
}

func (b *builder) resolveByID(def model.Definition) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		raw, _ := p.Args["id"].(string)
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, apperr.BadRequest("invalid id %q", raw)
		}
		return b.fetchOptional(p.Context, planner.NewSelect(def).ByID(id))
	}
}

// resolveBelongsTo follows a foreign key held by the source row.
func (b *builder) resolveBelongsTo(rel model.RelationDef) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		rec, ok := p.Source.(*model.Record)
		if !ok {
			return nil, nil
		}
		v, ok := rec.Get(rel.Reference.Column)
		if !ok {
			return nil, nil
		}
		id, ok := v.UUID()
		if !ok {
			return nil, nil
		}
		return b.fetchOptional(p.Context, planner.NewSelect(rel.Target).ByID(id))
	}
}

// resolveHasOne reads the single target row whose unique foreign key points
// at the source row.
func (b *builder) resolveHasOne(owner model.Definition, rel model.RelationDef) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		id, ok := sourceID(p, owner)
		if !ok {
			return nil, nil
		}
		return b.fetchOptional(p.Context, planner.NewSelect(rel.Target).ByField(rel.Reference.Column, id))
	}
}

// resolveHasMany pages the target rows where field equals the source id.
func (b *builder) resolveHasMany(owner, target model.Definition, field string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		id, ok := sourceID(p, owner)
		if !ok {
			return page{Nodes: []*model.Record{}}, nil
		}
		return b.fetchPage(p, target, func(s planner.Select) planner.Select {
			return s.ByField(field, id)
		})
	}
}

func (b *builder) fetchPage(p graphql.ResolveParams, def model.Definition, scope func(planner.Select) planner.Select) (interface{}, error) {
	raw := rawQuery(p.Args)
	raw.Limit = b.cfg.Query.EffectiveLimit(raw.Limit)
	q, err := planner.ParseQuery(def, raw)
	if err != nil {
		return nil, b.graphQLError(p.Context, err)
	}
	s := planner.NewSelect(def).FromQuery(q)
	if scope != nil {
		s = scope(s)
	}

	ctx, cancel := b.statementContext(p.Context)
	defer cancel()
	conn, err := planner.FetchPage(ctx, b.cfg.Executor, s, planner.RecordDecoder)
	if err != nil {
		return nil, b.graphQLError(p.Context, err)
	}
	return conn, nil
}

func (b *builder) fetchOptional(ctx context.Context, s planner.Select) (interface{}, error) {
	stmtCtx, cancel := b.statementContext(ctx)
	defer cancel()
	rec, ok, err := planner.FetchOptional(stmtCtx, b.cfg.Executor, s, planner.RecordDecoder)
	if err != nil {
		return nil, b.graphQLError(ctx, err)
	}
	if !ok {
		return nil, nil
	}
	return rec, nil
}

func (b *builder) statementContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.cfg.Query.StatementTimeout > 0 {
		return context.WithTimeout(ctx, b.cfg.Query.StatementTimeout)
	}
	return ctx, func() {}
}

// graphQLError keeps client-facing taxonomy errors, whose Extensions carry
// the code, and replaces internal errors with a generic one. Internal causes
// are only logged.
func (b *builder) graphQLError(ctx context.Context, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind != apperr.KindInternal {
		return appErr
	}
	attrs := []any{slog.String("error", err.Error())}
	if cause := errors.Unwrap(err); cause != nil {
		attrs = append(attrs, slog.String("cause", cause.Error()))
	}
	logging.FromContext(ctx).Error("query failed", attrs...)
	return apperr.Wrap(apperr.KindInternal, err, "internal error")
}

func rawQuery(args map[string]interface{}) planner.RawQuery {
	var raw planner.RawQuery
	raw.Filter, _ = args["filter"].(string)
	raw.SortBy, _ = args["sortBy"].(string)
	raw.SortDirection, _ = args["sortDirection"].(string)
	raw.Cursor, _ = args["cursor"].(string)
	raw.Limit, _ = args["limit"].(int)
	return raw
}

func sourceID(p graphql.ResolveParams, def model.Definition) (uuid.UUID, bool) {
	rec, ok := p.Source.(*model.Record)
	if !ok {
		return uuid.UUID{}, false
	}
	v, ok := rec.Get(def.IDFieldName())
	if !ok {
		return uuid.UUID{}, false
	}
	return v.UUID()
}

func resolveColumn(name string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		rec, ok := p.Source.(*model.Record)
		if !ok {
			return nil, nil
		}
		v, ok := rec.Get(name)
		if !ok || v.IsNull() {
			return nil, nil
		}
		return v.Native(), nil
	}
}

func resolveNodes(p graphql.ResolveParams) (interface{}, error) {
	conn, ok := p.Source.(page)
	if !ok {
		return []*model.Record{}, nil
	}
	if conn.Nodes == nil {
		return []*model.Record{}, nil
	}
	return conn.Nodes, nil
}

func resolvePageInfo(p graphql.ResolveParams) (interface{}, error) {
	conn, ok := p.Source.(page)
	if !ok {
		return map[string]interface{}{}, nil
	}
	prev, next, err := conn.PageInfo.Encoded()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "encode cursor")
	}
	info := map[string]interface{}{"prevCursor": nil, "nextCursor": nil}
	if prev != nil {
		info["prevCursor"] = *prev
	}
	if next != nil {
		info["nextCursor"] = *next
	}
	return info, nil
}
