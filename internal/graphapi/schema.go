// Package graphapi exposes the registered models as a read-only GraphQL API
// of keyset-paginated connections.
package graphapi

import (
	"errors"
	"log/slog"

	"github.com/graphql-go/graphql"

	"relquery/internal/config"
	"relquery/internal/dbexec"
	"relquery/internal/model"
	"relquery/internal/naming"
)

// Config wires a schema to the engine.
type Config struct {
	Registry *model.Registry
	Executor dbexec.QueryExecutor
	Query    config.QueryConfig
	Naming   naming.Config
	Logger   *slog.Logger
}

type builder struct {
	cfg   Config
	namer *naming.Namer

	typeNames   map[string]string
	objects     map[string]*graphql.Object
	connections map[string]*graphql.Object

	pageInfo       *graphql.Object
	json           *graphql.Scalar
	nonNegativeInt *graphql.Scalar
}

// BuildSchema generates the schema. Every model gets a connection field and
// a by-id field on Query; relations become nested fields.
func BuildSchema(cfg Config) (graphql.Schema, error) {
	if cfg.Registry == nil {
		return graphql.Schema{}, errors.New("graphapi: registry is required")
	}
	if cfg.Executor == nil {
		return graphql.Schema{}, errors.New("graphapi: executor is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	b := &builder{
		cfg:            cfg,
		namer:          naming.New(cfg.Naming, cfg.Logger),
		typeNames:      make(map[string]string),
		objects:        make(map[string]*graphql.Object),
		connections:    make(map[string]*graphql.Object),
		json:           jsonScalar(),
		nonNegativeInt: nonNegativeInt(),
	}
	b.pageInfo = graphql.NewObject(graphql.ObjectConfig{
		Name: "PageInfo",
		Fields: graphql.Fields{
			"prevCursor": &graphql.Field{Type: graphql.String, Description: "Cursor of the previous page, when one exists."},
			"nextCursor": &graphql.Field{Type: graphql.String, Description: "Cursor of the next page, when one exists."},
		},
	})

	models := cfg.Registry.Models()
	for _, def := range models {
		b.typeNames[def.TableName()] = b.namer.RegisterType(def.TableName())
	}

	queryFields := graphql.Fields{}
	for _, def := range models {
		queryFields[b.namer.RegisterListField(def.TableName())] = &graphql.Field{
			Type:        graphql.NewNonNull(b.connectionType(def)),
			Description: "Pages of " + def.TableName() + " in keyset order.",
			Args:        b.connectionArgs(),
			Resolve:     b.resolveList(def),
		}
		queryFields[b.namer.RegisterSingleField(def.TableName())] = &graphql.Field{
			Type:        b.objectType(def),
			Description: "One row of " + def.TableName() + " by id.",
			Args: graphql.FieldConfigArgument{
				"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
			},
			Resolve: b.resolveByID(def),
		}
	}
	if len(queryFields) == 0 {
		queryFields["_schema"] = &graphql.Field{
			Type:        graphql.String,
			Description: "Placeholder field when no models are registered",
			Resolve: func(graphql.ResolveParams) (interface{}, error) {
				return "No models registered", nil
			},
		}
	}

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{Name: "Query", Fields: queryFields}),
	})
}

func (b *builder) connectionArgs() graphql.FieldConfigArgument {
	return graphql.FieldConfigArgument{
		"filter": &graphql.ArgumentConfig{
			Type:        graphql.String,
			Description: `Filter expression, for example: age >= 18 && organization.name ~~ "acme%"`,
		},
		"sortBy": &graphql.ArgumentConfig{
			Type:        graphql.String,
			Description: "Field to order by; dotted paths follow relations. Defaults to the id.",
		},
		"sortDirection": &graphql.ArgumentConfig{
			Type:        graphql.String,
			Description: `"1" for ascending, "-1" for descending.`,
		},
		"cursor": &graphql.ArgumentConfig{
			Type:        graphql.String,
			Description: "Cursor from a previous pageInfo.",
		},
		"limit": &graphql.ArgumentConfig{
			Type:        b.nonNegativeInt,
			Description: "Page size.",
		},
	}
}

func (b *builder) connectionType(def model.Definition) *graphql.Object {
	table := def.TableName()
	if conn, ok := b.connections[table]; ok {
		return conn
	}
	conn := graphql.NewObject(graphql.ObjectConfig{
		Name: b.typeNames[table] + "Connection",
		Fields: graphql.Fields{
			"nodes": &graphql.Field{
				Type:    graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(b.objectType(def)))),
				Resolve: resolveNodes,
			},
			"pageInfo": &graphql.Field{
				Type:    graphql.NewNonNull(b.pageInfo),
				Resolve: resolvePageInfo,
			},
		},
	})
	b.connections[table] = conn
	return conn
}

// objectType returns the object for def. Fields are built lazily so
// relations may refer to each other.
func (b *builder) objectType(def model.Definition) *graphql.Object {
	table := def.TableName()
	if obj, ok := b.objects[table]; ok {
		return obj
	}
	obj := graphql.NewObject(graphql.ObjectConfig{
		Name:        b.typeNames[table],
		Description: "A row of " + table + ".",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return b.objectFields(def)
		}),
	})
	b.objects[table] = obj
	return obj
}

func (b *builder) objectFields(def model.Definition) graphql.Fields {
	typeName := b.typeNames[def.TableName()]
	fields := graphql.Fields{}
	for _, field := range def.FieldDefinitions() {
		fieldType := b.outputType(def, field)
		if !field.Nullable {
			fieldType = graphql.NewNonNull(fieldType)
		}
		fields[b.namer.RegisterColumnField(typeName, field.Name)] = &graphql.Field{
			Type:    fieldType,
			Resolve: resolveColumn(field.Name),
		}
	}

	for _, rel := range def.RelationDefinitions() {
		if _, ok := b.typeNames[rel.Target.TableName()]; !ok {
			b.cfg.Logger.Warn("relation target is not registered, skipping field",
				slog.String("table", def.TableName()),
				slog.String("relation", rel.Name),
			)
			continue
		}
		switch rel.Reference.Kind {
		case model.ReferenceFrom:
			fields[b.namer.RegisterRelationField(typeName, rel.Name, true)] = &graphql.Field{
				Type:    b.objectType(rel.Target),
				Resolve: b.resolveBelongsTo(rel),
			}
		case model.ReferenceTo:
			if target, ok := model.Field(rel.Target, rel.Reference.Column); ok && target.Unique {
				fields[b.namer.RegisterRelationField(typeName, rel.Name, true)] = &graphql.Field{
					Type:    b.objectType(rel.Target),
					Resolve: b.resolveHasOne(def, rel),
				}
				continue
			}
			fields[b.namer.RegisterRelationField(typeName, rel.Name, false)] = &graphql.Field{
				Type:    graphql.NewNonNull(b.connectionType(rel.Target)),
				Args:    b.connectionArgs(),
				Resolve: b.resolveHasMany(def, rel.Target, rel.Reference.Column),
			}
		case model.ReferenceVia:
			inverse, ok := inverseVia(def, rel)
			if !ok {
				b.cfg.Logger.Debug("relation has no reverse relation on its target, skipping field",
					slog.String("table", def.TableName()),
					slog.String("relation", rel.Name),
				)
				continue
			}
			fields[b.namer.RegisterRelationField(typeName, rel.Name, false)] = &graphql.Field{
				Type:    graphql.NewNonNull(b.connectionType(rel.Target)),
				Args:    b.connectionArgs(),
				Resolve: b.resolveHasMany(def, rel.Target, inverse.Name+"."+def.IDFieldName()),
			}
		}
	}
	return fields
}

func (b *builder) outputType(def model.Definition, field model.FieldDefinition) graphql.Output {
	if field.Name == def.IDFieldName() {
		return graphql.ID
	}
	switch field.Type.Kind {
	case model.KindInt, model.KindInt32:
		return graphql.Int
	case model.KindFloat:
		return graphql.Float
	case model.KindBool:
		return graphql.Boolean
	case model.KindJSON:
		return b.json
	default:
		return graphql.String
	}
}

// inverseVia finds the relation on rel's target that walks the same
// junction back to owner.
func inverseVia(owner model.Definition, rel model.RelationDef) (model.RelationDef, bool) {
	for _, candidate := range rel.Target.RelationDefinitions() {
		if candidate.Reference.Kind != model.ReferenceVia || candidate.Reference.Junction != rel.Reference.Junction {
			continue
		}
		if candidate.Target != nil && candidate.Target.TableName() == owner.TableName() {
			return candidate, true
		}
	}
	return model.RelationDef{}, false
}
