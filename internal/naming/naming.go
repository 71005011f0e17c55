package naming

import (
	"log/slog"
	"strings"
)

// Namer converts table and column names into GraphQL names. It handles
// pluralization, reserved words, and collisions between registered names.
type Namer struct {
	config   Config
	logger   *slog.Logger
	resolver *CollisionResolver
}

// New creates a Namer with the given configuration.
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config:   cfg,
		logger:   logger,
		resolver: NewCollisionResolver(logger),
	}
}

// Default returns a Namer with default configuration.
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset clears registered names so the namer can be reused for a new schema.
func (n *Namer) Reset() {
	n.resolver = NewCollisionResolver(n.logger)
}

// TypeName converts a table name to a singular PascalCase type name.
// Example: "order_items" -> "OrderItem"
func (n *Namer) TypeName(tableName string) string {
	return n.validateTypeAndSuffix(toPascalCase(n.Singularize(tableName)))
}

// FieldName converts a column or relation name to camelCase.
// Example: "created_at" -> "createdAt"
func (n *Namer) FieldName(name string) string {
	return toCamelCase(name)
}

// ListFieldName is the root field returning pages of a table.
// Example: "order_item" -> "orderItems"
func (n *Namer) ListFieldName(tableName string) string {
	return toCamelCase(n.Pluralize(n.Singularize(tableName)))
}

// SingleFieldName is the root field returning one row by id.
// Example: "order_items" -> "orderItem"
func (n *Namer) SingleFieldName(tableName string) string {
	return toCamelCase(n.Singularize(tableName))
}

// RegisterType registers a table and returns its resolved type name.
func (n *Namer) RegisterType(tableName string) string {
	return n.resolver.RegisterType(n.TypeName(tableName), tableName)
}

// RegisterColumnField registers a column field on typeName. Columns are
// registered before relations and keep their names.
func (n *Namer) RegisterColumnField(typeName, columnName string) string {
	fieldName := n.validateFieldAndSuffix(n.FieldName(columnName))
	return n.resolver.RegisterField(typeName, fieldName, "column:"+columnName)
}

// RegisterRelationField registers a relation field. A relation that collides
// with a column gets the suffix "Ref" for single targets and "Rel" for lists.
func (n *Namer) RegisterRelationField(typeName, relationName string, single bool) string {
	fieldName := n.validateFieldAndSuffix(n.FieldName(relationName))
	if n.resolver.FieldExists(typeName, fieldName) {
		if single {
			fieldName += "Ref"
		} else {
			fieldName += "Rel"
		}
	}
	return n.resolver.RegisterField(typeName, fieldName, "relation:"+relationName)
}

// RegisterListField registers the list root field of a table.
func (n *Namer) RegisterListField(tableName string) string {
	return n.resolver.RegisterQuery(n.validateFieldAndSuffix(n.ListFieldName(tableName)), tableName)
}

// RegisterSingleField registers the by-id root field of a table.
func (n *Namer) RegisterSingleField(tableName string) string {
	return n.resolver.RegisterQuery(n.validateFieldAndSuffix(n.SingleFieldName(tableName)), tableName)
}

func (n *Namer) validateTypeAndSuffix(name string) string {
	if isReservedTypeName(name) {
		safeName := name + "_"
		n.logger.Warn("GraphQL name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

func (n *Namer) validateFieldAndSuffix(name string) string {
	if isReservedFieldName(name) {
		safeName := name + "_"
		n.logger.Warn("GraphQL name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

func toPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

func toCamelCase(s string) string {
	pascal := toPascalCase(s)
	if pascal == "" {
		return ""
	}
	return strings.ToLower(pascal[:1]) + pascal[1:]
}
