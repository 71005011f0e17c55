package naming

import (
	"fmt"
	"log/slog"
)

// CollisionResolver remembers registered names and resolves duplicates with
// a numeric suffix.
type CollisionResolver struct {
	seenTypes   map[string]string            // type name -> source
	seenFields  map[string]map[string]string // type name -> field name -> source
	seenQueries map[string]string            // root field name -> source
	logger      *slog.Logger
}

// NewCollisionResolver creates a new collision resolver.
func NewCollisionResolver(logger *slog.Logger) *CollisionResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollisionResolver{
		seenTypes:   make(map[string]string),
		seenFields:  make(map[string]map[string]string),
		seenQueries: make(map[string]string),
		logger:      logger,
	}
}

// RegisterType claims graphqlName for tableName.
func (c *CollisionResolver) RegisterType(graphqlName, tableName string) string {
	return c.resolveCollision(graphqlName, c.seenTypes, "table:"+tableName)
}

// RegisterField claims fieldName within typeName.
func (c *CollisionResolver) RegisterField(typeName, fieldName, source string) string {
	if c.seenFields[typeName] == nil {
		c.seenFields[typeName] = make(map[string]string)
	}
	return c.resolveCollision(fieldName, c.seenFields[typeName], source)
}

// FieldExists reports whether typeName already has fieldName.
func (c *CollisionResolver) FieldExists(typeName, fieldName string) bool {
	if fields, ok := c.seenFields[typeName]; ok {
		_, exists := fields[fieldName]
		return exists
	}
	return false
}

// RegisterQuery claims a root query field for tableName.
func (c *CollisionResolver) RegisterQuery(fieldName, tableName string) string {
	return c.resolveCollision(fieldName, c.seenQueries, "table:"+tableName)
}

// resolveCollision returns name, or name2, name3... when it is taken.
func (c *CollisionResolver) resolveCollision(name string, seen map[string]string, source string) string {
	if _, exists := seen[name]; !exists {
		seen[name] = source
		return name
	}

	c.logger.Warn("naming collision detected, applying suffix",
		slog.String("name", name),
		slog.String("existing_source", seen[name]),
		slog.String("new_source", source),
	)

	for i := 2; ; i++ {
		suffixed := fmt.Sprintf("%s%d", name, i)
		if _, exists := seen[suffixed]; !exists {
			seen[suffixed] = source
			return suffixed
		}
	}
}
