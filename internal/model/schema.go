package model

import (
	"fmt"

	"relquery/internal/apperr"
)

// Schema is a Definition built from explicit declarations.
type Schema struct {
	Table     string
	ID        string
	Fields    []FieldDefinition
	Relations []RelationDef
}

// NewSchema declares a model with a uuid id field named "id".
func NewSchema(table string, fields ...FieldDefinition) *Schema {
	return &Schema{Table: table, ID: "id", Fields: fields}
}

// Definition implementation.
func (s *Schema) TableName() string                   { return s.Table }
func (s *Schema) IDFieldName() string                 { return s.ID }
func (s *Schema) FieldDefinitions() []FieldDefinition { return s.Fields }
func (s *Schema) RelationDefinitions() []RelationDef  { return s.Relations }

// WithID overrides the id field name.
func (s *Schema) WithID(name string) *Schema {
	s.ID = name
	return s
}

// BelongsTo declares a relation through a foreign key held by this model.
func (s *Schema) BelongsTo(name string, target Definition, column string) *Schema {
	return s.relate(name, From(column), target)
}

// HasOne declares a relation through a foreign key held by the target.
func (s *Schema) HasOne(name string, target Definition, column string) *Schema {
	return s.relate(name, To(column), target)
}

// HasMany declares a one-to-many relation through a foreign key held by the target.
func (s *Schema) HasMany(name string, target Definition, column string) *Schema {
	return s.relate(name, To(column), target)
}

// HasManyVia declares a many-to-many relation through junction. Junction
// columns are taken from the target's reverse relation when the query runs.
func (s *Schema) HasManyVia(name string, target Definition, junction string) *Schema {
	return s.relate(name, Reference{Kind: ReferenceVia, Junction: junction}, target)
}

// ManyToMany declares a many-to-many relation with explicit junction columns.
func (s *Schema) ManyToMany(name string, target Definition, junction, fromColumn, toColumn string) *Schema {
	return s.relate(name, Via(junction, fromColumn, toColumn), target)
}

func (s *Schema) relate(name string, ref Reference, target Definition) *Schema {
	s.Relations = append(s.Relations, RelationDef{Name: name, Reference: ref, Target: target})
	return s
}

// Validate checks the structural rules every model must satisfy.
func Validate(def Definition) error {
	table := def.TableName()
	if table == "" {
		return fmt.Errorf("model has no table name")
	}
	seen := make(map[string]struct{}, len(def.FieldDefinitions()))
	idFound := false
	primaryKeys := 0
	for _, field := range def.FieldDefinitions() {
		if field.Name == "" {
			return fmt.Errorf("%s: field with empty name", table)
		}
		if _, dup := seen[field.Name]; dup {
			return fmt.Errorf("%s: duplicate field %q", table, field.Name)
		}
		seen[field.Name] = struct{}{}
		if field.Type.Kind == KindEnum && len(field.Type.Variants) == 0 {
			return fmt.Errorf("%s.%s: enum declares no variants", table, field.Name)
		}
		if field.PrimaryKey {
			primaryKeys++
		}
		if field.Name == def.IDFieldName() {
			idFound = true
			if field.Type.Kind != KindUuid {
				return fmt.Errorf("%s: id field %q must be uuid, got %s", table, field.Name, field.Type)
			}
			if !field.Immutable {
				return fmt.Errorf("%s: id field %q must be immutable", table, field.Name)
			}
		}
	}
	if !idFound {
		return fmt.Errorf("%s: id field %q is not declared", table, def.IDFieldName())
	}
	if primaryKeys == 0 {
		return fmt.Errorf("%s: at least one primary key field is required", table)
	}
	relations := make(map[string]struct{}, len(def.RelationDefinitions()))
	for _, rel := range def.RelationDefinitions() {
		if _, dup := relations[rel.Name]; dup {
			return fmt.Errorf("%s: duplicate relation %q", table, rel.Name)
		}
		relations[rel.Name] = struct{}{}
		if rel.Target == nil {
			return fmt.Errorf("%s: relation %q has no target", table, rel.Name)
		}
		if rel.Reference.Kind == ReferenceFrom {
			if _, ok := seen[rel.Reference.Column]; !ok {
				return fmt.Errorf("%s: relation %q references undeclared column %q", table, rel.Name, rel.Reference.Column)
			}
		}
	}
	return nil
}

// ResolveVia returns the junction columns for a many-to-many relation
// declared on owner. Relations declared without columns borrow them from the
// target's reverse relation on the same junction table.
func ResolveVia(owner Definition, rel RelationDef) (Reference, error) {
	ref := rel.Reference
	if ref.Kind != ReferenceVia {
		return ref, nil
	}
	if ref.FromColumn != "" && ref.ToColumn != "" {
		return ref, nil
	}
	for _, inverse := range rel.Target.RelationDefinitions() {
		if inverse.Reference.Kind != ReferenceVia || inverse.Reference.Junction != ref.Junction {
			continue
		}
		if inverse.Target == nil || inverse.Target.TableName() != owner.TableName() {
			continue
		}
		if inverse.Reference.FromColumn != "" && inverse.Reference.ToColumn != "" {
			return Via(ref.Junction, inverse.Reference.ToColumn, inverse.Reference.FromColumn), nil
		}
		return Via(ref.Junction, junctionColumn(owner), junctionColumn(rel.Target)), nil
	}
	return Reference{}, apperr.BadRequest(
		"relation %q on %s goes through %s but %s declares no reverse relation; declare the reverse relation on %s",
		rel.Name, owner.TableName(), ref.Junction, rel.Target.TableName(), rel.Target.TableName(),
	)
}

func junctionColumn(def Definition) string {
	return def.TableName() + "_" + def.IDFieldName()
}
