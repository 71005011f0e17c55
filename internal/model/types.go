// Package model describes the records the query engine can read: their
// tables, typed fields, and the relations between them.
package model

import (
	"fmt"
	"strings"
)

// Kind identifies the semantic type of a field.
type Kind int

const (
	KindUuid Kind = iota
	KindBool
	KindInt
	KindInt32
	KindFloat
	KindDecimal
	KindString
	KindDate
	KindDateTime
	KindJSON
	KindEnum
)

var kindNames = map[Kind]string{
	KindUuid:     "uuid",
	KindBool:     "bool",
	KindInt:      "int",
	KindInt32:    "int32",
	KindFloat:    "float",
	KindDecimal:  "decimal",
	KindString:   "string",
	KindDate:     "date",
	KindDateTime: "datetime",
	KindJSON:     "json",
	KindEnum:     "enum",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind resolves a kind from its declaration name.
func ParseKind(name string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for kind, kindName := range kindNames {
		if kindName == normalized {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown field type %q", name)
}

// FieldType is a field's semantic type. Variants is only set for enums.
type FieldType struct {
	Kind     Kind
	Variants []string
}

// TypeOf returns the non-enum field type for kind.
func TypeOf(kind Kind) FieldType {
	return FieldType{Kind: kind}
}

// EnumType returns an enum field type accepting the given variants.
func EnumType(variants ...string) FieldType {
	return FieldType{Kind: KindEnum, Variants: append([]string(nil), variants...)}
}

// Sortable reports whether values of this type have a total order usable
// for sorting and cursors.
func (t FieldType) Sortable() bool {
	return t.Kind != KindJSON
}

// HasVariant reports whether v is a declared enum variant.
func (t FieldType) HasVariant(v string) bool {
	for _, variant := range t.Variants {
		if variant == v {
			return true
		}
	}
	return false
}

// Null returns the absent value of this type.
func (t FieldType) Null() FieldValue {
	return FieldValue{kind: t.Kind}
}

func (t FieldType) String() string {
	if t.Kind == KindEnum {
		return fmt.Sprintf("enum(%s)", strings.Join(t.Variants, ","))
	}
	return t.Kind.String()
}

// FieldDefinition describes one column of a model.
type FieldDefinition struct {
	Name       string
	Type       FieldType
	Immutable  bool
	PrimaryKey bool
	Unique     bool
	Nullable   bool
}

// ReferenceKind identifies which side of a relation holds the foreign key.
type ReferenceKind int

const (
	// ReferenceFrom means this model holds the foreign key column.
	ReferenceFrom ReferenceKind = iota
	// ReferenceTo means the related model holds a foreign key back to this one.
	ReferenceTo
	// ReferenceVia joins through a junction table.
	ReferenceVia
)

// Reference locates the columns joining two models.
type Reference struct {
	Kind ReferenceKind
	// Column is the foreign key for From and To references.
	Column string
	// Junction, FromColumn and ToColumn are set for Via references.
	// FromColumn points at this model, ToColumn at the related one.
	Junction   string
	FromColumn string
	ToColumn   string
}

// From references a foreign key column on this model.
func From(column string) Reference {
	return Reference{Kind: ReferenceFrom, Column: column}
}

// To references a foreign key column on the related model.
func To(column string) Reference {
	return Reference{Kind: ReferenceTo, Column: column}
}

// Via references a junction table with explicit columns.
func Via(junction, fromColumn, toColumn string) Reference {
	return Reference{Kind: ReferenceVia, Junction: junction, FromColumn: fromColumn, ToColumn: toColumn}
}

func (r Reference) String() string {
	switch r.Kind {
	case ReferenceFrom:
		return fmt.Sprintf("from(%s)", r.Column)
	case ReferenceTo:
		return fmt.Sprintf("to(%s)", r.Column)
	default:
		return fmt.Sprintf("via(%s, %s, %s)", r.Junction, r.FromColumn, r.ToColumn)
	}
}

// RelationDef names a relation from one model to another.
type RelationDef struct {
	Name      string
	Reference Reference
	Target    Definition
}

// Definition is the read-only metadata the engine consumes for a model.
type Definition interface {
	TableName() string
	IDFieldName() string
	FieldDefinitions() []FieldDefinition
	RelationDefinitions() []RelationDef
}

// Field looks up a field definition by name.
func Field(def Definition, name string) (FieldDefinition, bool) {
	for _, field := range def.FieldDefinitions() {
		if field.Name == name {
			return field, true
		}
	}
	return FieldDefinition{}, false
}

// Relation looks up a relation definition by name.
func Relation(def Definition, name string) (RelationDef, bool) {
	for _, rel := range def.RelationDefinitions() {
		if rel.Name == name {
			return rel, true
		}
	}
	return RelationDef{}, false
}

// PrimaryKeyFields returns the fields flagged as primary key, in declaration order.
func PrimaryKeyFields(def Definition) []FieldDefinition {
	var keys []FieldDefinition
	for _, field := range def.FieldDefinitions() {
		if field.PrimaryKey {
			keys = append(keys, field)
		}
	}
	return keys
}
