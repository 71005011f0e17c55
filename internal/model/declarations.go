package model

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Declarations is the file format for model declarations.
//
//	models:
//	  - table: users
//	    fields:
//	      - {name: id, type: uuid, primary_key: true, immutable: true}
//	      - {name: status, type: enum, variants: [active, disabled]}
//	    relations:
//	      - {name: organization, target: organizations, from: organization_id}
//	      - {name: courses, target: courses, via: user_courses}
type Declarations struct {
	Models []ModelDeclaration `yaml:"models"`
}

type ModelDeclaration struct {
	Table     string                `yaml:"table"`
	ID        string                `yaml:"id"`
	Fields    []FieldDeclaration    `yaml:"fields"`
	Relations []RelationDeclaration `yaml:"relations"`
}

type FieldDeclaration struct {
	Name       string   `yaml:"name"`
	Type       string   `yaml:"type"`
	Variants   []string `yaml:"variants"`
	Immutable  bool     `yaml:"immutable"`
	PrimaryKey bool     `yaml:"primary_key"`
	Unique     bool     `yaml:"unique"`
	Nullable   bool     `yaml:"nullable"`
}

// RelationDeclaration sets exactly one of From, To or Via. ViaFrom and ViaTo
// are optional junction columns.
type RelationDeclaration struct {
	Name    string `yaml:"name"`
	Target  string `yaml:"target"`
	From    string `yaml:"from"`
	To      string `yaml:"to"`
	Via     string `yaml:"via"`
	ViaFrom string `yaml:"via_from"`
	ViaTo   string `yaml:"via_to"`
}

// LoadDeclarationsFile reads a declarations file into a sealed registry.
func LoadDeclarationsFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model declarations: %w", err)
	}
	return LoadDeclarations(bytes.NewReader(data))
}

// LoadDeclarations decodes declarations and builds a sealed registry.
func LoadDeclarations(r io.Reader) (*Registry, error) {
	var decls Declarations
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&decls); err != nil {
		return nil, fmt.Errorf("failed to parse model declarations: %w", err)
	}
	return decls.Build()
}

// Build links declared relations and registers every model.
func (d Declarations) Build() (*Registry, error) {
	schemas := make(map[string]*Schema, len(d.Models))
	for _, decl := range d.Models {
		if decl.Table == "" {
			return nil, fmt.Errorf("model declaration without table")
		}
		if _, dup := schemas[decl.Table]; dup {
			return nil, fmt.Errorf("model %s declared twice", decl.Table)
		}
		schema := NewSchema(decl.Table)
		if decl.ID != "" {
			schema.ID = decl.ID
		}
		for _, fd := range decl.Fields {
			field, err := fd.definition()
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", decl.Table, fd.Name, err)
			}
			schema.Fields = append(schema.Fields, field)
		}
		schemas[decl.Table] = schema
	}

	for _, decl := range d.Models {
		schema := schemas[decl.Table]
		for _, rd := range decl.Relations {
			target, ok := schemas[rd.Target]
			if !ok {
				return nil, fmt.Errorf("%s: relation %q targets undeclared model %q", decl.Table, rd.Name, rd.Target)
			}
			ref, err := rd.reference()
			if err != nil {
				return nil, fmt.Errorf("%s: relation %q: %w", decl.Table, rd.Name, err)
			}
			schema.relate(rd.Name, ref, target)
		}
	}

	registry := NewRegistry()
	for _, decl := range d.Models {
		if err := registry.Register(schemas[decl.Table]); err != nil {
			return nil, err
		}
	}
	registry.Seal()
	return registry, nil
}

func (fd FieldDeclaration) definition() (FieldDefinition, error) {
	kind, err := ParseKind(fd.Type)
	if err != nil {
		return FieldDefinition{}, err
	}
	fieldType := TypeOf(kind)
	if kind == KindEnum {
		fieldType = EnumType(fd.Variants...)
	} else if len(fd.Variants) > 0 {
		return FieldDefinition{}, fmt.Errorf("variants are only allowed on enum fields")
	}
	return FieldDefinition{
		Name:       fd.Name,
		Type:       fieldType,
		Immutable:  fd.Immutable,
		PrimaryKey: fd.PrimaryKey,
		Unique:     fd.Unique,
		Nullable:   fd.Nullable,
	}, nil
}

func (rd RelationDeclaration) reference() (Reference, error) {
	set := 0
	for _, v := range []string{rd.From, rd.To, rd.Via} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return Reference{}, fmt.Errorf("exactly one of from, to or via is required")
	}
	switch {
	case rd.From != "":
		return From(rd.From), nil
	case rd.To != "":
		return To(rd.To), nil
	}
	if (rd.ViaFrom == "") != (rd.ViaTo == "") {
		return Reference{}, fmt.Errorf("via_from and via_to must be set together")
	}
	return Reference{Kind: ReferenceVia, Junction: rd.Via, FromColumn: rd.ViaFrom, ToColumn: rd.ViaTo}, nil
}
