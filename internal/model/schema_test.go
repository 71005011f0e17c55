package model_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relquery/internal/apperr"
	"relquery/internal/model"
	"relquery/internal/model/modeltest"
)

func TestValidate(t *testing.T) {
	id := model.FieldDefinition{Name: "id", Type: model.TypeOf(model.KindUuid), Immutable: true, PrimaryKey: true}

	tests := []struct {
		name    string
		schema  *model.Schema
		wantErr string
	}{
		{"valid", model.NewSchema("things", id), ""},
		{"missing id", model.NewSchema("things", model.FieldDefinition{Name: "name", Type: model.TypeOf(model.KindString), PrimaryKey: true}), "id field"},
		{"id not uuid", model.NewSchema("things", model.FieldDefinition{Name: "id", Type: model.TypeOf(model.KindInt), Immutable: true, PrimaryKey: true}), "must be uuid"},
		{"id mutable", model.NewSchema("things", model.FieldDefinition{Name: "id", Type: model.TypeOf(model.KindUuid), PrimaryKey: true}), "immutable"},
		{"no primary key", model.NewSchema("things", model.FieldDefinition{Name: "id", Type: model.TypeOf(model.KindUuid), Immutable: true}), "primary key"},
		{"duplicate field", model.NewSchema("things", id, id), "duplicate field"},
		{"enum without variants", model.NewSchema("things", id, model.FieldDefinition{Name: "state", Type: model.EnumType()}), "no variants"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := model.Validate(tt.schema)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCompositeNaturalKey(t *testing.T) {
	schema := model.NewSchema("memberships",
		model.FieldDefinition{Name: "id", Type: model.TypeOf(model.KindUuid), Immutable: true},
		model.FieldDefinition{Name: "user_id", Type: model.TypeOf(model.KindUuid), PrimaryKey: true},
		model.FieldDefinition{Name: "group_id", Type: model.TypeOf(model.KindUuid), PrimaryKey: true},
	)
	require.NoError(t, model.Validate(schema))
	keys := model.PrimaryKeyFields(schema)
	require.Len(t, keys, 2)
	assert.Equal(t, "user_id", keys[0].Name)
	assert.Equal(t, "group_id", keys[1].Name)
}

func TestResolveVia(t *testing.T) {
	fx := modeltest.New()

	t.Run("borrows columns from explicit reverse", func(t *testing.T) {
		rel, ok := model.Relation(fx.Users, "courses")
		require.True(t, ok)
		ref, err := model.ResolveVia(fx.Users, rel)
		require.NoError(t, err)
		assert.Equal(t, model.Via("user_courses", "user_id", "course_id"), ref)
	})

	t.Run("explicit columns pass through", func(t *testing.T) {
		rel, ok := model.Relation(fx.Courses, "students")
		require.True(t, ok)
		ref, err := model.ResolveVia(fx.Courses, rel)
		require.NoError(t, err)
		assert.Equal(t, model.Via("user_courses", "course_id", "user_id"), ref)
	})

	t.Run("missing reverse relation", func(t *testing.T) {
		rel, ok := model.Relation(fx.Users, "tags")
		require.True(t, ok)
		_, err := model.ResolveVia(fx.Users, rel)
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindBadRequest))
		assert.Contains(t, err.Error(), "declare the reverse relation")
	})

	t.Run("implicit on both sides uses table columns", func(t *testing.T) {
		students := model.NewSchema("students", model.FieldDefinition{Name: "id", Type: model.TypeOf(model.KindUuid), Immutable: true, PrimaryKey: true})
		courses := model.NewSchema("courses", model.FieldDefinition{Name: "id", Type: model.TypeOf(model.KindUuid), Immutable: true, PrimaryKey: true})
		students.HasManyVia("courses", courses, "registrations")
		courses.HasManyVia("students", students, "registrations")

		ref, err := model.ResolveVia(students, students.Relations[0])
		require.NoError(t, err)
		assert.Equal(t, model.Via("registrations", "students_id", "courses_id"), ref)
	})
}

func TestRegistry(t *testing.T) {
	fx := modeltest.New()

	def, ok := fx.Registry.Lookup("users")
	require.True(t, ok)
	assert.Equal(t, "id", def.IDFieldName())

	_, ok = fx.Registry.Lookup("missing")
	assert.False(t, ok)

	names := make([]string, 0)
	for _, m := range fx.Registry.Models() {
		names = append(names, m.TableName())
	}
	assert.Equal(t, []string{"organizations", "users", "courses", "tags"}, names)

	err := fx.Registry.Register(model.NewSchema("late", model.FieldDefinition{Name: "id", Type: model.TypeOf(model.KindUuid), Immutable: true, PrimaryKey: true}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sealed")
}

func TestLoadDeclarations(t *testing.T) {
	doc := `
models:
  - table: organizations
    fields:
      - {name: id, type: uuid, primary_key: true, immutable: true}
      - {name: name, type: string}
    relations:
      - {name: members, target: users, to: organization_id}
  - table: users
    fields:
      - {name: id, type: uuid, primary_key: true, immutable: true}
      - {name: organization_id, type: uuid, nullable: true}
      - {name: status, type: enum, variants: [active, disabled]}
    relations:
      - {name: organization, target: organizations, from: organization_id}
`
	registry, err := model.LoadDeclarations(strings.NewReader(doc))
	require.NoError(t, err)

	users, ok := registry.Lookup("users")
	require.True(t, ok)
	status, ok := model.Field(users, "status")
	require.True(t, ok)
	assert.Equal(t, model.EnumType("active", "disabled"), status.Type)

	rel, ok := model.Relation(users, "organization")
	require.True(t, ok)
	assert.Equal(t, model.From("organization_id"), rel.Reference)
	assert.Equal(t, "organizations", rel.Target.TableName())

	orgs, _ := registry.Lookup("organizations")
	members, ok := model.Relation(orgs, "members")
	require.True(t, ok)
	assert.Same(t, users, members.Target)
}

func TestLoadDeclarationsErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"unknown key", "models:\n  - table: a\n    colour: red\n", "colour"},
		{"unknown type", "models:\n  - table: a\n    fields:\n      - {name: id, type: blob}\n", "unknown field type"},
		{"unknown target", "models:\n  - table: a\n    fields:\n      - {name: id, type: uuid, primary_key: true, immutable: true}\n    relations:\n      - {name: b, target: b, to: a_id}\n", "undeclared model"},
		{"two references", "models:\n  - table: a\n    fields:\n      - {name: id, type: uuid, primary_key: true, immutable: true}\n    relations:\n      - {name: b, target: a, to: x, from: y}\n", "exactly one"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.LoadDeclarations(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
