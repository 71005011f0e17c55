// Package modeltest provides model declarations shared by engine tests.
package modeltest

import "relquery/internal/model"

// Fixtures is a small linked schema: users belong to organizations, take
// courses through user_courses, and carry tags through user_tags with no
// reverse relation declared on tags.
type Fixtures struct {
	Users         *model.Schema
	Organizations *model.Schema
	Courses       *model.Schema
	Tags          *model.Schema
	Registry      *model.Registry
}

func idField() model.FieldDefinition {
	return model.FieldDefinition{Name: "id", Type: model.TypeOf(model.KindUuid), Immutable: true, PrimaryKey: true}
}

func field(name string, kind model.Kind, nullable bool) model.FieldDefinition {
	return model.FieldDefinition{Name: name, Type: model.TypeOf(kind), Nullable: nullable}
}

// New builds a fresh, sealed fixture registry.
func New() *Fixtures {
	orgs := model.NewSchema("organizations",
		idField(),
		field("name", model.KindString, false),
		field("created_at", model.KindDateTime, false),
	)
	users := model.NewSchema("users",
		idField(),
		field("name", model.KindString, false),
		field("age", model.KindInt, false),
		field("organization_id", model.KindUuid, true),
		field("score", model.KindDecimal, true),
		field("active", model.KindBool, false),
		field("profile", model.KindJSON, true),
		field("birthday", model.KindDate, true),
		model.FieldDefinition{Name: "status", Type: model.EnumType("active", "disabled")},
	)
	courses := model.NewSchema("courses",
		idField(),
		field("title", model.KindString, false),
	)
	tags := model.NewSchema("tags",
		idField(),
		field("label", model.KindString, false),
	)

	orgs.HasMany("members", users, "organization_id")
	users.BelongsTo("organization", orgs, "organization_id").
		HasManyVia("courses", courses, "user_courses").
		HasManyVia("tags", tags, "user_tags")
	courses.ManyToMany("students", users, "user_courses", "course_id", "user_id")

	registry := model.NewRegistry().MustRegister(orgs, users, courses, tags)
	registry.Seal()

	return &Fixtures{
		Users:         users,
		Organizations: orgs,
		Courses:       courses,
		Tags:          tags,
		Registry:      registry,
	}
}
