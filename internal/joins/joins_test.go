package joins

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relquery/internal/apperr"
	"relquery/internal/filter"
	"relquery/internal/model/modeltest"
)

func TestResolveFromReference(t *testing.T) {
	fx := modeltest.New()

	joins, err := Resolve(fx.Users, []filter.Var{filter.Node("organization", filter.Leaf("name"))})
	require.NoError(t, err)
	require.Len(t, joins, 1)
	assert.Equal(t, "organization", joins[0].Key)
	assert.Equal(t,
		`LEFT JOIN "organizations" AS "organization" ON "users"."organization_id" = "organization"."id"`,
		joins[0].SQL)
}

func TestResolveToReference(t *testing.T) {
	fx := modeltest.New()

	joins, err := Resolve(fx.Organizations, []filter.Var{filter.Node("members", filter.Leaf("age"))})
	require.NoError(t, err)
	require.Len(t, joins, 1)
	assert.Equal(t,
		`LEFT JOIN "users" AS "members" ON "organizations"."id" = "members"."organization_id"`,
		joins[0].SQL)
}

func TestResolveViaReference(t *testing.T) {
	fx := modeltest.New()

	joins, err := Resolve(fx.Users, []filter.Var{filter.Node("courses", filter.Leaf("title"))})
	require.NoError(t, err)
	require.Len(t, joins, 1)
	assert.Equal(t, "courses", joins[0].Key)
	assert.Equal(t,
		`LEFT JOIN ("user_courses" AS "courses__user_courses" INNER JOIN "courses" AS "courses" ON "courses__user_courses"."course_id" = "courses"."id") ON "users"."id" = "courses__user_courses"."user_id"`,
		joins[0].SQL)
}

func TestResolveNestedAliases(t *testing.T) {
	fx := modeltest.New()

	v := filter.Node("organization", filter.Node("members", filter.Node("organization", filter.Leaf("name"))))
	joins, err := Resolve(fx.Users, []filter.Var{v})
	require.NoError(t, err)

	keys := make([]string, len(joins))
	for i, j := range joins {
		keys[i] = j.Key
	}
	assert.Equal(t, []string{"organization", "organization_members", "organization_members_organization"}, keys)
	assert.Equal(t,
		`LEFT JOIN "users" AS "organization_members" ON "organization"."id" = "organization_members"."organization_id"`,
		joins[1].SQL)
	assert.Equal(t, v.Alias("users"), joins[2].Key)
}

func TestResolveDeduplicatesByAliasPath(t *testing.T) {
	fx := modeltest.New()

	expr, err := filter.Parse(fx.Users, `organization.name = "acme" && organization.created_at > "2020-01-01T00:00:00Z" && age > "3"`)
	require.NoError(t, err)

	joins, err := Resolve(fx.Users, filter.Vars(expr))
	require.NoError(t, err)
	require.Len(t, joins, 1)
	assert.Equal(t, "organization", joins[0].Key)
}

func TestResolveLocalVarsNeedNoJoins(t *testing.T) {
	fx := modeltest.New()

	joins, err := Resolve(fx.Users, []filter.Var{filter.Leaf("age"), filter.Leaf("name")})
	require.NoError(t, err)
	assert.Empty(t, joins)
}

func TestResolveMissingReverseRelation(t *testing.T) {
	fx := modeltest.New()

	_, err := Resolve(fx.Users, []filter.Var{filter.Node("tags", filter.Leaf("label"))})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
	assert.Contains(t, err.Error(), "declare the reverse relation")
}

func TestResolveUnknownRelation(t *testing.T) {
	fx := modeltest.New()

	_, err := Resolve(fx.Users, []filter.Var{filter.Node("team", filter.Leaf("name"))})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindBadRequest))
}

func TestGroupByColumns(t *testing.T) {
	fx := modeltest.New()

	assert.Equal(t, []string{`"users"."id"`}, GroupByColumns(fx.Users, false))

	all := GroupByColumns(fx.Users, true)
	assert.Len(t, all, len(fx.Users.Fields)-1)
	assert.Equal(t, `"users"."name"`, all[1])
	assert.NotContains(t, all, `"users"."profile"`)
	assert.Contains(t, all, `"users"."birthday"`)
}
