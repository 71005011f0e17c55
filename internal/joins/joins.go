// Package joins turns relation-qualified field references into JOIN clauses.
package joins

import (
	"fmt"

	"github.com/samber/lo"

	"relquery/internal/apperr"
	"relquery/internal/filter"
	"relquery/internal/model"
	"relquery/internal/sqlutil"
)

// Join is one emitted clause. Key is the alias path it was generated for;
// a junction hop emits both of its tables under a single key.
type Join struct {
	Key string
	SQL string
}

// Resolve emits the joins needed by vars, in first-reference order and
// without duplicates. The first hop is aliased by the relation name, later
// hops by parentAlias_relationName.
func Resolve(root model.Definition, vars []filter.Var) ([]Join, error) {
	var out []Join
	seen := make(map[string]struct{})
	for _, v := range vars {
		parent := root
		parentAlias := root.TableName()
		for i, name := range v.Path {
			rel, ok := model.Relation(parent, name)
			if !ok {
				return nil, apperr.BadRequest("unknown relation %q on %s", name, parent.TableName())
			}
			alias := name
			if i > 0 {
				alias = parentAlias + "_" + name
			}
			if _, dup := seen[alias]; !dup {
				clause, err := joinClause(parent, parentAlias, rel, alias)
				if err != nil {
					return nil, err
				}
				seen[alias] = struct{}{}
				out = append(out, Join{Key: alias, SQL: clause})
			}
			parent = rel.Target
			parentAlias = alias
		}
	}
	return out, nil
}

func joinClause(parent model.Definition, parentAlias string, rel model.RelationDef, alias string) (string, error) {
	target := rel.Target
	switch rel.Reference.Kind {
	case model.ReferenceFrom:
		return fmt.Sprintf("LEFT JOIN %s AS %s ON %s = %s",
			sqlutil.QuoteIdentifier(target.TableName()), sqlutil.QuoteIdentifier(alias),
			sqlutil.Column(parentAlias, rel.Reference.Column), sqlutil.Column(alias, target.IDFieldName()),
		), nil
	case model.ReferenceTo:
		return fmt.Sprintf("LEFT JOIN %s AS %s ON %s = %s",
			sqlutil.QuoteIdentifier(target.TableName()), sqlutil.QuoteIdentifier(alias),
			sqlutil.Column(parentAlias, parent.IDFieldName()), sqlutil.Column(alias, rel.Reference.Column),
		), nil
	case model.ReferenceVia:
		ref, err := model.ResolveVia(parent, rel)
		if err != nil {
			return "", err
		}
		// The junction is left-joined with the target inner-joined through it,
		// so parents without junction rows survive.
		junctionAlias := alias + "__" + ref.Junction
		return fmt.Sprintf("LEFT JOIN (%s AS %s INNER JOIN %s AS %s ON %s = %s) ON %s = %s",
			sqlutil.QuoteIdentifier(ref.Junction), sqlutil.QuoteIdentifier(junctionAlias),
			sqlutil.QuoteIdentifier(target.TableName()), sqlutil.QuoteIdentifier(alias),
			sqlutil.Column(junctionAlias, ref.ToColumn), sqlutil.Column(alias, target.IDFieldName()),
			sqlutil.Column(parentAlias, parent.IDFieldName()), sqlutil.Column(junctionAlias, ref.FromColumn),
		), nil
	default:
		return "", apperr.Internal("relation %q has unknown reference kind %d", rel.Name, rel.Reference.Kind)
	}
}

// GroupByColumns returns the root columns to group by once joins are
// present: the primary key columns, or every non-JSON root column when the
// sort key is read from a joined table. JSON columns have no equality
// operator and stay selectable through the primary key.
func GroupByColumns(root model.Definition, sortOnRelation bool) []string {
	fields := model.PrimaryKeyFields(root)
	if sortOnRelation {
		fields = lo.Filter(root.FieldDefinitions(), func(f model.FieldDefinition, _ int) bool {
			return f.PrimaryKey || f.Type.Kind != model.KindJSON
		})
	}
	return lo.Map(fields, func(f model.FieldDefinition, _ int) string {
		return sqlutil.Column(root.TableName(), f.Name)
	})
}
