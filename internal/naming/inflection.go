package naming

import (
	"github.com/jinzhu/inflection"
)

// Pluralize returns the plural of word, preferring configured overrides.
func (n *Namer) Pluralize(word string) string {
	if override, ok := n.config.PluralOverrides[word]; ok {
		return override
	}
	return inflection.Plural(word)
}

// Singularize returns the singular of word, preferring configured overrides.
func (n *Namer) Singularize(word string) string {
	if override, ok := n.config.SingularOverrides[word]; ok {
		return override
	}
	return inflection.Singular(word)
}
