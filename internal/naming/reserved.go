package naming

import "strings"

// reservedTypeWords are GraphQL keywords, built-in scalars and the types the
// API defines for every schema.
var reservedTypeWords = map[string]bool{
	"query":        true,
	"mutation":     true,
	"subscription": true,
	"type":         true,
	"schema":       true,
	"scalar":       true,
	"enum":         true,
	"input":        true,
	"interface":    true,
	"union":        true,
	"fragment":     true,
	"directive":    true,
	"extend":       true,
	"implements":   true,
	"on":           true,

	"int":     true,
	"float":   true,
	"string":  true,
	"boolean": true,
	"id":      true,
	"json":    true,

	"pageinfo":      true,
	"sortdirection": true,

	"true":  true,
	"false": true,
	"null":  true,
}

func isReservedTypeName(name string) bool {
	lowerName := strings.ToLower(name)
	if strings.HasPrefix(lowerName, "__") {
		return true
	}
	if reservedTypeWords[lowerName] {
		return true
	}
	// <Type>Connection is generated for every model.
	return strings.HasSuffix(lowerName, "connection")
}

func isReservedFieldName(name string) bool {
	return strings.HasPrefix(name, "__")
}
