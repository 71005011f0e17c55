// Package sqlutil provides PostgreSQL identifier helpers.
package sqlutil

import "strings"

// QuoteIdentifier quotes a SQL identifier (table name, column name, alias)
// with double quotes and escapes any double quotes within it.
func QuoteIdentifier(name string) string {
	escaped := strings.ReplaceAll(name, `"`, `""`)
	return `"` + escaped + `"`
}

// Column returns a qualified, quoted column reference.
func Column(table, column string) string {
	return QuoteIdentifier(table) + "." + QuoteIdentifier(column)
}
