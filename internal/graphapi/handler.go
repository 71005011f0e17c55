package graphapi

import (
	"net/http"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
)

// NewHandler serves schema over HTTP, with GraphiQL on GET when enabled.
func NewHandler(schema *graphql.Schema, graphiQL bool) http.Handler {
	return handler.New(&handler.Config{
		Schema:   schema,
		Pretty:   true,
		GraphiQL: graphiQL,
	})
}
