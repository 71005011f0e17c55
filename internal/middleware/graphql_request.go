package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

// maxInspectedBody bounds how much of a request body is read for inspection.
const maxInspectedBody = 1 << 20

// Operation summarizes the GraphQL operation a request executes.
type Operation struct {
	Type       string // query, mutation, subscription, or unknown
	Name       string
	RootFields []string
	Depth      int
}

type operationContextKey struct{}

// OperationFromContext returns the operation stored by GraphQLOperationMiddleware.
func OperationFromContext(ctx context.Context) (Operation, bool) {
	op, ok := ctx.Value(operationContextKey{}).(Operation)
	return op, ok
}

// GraphQLOperationMiddleware parses the request document once and stores its
// Operation for the metrics and tracing middlewares. The body is restored.
func GraphQLOperationMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query, name := extractGraphQLRequest(r)
			op := parseOperation(query, name)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), operationContextKey{}, op)))
		})
	}
}

func operationFor(r *http.Request) Operation {
	if op, ok := OperationFromContext(r.Context()); ok {
		return op
	}
	return parseOperation(extractGraphQLRequest(r))
}

func extractGraphQLRequest(r *http.Request) (query, operationName string) {
	switch r.Method {
	case http.MethodGet:
		return r.URL.Query().Get("query"), r.URL.Query().Get("operationName")
	case http.MethodPost:
	default:
		return "", ""
	}
	if r.Body == nil {
		return "", ""
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxInspectedBody+1))
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(body), rest), rest}
	if err != nil || len(body) > maxInspectedBody {
		return "", ""
	}

	if strings.Contains(r.Header.Get("Content-Type"), "application/graphql") {
		return string(body), ""
	}
	var payload struct {
		Query         string `json:"query"`
		OperationName string `json:"operationName"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}
	return payload.Query, payload.OperationName
}

// parseOperation selects the named operation, or the first when no name is
// given. Unparseable documents yield an unknown operation.
func parseOperation(query, operationName string) Operation {
	unknown := Operation{Type: "unknown", Name: operationName}
	if strings.TrimSpace(query) == "" {
		return unknown
	}
	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(query), Name: "graphql"}),
	})
	if err != nil {
		return unknown
	}

	fragments := make(map[string]*ast.FragmentDefinition)
	var target *ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.FragmentDefinition:
			fragments[d.Name.Value] = d
		case *ast.OperationDefinition:
			named := d.Name != nil && d.Name.Value == operationName
			if (operationName == "" && target == nil) || named {
				target = d
			}
		}
	}
	if target == nil {
		return unknown
	}

	op := Operation{Type: string(target.Operation)}
	if target.Name != nil {
		op.Name = target.Name.Value
	}
	if target.SelectionSet != nil {
		for _, sel := range target.SelectionSet.Selections {
			if f, ok := sel.(*ast.Field); ok {
				op.RootFields = append(op.RootFields, f.Name.Value)
			}
		}
		op.Depth = selectionDepth(target.SelectionSet, fragments, map[string]bool{})
	}
	return op
}

func selectionDepth(set *ast.SelectionSet, fragments map[string]*ast.FragmentDefinition, inFlight map[string]bool) int {
	if set == nil {
		return 0
	}
	depth := 0
	for _, selection := range set.Selections {
		d := 0
		switch sel := selection.(type) {
		case *ast.Field:
			d = 1 + selectionDepth(sel.SelectionSet, fragments, inFlight)
		case *ast.InlineFragment:
			d = selectionDepth(sel.SelectionSet, fragments, inFlight)
		case *ast.FragmentSpread:
			name := sel.Name.Value
			frag, ok := fragments[name]
			if !ok || inFlight[name] {
				continue
			}
			inFlight[name] = true
			d = selectionDepth(frag.SelectionSet, fragments, inFlight)
			delete(inFlight, name)
		}
		depth = max(depth, d)
	}
	return depth
}
