package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"relquery/internal/observability"
)

// GraphQLMetricsMiddleware records request metrics and makes metrics
// available to engine fetches through the request context.
func GraphQLMetricsMiddleware(metrics *observability.QueryMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := observability.ContextWithQueryMetrics(r.Context(), metrics)
			r = r.WithContext(ctx)
			// GraphiQL page loads are not GraphQL requests.
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			metrics.IncrementActiveRequests(ctx)
			defer metrics.DecrementActiveRequests(ctx)

			start := time.Now()
			op := operationFor(r)
			rec := newRecorder(w, true)
			next.ServeHTTP(rec, r)

			hasErrors := rec.status >= 400 || responseHasGraphQLErrors(rec.body.Bytes())
			metrics.RecordRequest(ctx, op.Type, time.Since(start), hasErrors)
		})
	}
}

func responseHasGraphQLErrors(body []byte) bool {
	var payload struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(body), &payload); err != nil {
		return false
	}
	return len(payload.Errors) > 0
}
