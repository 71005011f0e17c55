package middleware

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"relquery/internal/logging"
)

// GraphQLTracingMiddleware wraps GraphQL execution in a span and adds the
// trace ids to the request logger.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	tracer := otel.Tracer("relquery/graphql")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			op := operationFor(r)

			ctx, span := tracer.Start(r.Context(), "graphql.execute")
			defer span.End()
			if sc := span.SpanContext(); sc.IsValid() {
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(
					slog.String("trace_id", sc.TraceID().String()),
					slog.String("span_id", sc.SpanID().String()),
				))
			}
			if span.IsRecording() {
				attrs := []attribute.KeyValue{
					attribute.String("graphql.operation.type", op.Type),
					attribute.Int("graphql.document.depth", op.Depth),
				}
				if op.Name != "" {
					attrs = append(attrs, attribute.String("graphql.operation.name", op.Name))
				}
				if len(op.RootFields) > 0 {
					attrs = append(attrs, attribute.StringSlice("graphql.root_fields", op.RootFields))
				}
				span.SetAttributes(attrs...)
			}

			rec := newRecorder(w, true)
			next.ServeHTTP(rec, r.WithContext(ctx))

			if rec.status >= 400 || responseHasGraphQLErrors(rec.body.Bytes()) {
				span.SetStatus(codes.Error, "graphql request returned errors")
			}
		})
	}
}
