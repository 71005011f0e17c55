package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"relquery/internal/apperr"
	"relquery/internal/logging"
	"relquery/internal/observability"
)

type dbRoleContextKey struct{}

// WithDBRole attaches the database role for the request.
func WithDBRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, dbRoleContextKey{}, role)
}

// DBRoleFromContext returns the role set by DBRoleMiddleware. Its signature
// matches dbexec.RoleExecutorConfig.RoleFromCtx.
func DBRoleFromContext(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(dbRoleContextKey{}).(string)
	return role, ok && role != ""
}

// DBRoleMiddleware copies the role named by claimName in the validated token
// into the context. An empty allowed list accepts any role. It must run after
// OIDCAuthMiddleware.
func DBRoleMiddleware(claimName string, allowed []string, metrics *observability.AuthMetrics) func(http.Handler) http.Handler {
	if claimName == "" {
		claimName = "db_role"
	}
	allowSet := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		allowSet[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := AuthFromContext(r.Context())
			if !ok {
				WriteError(w, apperr.Unauthorized("missing authentication"))
				return
			}

			raw, ok := auth.Claims[claimName]
			if !ok {
				WriteError(w, apperr.Unauthorized("missing %s claim", claimName))
				return
			}
			role, ok := raw.(string)
			if !ok || role == "" {
				WriteError(w, apperr.BadRequest("invalid %s claim type", claimName))
				return
			}
			if len(allowSet) > 0 {
				if _, ok := allowSet[role]; !ok {
					metrics.RecordRoleRejected(r.Context())
					logging.FromContext(r.Context()).Warn("database role rejected",
						slog.String("role", role),
						slog.String("subject", auth.Subject),
					)
					WriteError(w, apperr.Unauthorized("invalid database role: %s", role))
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithDBRole(r.Context(), role)))
		})
	}
}
