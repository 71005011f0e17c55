package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AuthMetrics counts bearer token outcomes and role switch rejections.
type AuthMetrics struct {
	successes    metric.Int64Counter
	failures     metric.Int64Counter
	roleRejected metric.Int64Counter
}

// InitAuthMetrics creates the instruments on the global meter provider.
func InitAuthMetrics() (*AuthMetrics, error) {
	meter := otel.Meter("relquery/auth")

	successes, err := meter.Int64Counter(
		"relquery.auth.successes",
		metric.WithDescription("Requests that presented a valid bearer token"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth success counter: %w", err)
	}

	failures, err := meter.Int64Counter(
		"relquery.auth.failures",
		metric.WithDescription("Requests rejected during token validation, by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth failure counter: %w", err)
	}

	roleRejected, err := meter.Int64Counter(
		"relquery.auth.role_rejections",
		metric.WithDescription("Requests naming a database role outside the allowlist"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create role rejection counter: %w", err)
	}

	return &AuthMetrics{successes: successes, failures: failures, roleRejected: roleRejected}, nil
}

// RecordAuthSuccess counts a validated token from issuer.
func (m *AuthMetrics) RecordAuthSuccess(ctx context.Context, issuer string) {
	if m == nil {
		return
	}
	m.successes.Add(ctx, 1, metric.WithAttributes(attribute.String("issuer", issuer)))
}

// RecordAuthFailure counts a rejected request. reason is a short stable label
// such as missing_token or invalid_token.
func (m *AuthMetrics) RecordAuthFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordRoleRejected counts a request whose role claim was not allowed.
func (m *AuthMetrics) RecordRoleRejected(ctx context.Context) {
	if m == nil {
		return
	}
	m.roleRejected.Add(ctx, 1)
}
