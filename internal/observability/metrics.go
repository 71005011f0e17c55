package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// QueryMetrics holds instruments for paged fetches and the API requests that
// drive them.
type QueryMetrics struct {
	fetchDuration   metric.Float64Histogram
	fetchCounter    metric.Int64Counter
	fetchErrors     metric.Int64Counter
	rowsFetched     metric.Int64Histogram
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	requestErrors   metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
}

// InitQueryMetrics creates the instruments on the global meter provider.
func InitQueryMetrics() (*QueryMetrics, error) {
	meter := otel.Meter("relquery")

	fetchDuration, err := meter.Float64Histogram(
		"relquery.fetch.duration",
		metric.WithDescription("Duration of engine fetches in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch duration histogram: %w", err)
	}

	fetchCounter, err := meter.Int64Counter(
		"relquery.fetch.total",
		metric.WithDescription("Total number of engine fetches"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch counter: %w", err)
	}

	fetchErrors, err := meter.Int64Counter(
		"relquery.fetch.errors",
		metric.WithDescription("Engine fetch failures by error kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch error counter: %w", err)
	}

	rowsFetched, err := meter.Int64Histogram(
		"relquery.fetch.rows",
		metric.WithDescription("Rows read from the database per fetch, before trimming"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rows histogram: %w", err)
	}

	requestDuration, err := meter.Float64Histogram(
		"relquery.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"relquery.request.total",
		metric.WithDescription("Total number of GraphQL requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	requestErrors, err := meter.Int64Counter(
		"relquery.request.errors",
		metric.WithDescription("GraphQL requests that returned errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request error counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"relquery.request.active",
		metric.WithDescription("Number of in-flight GraphQL requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	return &QueryMetrics{
		fetchDuration:   fetchDuration,
		fetchCounter:    fetchCounter,
		fetchErrors:     fetchErrors,
		rowsFetched:     rowsFetched,
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		requestErrors:   requestErrors,
		activeRequests:  activeRequests,
	}, nil
}

// RecordFetch records one engine fetch. errorKind is empty on success.
func (m *QueryMetrics) RecordFetch(ctx context.Context, table, mode string, duration time.Duration, rows int, errorKind string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("table", table),
		attribute.String("mode", mode),
	)
	m.fetchDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.fetchCounter.Add(ctx, 1, attrs)
	if errorKind != "" {
		m.fetchErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("table", table),
			attribute.String("kind", errorKind),
		))
		return
	}
	m.rowsFetched.Record(ctx, int64(rows), attrs)
}

// RecordRequest records a GraphQL request with its duration and outcome.
func (m *QueryMetrics) RecordRequest(ctx context.Context, operationType string, duration time.Duration, hasErrors bool) {
	if m == nil {
		return
	}
	op := attribute.String("operation_type", operationType)
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(op))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(op, attribute.Bool("has_errors", hasErrors)))
	if hasErrors {
		m.requestErrors.Add(ctx, 1, metric.WithAttributes(op))
	}
}

// IncrementActiveRequests marks a request in flight.
func (m *QueryMetrics) IncrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests marks a request finished.
func (m *QueryMetrics) DecrementActiveRequests(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics initializes the custom metrics and logs the outcome.
func InitMetrics(logger *slog.Logger) (*QueryMetrics, error) {
	metrics, err := InitQueryMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize query metrics: %w", err)
	}
	logger.Info("custom query metrics initialized")
	return metrics, nil
}

type queryMetricsContextKey struct{}

// ContextWithQueryMetrics stores metrics in the provided context.
func ContextWithQueryMetrics(ctx context.Context, metrics *QueryMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, queryMetricsContextKey{}, metrics)
}

// QueryMetricsFromContext retrieves metrics from the context, or nil.
func QueryMetricsFromContext(ctx context.Context) *QueryMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(queryMetricsContextKey{}).(*QueryMetrics)
	return metrics
}
