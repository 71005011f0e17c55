package serverapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"relquery/internal/config"
)

func TestWrapHTTPHandlerNamesRootSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})

	cfg := &config.Config{Observability: config.ObservabilityConfig{TracingEnabled: true}}
	h := wrapHTTPHandler(cfg, testLogger(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, path := range []string{"/health", "/users/42"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	var names []string
	for _, span := range recorder.Ended() {
		names = append(names, span.Name())
	}
	assert.ElementsMatch(t, []string{"GET /health", "GET /*"}, names)
}

func TestHTTPRootSpanName(t *testing.T) {
	assert.Equal(t, "HTTP /*", httpRootSpanName(nil))

	r := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	assert.Equal(t, "POST /graphql", httpRootSpanName(r))

	r.Method = ""
	assert.Equal(t, "HTTP /graphql", httpRootSpanName(r))

	for in, want := range map[string]string{
		"/":         "/",
		"/graphql":  "/graphql",
		"/metrics":  "/metrics",
		"/graphql/": "/*",
		"":          "/*",
	} {
		assert.Equal(t, want, normalizeHTTPSpanRoute(in), in)
	}
}
