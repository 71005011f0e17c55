package middleware

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"relquery/internal/apperr"
	"relquery/internal/config"
	"relquery/internal/logging"
	"relquery/internal/observability"
)

// OIDCAuthConfig controls bearer token validation.
type OIDCAuthConfig struct {
	Enabled   bool
	IssuerURL string
	Audience  string
	ClockSkew time.Duration
	// CAFile adds a PEM bundle to the roots trusted for issuer requests.
	CAFile string
}

// OIDCAuthConfigFrom maps the server auth section.
func OIDCAuthConfigFrom(a config.AuthConfig) OIDCAuthConfig {
	return OIDCAuthConfig{
		Enabled:   a.OIDCEnabled,
		IssuerURL: a.OIDCIssuerURL,
		Audience:  a.OIDCAudience,
		ClockSkew: a.OIDCClockSkew,
		CAFile:    a.OIDCCAFile,
	}
}

type authContextKey struct{}

// AuthContext carries validated token claims.
type AuthContext struct {
	Subject  string
	Issuer   string
	Audience []string
	Claims   map[string]any
}

// AuthFromContext returns the auth context stored by the middleware.
func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	auth, ok := ctx.Value(authContextKey{}).(AuthContext)
	return auth, ok
}

// WithAuth stores auth in ctx.
func WithAuth(ctx context.Context, auth AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// claimsVerifier checks a raw token and returns its claims.
type claimsVerifier func(ctx context.Context, raw string) (map[string]any, error)

// OIDCAuthMiddleware validates bearer tokens against the issuer's JWKS.
// A disabled config yields a pass-through middleware.
func OIDCAuthMiddleware(cfg OIDCAuthConfig, logger *logging.Logger, metrics *observability.AuthMetrics) (func(http.Handler) http.Handler, error) {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }, nil
	}
	if cfg.IssuerURL == "" || cfg.Audience == "" {
		return nil, errors.New("oidc auth enabled but issuer/audience not configured")
	}
	issuer, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid oidc issuer url: %w", err)
	}
	if issuer.Scheme != "https" {
		return nil, errors.New("oidc issuer url must use https")
	}
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = 2 * time.Minute
	}

	client, err := newOIDCHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	// The provider keeps this context for later JWKS refreshes.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize oidc provider: %w", err)
	}
	// Expiry is checked below with the configured skew.
	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.Audience, SkipExpiryCheck: true})

	verify := func(ctx context.Context, raw string) (map[string]any, error) {
		token, err := verifier.Verify(ctx, raw)
		if err != nil {
			return nil, err
		}
		claims := map[string]any{}
		if err := token.Claims(&claims); err != nil {
			return nil, fmt.Errorf("invalid token claims: %w", err)
		}
		if err := validateTimeClaims(claims, cfg.ClockSkew, time.Now()); err != nil {
			return nil, err
		}
		return claims, nil
	}
	if logger != nil {
		logger.Info("oidc authentication enabled", slog.String("issuer", cfg.IssuerURL))
	}
	return bearerAuth(cfg.IssuerURL, verify, metrics), nil
}

func bearerAuth(issuer string, verify claimsVerifier, metrics *observability.AuthMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			reqLogger := logging.FromContext(ctx)

			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				metrics.RecordAuthFailure(ctx, "missing_token")
				reqLogger.Warn("authentication failed: missing bearer token", slog.String("path", r.URL.Path))
				WriteError(w, apperr.Unauthorized("missing bearer token"))
				return
			}

			claims, err := verify(ctx, raw)
			if err != nil {
				metrics.RecordAuthFailure(ctx, "invalid_token")
				reqLogger.Warn("authentication failed: token rejected",
					slog.String("error", err.Error()),
					slog.String("path", r.URL.Path),
				)
				WriteError(w, apperr.Unauthorized("invalid token"))
				return
			}

			subject, _ := claims["sub"].(string)
			aud := extractAudience(claims)
			metrics.RecordAuthSuccess(ctx, issuer)
			reqLogger.Debug("authentication successful", slog.String("subject", subject))

			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.String("auth.subject", subject),
					attribute.String("auth.issuer", issuer),
				)
			}

			ctx = WithAuth(ctx, AuthContext{Subject: subject, Issuer: issuer, Audience: aud, Claims: claims})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newOIDCHTTPClient(cfg OIDCAuthConfig) (*http.Client, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read oidc CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("failed to parse oidc CA file %q", cfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}
	return &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig, Proxy: http.ProxyFromEnvironment},
		Timeout:   10 * time.Second,
	}, nil
}

func bearerToken(value string) string {
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func validateTimeClaims(claims map[string]any, skew time.Duration, now time.Time) error {
	if exp, ok := numericDate(claims["exp"]); ok && now.After(exp.Add(skew)) {
		return errors.New("token expired")
	}
	if nbf, ok := numericDate(claims["nbf"]); ok && now.Add(skew).Before(nbf) {
		return errors.New("token not valid yet")
	}
	return nil
}

func numericDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case int64:
		return time.Unix(v, 0), true
	case int:
		return time.Unix(int64(v), 0), true
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(parsed, 0), true
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(parsed, 0), true
	default:
		return time.Time{}, false
	}
}

func extractAudience(claims map[string]any) []string {
	switch val := claims["aud"].(type) {
	case string:
		return []string{val}
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
