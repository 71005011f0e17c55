package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) fail(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) warn(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration and returns fatal errors and warnings.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Database.validate(result)
	c.Server.validate(result)
	c.Query.validate(result)
	c.Observability.validate(result)
	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	explicitDSN := strings.TrimSpace(d.ConnectionString) != ""
	if !explicitDSN {
		if d.Port < 1 || d.Port > 65535 {
			result.fail("database.port", fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port), "")
		}
		if strings.TrimSpace(d.Host) == "" {
			result.fail("database.host", "host is required when dsn is not set", "set database.host or database.dsn")
		}
		if !validSSLModes[d.SSLMode] {
			result.fail("database.sslmode", fmt.Sprintf("invalid sslmode %q", d.SSLMode),
				"valid values are: disable, allow, prefer, require, verify-ca, verify-full")
		}
		if d.SSLMode == "disable" && d.SSLRootCert != "" {
			result.warn("database.sslrootcert", "sslrootcert is ignored when sslmode is disable", "")
		}
	}

	if !result.hasErrorUnder("database.") {
		if _, err := d.ParseDSN(); err != nil {
			result.fail("database.dsn", err.Error(), "use a postgres:// URL or libpq keyword/value string")
		}
	}

	if d.Pool.MaxOpen < 0 {
		result.fail("database.pool.max_open", "max_open cannot be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.fail("database.pool.max_idle", "max_idle cannot be negative", "")
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.warn("database.pool.max_idle", "max_idle is greater than max_open", "idle connections will be limited to max_open")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.warn("database.connection_retry_interval", "retry interval exceeds connection timeout",
			"only one connection attempt will be made")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.fail("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}

	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.fail("server.rate_limit_rps", "rate_limit_rps must be greater than 0 when rate limiting is enabled", "")
		}
		if s.RateLimitBurst <= 0 {
			result.fail("server.rate_limit_burst", "rate_limit_burst must be greater than 0 when rate limiting is enabled", "")
		}
	} else if s.RateLimitRPS > 0 || s.RateLimitBurst > 0 {
		result.warn("server.rate_limit_enabled", "rate limit values are set but rate limiting is disabled",
			"enable server.rate_limit_enabled to apply rate limits")
	}

	if s.CORSEnabled {
		if len(s.CORSAllowedOrigins) == 0 {
			result.fail("server.cors_allowed_origins", "at least one origin is required when CORS is enabled", `use "*" to allow any origin`)
		}
		for _, origin := range s.CORSAllowedOrigins {
			if origin == "*" && s.CORSAllowCredentials {
				result.fail("server.cors_allow_credentials", "credentials cannot be allowed for wildcard origins",
					"list explicit origins or disable cors_allow_credentials")
			}
		}
	}

	for field, d := range map[string]int64{
		"server.read_timeout":         int64(s.ReadTimeout),
		"server.write_timeout":        int64(s.WriteTimeout),
		"server.idle_timeout":         int64(s.IdleTimeout),
		"server.shutdown_timeout":     int64(s.ShutdownTimeout),
		"server.health_check_timeout": int64(s.HealthCheckTimeout),
	} {
		if d < 0 {
			result.fail(field, "timeout cannot be negative", "")
		}
	}

	s.Auth.validate(result)
}

func (a *AuthConfig) validate(result *ValidationResult) {
	if a.OIDCEnabled {
		if strings.TrimSpace(a.OIDCIssuerURL) == "" {
			result.fail("server.auth.oidc_issuer_url", "issuer URL is required when OIDC is enabled", "")
		} else if u, err := url.Parse(a.OIDCIssuerURL); err != nil || u.Scheme != "https" || u.Host == "" {
			result.fail("server.auth.oidc_issuer_url", fmt.Sprintf("invalid issuer URL %q", a.OIDCIssuerURL), "use an https:// URL")
		}
		if strings.TrimSpace(a.OIDCAudience) == "" {
			result.fail("server.auth.oidc_audience", "audience is required when OIDC is enabled", "")
		}
	}
	if a.OIDCClockSkew < 0 {
		result.fail("server.auth.oidc_clock_skew", "clock skew cannot be negative", "")
	}
	if a.DBRoleEnabled {
		if !a.OIDCEnabled {
			result.fail("server.auth.db_role_enabled", "database role switching requires OIDC", "enable server.auth.oidc_enabled")
		}
		if strings.TrimSpace(a.DBRoleClaimName) == "" {
			result.fail("server.auth.db_role_claim_name", "claim name is required when role switching is enabled", "")
		}
		if len(a.DBRoleAllowed) == 0 {
			result.warn("server.auth.db_role_allowed", "no allowed roles configured",
				"every role named in a token will be accepted")
		}
	}
}

func (q *QueryConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(q.ModelsFile) == "" {
		result.fail("query.models_file", "models file is required", "point query.models_file at the model declarations")
	}
	if q.DefaultLimit < 1 {
		result.fail("query.default_limit", "default_limit must be at least 1", "")
	}
	if q.MaxLimit < 0 {
		result.fail("query.max_limit", "max_limit cannot be negative", "use 0 for no cap")
	}
	if q.MaxLimit > 0 && q.DefaultLimit > q.MaxLimit {
		result.fail("query.default_limit", fmt.Sprintf("default_limit %d exceeds max_limit %d", q.DefaultLimit, q.MaxLimit), "")
	}
	if q.StatementTimeout < 0 {
		result.fail("query.statement_timeout", "statement_timeout cannot be negative", "")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.fail("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"valid values are: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.fail("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"valid values are: json, text")
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.fail("observability.trace_sample_ratio", "trace_sample_ratio must be between 0 and 1", "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.GetTracesConfig().validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.GetLogsConfig().validate("observability.logs", result)
	}
	if o.Metrics != nil {
		o.GetMetricsConfig().validate("observability.metrics", result)
	}
}

func (o OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.fail(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol), "valid values are: grpc, http/protobuf")
	}
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.fail(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint), "use host:port or a full URL")
	}
	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.fail(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression), "valid values are: none, gzip")
	}
	if o.RetryMaxAttempts < 0 {
		result.fail(prefix+".retry_max_attempts", "retry_max_attempts cannot be negative", "")
	}
	if (o.TLSClientCertFile == "") != (o.TLSClientKeyFile == "") {
		result.fail(prefix+".tls_client_cert_file", "client certificate and key must be set together", "")
	}
}

func (r *ValidationResult) hasErrorUnder(prefix string) bool {
	for _, e := range r.Errors {
		if strings.HasPrefix(e.Field, prefix) {
			return true
		}
	}
	return false
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
