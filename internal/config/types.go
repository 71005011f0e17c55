package config

import (
	"maps"
	"time"

	"relquery/internal/naming"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	Query         QueryConfig         `mapstructure:"query"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Naming        naming.Config       `mapstructure:"naming"`
}

// PoolConfig holds database/sql pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
	MaxIdleTime time.Duration `mapstructure:"max_idle_time"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	// ConnectionString is a libpq keyword/value string or a postgres:// URL.
	// When set, it overrides the discrete fields below.
	ConnectionString string `mapstructure:"dsn"`
	// ConnectionStringFile reads the DSN from a file; "@-" reads stdin.
	ConnectionStringFile string `mapstructure:"dsn_file"`

	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	Database       string `mapstructure:"database"`

	// Schema becomes the session search_path.
	Schema string `mapstructure:"schema"`
	// SSLMode is one of disable, allow, prefer, require, verify-ca, verify-full.
	SSLMode         string `mapstructure:"sslmode"`
	SSLRootCert     string `mapstructure:"sslrootcert"`
	ApplicationName string `mapstructure:"application_name"`

	Pool PoolConfig `mapstructure:"pool"`

	// ConnectionTimeout bounds the startup wait for the database.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	// ConnectionRetryInterval is the first backoff between startup pings.
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`
}

// AuthConfig holds authentication and role switching parameters.
type AuthConfig struct {
	OIDCEnabled   bool          `mapstructure:"oidc_enabled"`
	OIDCIssuerURL string        `mapstructure:"oidc_issuer_url"`
	OIDCAudience  string        `mapstructure:"oidc_audience"`
	OIDCClockSkew time.Duration `mapstructure:"oidc_clock_skew"`
	OIDCCAFile    string        `mapstructure:"oidc_ca_file"`

	// DBRoleEnabled switches each request to the role named in DBRoleClaimName.
	DBRoleEnabled   bool     `mapstructure:"db_role_enabled"`
	DBRoleClaimName string   `mapstructure:"db_role_claim_name"`
	DBRoleAllowed   []string `mapstructure:"db_role_allowed"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port            int        `mapstructure:"port"`
	GraphiQLEnabled bool       `mapstructure:"graphiql_enabled"`
	Auth            AuthConfig `mapstructure:"auth"`

	RateLimitEnabled bool    `mapstructure:"rate_limit_enabled"`
	RateLimitRPS     float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst   int     `mapstructure:"rate_limit_burst"`

	CORSEnabled          bool     `mapstructure:"cors_enabled"`
	CORSAllowedOrigins   []string `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods   []string `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders   []string `mapstructure:"cors_allowed_headers"`
	CORSExposeHeaders    []string `mapstructure:"cors_expose_headers"`
	CORSAllowCredentials bool     `mapstructure:"cors_allow_credentials"`
	CORSMaxAge           int      `mapstructure:"cors_max_age"`

	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout"`
}

// QueryConfig bounds what list queries may ask for.
type QueryConfig struct {
	// ModelsFile is the YAML declarations file loaded into the registry.
	ModelsFile   string `mapstructure:"models_file"`
	DefaultLimit int    `mapstructure:"default_limit"`
	// MaxLimit caps client supplied limits; zero means no cap.
	MaxLimit int `mapstructure:"max_limit"`
	// StatementTimeout is applied per request through the context.
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// EffectiveLimit applies the configured default and cap to a requested limit.
func (q QueryConfig) EffectiveLimit(requested int) int {
	limit := requested
	if limit <= 0 {
		limit = q.DefaultLimit
	}
	if q.MaxLimit > 0 && limit > q.MaxLimit {
		limit = q.MaxLimit
	}
	return limit
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`
	Format         string `mapstructure:"format"`
	ExportsEnabled bool   `mapstructure:"exports_enabled"`
}

// ObservabilityConfig holds telemetry parameters.
type ObservabilityConfig struct {
	ServiceName      string        `mapstructure:"service_name"`
	ServiceVersion   string        `mapstructure:"service_version"`
	Environment      string        `mapstructure:"environment"`
	MetricsEnabled   bool          `mapstructure:"metrics_enabled"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64       `mapstructure:"trace_sample_ratio"`
	Logging          LoggingConfig `mapstructure:"logging"`

	// OTLP applies to every signal unless a signal override is set.
	OTLP    OTLPConfig  `mapstructure:"otlp"`
	Traces  *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs    *OTLPConfig `mapstructure:"logs,omitempty"`
	Metrics *OTLPConfig `mapstructure:"metrics,omitempty"`
}

// OTLPConfig holds exporter settings.
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // grpc, http/protobuf
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // none, gzip
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}

// GetTracesConfig returns the effective exporter settings for traces.
func (c *ObservabilityConfig) GetTracesConfig() OTLPConfig { return c.OTLP.overlay(c.Traces) }

// GetLogsConfig returns the effective exporter settings for logs.
func (c *ObservabilityConfig) GetLogsConfig() OTLPConfig { return c.OTLP.overlay(c.Logs) }

// GetMetricsConfig returns the effective exporter settings for metrics.
func (c *ObservabilityConfig) GetMetricsConfig() OTLPConfig { return c.OTLP.overlay(c.Metrics) }

// overlay returns base with every set field of o applied. Insecure always
// follows the override since false cannot be told apart from unset.
func (base OTLPConfig) overlay(o *OTLPConfig) OTLPConfig {
	if o == nil {
		return base
	}
	out := base
	out.Insecure = o.Insecure
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&out.Endpoint, o.Endpoint)
	setString(&out.Protocol, o.Protocol)
	setString(&out.TLSCertFile, o.TLSCertFile)
	setString(&out.TLSClientCertFile, o.TLSClientCertFile)
	setString(&out.TLSClientKeyFile, o.TLSClientKeyFile)
	setString(&out.Compression, o.Compression)
	if o.Headers != nil {
		out.Headers = make(map[string]string, len(base.Headers)+len(o.Headers))
		maps.Copy(out.Headers, base.Headers)
		maps.Copy(out.Headers, o.Headers)
	}
	if o.Timeout != 0 {
		out.Timeout = o.Timeout
	}
	if o.RetryMaxAttempts != 0 {
		out.RetryEnabled = o.RetryEnabled
		out.RetryMaxAttempts = o.RetryMaxAttempts
	}
	return out
}
