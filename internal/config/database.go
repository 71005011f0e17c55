package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

var validSSLModes = map[string]bool{
	"":            true,
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// DSN returns the connection string handed to the pgx driver. An explicit
// dsn wins; otherwise a postgres:// URL is built from the discrete fields.
func (d *DatabaseConfig) DSN() string {
	if strings.TrimSpace(d.ConnectionString) != "" {
		return d.ConnectionString
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Database,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else if d.User != "" {
		u.User = url.User(d.User)
	}

	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	if d.SSLRootCert != "" {
		q.Set("sslrootcert", d.SSLRootCert)
	}
	if d.ApplicationName != "" {
		q.Set("application_name", d.ApplicationName)
	}
	if d.Schema != "" {
		q.Set("search_path", d.Schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ParseDSN parses DSN with the pgx parser without connecting.
func (d *DatabaseConfig) ParseDSN() (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(d.DSN())
	if err != nil {
		return nil, fmt.Errorf("invalid database connection string: %w", err)
	}
	return cfg, nil
}

// EffectiveDatabaseName returns the database the server will connect to.
func (d *DatabaseConfig) EffectiveDatabaseName() (string, error) {
	cfg, err := d.ParseDSN()
	if err != nil {
		return "", err
	}
	return cfg.Database, nil
}

// Redacted describes the connection target without credentials.
func (d *DatabaseConfig) Redacted() string {
	cfg, err := d.ParseDSN()
	if err != nil {
		return "<invalid dsn>"
	}
	return fmt.Sprintf("host=%s port=%d user=%s database=%s", cfg.Host, cfg.Port, cfg.User, cfg.Database)
}
