// Package postgres implements the datasource adapter surface for
// PostgreSQL 12+ and compatible servers (Aurora, Supabase) over pgx.
package postgres

import (
	"fmt"
	"net/url"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // "disable", "require", "verify-ca", "verify-full"

	// Pool bounds; zero leaves the pgxpool defaults in place.
	MaxConns int32
	MinConns int32
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "require"
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Port:    DefaultPort(),
		SSLMode: DefaultSSLMode(),
	}

	if host, ok := config["host"].(string); ok && host != "" {
		cfg.Host = host
	} else {
		return nil, fmt.Errorf("host is required")
	}

	if port, ok := intFrom(config["port"]); ok {
		cfg.Port = port
	}

	if user, ok := config["user"].(string); ok && user != "" {
		cfg.User = user
	} else {
		return nil, fmt.Errorf("user is required")
	}

	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}

	if database, ok := config["database"].(string); ok && database != "" {
		cfg.Database = database
	} else {
		return nil, fmt.Errorf("database is required")
	}

	if sslMode, ok := config["ssl_mode"].(string); ok && sslMode != "" {
		cfg.SSLMode = sslMode
	}

	if maxConns, ok := intFrom(config["pool_max_conns"]); ok {
		cfg.MaxConns = int32(maxConns)
	}
	if minConns, ok := intFrom(config["pool_min_conns"]); ok {
		cfg.MinConns = int32(minConns)
	}

	return cfg, nil
}

// intFrom reads an integer that may arrive as int, int32 or float64
// (JSON numbers decode as float64).
func intFrom(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// connString builds a PostgreSQL URL. User-provided fields are
// URL-escaped so passwords containing @, /, # or ? survive parsing.
func (c *Config) connString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	if c.MaxConns > 0 {
		query.Set("pool_max_conns", fmt.Sprintf("%d", c.MaxConns))
	}
	if c.MinConns > 0 {
		query.Set("pool_min_conns", fmt.Sprintf("%d", c.MinConns))
	}

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		url.QueryEscape(c.Database),
		query.Encode(),
	)
}
