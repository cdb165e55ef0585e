package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMapDefaults(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"host":     "db.internal",
		"user":     "reader",
		"password": "secret",
		"database": "warehouse",
	})
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "require", cfg.SSLMode)
	assert.Equal(t, int32(0), cfg.MaxConns)
}

func TestFromMapAllFields(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"host":           "db.internal",
		"port":           float64(6432), // JSON numbers decode as float64
		"user":           "reader",
		"password":       "secret",
		"database":       "warehouse",
		"ssl_mode":       "verify-full",
		"pool_max_conns": int32(20),
		"pool_min_conns": 2,
	})
	require.NoError(t, err)

	assert.Equal(t, 6432, cfg.Port)
	assert.Equal(t, "verify-full", cfg.SSLMode)
	assert.Equal(t, int32(20), cfg.MaxConns)
	assert.Equal(t, int32(2), cfg.MinConns)
}

func TestFromMapRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]any
		want   string
	}{
		{
			name:   "missing host",
			config: map[string]any{"user": "u", "database": "d"},
			want:   "host is required",
		},
		{
			name:   "missing user",
			config: map[string]any{"host": "h", "database": "d"},
			want:   "user is required",
		},
		{
			name:   "missing database",
			config: map[string]any{"host": "h", "user": "u"},
			want:   "database is required",
		},
		{
			name:   "empty host",
			config: map[string]any{"host": "", "user": "u", "database": "d"},
			want:   "host is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConnStringEscapesCredentials(t *testing.T) {
	cfg := &Config{
		Host:     "db.internal",
		Port:     5432,
		User:     "reader",
		Password: "p@ss/w#rd?",
		Database: "warehouse",
		SSLMode:  "disable",
	}

	got := cfg.connString()
	assert.Contains(t, got, "p%40ss%2Fw%23rd%3F")
	assert.Contains(t, got, "sslmode=disable")
	assert.NotContains(t, got, "p@ss/w#rd?")
}

func TestConnStringPoolBounds(t *testing.T) {
	cfg := &Config{
		Host:     "db.internal",
		Port:     5432,
		User:     "reader",
		Database: "warehouse",
		MaxConns: 10,
		MinConns: 1,
	}

	got := cfg.connString()
	assert.Contains(t, got, "pool_max_conns=10")
	assert.Contains(t, got, "pool_min_conns=1")
	assert.Contains(t, got, "sslmode=require")
}

func TestQualifiedTableName(t *testing.T) {
	assert.Equal(t, `"public"."orders"`, qualifiedTableName("public", "orders"))
	assert.Equal(t, `"orders"`, qualifiedTableName("", "orders"))
	assert.Equal(t, `"od""d"."t"`, qualifiedTableName(`od"d`, "t"))
}
