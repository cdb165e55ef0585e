package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// MaxPathHopsCeiling bounds join-path depth regardless of configuration.
// Path count grows combinatorially with hop depth, so this is never
// request-controlled and never raised past a small constant.
const MaxPathHopsCeiling = 3

// Config holds all configuration for sqlmend.
// Configuration can come from YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8844"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// Authentication for the HTTP API
	Auth AuthConfig `yaml:"auth"`

	// Datasource is the customer database the engine resolves against.
	Datasource DatasourceConfig `yaml:"datasource"`

	// Redis mirrors session history when configured (optional).
	Redis RedisConfig `yaml:"redis"`

	// AI model endpoints
	AI AIConfig `yaml:"ai"`

	// Search source thresholds and limits
	Search SearchConfig `yaml:"search"`

	// Resolver knobs: path depth, pool width, session bounds
	Resolver ResolverConfig `yaml:"resolver"`

	// GraphSnapshotPath points at the foreign-key graph snapshot
	// produced by scripts/build-fk-graph. When empty or missing, the
	// graph is discovered live from the datasource catalog.
	GraphSnapshotPath string `yaml:"graph_snapshot_path" env:"GRAPH_SNAPSHOT_PATH" env-default:"fk_graph.json"`

	// KeywordGlossaryPath points at the curated keyword glossary JSON.
	// A missing file just disables the keyword search source.
	KeywordGlossaryPath string `yaml:"keyword_glossary_path" env:"KEYWORD_GLOSSARY_PATH" env-default:"schema_keywords.json"`
}

// AuthConfig holds bearer-token settings for the HTTP API.
type AuthConfig struct {
	// Enabled controls whether bearer tokens are required.
	// Off by default for local development.
	Enabled bool `yaml:"enabled" env:"AUTH_ENABLED" env-default:"false"`

	// TokenSecret signs and verifies HMAC bearer tokens.
	TokenSecret string `yaml:"-" env:"AUTH_TOKEN_SECRET"` // Secret - not in YAML
}

// DatasourceConfig holds connection settings for the target database.
type DatasourceConfig struct {
	Type          string `yaml:"type" env:"DATASOURCE_TYPE" env-default:"postgres"`
	Host          string `yaml:"host" env:"DATASOURCE_HOST" env-default:"localhost"`
	Port          int    `yaml:"port" env:"DATASOURCE_PORT" env-default:"5432"`
	User          string `yaml:"user" env:"DATASOURCE_USER" env-default:"postgres"`
	Password      string `yaml:"-" env:"DATASOURCE_PASSWORD"` // Secret - not in YAML
	Database      string `yaml:"database" env:"DATASOURCE_DATABASE" env-default:"postgres"`
	DefaultSchema string `yaml:"default_schema" env:"DATASOURCE_DEFAULT_SCHEMA" env-default:"public"`
	SSLMode       string `yaml:"ssl_mode" env:"DATASOURCE_SSL_MODE" env-default:"disable"`
	PoolMaxConns  int32  `yaml:"pool_max_conns" env:"DATASOURCE_POOL_MAX_CONNS" env-default:"10"`
	PoolMinConns  int32  `yaml:"pool_min_conns" env:"DATASOURCE_POOL_MIN_CONNS" env-default:"1"`

	// MetadataCacheTTLMinutes bounds how long discovered column/key
	// metadata is served from cache before re-reading the catalog.
	MetadataCacheTTLMinutes int `yaml:"metadata_cache_ttl_minutes" env:"DATASOURCE_METADATA_CACHE_TTL_MINUTES" env-default:"5"`
	// MetadataCacheSize is the entry capacity of the metadata cache.
	MetadataCacheSize int `yaml:"metadata_cache_size" env:"DATASOURCE_METADATA_CACHE_SIZE" env-default:"4096"`
}

// RedisConfig holds optional Redis settings for session persistence.
// Host left empty disables Redis entirely.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// defaultOpenAIEndpoint matches the AI_ENDPOINT env-default below.
const defaultOpenAIEndpoint = "https://api.openai.com/v1"

// AIConfig holds LLM endpoint configuration.
type AIConfig struct {
	// Provider selects the client implementation: "openai" covers any
	// OpenAI-compatible endpoint (vLLM, llama.cpp server), "anthropic"
	// uses the Anthropic API.
	Provider string `yaml:"provider" env:"AI_PROVIDER" env-default:"openai"`

	Endpoint string `yaml:"endpoint" env:"AI_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model    string `yaml:"model" env:"AI_MODEL" env-default:"gpt-4o-mini"`
	APIKey   string `yaml:"-" env:"AI_API_KEY"` // Secret - not in YAML

	// EmbeddingEndpoint overrides Endpoint for embedding traffic.
	// Embeddings always go to an OpenAI-compatible endpoint; the
	// Anthropic API does not serve them.
	EmbeddingEndpoint string `yaml:"embedding_endpoint" env:"AI_EMBEDDING_ENDPOINT" env-default:""`
	EmbeddingModel    string `yaml:"embedding_model" env:"AI_EMBEDDING_MODEL" env-default:"text-embedding-3-small"`
	EmbeddingAPIKey   string `yaml:"-" env:"AI_EMBEDDING_API_KEY"` // Secret - not in YAML

	Temperature float64 `yaml:"temperature" env:"AI_TEMPERATURE" env-default:"0.1"`

	// MaxRepairAttempts bounds the execution-error repair loop in the
	// generation service. The core fixer itself never retries.
	MaxRepairAttempts int `yaml:"max_repair_attempts" env:"AI_MAX_REPAIR_ATTEMPTS" env-default:"2"`
}

// ChatEndpoint returns the endpoint for the chat client. The YAML
// default targets OpenAI; the anthropic SDK carries its own base URL,
// so for that provider the unchanged default means "no override".
func (a *AIConfig) ChatEndpoint() string {
	if a.Provider == "anthropic" && a.Endpoint == defaultOpenAIEndpoint {
		return ""
	}
	return a.Endpoint
}

// EffectiveEmbeddingEndpoint returns the embedding endpoint, falling
// back to the chat endpoint.
func (a *AIConfig) EffectiveEmbeddingEndpoint() string {
	if a.EmbeddingEndpoint != "" {
		return a.EmbeddingEndpoint
	}
	return a.Endpoint
}

// EffectiveEmbeddingAPIKey returns the embedding API key, falling back
// to the chat key.
func (a *AIConfig) EffectiveEmbeddingAPIKey() string {
	if a.EmbeddingAPIKey != "" {
		return a.EmbeddingAPIKey
	}
	return a.APIKey
}

// SearchConfig holds per-source score thresholds and index limits.
// Scores are source-local and not cross-comparable; each source gets
// its own cutoff.
type SearchConfig struct {
	SemanticThreshold  float64 `yaml:"semantic_threshold" env:"SEARCH_SEMANTIC_THRESHOLD" env-default:"0.5"`
	LexicalThreshold   float64 `yaml:"lexical_threshold" env:"SEARCH_LEXICAL_THRESHOLD" env-default:"0.4"`
	KeywordThreshold   float64 `yaml:"keyword_threshold" env:"SEARCH_KEYWORD_THRESHOLD" env-default:"0.4"`
	DataValueThreshold float64 `yaml:"data_value_threshold" env:"SEARCH_DATA_VALUE_THRESHOLD" env-default:"0.5"`

	// TopK is how many raw hits each source returns before fusion.
	TopK int `yaml:"top_k" env:"SEARCH_TOP_K" env-default:"15"`

	// BoostPrefixesStr lists short schema prefixes (comma-separated)
	// that mark a query token as an exact table-name fragment for the
	// popularity-ranking boost.
	BoostPrefixesStr string `yaml:"boost_prefixes" env:"SEARCH_BOOST_PREFIXES" env-default:""`

	// BoostPrefixes is parsed from BoostPrefixesStr (not from config file).
	BoostPrefixes []string `yaml:"-"`

	// Value index bounds: only short text columns are indexed, and only
	// a capped number of distinct values per column.
	ValueIndexMaxColumns     int `yaml:"value_index_max_columns" env:"SEARCH_VALUE_INDEX_MAX_COLUMNS" env-default:"200"`
	ValueIndexValuesPerCol   int `yaml:"value_index_values_per_column" env:"SEARCH_VALUE_INDEX_VALUES_PER_COLUMN" env-default:"50"`
	ValueIndexMaxValueLength int `yaml:"value_index_max_value_length" env:"SEARCH_VALUE_INDEX_MAX_VALUE_LENGTH" env-default:"64"`
}

// ResolverConfig holds schema-pool and session bounds.
type ResolverConfig struct {
	// MaxPathHops bounds join-chain depth. Clamped to MaxPathHopsCeiling.
	MaxPathHops int `yaml:"max_path_hops" env:"RESOLVER_MAX_PATH_HOPS" env-default:"2"`

	// MaxExtraColumns is the top-N cap on non-key columns per pooled table.
	MaxExtraColumns int `yaml:"max_extra_columns" env:"RESOLVER_MAX_EXTRA_COLUMNS" env-default:"7"`

	// HistoryLimit bounds a session's conversation window.
	HistoryLimit int `yaml:"history_limit" env:"RESOLVER_HISTORY_LIMIT" env-default:"20"`

	// PathCacheLimit bounds a session's join-path cache; oldest entries
	// are evicted first.
	PathCacheLimit int `yaml:"path_cache_limit" env:"RESOLVER_PATH_CACHE_LIMIT" env-default:"10"`

	// SuggestionLimit caps clarification suggestions from the table ranking.
	SuggestionLimit int `yaml:"suggestion_limit" env:"RESOLVER_SUGGESTION_LIMIT" env-default:"5"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. When config.yaml does not exist, configuration comes from
// the environment alone. The version parameter is injected at build
// time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.parseComplexFields()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.Search.BoostPrefixes = splitCSV(c.Search.BoostPrefixesStr)
}

// Validate checks cross-field constraints and clamps bounded knobs.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.TokenSecret == "" {
		return fmt.Errorf("AUTH_TOKEN_SECRET is required when auth is enabled")
	}

	switch c.AI.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unknown ai provider %q", c.AI.Provider)
	}

	if c.Resolver.MaxPathHops < 1 {
		c.Resolver.MaxPathHops = 1
	}
	if c.Resolver.MaxPathHops > MaxPathHopsCeiling {
		c.Resolver.MaxPathHops = MaxPathHopsCeiling
	}
	if c.Resolver.MaxExtraColumns < 0 {
		c.Resolver.MaxExtraColumns = 0
	}
	if c.Resolver.PathCacheLimit < 1 {
		c.Resolver.PathCacheLimit = 1
	}
	if c.Resolver.HistoryLimit < 2 {
		c.Resolver.HistoryLimit = 2
	}

	return nil
}

// splitCSV parses a comma-separated string into trimmed, non-empty parts.
func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Map renders the datasource settings as the generic config map the
// adapter factories consume.
func (c *DatasourceConfig) Map() map[string]any {
	return map[string]any{
		"type":           c.Type,
		"host":           c.Host,
		"port":           c.Port,
		"user":           c.User,
		"password":       c.Password,
		"database":       c.Database,
		"default_schema": c.DefaultSchema,
		"ssl_mode":       c.SSLMode,
		"pool_max_conns": c.PoolMaxConns,
		"pool_min_conns": c.PoolMinConns,
	}
}
