// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (WEPLUS_* runtime override)
//  2. Config file (~/.weplus/config.yaml)
//  3. Default values
//
// Main categories:
//   - Embedding: provider endpoint, model, vector dimension, cache limits
//   - Chat: completion provider endpoint and model
//   - Chunking: chunk size and overlap
//   - Storage: PostgreSQL connection (see storage.go), legacy backend paths
//   - Retrieval: default top-k and similarity threshold
//
// Security: sensitive values (passwords, API keys) are masked in
// MarshalJSON and never logged.
//
// Error handling uses sentinel errors so callers can check with errors.Is;
// wrap with fmt.Errorf("%w: details", ErrXxx).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidChunkSize indicates the chunk size is out of range.
	ErrInvalidChunkSize = errors.New("invalid chunk size")

	// ErrInvalidChunkOverlap indicates overlap is negative or >= chunk size.
	ErrInvalidChunkOverlap = errors.New("invalid chunk overlap")

	// ErrInvalidEmbedderDimension indicates a non-positive vector dimension.
	ErrInvalidEmbedderDimension = errors.New("invalid embedder dimension")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidCacheTTL indicates a non-positive cache TTL.
	ErrInvalidCacheTTL = errors.New("invalid cache TTL")

	// ErrInvalidCacheSize indicates a non-positive cache entry limit.
	ErrInvalidCacheSize = errors.New("invalid cache size")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidTopK indicates the default top-k is out of range.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidThreshold indicates the similarity threshold is out of
	// the cosine range [-1, 1].
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidMonitorCapacity indicates a non-positive sample capacity.
	ErrInvalidMonitorCapacity = errors.New("invalid monitor capacity")
)

// Default values applied before file and environment overrides.
const (
	// DefaultEmbedderDimension matches the pgvector column width in the
	// migrations. Changing it requires a schema migration.
	DefaultEmbedderDimension = 768

	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 500

	// DefaultChunkOverlap is the character overlap carried between
	// adjacent chunks.
	DefaultChunkOverlap = 50

	// DefaultCacheTTL bounds the age of cached embedding vectors.
	DefaultCacheTTL = time.Hour

	// DefaultCacheMaxEntries bounds the embedding cache size.
	DefaultCacheMaxEntries = 1000

	// DefaultTopK is the default number of retrieval results.
	DefaultTopK = 5

	// DefaultThreshold is the default minimum cosine similarity.
	DefaultThreshold = 0.3

	// DefaultMonitorCapacity is the performance monitor ring size.
	DefaultMonitorCapacity = 1000
)

// Config stores the retrieval engine configuration.
//
// SECURITY: sensitive fields are masked in MarshalJSON. When adding new
// secrets (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// Embedding provider configuration
	EmbedderBaseURL   string `mapstructure:"embedder_base_url" json:"embedder_base_url"`
	EmbedderModel     string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDimension int    `mapstructure:"embedder_dimension" json:"embedder_dimension"`
	EmbedderAPIKey    string `mapstructure:"embedder_api_key" json:"embedder_api_key"` // SENSITIVE: masked in MarshalJSON
	EmbedderRPS       int    `mapstructure:"embedder_rps" json:"embedder_rps"`

	// Chat completion provider configuration
	ChatBaseURL string `mapstructure:"chat_base_url" json:"chat_base_url"`
	ChatModel   string `mapstructure:"chat_model" json:"chat_model"`
	ChatAPIKey  string `mapstructure:"chat_api_key" json:"chat_api_key"` // SENSITIVE: masked in MarshalJSON

	// Chunking configuration
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Embedding cache configuration
	CacheTTL        time.Duration `mapstructure:"cache_ttl" json:"cache_ttl"`
	CacheMaxEntries int           `mapstructure:"cache_max_entries" json:"cache_max_entries"`

	// Retrieval defaults
	TopK      int     `mapstructure:"top_k" json:"top_k"`
	Threshold float64 `mapstructure:"threshold" json:"threshold"`

	// Performance monitor
	MonitorCapacity int `mapstructure:"monitor_capacity" json:"monitor_capacity"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Legacy backend (optional secondary vector store)
	LegacyEnabled   bool   `mapstructure:"legacy_enabled" json:"legacy_enabled"`
	LegacyDBPath    string `mapstructure:"legacy_db_path" json:"legacy_db_path"`
	LegacyIndexPath string `mapstructure:"legacy_index_path" json:"legacy_index_path"`

	// HTTP server
	ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load reads configuration from defaults, the config file and environment
// variables, then validates the result.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	home, err := os.UserHomeDir()
	if err == nil {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(home, ".weplus"))
	}

	v.SetEnvPrefix("WEPLUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine: defaults + env apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("embedder_base_url", "https://api.openai.com/v1")
	v.SetDefault("embedder_model", "text-embedding-3-small")
	v.SetDefault("embedder_dimension", DefaultEmbedderDimension)
	v.SetDefault("embedder_rps", 10)

	v.SetDefault("chat_base_url", "https://api.openai.com/v1")
	v.SetDefault("chat_model", "gpt-4o-mini")

	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("chunk_overlap", DefaultChunkOverlap)

	v.SetDefault("cache_ttl", DefaultCacheTTL)
	v.SetDefault("cache_max_entries", DefaultCacheMaxEntries)

	v.SetDefault("top_k", DefaultTopK)
	v.SetDefault("threshold", DefaultThreshold)

	v.SetDefault("monitor_capacity", DefaultMonitorCapacity)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "weplus")
	v.SetDefault("postgres_db_name", "weplus")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("legacy_enabled", false)
	v.SetDefault("legacy_db_path", defaultDataPath("legacy.db"))
	v.SetDefault("legacy_index_path", defaultDataPath("legacy.idx"))

	v.SetDefault("listen_addr", ":8080")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".weplus", name)
}

// MarshalJSON masks sensitive fields so the config can be logged or
// returned from a debug endpoint without leaking secrets.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // avoid recursion
	masked := alias(*c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "****"
	}
	if masked.EmbedderAPIKey != "" {
		masked.EmbedderAPIKey = "****"
	}
	if masked.ChatAPIKey != "" {
		masked.ChatAPIKey = "****"
	}
	return json.Marshal(masked)
}
