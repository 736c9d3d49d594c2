package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/deskdata/deskdata/internal/model"
)

// Secret backends.
const (
	SecretsBackendAWS   = "aws"
	SecretsBackendLocal = "local"
)

// AppConfig is the typed view of deskdata.yaml, DESKDATA_* environment
// variables and bound CLI flags.
type AppConfig struct {
	DataDir   string          `mapstructure:"data_dir" yaml:"data_dir"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Auth      AuthConfig      `mapstructure:"auth" yaml:"auth"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Resolver  ResolverConfig  `mapstructure:"resolver" yaml:"resolver"`
	Secrets   SecretsConfig   `mapstructure:"secrets" yaml:"secrets"`
	Qdrant    QdrantConfig    `mapstructure:"qdrant" yaml:"qdrant"`
	OpenAI    OpenAIConfig    `mapstructure:"openai" yaml:"openai"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" yaml:"retrieval"`
	MCP       MCPConfig       `mapstructure:"mcp" yaml:"mcp"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	MaxBodySize     int64         `mapstructure:"max_body_size" yaml:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	RateLimit       int           `mapstructure:"rate_limit" yaml:"rate_limit"`
	IPRateLimit     int           `mapstructure:"ip_rate_limit" yaml:"ip_rate_limit"`
}

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	Issuer    string `mapstructure:"issuer" yaml:"issuer"`
}

// DatabaseConfig holds the shared default connection and the policy for
// when tenants may fall back to it.
type DatabaseConfig struct {
	URL               string       `mapstructure:"url" yaml:"url"`
	FallbackOnMissing bool         `mapstructure:"fallback_on_missing" yaml:"fallback_on_missing"`
	FallbackOnInvalid bool         `mapstructure:"fallback_on_invalid" yaml:"fallback_on_invalid"`
	Pool              PoolSettings `mapstructure:"pool" yaml:"pool"`
}

// PoolSettings controls the connection pool for serverless backends.
type PoolSettings struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
}

// Model converts the settings into a model.PoolConfig.
func (p PoolSettings) Model() model.PoolConfig {
	return model.PoolConfig{
		MaxOpenConns:    p.MaxOpenConns,
		MaxIdleConns:    p.MaxIdleConns,
		ConnMaxLifetime: p.ConnMaxLifetime,
		ConnMaxIdleTime: p.ConnMaxIdleTime,
	}
}

// ResolverConfig controls the tenant configuration cache.
type ResolverConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// SecretsConfig selects where tenant secrets live.
type SecretsConfig struct {
	Backend  string `mapstructure:"backend" yaml:"backend"`
	Region   string `mapstructure:"region" yaml:"region"`
	LocalKey string `mapstructure:"local_key" yaml:"local_key"`
}

// QdrantConfig points at the knowledge-base vector store.
type QdrantConfig struct {
	Host       string `mapstructure:"host" yaml:"host"`
	Port       int    `mapstructure:"port" yaml:"port"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls" yaml:"use_tls"`
	Collection string `mapstructure:"collection" yaml:"collection"`
}

// OpenAIConfig configures embeddings and the interpretation model.
type OpenAIConfig struct {
	APIKey         string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	ChatModel      string `mapstructure:"chat_model" yaml:"chat_model"`
	EmbeddingModel string `mapstructure:"embedding_model" yaml:"embedding_model"`
	EmbeddingDims  int    `mapstructure:"embedding_dims" yaml:"embedding_dims"`
}

// RetrievalConfig bounds each branch of a retrieval.
type RetrievalConfig struct {
	DBTimeout       time.Duration `mapstructure:"db_timeout" yaml:"db_timeout"`
	KBTimeout       time.Duration `mapstructure:"kb_timeout" yaml:"kb_timeout"`
	KBLimit         int           `mapstructure:"kb_limit" yaml:"kb_limit"`
	GlobalNamespace string        `mapstructure:"global_namespace" yaml:"global_namespace"`
	// InterpretTimeout bounds the LLM call that rewrites knowledge-base context.
	InterpretTimeout time.Duration `mapstructure:"interpret_timeout" yaml:"interpret_timeout"`
}

// MCPConfig controls the MCP (Model Context Protocol) server.
type MCPConfig struct {
	Transport string `mapstructure:"transport" yaml:"transport"`
	Tenant    string `mapstructure:"tenant" yaml:"tenant"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// DefaultAppConfig returns an AppConfig pre-filled with sensible defaults.
func DefaultAppConfig() *AppConfig {
	home, _ := os.UserHomeDir()
	pool := model.DefaultPoolConfig()
	return &AppConfig{
		DataDir: filepath.Join(home, ".deskdata"),
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxBodySize:     1 << 20,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"*"},
			RateLimit:       120,
			IPRateLimit:     600,
		},
		Database: DatabaseConfig{
			FallbackOnMissing: true,
			FallbackOnInvalid: true,
			Pool: PoolSettings{
				MaxOpenConns:    pool.MaxOpenConns,
				MaxIdleConns:    pool.MaxIdleConns,
				ConnMaxLifetime: pool.ConnMaxLifetime,
				ConnMaxIdleTime: pool.ConnMaxIdleTime,
			},
		},
		Resolver: ResolverConfig{CacheTTL: 10 * time.Minute},
		Secrets:  SecretsConfig{Backend: SecretsBackendLocal},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "knowledge_base",
		},
		OpenAI: OpenAIConfig{
			ChatModel:      "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			EmbeddingDims:  1536,
		},
		Retrieval: RetrievalConfig{
			DBTimeout:        15 * time.Second,
			KBTimeout:        10 * time.Second,
			InterpretTimeout: 20 * time.Second,
			KBLimit:          5,
			GlobalNamespace:  "global",
		},
		MCP:     MCPConfig{Transport: "stdio"},
		Logging: LoggingConfig{Level: "info"},
	}
}

// SetDefaults registers every AppConfig key on v so that AutomaticEnv can
// override keys that appear in no config file. The shared connection string
// is also read from the conventional DATABASE_URL.
func SetDefaults(v *viper.Viper) {
	d := DefaultAppConfig()

	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.ip_rate_limit", d.Server.IPRateLimit)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("database.url", "")
	v.SetDefault("database.fallback_on_missing", d.Database.FallbackOnMissing)
	v.SetDefault("database.fallback_on_invalid", d.Database.FallbackOnInvalid)
	v.SetDefault("database.pool.max_open_conns", d.Database.Pool.MaxOpenConns)
	v.SetDefault("database.pool.max_idle_conns", d.Database.Pool.MaxIdleConns)
	v.SetDefault("database.pool.conn_max_lifetime", d.Database.Pool.ConnMaxLifetime)
	v.SetDefault("database.pool.conn_max_idle_time", d.Database.Pool.ConnMaxIdleTime)
	v.SetDefault("resolver.cache_ttl", d.Resolver.CacheTTL)
	v.SetDefault("secrets.backend", d.Secrets.Backend)
	v.SetDefault("secrets.region", "")
	v.SetDefault("secrets.local_key", "")
	v.SetDefault("qdrant.host", d.Qdrant.Host)
	v.SetDefault("qdrant.port", d.Qdrant.Port)
	v.SetDefault("qdrant.api_key", "")
	v.SetDefault("qdrant.use_tls", false)
	v.SetDefault("qdrant.collection", d.Qdrant.Collection)
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.chat_model", d.OpenAI.ChatModel)
	v.SetDefault("openai.embedding_model", d.OpenAI.EmbeddingModel)
	v.SetDefault("openai.embedding_dims", d.OpenAI.EmbeddingDims)
	v.SetDefault("retrieval.db_timeout", d.Retrieval.DBTimeout)
	v.SetDefault("retrieval.kb_timeout", d.Retrieval.KBTimeout)
	v.SetDefault("retrieval.interpret_timeout", d.Retrieval.InterpretTimeout)
	v.SetDefault("retrieval.kb_limit", d.Retrieval.KBLimit)
	v.SetDefault("retrieval.global_namespace", d.Retrieval.GlobalNamespace)
	v.SetDefault("mcp.transport", d.MCP.Transport)
	v.SetDefault("mcp.tenant", "")
	v.SetDefault("logging.level", d.Logging.Level)

	v.BindEnv("database.url", "DESKDATA_DATABASE_URL", "DATABASE_URL")
	v.BindEnv("openai.api_key", "DESKDATA_OPENAI_API_KEY", "OPENAI_API_KEY")
}

// LoadAppConfig decodes v into an AppConfig and validates it.
func LoadAppConfig(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would fail later in a less obvious way.
func (c *AppConfig) Validate() error {
	switch c.Secrets.Backend {
	case SecretsBackendAWS, SecretsBackendLocal:
	default:
		return fmt.Errorf("secrets.backend must be %q or %q, got %q", SecretsBackendAWS, SecretsBackendLocal, c.Secrets.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Resolver.CacheTTL < 0 {
		return fmt.Errorf("resolver.cache_ttl must not be negative")
	}
	if c.Retrieval.DBTimeout <= 0 || c.Retrieval.KBTimeout <= 0 || c.Retrieval.InterpretTimeout <= 0 {
		return fmt.Errorf("retrieval timeouts must be positive")
	}
	return nil
}

// WriteDefaultConfig writes the default configuration to a YAML file.
func WriteDefaultConfig(path string) error {
	data, err := yaml.Marshal(DefaultAppConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
