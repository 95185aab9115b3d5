// Package config loads the application configuration from the environment.
// Every knob has a BLACKWELL_-prefixed variable; provider API keys use the
// conventional vendor names (GEMINI_API_KEY, OPENAI_API_KEY, ANTHROPIC_API_KEY).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Generator providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
)

// Backend selectors.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendMongo    = "mongo"
	BackendPostgres = "postgres"
)

// LLMConfig selects the generator provider and its model variants.
type LLMConfig struct {
	Provider     string
	APIKey       string
	FastModel    string
	ProModel     string
	AgenticModel string
}

// EmbeddingConfig configures the embedding provider for the document index.
type EmbeddingConfig struct {
	APIKey    string
	Model     string
	Dimension int
}

// PubMedConfig configures the NCBI E-utilities client. Both fields are
// optional; an API key raises the rate limit.
type PubMedConfig struct {
	APIKey string
	Email  string
}

// RedisConfig configures the Redis checkpoint store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// MongoConfig configures the MongoDB checkpoint store.
type MongoConfig struct {
	URI      string
	Database string
}

// PostgresConfig configures the pgvector document index.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Table    string
}

// Config is the full application configuration.
type Config struct {
	LLM       LLMConfig
	Embedding EmbeddingConfig
	PubMed    PubMedConfig

	CheckpointBackend string // memory, redis or mongo
	Redis             RedisConfig
	Mongo             MongoConfig

	VectorBackend string // memory or postgres
	Postgres      PostgresConfig

	// Evaluation knobs.
	MaxResearchAttempts int
	EvidenceBudget      int
	DataDir             string

	// Optional MCP tool server for the research sub-agents. Endpoint takes
	// precedence over Command when both are set.
	MCPEndpoint string
	MCPCommand  string
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	provider := strings.ToLower(getEnv("BLACKWELL_LLM_PROVIDER", ProviderGemini))

	cfg := &Config{
		LLM: LLMConfig{
			Provider:     provider,
			APIKey:       providerKey(provider),
			FastModel:    getEnv("BLACKWELL_FAST_MODEL", defaultFastModel(provider)),
			ProModel:     getEnv("BLACKWELL_PRO_MODEL", defaultProModel(provider)),
			AgenticModel: getEnv("BLACKWELL_AGENTIC_MODEL", defaultFastModel(provider)),
		},
		Embedding: EmbeddingConfig{
			APIKey:    getEnv("OPENAI_API_KEY", ""),
			Model:     getEnv("BLACKWELL_EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension: getEnvInt("BLACKWELL_EMBEDDING_DIMENSION", 1536),
		},
		PubMed: PubMedConfig{
			APIKey: getEnv("NCBI_API_KEY", ""),
			Email:  getEnv("BLACKWELL_PUBMED_EMAIL", ""),
		},
		CheckpointBackend: strings.ToLower(getEnv("BLACKWELL_CHECKPOINT_BACKEND", BackendMemory)),
		Redis: RedisConfig{
			Addr:     getEnv("BLACKWELL_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("BLACKWELL_REDIS_PASSWORD", ""),
			DB:       getEnvInt("BLACKWELL_REDIS_DB", 0),
			TTL:      getEnvDuration("BLACKWELL_REDIS_TTL", 24*time.Hour),
		},
		Mongo: MongoConfig{
			URI:      getEnv("BLACKWELL_MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("BLACKWELL_MONGO_DATABASE", "blackwell"),
		},
		VectorBackend: strings.ToLower(getEnv("BLACKWELL_VECTOR_BACKEND", BackendMemory)),
		Postgres: PostgresConfig{
			Host:     getEnv("BLACKWELL_PG_HOST", "localhost"),
			Port:     getEnvInt("BLACKWELL_PG_PORT", 5432),
			User:     getEnv("BLACKWELL_PG_USER", "postgres"),
			Password: getEnv("BLACKWELL_PG_PASSWORD", ""),
			DBName:   getEnv("BLACKWELL_PG_DATABASE", "blackwell"),
			SSLMode:  getEnv("BLACKWELL_PG_SSLMODE", "disable"),
			Table:    getEnv("BLACKWELL_PG_TABLE", "embeddings"),
		},
		MaxResearchAttempts: getEnvInt("BLACKWELL_MAX_RESEARCH_ATTEMPTS", 3),
		EvidenceBudget:      getEnvInt("BLACKWELL_EVIDENCE_BUDGET", 12000),
		DataDir:             getEnv("BLACKWELL_DATA_DIR", "data"),
		MCPEndpoint:         getEnv("BLACKWELL_MCP_ENDPOINT", ""),
		MCPCommand:          getEnv("BLACKWELL_MCP_COMMAND", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for the selected backends only.
func (c *Config) Validate() error {
	v := NewValidator()

	v.ValidateOneOf("llm.provider", c.LLM.Provider, ProviderGemini, ProviderOpenAI, ProviderClaude)
	v.RequireNonEmpty("llm.apiKey", c.LLM.APIKey)
	v.RequireNonEmpty("llm.fastModel", c.LLM.FastModel)
	v.RequireNonEmpty("llm.proModel", c.LLM.ProModel)
	v.RequirePositive("embedding.dimension", c.Embedding.Dimension)
	v.ValidateOneOf("checkpointBackend", c.CheckpointBackend, BackendMemory, BackendRedis, BackendMongo)
	v.ValidateOneOf("vectorBackend", c.VectorBackend, BackendMemory, BackendPostgres)
	v.RequirePositive("maxResearchAttempts", c.MaxResearchAttempts)
	v.RequirePositive("evidenceBudget", c.EvidenceBudget)

	switch c.CheckpointBackend {
	case BackendRedis:
		v.RequireNonEmpty("redis.addr", c.Redis.Addr)
		v.ValidateRange("redis.db", c.Redis.DB, 0, 15)
	case BackendMongo:
		v.RequireNonEmpty("mongo.uri", c.Mongo.URI)
		v.RequireNonEmpty("mongo.database", c.Mongo.Database)
	}

	if c.VectorBackend == BackendPostgres {
		v.RequireNonEmpty("postgres.host", c.Postgres.Host)
		v.ValidatePort("postgres.port", c.Postgres.Port)
		v.RequireNonEmpty("postgres.user", c.Postgres.User)
		v.RequireNonEmpty("postgres.database", c.Postgres.DBName)
		v.ValidateOneOf("postgres.sslMode", c.Postgres.SSLMode, "disable", "require", "verify-ca", "verify-full")
		// Remote indexes need a real embedder behind them.
		v.RequireNonEmpty("embedding.apiKey", c.Embedding.APIKey)
	}

	return v.Error()
}

func providerKey(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case ProviderClaude:
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return os.Getenv("GEMINI_API_KEY")
	}
}

func defaultFastModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderClaude:
		return "claude-sonnet-4-5-20250929"
	default:
		return "gemini-2.5-flash"
	}
}

func defaultProModel(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "gpt-4o"
	case ProviderClaude:
		return "claude-opus-4-1-20250805"
	default:
		return "gemini-2.5-pro"
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
