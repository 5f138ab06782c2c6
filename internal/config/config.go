package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Knowledge KnowledgeConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	SMTP      SMTPConfig
	Stats     StatsConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// LLMConfig holds credentials for the chat and embedding providers. The
// primary provider is the Volcengine Ark endpoint, which speaks the OpenAI
// wire protocol.
type LLMConfig struct {
	APIKey           string // VOLCENGINE_API_KEY
	APIBase          string // VOLCENGINE_API_BASE
	ReasoningModel   string // chat model used for drafting and analysis
	EmbeddingModel   string
	AnthropicKey     string
	DefaultProvider  string
	FallbackProvider string
	MaxRetries       int
}

type KnowledgeConfig struct {
	Dir           string        // documents directory (source of truth)
	VectorFile    string        // serialized vector map
	VectorBackend string        // "file" or "postgres"
	ChunkSize     int
	MinScore      float64       // minimum similarity for search results
	BackfillBatch int           // persist every N generated vectors
	EmbedThrottle time.Duration // delay between embedding calls
	PromptsFile   string        // campaign focus prompt config
}

type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret string
}

type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	SenderName string
}

type StatsConfig struct {
	File string
}

func Load() (*Config, error) {
	port, err := getEnvInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	maxConns, err := getEnvInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}

	minConns, err := getEnvInt("DB_MIN_CONNS", 2)
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}

	redisDB, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 3)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_RETRIES: %w", err)
	}

	chunkSize, err := getEnvInt("CHUNK_SIZE", 500)
	if err != nil {
		return nil, fmt.Errorf("invalid CHUNK_SIZE: %w", err)
	}

	minScore, err := getEnvFloat("SEARCH_MIN_SCORE", 0.1)
	if err != nil {
		return nil, fmt.Errorf("invalid SEARCH_MIN_SCORE: %w", err)
	}

	backfillBatch, err := getEnvInt("BACKFILL_BATCH_SIZE", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid BACKFILL_BATCH_SIZE: %w", err)
	}

	throttleMs, err := getEnvInt("EMBED_THROTTLE_MS", 500)
	if err != nil {
		return nil, fmt.Errorf("invalid EMBED_THROTTLE_MS: %w", err)
	}

	smtpPort, err := getEnvInt("SMTP_PORT", 465)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	knowledgeDir := getEnv("KNOWLEDGE_DIR", "knowledge_base")

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: port,
		},
		LLM: LLMConfig{
			APIKey:           getEnv("VOLCENGINE_API_KEY", ""),
			APIBase:          getEnv("VOLCENGINE_API_BASE", ""),
			ReasoningModel:   getEnv("REASONING_MODEL", ""),
			EmbeddingModel:   getEnv("EMBEDDING_MODEL", ""),
			AnthropicKey:     getEnv("ANTHROPIC_API_KEY", ""),
			DefaultProvider:  getEnv("LLM_DEFAULT_PROVIDER", "volcengine"),
			FallbackProvider: getEnv("LLM_FALLBACK_PROVIDER", ""),
			MaxRetries:       maxRetries,
		},
		Knowledge: KnowledgeConfig{
			Dir:           knowledgeDir,
			VectorFile:    getEnv("VECTOR_STORE_FILE", knowledgeDir+"/vectors.json"),
			VectorBackend: getEnv("VECTOR_BACKEND", "file"),
			ChunkSize:     chunkSize,
			MinScore:      minScore,
			BackfillBatch: backfillBatch,
			EmbedThrottle: time.Duration(throttleMs) * time.Millisecond,
			PromptsFile:   getEnv("CAMPAIGN_PROMPTS_FILE", "config/campaignPrompts.json"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: maxConns,
			MinConns: minConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
		},
		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:       smtpPort,
			Username:   getEnv("SMTP_USERNAME", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			SenderName: getEnv("SMTP_SENDER_NAME", "NexusFlow AI"),
		},
		Stats: StatsConfig{
			File: getEnv("STATS_FILE", "config/emailStats.json"),
		},
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate enforces the construction-time configuration contract: the
// embedding and reasoning credentials are required before serving anything.
func (c *Config) Validate() error {
	var missing []string
	if c.LLM.APIKey == "" {
		missing = append(missing, "VOLCENGINE_API_KEY")
	}
	if c.LLM.APIBase == "" {
		missing = append(missing, "VOLCENGINE_API_BASE")
	}
	if c.LLM.EmbeddingModel == "" {
		missing = append(missing, "EMBEDDING_MODEL")
	}
	if c.LLM.ReasoningModel == "" {
		missing = append(missing, "REASONING_MODEL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}
