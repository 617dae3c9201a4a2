// Package config loads and validates application configuration from
// environment variables, with safety-rule thresholds optionally overridden
// by a YAML rules file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Run log persistence. Backend is "postgres", "sqlite", or "memory".
	RunLogBackend string
	DatabaseURL   string // Postgres DSN; also used by the pgvector retriever.
	SQLitePath    string

	// Retrieval index settings.
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	// Embedding provider settings.
	EmbeddingProvider   string // "auto", "openai", "ollama", or "noop"
	OpenAIAPIKey        string
	EmbeddingModel      string
	EmbeddingDimensions int
	OllamaURL           string
	OllamaModel         string

	// Generation backend (OpenAI-compatible chat completions).
	GeneratorBaseURL string
	GeneratorModel   string
	GeneratorAPIKey  string

	// Port call timeouts. A timeout is a retryable fault (one retry).
	RetrievalTimeout  time.Duration
	GenerationTimeout time.Duration

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel  string
	RulesFile string // optional YAML file overriding safety thresholds

	// Safety and grounding thresholds.
	Rules Rules
}

// Load reads configuration from environment variables with defaults, then
// applies the YAML rules file if STRIDE_RULES_FILE is set.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("STRIDE_PORT", 8080),
		ReadTimeout:         envDuration("STRIDE_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("STRIDE_WRITE_TIMEOUT", 60*time.Second),
		RunLogBackend:       envStr("STRIDE_RUNLOG_BACKEND", "sqlite"),
		DatabaseURL:         envStr("DATABASE_URL", ""),
		SQLitePath:          envStr("STRIDE_SQLITE_PATH", "stride.db"),
		QdrantURL:           envStr("QDRANT_URL", ""),
		QdrantAPIKey:        envStr("QDRANT_API_KEY", ""),
		QdrantCollection:    envStr("QDRANT_COLLECTION", "stride_corpus"),
		EmbeddingProvider:   envStr("STRIDE_EMBEDDING_PROVIDER", "auto"),
		OpenAIAPIKey:        envStr("OPENAI_API_KEY", ""),
		EmbeddingModel:      envStr("STRIDE_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions: envInt("STRIDE_EMBEDDING_DIMENSIONS", 1536),
		OllamaURL:           envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:         envStr("OLLAMA_MODEL", "mxbai-embed-large"),
		GeneratorBaseURL:    envStr("STRIDE_GENERATOR_URL", "https://api.openai.com/v1"),
		GeneratorModel:      envStr("STRIDE_GENERATOR_MODEL", "gpt-4o"),
		GeneratorAPIKey:     envStr("STRIDE_GENERATOR_API_KEY", os.Getenv("OPENAI_API_KEY")),
		RetrievalTimeout:    envDuration("STRIDE_RETRIEVAL_TIMEOUT", 10*time.Second),
		GenerationTimeout:   envDuration("STRIDE_GENERATION_TIMEOUT", 60*time.Second),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "stride"),
		LogLevel:            envStr("STRIDE_LOG_LEVEL", "info"),
		RulesFile:           envStr("STRIDE_RULES_FILE", ""),
		Rules:               DefaultRules(),
	}

	cfg.Rules = rulesFromEnv(cfg.Rules)

	if cfg.RulesFile != "" {
		rules, err := LoadRulesFile(cfg.RulesFile, cfg.Rules)
		if err != nil {
			return Config{}, fmt.Errorf("config: rules file: %w", err)
		}
		cfg.Rules = rules
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c Config) Validate() error {
	switch c.RunLogBackend {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres run log backend")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("config: STRIDE_SQLITE_PATH must not be empty")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown run log backend %q", c.RunLogBackend)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("config: STRIDE_EMBEDDING_DIMENSIONS must be positive")
	}
	return c.Rules.Validate()
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
