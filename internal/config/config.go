package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "UNIRANK"

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	DatabaseURL      string `envconfig:"DATABASE_URL"`
	DatabaseMaxConns int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	IndexName        string `envconfig:"INDEX_NAME"`

	OpenAIAPIKey        string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string  `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string  `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int     `envconfig:"EMBEDDING_DIMENSIONS" default:"768"`
	SimilarityMetric    string  `envconfig:"SIMILARITY_METRIC" default:"cosine"`
	ChatModel           string  `envconfig:"CHAT_MODEL" default:"gpt-4o-mini"`
	CompressionModel    string  `envconfig:"COMPRESSION_MODEL"`
	MaxOutputTokens     int     `envconfig:"MAX_OUTPUT_TOKENS" default:"500"`
	Temperature         float32 `envconfig:"TEMPERATURE" default:"0.5"`
	TopP                float32 `envconfig:"TOP_P" default:"0.9"`
	TopK                int     `envconfig:"TOP_K" default:"20"`

	RetrievalK             int  `envconfig:"RETRIEVAL_K" default:"4"`
	MaxRank                int  `envconfig:"MAX_RANK" default:"0"`
	CompressionEnabled     bool `envconfig:"COMPRESSION_ENABLED" default:"true"`
	CompressionConcurrency int  `envconfig:"COMPRESSION_CONCURRENCY" default:"4"`

	PromptVersion    string `envconfig:"PROMPT_VERSION" default:"rankings-v1"`
	HistoryTurns     int    `envconfig:"HISTORY_TURNS" default:"10"`
	SessionCacheSize int    `envconfig:"SESSION_CACHE_SIZE" default:"10000"`

	EmbedTimeout    time.Duration `envconfig:"EMBED_TIMEOUT" default:"10s"`
	RetrieveTimeout time.Duration `envconfig:"RETRIEVE_TIMEOUT" default:"5s"`
	CompressTimeout time.Duration `envconfig:"COMPRESS_TIMEOUT" default:"20s"`
	GenerateTimeout time.Duration `envconfig:"GENERATE_TIMEOUT" default:"30s"`
	QueryTimeout    time.Duration `envconfig:"QUERY_TIMEOUT" default:"60s"`

	MaxInFlight int     `envconfig:"MAX_IN_FLIGHT" default:"32"`
	ModelRPS    float64 `envconfig:"MODEL_RPS" default:"10"`
	ModelBurst  int     `envconfig:"MODEL_BURST" default:"5"`

	// Ranking sources for ingestion: a local directory or an S3 bucket/prefix
	SourceDir      string        `envconfig:"SOURCE_DIR"`
	S3Endpoint     string        `envconfig:"S3_ENDPOINT"`
	S3AccessKey    string        `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey    string        `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket       string        `envconfig:"S3_BUCKET" default:"unirank-sources"`
	S3Prefix       string        `envconfig:"S3_PREFIX"`
	S3Region       string        `envconfig:"S3_REGION" default:"us-east-1"`
	IngestInterval time.Duration `envconfig:"INGEST_INTERVAL" default:"0"`
}

// Load reads .env (if present) and UNIRANK_* variables, then validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration, "failed to process config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports every missing or invalid field at once.
func (c *Config) Validate() error {
	var problems []string
	add := func(field, format string, args ...any) {
		problems = append(problems, envPrefix+"_"+field+" "+fmt.Sprintf(format, args...))
	}

	if c.DatabaseURL == "" {
		add("DATABASE_URL", "is required")
	}
	if c.IndexName == "" {
		add("INDEX_NAME", "is required")
	}
	if c.OpenAIAPIKey == "" {
		add("OPENAI_API_KEY", "is required")
	}
	if c.EmbeddingDimensions <= 0 {
		add("EMBEDDING_DIMENSIONS", "must be positive, got %d", c.EmbeddingDimensions)
	}
	if _, err := domain.ParseSimilarityMetric(c.SimilarityMetric); err != nil {
		add("SIMILARITY_METRIC", "must be cosine or euclidean, got %q", c.SimilarityMetric)
	}
	if c.MaxOutputTokens <= 0 {
		add("MAX_OUTPUT_TOKENS", "must be positive, got %d", c.MaxOutputTokens)
	}
	if c.Temperature < 0 || c.Temperature > 1 {
		add("TEMPERATURE", "must be within [0, 1], got %v", c.Temperature)
	}
	if c.TopP <= 0 || c.TopP > 1 {
		add("TOP_P", "must be within (0, 1], got %v", c.TopP)
	}
	if c.TopK < 0 {
		add("TOP_K", "cannot be negative, got %d", c.TopK)
	}
	if c.RetrievalK <= 0 {
		add("RETRIEVAL_K", "must be positive, got %d", c.RetrievalK)
	}
	if c.MaxRank < 0 {
		add("MAX_RANK", "cannot be negative, got %d", c.MaxRank)
	}
	if c.CompressionConcurrency <= 0 {
		add("COMPRESSION_CONCURRENCY", "must be positive, got %d", c.CompressionConcurrency)
	}
	if c.PromptVersion == "" {
		add("PROMPT_VERSION", "is required")
	}
	if c.HistoryTurns <= 0 {
		add("HISTORY_TURNS", "must be positive, got %d", c.HistoryTurns)
	}
	if c.SessionCacheSize <= 0 {
		add("SESSION_CACHE_SIZE", "must be positive, got %d", c.SessionCacheSize)
	}
	for field, d := range map[string]time.Duration{
		"EMBED_TIMEOUT":    c.EmbedTimeout,
		"RETRIEVE_TIMEOUT": c.RetrieveTimeout,
		"COMPRESS_TIMEOUT": c.CompressTimeout,
		"GENERATE_TIMEOUT": c.GenerateTimeout,
		"QUERY_TIMEOUT":    c.QueryTimeout,
	} {
		if d <= 0 {
			add(field, "must be positive, got %s", d)
		}
	}
	if c.MaxInFlight <= 0 {
		add("MAX_IN_FLIGHT", "must be positive, got %d", c.MaxInFlight)
	}
	if c.ModelRPS <= 0 {
		add("MODEL_RPS", "must be positive, got %v", c.ModelRPS)
	}
	if c.ModelBurst <= 0 {
		add("MODEL_BURST", "must be positive, got %d", c.ModelBurst)
	}
	if c.IngestInterval < 0 {
		add("INGEST_INTERVAL", "cannot be negative, got %s", c.IngestInterval)
	}

	if len(problems) == 0 {
		return nil
	}
	// map iteration above is unordered
	sort.Strings(problems)
	return domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration, "invalid configuration",
		fmt.Errorf("%s", strings.Join(problems, "; ")))
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasSourceDir() bool {
	return c.SourceDir != ""
}

func (c *Config) HasSentry() bool {
	return c.SentryDSN != ""
}

// Metric returns the validated similarity metric.
func (c *Config) Metric() domain.SimilarityMetric {
	m, err := domain.ParseSimilarityMetric(c.SimilarityMetric)
	if err != nil {
		return domain.MetricCosine
	}
	return m
}

// CompressionModelName falls back to the chat model.
func (c *Config) CompressionModelName() string {
	if c.CompressionModel != "" {
		return c.CompressionModel
	}
	return c.ChatModel
}
