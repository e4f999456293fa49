package admin

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/cloo-solutions/unirank/internal/config"
	"github.com/cloo-solutions/unirank/internal/database"
	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/cloo-solutions/unirank/internal/logging"
	"github.com/cloo-solutions/unirank/internal/openai"
	"github.com/cloo-solutions/unirank/internal/prompts"
	"github.com/cloo-solutions/unirank/internal/repository"
	"github.com/cloo-solutions/unirank/internal/service"
	"github.com/cloo-solutions/unirank/internal/storage"
	"github.com/cloo-solutions/unirank/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/pflag"
)

// app is the wiring shared by every command that talks to the index.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	spec       domain.IndexSpec
	embeddings *openai.Client
	chat       *openai.ChatClient
	closers    []func()
}

// loadConfig reads the environment and applies the flags the user changed.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyFlagOverrides(flags, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FlagEnv names the environment variable each override flag replaces.
var FlagEnv = map[string]string{
	"port":           "UNIRANK_PORT",
	"index":          "UNIRANK_INDEX_NAME",
	"prompt-version": "UNIRANK_PROMPT_VERSION",
	"log-level":      "UNIRANK_LOG_LEVEL",
	"dir":            "UNIRANK_SOURCE_DIR",
	"prefix":         "UNIRANK_S3_PREFIX",
	"max-rank":       "UNIRANK_MAX_RANK",
}

// applyFlagOverrides copies explicitly set flags over the environment values.
// Flags left at their defaults never override the environment.
func applyFlagOverrides(flags *pflag.FlagSet, cfg *config.Config) error {
	var firstErr error
	flags.Visit(func(f *pflag.Flag) {
		value := f.Value.String()
		switch f.Name {
		case "port":
			cfg.Port = value
		case "index":
			cfg.IndexName = value
		case "prompt-version":
			cfg.PromptVersion = value
		case "log-level":
			cfg.LogLevel = value
		case "dir":
			cfg.SourceDir = value
		case "prefix":
			cfg.S3Prefix = value
		case "max-rank":
			n, err := strconv.Atoi(value)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid --max-rank %q: %w", value, err)
			}
			cfg.MaxRank = n
		}
	})
	if firstErr != nil {
		return firstErr
	}
	return cfg.Validate()
}

func newApp(ctx context.Context, flags *pflag.FlagSet) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	a := &app{
		cfg:    cfg,
		logger: logger,
		spec: domain.IndexSpec{
			Name:       cfg.IndexName,
			Dimensions: cfg.EmbeddingDimensions,
			Metric:     cfg.Metric(),
		},
	}

	if cfg.HasSentry() {
		shutdown, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			TracesSampleRate: telemetry.SampleRateFor(cfg.Environment),
		})
		if err != nil {
			logger.Warn("telemetry init failed, continuing without tracing", slog.String("error", err.Error()))
		} else {
			a.closers = append(a.closers, shutdown)
		}
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DatabaseMaxConns})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.pool = pool
	a.closers = append(a.closers, pool.Close)
	logger.Info("connected to database")

	clientCfg := openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		Limiter:             openai.NewLimiter(cfg.ModelRPS, cfg.ModelBurst),
	}
	a.embeddings = openai.NewClientWithConfig(clientCfg)
	a.chat = openai.NewChatClientWithConfig(clientCfg)

	return a, nil
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) migrate(source string) error {
	if _, err := database.Migrate(a.cfg.DatabaseURL, source, 0, a.logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// pipeline is everything needed to answer queries.
type pipeline struct {
	orchestrator *service.Orchestrator
	sessions     *service.SessionStore
	catalog      *prompts.Catalog
}

func generationConfig(cfg *config.Config) openai.GenerationConfig {
	return openai.GenerationConfig{
		Model:           cfg.ChatModel,
		MaxOutputTokens: cfg.MaxOutputTokens,
		Temperature:     cfg.Temperature,
		TopP:            cfg.TopP,
		TopK:            cfg.TopK,
	}
}

func compressorFor(cfg *config.Config, chat service.ChatCompleter, catalog *prompts.Catalog) service.Compressor {
	if !cfg.CompressionEnabled {
		return service.PassthroughCompressor{}
	}
	gen := generationConfig(cfg)
	gen.Model = cfg.CompressionModelName()
	return service.NewLLMCompressor(chat, catalog.Compression, service.LLMCompressorConfig{
		Generation:  gen,
		Concurrency: cfg.CompressionConcurrency,
	})
}

func orchestratorConfig(cfg *config.Config) service.OrchestratorConfig {
	return service.OrchestratorConfig{
		EmbedTimeout:    cfg.EmbedTimeout,
		RetrieveTimeout: cfg.RetrieveTimeout,
		CompressTimeout: cfg.CompressTimeout,
		GenerateTimeout: cfg.GenerateTimeout,
		QueryTimeout:    cfg.QueryTimeout,
		MaxInFlight:     int64(cfg.MaxInFlight),
		K:               cfg.RetrievalK,
	}
}

func (a *app) pipeline() (*pipeline, error) {
	catalog, err := prompts.Load()
	if err != nil {
		return nil, err
	}
	template, err := catalog.Template(a.cfg.PromptVersion)
	if err != nil {
		return nil, err
	}

	gen := generationConfig(a.cfg)
	if err := gen.Validate(); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration, "invalid generation config", err)
	}

	retriever := service.NewRetrieverWithConfig(
		a.embeddings,
		repository.NewChunkRepository(a.pool, a.spec),
		service.RetrieverConfig{K: a.cfg.RetrievalK, Filter: domain.SearchFilter{MaxRank: a.cfg.MaxRank}},
	)

	orchestrator := service.NewOrchestrator(
		retriever,
		compressorFor(a.cfg, a.chat, catalog),
		service.NewPromptAssembler(template, catalog.NoContextMarker),
		service.NewGenerator(a.chat, gen),
		orchestratorConfig(a.cfg),
		service.WithQueryLog(repository.NewQueryLogRepository(a.pool)),
		service.WithLogger(a.logger),
	)

	sessions, err := service.NewSessionStore(a.cfg.SessionCacheSize, a.cfg.HistoryTurns)
	if err != nil {
		return nil, err
	}

	return &pipeline{orchestrator: orchestrator, sessions: sessions, catalog: catalog}, nil
}

// verifyIndex fails when the configured index is missing or was built with a
// different dimension or metric.
func (a *app) verifyIndex(ctx context.Context) error {
	info, err := repository.NewIndexRepository(a.pool).Verify(ctx, a.spec)
	if err != nil {
		return err
	}
	a.logger.Info("vector index ready",
		slog.String("index", info.Name),
		slog.Int("dimensions", info.Dimensions),
		slog.String("metric", string(info.Metric)))
	return nil
}

// ObjectStoreFactory opens the bucket holding ranking sources.
type ObjectStoreFactory func(ctx context.Context, cfg *config.Config) (service.ObjectStore, error)

func openS3Store(ctx context.Context, cfg *config.Config) (service.ObjectStore, error) {
	client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	return client, nil
}

// sourceLoader picks the ranking source location: a local directory wins over a bucket.
func sourceLoader(ctx context.Context, cfg *config.Config, openStore ObjectStoreFactory) (service.SourceLoader, error) {
	switch {
	case cfg.HasSourceDir():
		return service.NewDirSource(cfg.SourceDir), nil
	case cfg.HasS3():
		store, err := openStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return service.NewBucketSource(store, cfg.S3Prefix), nil
	default:
		return nil, domain.NewDomainError(domain.ErrCodeConfiguration,
			"no ranking source configured: set UNIRANK_SOURCE_DIR or UNIRANK_S3_ENDPOINT with credentials")
	}
}

func (a *app) ingestion(ctx context.Context) (*service.IngestionService, error) {
	loader, err := sourceLoader(ctx, a.cfg, openS3Store)
	if err != nil {
		return nil, err
	}
	return service.NewIngestionService(
		loader,
		a.embeddings,
		repository.NewTxRunner(a.pool, a.spec),
		repository.NewSourceStateRepository(a.pool),
		service.IngestionConfig{IndexName: a.cfg.IndexName},
		a.logger,
	), nil
}
