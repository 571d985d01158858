package admin

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/cloo-solutions/docpipe/internal/config"
	"github.com/cloo-solutions/docpipe/internal/database"
	"github.com/cloo-solutions/docpipe/internal/embed"
	"github.com/cloo-solutions/docpipe/internal/facts"
	"github.com/cloo-solutions/docpipe/internal/ingest"
	"github.com/cloo-solutions/docpipe/internal/llm"
	"github.com/cloo-solutions/docpipe/internal/logging"
	"github.com/cloo-solutions/docpipe/internal/openai"
	"github.com/cloo-solutions/docpipe/internal/repository"
	"github.com/cloo-solutions/docpipe/internal/segment"
	"github.com/cloo-solutions/docpipe/internal/service"
	"github.com/cloo-solutions/docpipe/internal/storage"
	"github.com/cloo-solutions/docpipe/internal/tokenizer"
)

const (
	ProviderOpenAI           = "openai"
	ProviderOllama           = "ollama"
	ProviderOpenAICompatible = "openai-compatible"

	defaultOllamaEmbeddingModel = "nomic-embed-text"
	defaultOllamaChatModel      = "llama3.1"

	migrationsSource = "file://migrations"
)

// provider serves both embeddings and fact-extraction completions.
type provider interface {
	embed.Provider
	facts.Completer
}

// app holds the components shared by serve and ingest.
type app struct {
	cfg          *config.Config
	logger       zerolog.Logger
	pool         *pgxpool.Pool
	orchestrator *ingest.Orchestrator
	source       service.TextSource
	blobs        *storage.S3Client

	documents *repository.DocumentRepository
	statuses  *repository.StatusRepository
	chunks    *repository.ChunkRepository
	jobs      *repository.IngestionJobRepository
	txRunner  *repository.TxRunner
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.Debug})
}

// newApp connects to the database and builds the pipeline. migrate applies
// pending migrations first.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, migrate bool) (*app, error) {
	if migrate {
		if err := database.Migrate(cfg.DatabaseURL, migrationsSource, logger); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("connected to database")

	a := &app{
		cfg:       cfg,
		logger:    logger,
		pool:      pool,
		documents: repository.NewDocumentRepository(pool),
		statuses:  repository.NewStatusRepository(pool),
		chunks:    repository.NewChunkRepository(pool),
		jobs:      repository.NewIngestionJobRepository(pool),
		txRunner:  repository.NewTxRunner(pool),
	}

	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
			UploadURLExpiry: cfg.S3UploadURLExpiry,
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("S3 bucket ready")
		a.source = s3Client
		a.blobs = s3Client
	}

	orchestrator, err := buildOrchestrator(cfg, repository.NewPipelineStore(pool), logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	a.orchestrator = orchestrator
	return a, nil
}

func (a *app) Close() {
	a.orchestrator.Release()
	a.pool.Close()
}

func (a *app) ingestionService() *service.IngestionService {
	return service.NewIngestionService(a.documents, a.source, a.orchestrator, a.logger)
}

func buildOrchestrator(cfg *config.Config, store ingest.Store, logger zerolog.Logger) (*ingest.Orchestrator, error) {
	counter, err := tokenizer.New(cfg.TokenizerEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer: %w", err)
	}
	segmenter, err := segment.New(counter, cfg.SegmentConfig())
	if err != nil {
		return nil, err
	}

	p, model, err := newProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	limiter := cfg.RateLimiter()
	generator := embed.NewGenerator(p,
		embed.WithModel(model),
		embed.WithDimensions(cfg.EmbeddingDimensions),
		embed.WithLimiter(limiter),
		embed.WithLogger(logger),
	)

	opts := []ingest.Option{ingest.WithLogger(logger)}
	if cfg.ExtractFacts {
		opts = append(opts, ingest.WithFactExtractor(facts.NewExtractor(p,
			facts.WithLimiter(limiter),
			facts.WithLogger(logger),
		)))
	}

	return ingest.NewOrchestrator(store, segmenter, generator, cfg.IngestConfig(), opts...)
}

// newProvider returns the configured backend and the embedding model it uses.
func newProvider(cfg *config.Config, logger zerolog.Logger) (provider, string, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		client, err := openai.NewClient(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			BaseURL:             cfg.OpenAIBaseURL,
			EmbeddingModel:      cfg.EmbeddingModel,
			EmbeddingDimensions: cfg.EmbeddingDimensions,
			ChatModel:           cfg.CompletionModel,
		})
		if err != nil {
			return nil, "", fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		model := cfg.EmbeddingModel
		if model == "" {
			model = string(openai.DefaultEmbeddingModel)
		}
		return client, model, nil

	case ProviderOllama:
		embeddingModel := orDefault(cfg.EmbeddingModel, defaultOllamaEmbeddingModel)
		p, err := llm.New(llm.Config{
			Driver:         llm.DriverOllama,
			ServerURL:      cfg.OllamaURL,
			EmbeddingModel: embeddingModel,
			ChatModel:      orDefault(cfg.CompletionModel, defaultOllamaChatModel),
		}, logger)
		if err != nil {
			return nil, "", err
		}
		return p, embeddingModel, nil

	case ProviderOpenAICompatible:
		embeddingModel := orDefault(cfg.EmbeddingModel, string(openai.DefaultEmbeddingModel))
		p, err := llm.New(llm.Config{
			Driver:         llm.DriverOpenAI,
			ServerURL:      cfg.OpenAIBaseURL,
			Token:          cfg.OpenAIAPIKey,
			EmbeddingModel: embeddingModel,
			ChatModel:      orDefault(cfg.CompletionModel, openai.DefaultChatModel),
		}, logger)
		if err != nil {
			return nil, "", err
		}
		return p, embeddingModel, nil
	}
	return nil, "", fmt.Errorf("unknown provider %q (want %s, %s or %s)",
		cfg.Provider, ProviderOpenAI, ProviderOllama, ProviderOpenAICompatible)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func runMigrations(cfg *config.Config) error {
	return database.Migrate(cfg.DatabaseURL, migrationsSource, newLogger(cfg))
}
