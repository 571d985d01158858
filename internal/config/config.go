package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/time/rate"

	"github.com/cloo-solutions/docpipe/internal/ingest"
	"github.com/cloo-solutions/docpipe/internal/segment"
)

const Prefix = "DOCPIPE"

type Config struct {
	Port     string `envconfig:"PORT" default:"8080"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`

	Provider            string  `envconfig:"PROVIDER" default:"openai"`
	OpenAIAPIKey        string  `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string  `envconfig:"OPENAI_BASE_URL"`
	OllamaURL           string  `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	EmbeddingModel      string  `envconfig:"EMBEDDING_MODEL"`
	EmbeddingDimensions int     `envconfig:"EMBEDDING_DIMENSIONS"`
	CompletionModel     string  `envconfig:"COMPLETION_MODEL"`
	ProviderRPS         float64 `envconfig:"PROVIDER_RPS" default:"0"`
	ProviderBurst       int     `envconfig:"PROVIDER_BURST" default:"1"`
	TokenizerEncoding   string  `envconfig:"TOKENIZER_ENCODING" default:"cl100k_base"`

	ChunkTargetTokens  int    `envconfig:"CHUNK_TARGET_TOKENS" default:"1000"`
	ChunkOverlapTokens int    `envconfig:"CHUNK_OVERLAP_TOKENS" default:"150"`
	ChunkMinTokens     int    `envconfig:"CHUNK_MIN_TOKENS" default:"25"`
	SingleChunkChars   int    `envconfig:"SINGLE_CHUNK_CHARS" default:"150"`
	ShortSegments      string `envconfig:"SHORT_SEGMENTS" default:"fold"`

	ExtractFacts          bool          `envconfig:"EXTRACT_FACTS" default:"true"`
	EmbedFacts            bool          `envconfig:"EMBED_FACTS" default:"true"`
	FactFailureAbortRatio float64       `envconfig:"FACT_FAILURE_ABORT_RATIO" default:"0"`
	AbortOnFactOutage     bool          `envconfig:"ABORT_ON_FACT_OUTAGE" default:"false"`
	IngestConcurrency     int           `envconfig:"INGEST_CONCURRENCY" default:"4"`
	EmbedRetries          int           `envconfig:"EMBED_RETRIES" default:"1"`
	StaleRunAfter         time.Duration `envconfig:"STALE_RUN_AFTER" default:"30m"`

	WorkerPollInterval time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"5s"`
	WorkerBatchSize    int           `envconfig:"WORKER_BATCH_SIZE" default:"4"`
	WorkerMaxRetries   int32         `envconfig:"WORKER_MAX_RETRIES" default:"3"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"docpipe-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	S3UploadURLExpiry time.Duration `envconfig:"S3_UPLOAD_URL_EXPIRY" default:"15m"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// SegmentConfig projects the chunking settings.
func (c *Config) SegmentConfig() segment.Config {
	return segment.Config{
		TargetChunkTokens:             c.ChunkTargetTokens,
		ChunkOverlapTokens:            c.ChunkOverlapTokens,
		MinChunkTokens:                c.ChunkMinTokens,
		ForceSingleChunkCharThreshold: c.SingleChunkChars,
		ShortSegments:                 segment.ShortSegmentPolicy(c.ShortSegments),
	}
}

// IngestConfig projects the orchestrator settings.
func (c *Config) IngestConfig() ingest.Config {
	cfg := ingest.DefaultConfig()
	cfg.EmbedFacts = c.EmbedFacts
	cfg.FactFailureAbortRatio = c.FactFailureAbortRatio
	cfg.AbortOnExtractionOutage = c.AbortOnFactOutage
	cfg.Concurrency = c.IngestConcurrency
	cfg.EmbedRetries = c.EmbedRetries
	cfg.StaleRunAfter = c.StaleRunAfter
	return cfg
}

// RateLimiter returns the provider limiter shared by extraction and
// embedding, or nil when PROVIDER_RPS is not set.
func (c *Config) RateLimiter() *rate.Limiter {
	if c.ProviderRPS <= 0 {
		return nil
	}
	burst := c.ProviderBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.ProviderRPS), burst)
}

// TracesSampleRate samples every transaction in development and 10% elsewhere.
func (c *Config) TracesSampleRate() float64 {
	if c.Environment == "development" {
		return 1.0
	}
	return 0.1
}
