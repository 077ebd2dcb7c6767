package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

const (
	VectorStoreWeaviate = "weaviate"
	VectorStoreMemory   = "memory"

	ChunkUnitTokens = "tokens"
	ChunkUnitChars  = "chars"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"webchat"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"webchat"`

	VectorStore    string `envconfig:"VECTOR_STORE" default:"weaviate"`
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd    string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost      string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP      string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	NSQMaxMsgSize int64  `envconfig:"NSQ_MAX_MSG_SIZE" default:"1048576"`

	// Empty disables cross-replica session invalidation.
	RedisURL string `envconfig:"REDIS_URL"`

	EnableAPI          bool   `envconfig:"ENABLE_API" default:"true"`
	EnableIngestWorker bool   `envconfig:"ENABLE_INGEST_WORKER" default:"true"`
	MigrationPath      string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Models
	GeminiAPIKey       string `envconfig:"GEMINI_API_KEY"`
	RerankAPIKey       string `envconfig:"RERANK_API_KEY"`
	EmbeddingProvider  string `envconfig:"EMBEDDING_PROVIDER" default:"gemini"`
	EmbeddingModel     string `envconfig:"EMBEDDING_MODEL" default:"gemini-embedding-001"`
	EmbeddingDimension int    `envconfig:"EMBEDDING_DIMENSION" default:"384"`
	AgentModel         string `envconfig:"AGENT_MODEL" default:"gemini-2.0-flash-001"`
	AgentMaxToolRounds int    `envconfig:"AGENT_MAX_TOOL_ROUNDS" default:"4"`

	// Retrieval pipeline
	ChunkSize         int     `envconfig:"CHUNK_SIZE" default:"512"`
	ChunkOverlap      int     `envconfig:"CHUNK_OVERLAP" default:"64"`
	ChunkUnit         string  `envconfig:"CHUNK_UNIT" default:"tokens"`
	RetrievalTopK     int     `envconfig:"RETRIEVAL_TOP_K" default:"5"`
	RetrievalMinScore float64 `envconfig:"RETRIEVAL_MIN_SCORE" default:"0"`

	// Sessions
	SessionCacheSize int           `envconfig:"SESSION_CACHE_SIZE" default:"128"`
	SessionTTL       time.Duration `envconfig:"SESSION_TTL" default:"30m"`

	// Server
	ServerPort    int           `envconfig:"SERVER_PORT" default:"8000"`
	QueryLogPath  string        `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	ScrapeTimeout time.Duration `envconfig:"SCRAPE_TIMEOUT" default:"30s"`
	IngestTimeout time.Duration `envconfig:"INGEST_TIMEOUT" default:"5m"`
	ChatTimeout   time.Duration `envconfig:"CHAT_TIMEOUT" default:"2m"`

	// Logging
	LogDir         string `envconfig:"LOG_DIR" default:"logs"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"INFO"`
	LogToConsole   bool   `envconfig:"LOG_TO_CONSOLE" default:"true"`
	LogMaxBytes    int    `envconfig:"LOG_MAX_BYTES" default:"10485760"`
	LogBackupCount int    `envconfig:"LOG_BACKUP_COUNT" default:"5"`

	// Resilience
	GeminiRPS                  float64       `envconfig:"GEMINI_RPS" default:"10"`
	BreakerMaxFailures         uint32        `envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	BreakerOpenTimeout         time.Duration `envconfig:"BREAKER_OPEN_TIMEOUT" default:"30s"`
	BootstrapRetryAttempts     int           `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int           `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrInvalidValue)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_SIZE)", ErrInvalidValue)
	}
	if c.ChunkUnit != ChunkUnitTokens && c.ChunkUnit != ChunkUnitChars {
		return fmt.Errorf("%w: CHUNK_UNIT %q", ErrInvalidValue, c.ChunkUnit)
	}
	if c.VectorStore != VectorStoreWeaviate && c.VectorStore != VectorStoreMemory {
		return fmt.Errorf("%w: VECTOR_STORE %q", ErrInvalidValue, c.VectorStore)
	}
	if c.SessionCacheSize <= 0 {
		return fmt.Errorf("%w: SESSION_CACHE_SIZE must be positive", ErrInvalidValue)
	}
	return nil
}
