package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	goredis "github.com/redis/go-redis/v9"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"webchat/internal/adapter/memory"
	webredis "webchat/internal/adapter/redis"
	wstore "webchat/internal/adapter/weaviate"
	"webchat/internal/config"
	"webchat/internal/vector"
)

type Dependencies struct {
	DB          *sql.DB
	VectorStore vector.Store
	NSQProducer *nsq.Producer
	// Bus is nil when REDIS_URL is empty.
	Bus *webredis.Bus

	redis *goredis.Client
}

func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			slog.Warn("failed to close database", "error", err)
		}
	}
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	db, err := OpenDB(cfg, retryDelay)
	if err != nil {
		return nil, err
	}
	deps := &Dependencies{DB: db}

	if err := Migrate(db, cfg.MigrationPath); err != nil {
		deps.Close()
		return nil, err
	}

	store, err := NewVectorStore(ctx, cfg, retryDelay)
	if err != nil {
		deps.Close()
		return nil, err
	}
	deps.VectorStore = store

	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}
	deps.NSQProducer = producer
	createTopics(cfg.NSQDHTTP)

	if cfg.RedisURL != "" {
		rdb, err := webredis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.redis = rdb
		deps.Bus = webredis.NewBus(rdb, config.ChannelSessionInvalidate)
	}

	return deps, nil
}

func OpenDB(cfg *config.Config, retryDelay time.Duration) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return db, nil
}

func Migrate(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	slog.Info("migrations applied")
	return nil
}

// NewVectorStore returns the configured store, waiting for Weaviate's schema when needed.
func NewVectorStore(ctx context.Context, cfg *config.Config, retryDelay time.Duration) (vector.Store, error) {
	if cfg.VectorStore == config.VectorStoreMemory {
		slog.Warn("using in-memory vector store; collections are lost on restart")
		return memory.NewStore(), nil
	}

	client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
	if err != nil {
		return nil, fmt.Errorf("weaviate client error: %w", err)
	}
	schema := &weaviateSchema{adapter: vector.NewWeaviateClientAdapter(client)}
	if err := EnsureSchemaWithRetry(ctx, schema, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		return nil, fmt.Errorf("weaviate schema error: %w", err)
	}
	return wstore.NewStore(client), nil
}

type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

type weaviateSchema struct {
	adapter *vector.WeaviateClientAdapter
}

func (s *weaviateSchema) EnsureSchema(ctx context.Context) error {
	if err := s.adapter.Ready(ctx); err != nil {
		return err
	}
	return vector.EnsureSchema(ctx, s.adapter)
}

// EnsureSchemaWithRetry makes at least one attempt and stops early on ctx cancellation.
func EnsureSchemaWithRetry(ctx context.Context, store SchemaEnsurer, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = store.EnsureSchema(ctx); err == nil {
			return nil
		}
		slog.Warn("failed to ensure weaviate schema, retrying...", "attempt", i+1, "error", err)
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}

// createTopics pre-creates topics so consumers polling lookupd don't 404 before the first publish.
func createTopics(nsqdHTTP string) {
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicIngestSite)
	}()
}
