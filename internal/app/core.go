package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"webchat/features/chat"
	"webchat/internal/adapter/gemini"
	"webchat/internal/adapter/reranker"
	"webchat/internal/adapter/scraper"
	"webchat/internal/config"
	"webchat/internal/embedding"
	"webchat/internal/ingest"
	"webchat/internal/retrieval"
	"webchat/internal/settings"
	"webchat/internal/text"
	"webchat/internal/vector"
)

// Core is the retrieval pipeline shared by the HTTP service and the CLI.
// Ingestion and retrieval always share one embedder.
type Core struct {
	Settings  *settings.Service
	Store     vector.Store
	Embedder  embedding.Embedder
	Chunker   *text.Chunker
	Pipeline  *ingest.Pipeline
	Retriever *retrieval.Service
	Scraper   *scraper.Scraper
	ChatModel *gemini.ChatModel

	pool     *gemini.ClientPool
	queryLog *retrieval.QueryLogger
}

// SettingsDefaults maps environment config onto runtime settings.
func SettingsDefaults(cfg *config.Config) settings.Settings {
	return settings.Settings{
		RerankProvider: "none",
		RerankAPIKey:   cfg.RerankAPIKey,
		GeminiAPIKey:   cfg.GeminiAPIKey,
		SearchTopK:     cfg.RetrievalTopK,
		MinScore:       settings.Score(cfg.RetrievalMinScore),
	}
}

func NewCore(cfg *config.Config, store vector.Store, set *settings.Service) (*Core, error) {
	guard := gemini.NewGuard(gemini.GuardSettings{
		Name:        "gemini",
		MaxFailures: cfg.BreakerMaxFailures,
		OpenTimeout: cfg.BreakerOpenTimeout,
		RPS:         cfg.GeminiRPS,
	})
	pool := gemini.NewClientPool(gemini.SettingsKey(set))

	emb, err := newEmbedder(cfg, pool, guard)
	if err != nil {
		return nil, err
	}

	measure := text.Runes
	if cfg.ChunkUnit == config.ChunkUnitTokens {
		counter, err := text.NewTokenCounter()
		if err != nil {
			return nil, err
		}
		measure = counter.Count
	}
	chunker, err := text.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap, measure)
	if err != nil {
		return nil, fmt.Errorf("chunker: %w", err)
	}

	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}

	return &Core{
		Settings:  set,
		Store:     store,
		Embedder:  emb,
		Chunker:   chunker,
		Pipeline:  ingest.New(chunker, emb, store),
		Retriever: retrieval.NewService(emb, store, reranker.NewDynamicClient(set), set, queryLogger),
		Scraper:   scraper.New(cfg.ScrapeTimeout),
		ChatModel: gemini.NewChatModel(pool, cfg.AgentModel, guard, chat.SystemPrompt, chat.SearchTool),
		pool:      pool,
		queryLog:  queryLogger,
	}, nil
}

func newEmbedder(cfg *config.Config, pool *gemini.ClientPool, guard *gemini.Guard) (embedding.Embedder, error) {
	ec := embedding.Config{Provider: cfg.EmbeddingProvider, Model: cfg.EmbeddingModel, Dimension: cfg.EmbeddingDimension}
	if err := ec.Validate(); err != nil {
		return nil, err
	}
	if ec.Provider == embedding.ProviderHashing {
		return embedding.NewHashing(ec.Dimension)
	}
	return gemini.NewEmbedder(pool, ec.Model, guard), nil
}

func (c *Core) Close() error {
	return errors.Join(c.pool.Close(), c.queryLog.Close())
}
