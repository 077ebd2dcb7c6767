package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nsqio/go-nsq"

	"webchat/features/chat"
	"webchat/features/job"
	"webchat/features/mcp"
	"webchat/features/site"
	"webchat/features/stats"
	webredis "webchat/internal/adapter/redis"
	"webchat/internal/config"
	"webchat/internal/middleware"
	"webchat/internal/settings"
	"webchat/internal/vector"
	"webchat/internal/worker"
)

// TaskPublisher is satisfied by *nsq.Producer.
type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type App struct {
	Handler        http.Handler
	Core           *Core
	Sites          *site.Service
	Sessions       *chat.Sessions
	IngestConsumer *worker.IngestConsumer

	cfg *config.Config
	bus *webredis.Bus
}

// New wires features onto db and store. pub and bus may be nil: async ingestion
// and cross-replica invalidation are then unavailable.
func New(cfg *config.Config, db *sql.DB, store vector.Store, pub TaskPublisher, bus *webredis.Bus) (*App, error) {
	settingsService := settings.NewService(settings.NewPostgresRepo(db), settings.WithDefaults(SettingsDefaults(cfg)))
	settingsHandler := settings.NewHandler(settingsService)

	core, err := NewCore(cfg, store, settingsService)
	if err != nil {
		return nil, err
	}

	// Feature: Chat
	sessions := chat.NewSessions(cfg.SessionCacheSize, cfg.SessionTTL, core.Retriever)
	chatService := chat.NewService(sessions, chat.NewAgent(core.ChatModel, cfg.AgentMaxToolRounds), core.Retriever, cfg.ChatTimeout)
	chatHandler := chat.NewHandler(chatService)

	invalidator := &chat.BroadcastInvalidator{Local: sessions}
	if bus != nil {
		invalidator.Bus = bus
	}

	// Feature: Site
	siteRepo := site.NewPostgresRepo(db)
	siteService := site.NewService(siteRepo, core.Scraper, core.Pipeline, store, invalidator, pub)
	siteHandler := site.NewHandler(siteService, cfg.IngestTimeout)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, pub, slog.Default())
	jobHandler := job.NewHandler(jobService)

	statsHandler := stats.NewHandler(siteService, jobService, store, chatService)
	mcpHandler := mcp.NewHandler(core.Retriever, siteService)

	mux := http.NewServeMux()
	route := func(pattern string, h http.Handler) {
		mux.Handle(pattern, middleware.CorrelationID(middleware.CORS(h)))
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	// Preflight for every route.
	mux.Handle("OPTIONS /", middleware.CORS(http.NotFoundHandler()))

	route("POST /ingest", http.HandlerFunc(siteHandler.Ingest))
	route("POST /chat", http.HandlerFunc(chatHandler.Chat))
	route("POST /retrieve", http.HandlerFunc(chatHandler.Retrieve))

	route("GET /sites", http.HandlerFunc(siteHandler.List))
	route("GET /sites/{id}", http.HandlerFunc(siteHandler.Get))
	route("DELETE /sites/{id}", http.HandlerFunc(siteHandler.Delete))
	route("POST /sites/{id}/resync", http.HandlerFunc(siteHandler.Resync))

	route("GET /settings", http.HandlerFunc(settingsHandler.GetSettings))
	route("PUT /settings", http.HandlerFunc(settingsHandler.UpdateSettings))

	route("GET /jobs/failed", http.HandlerFunc(jobHandler.List))
	route("POST /jobs/{id}/retry", http.HandlerFunc(jobHandler.Retry))

	route("GET /stats", http.HandlerFunc(statsHandler.GetStats))

	route("POST /mcp", mcpHandler)
	route("GET /mcp/sse", http.HandlerFunc(mcpHandler.HandleSSE))
	route("POST /mcp/messages", http.HandlerFunc(mcpHandler.HandleMessage))

	return &App{
		Handler:        mux,
		Core:           core,
		Sites:          siteService,
		Sessions:       sessions,
		IngestConsumer: worker.NewIngestConsumer(siteService, jobService, cfg.IngestTimeout),
		cfg:            cfg,
		bus:            bus,
	}, nil
}

// StartIngestWorker consumes ingest tasks until the returned consumer is stopped.
func (a *App) StartIngestWorker() (*nsq.Consumer, error) {
	consumer, err := nsq.NewConsumer(config.TopicIngestSite, config.ChannelIngestWorker, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddHandler(a.IngestConsumer)
	if err := consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd); err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("nsq lookupd connect: %w", err)
	}
	slog.Info("ingest worker connected", "topic", config.TopicIngestSite, "channel", config.ChannelIngestWorker)
	return consumer, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	if a.bus != nil {
		err := a.bus.Subscribe(ctx, func(url string) {
			a.Sessions.Invalidate(ctx, url)
		})
		if err != nil {
			return fmt.Errorf("subscribe to session invalidations: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
