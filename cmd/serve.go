package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"webchat/internal/app"
	"webchat/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the ingest worker",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, c *config.Config) error {
	if !c.EnableAPI && !c.EnableIngestWorker {
		return errors.New("nothing to run: both ENABLE_API and ENABLE_INGEST_WORKER are false")
	}

	deps, err := app.Bootstrap(ctx, c)
	if err != nil {
		return err
	}
	defer deps.Close()

	a, err := app.New(c, deps.DB, deps.VectorStore, deps.NSQProducer, deps.Bus)
	if err != nil {
		return err
	}
	defer a.Core.Close()

	if c.EnableIngestWorker {
		consumer, err := a.StartIngestWorker()
		if err != nil {
			slog.Error("ingest worker not started", "error", err)
		} else {
			defer consumer.Stop()
		}
	}

	if !c.EnableAPI {
		slog.Info("api disabled, running ingest worker only")
		<-ctx.Done()
		return nil
	}
	return a.Run(ctx)
}
