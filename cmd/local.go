package cmd

import (
	"context"
	"time"

	"webchat/internal/app"
	"webchat/internal/settings"
)

// newLocalCore builds the pipeline without Postgres; settings come from the environment only.
func newLocalCore(ctx context.Context) (*app.Core, error) {
	store, err := app.NewVectorStore(ctx, cfg, time.Duration(cfg.BootstrapRetryDelaySeconds)*time.Second)
	if err != nil {
		return nil, err
	}
	set := settings.NewService(settings.NewMemoryRepo(), settings.WithDefaults(app.SettingsDefaults(cfg)))
	return app.NewCore(cfg, store, set)
}
