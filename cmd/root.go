package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"webchat/internal/config"
	"webchat/internal/logger"
)

var (
	cfg       *config.Config
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "webchat",
	Short:         "Chat with any website",
	Long:          `webchat ingests a web page into a vector collection and answers questions grounded in it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		l, closer, err := logger.New(logger.Options{
			Dir:         c.LogDir,
			Level:       c.LogLevel,
			ToConsole:   c.LogToConsole,
			MaxBytes:    c.LogMaxBytes,
			BackupCount: c.LogBackupCount,
		})
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		slog.SetDefault(l)
		cfg, logCloser = c, closer
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

// Execute runs the root command and returns its error for main to report.
func Execute() error {
	return rootCmd.Execute()
}
