package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"webchat/features/site"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [url]",
	Short: "Scrape a page and index it into its collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.IngestTimeout)
		defer cancel()

		url, err := site.Validate(args[0])
		if err != nil {
			return err
		}

		core, err := newLocalCore(ctx)
		if err != nil {
			return err
		}
		defer core.Close()

		page, err := core.Scraper.Scrape(ctx, url)
		if err != nil {
			return err
		}
		res, err := core.Pipeline.Ingest(ctx, url, page.Text)
		if err != nil {
			return fmt.Errorf("ingestion failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "url:        %s\n", url)
		fmt.Fprintf(out, "collection: %s\n", res.CollectionName)
		fmt.Fprintf(out, "chunks:     %d\n", res.NumChunks)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
