package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"webchat/internal/collection"
	"webchat/internal/config"
	"webchat/internal/grounding"
)

var askTopK int

var askCmd = &cobra.Command{
	Use:   "ask [url] [question]",
	Short: "Print the evidence search_website returns for a question",
	Long: `Print the evidence search_website returns for a question.

ask reads collections written by earlier ingestions, so it needs the Weaviate
store. With VECTOR_STORE=memory every process starts empty and ask is refused.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.VectorStore == config.VectorStoreMemory {
			return fmt.Errorf("ask needs a persistent vector store: VECTOR_STORE=%s starts empty in every process", cfg.VectorStore)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.ChatTimeout)
		defer cancel()

		core, err := newLocalCore(ctx)
		if err != nil {
			return err
		}
		defer core.Close()

		tool := grounding.NewTool(core.Retriever, collection.Normalize(args[0])).WithTopK(askTopK)
		fmt.Fprintln(cmd.OutOrStdout(), tool.SearchWebsite(ctx, strings.Join(args[1:], " ")))
		return nil
	},
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of chunks to return (default from settings)")
	rootCmd.AddCommand(askCmd)
}
