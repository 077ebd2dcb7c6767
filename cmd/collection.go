package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"webchat/internal/collection"
)

var collectionCmd = &cobra.Command{
	Use:   "collection [url]",
	Short: "Show the normalized URL and collection name for a URL",
	Args:  cobra.ExactArgs(1),
	// Pure computation; skip config and logging setup.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		url, name := collection.Resolve(args[0])
		fmt.Fprintf(cmd.OutOrStdout(), "url:        %s\ncollection: %s\n", url, name)
	},
}

func init() {
	rootCmd.AddCommand(collectionCmd)
}
