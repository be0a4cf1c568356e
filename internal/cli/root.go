// Package cli implements the bookdexctl offline pipeline commands.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openshelf/bookdex/internal/logger"
	"github.com/openshelf/bookdex/internal/version"
)

var (
	verbose bool
	log     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "bookdexctl",
	Short: "Offline pipeline for the bookdex search index",
	Long: `bookdexctl builds the artifacts the bookdex API serves from:

  bookdexctl embed        # embed book texts into an embeddings parquet file
  bookdexctl build-index  # build the vector index and aligned metadata table

The embed step calls the embedding provider (or a deterministic dry-run
provider) in batches with retry; build-index turns the embeddings file into
a binary index plus a row-aligned metadata parquet file.`,
	Version: version.String(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "info"
		if verbose {
			level = "debug"
		}
		var err error
		log, err = logger.NewLogger("local", level)
		return err
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
