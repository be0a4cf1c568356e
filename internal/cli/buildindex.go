package cli

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openshelf/bookdex/internal/catalog"
	"github.com/openshelf/bookdex/internal/index"
)

var buildIndexFlags struct {
	embeddings string
	indexPath  string
	metaPath   string
}

var buildIndexCmd = &cobra.Command{
	Use:   "build-index",
	Short: "Build the vector index and aligned metadata table",
	Long: `Read the embeddings parquet file and produce the two artifacts the API
serves from: a binary vector index and a metadata parquet file whose row
order matches the index exactly.

Rows without an embedding are dropped. Duplicate keys abort the build: the
metadata table must resolve every key to exactly one index row.`,
	RunE: runBuildIndex,
}

func init() {
	buildIndexCmd.Flags().StringVar(&buildIndexFlags.embeddings, "embeddings", "", "embeddings parquet file (required)")
	buildIndexCmd.Flags().StringVar(&buildIndexFlags.indexPath, "index", "", "output index file (required)")
	buildIndexCmd.Flags().StringVar(&buildIndexFlags.metaPath, "meta", "", "output metadata parquet file (required)")
	_ = buildIndexCmd.MarkFlagRequired("embeddings")
	_ = buildIndexCmd.MarkFlagRequired("index")
	_ = buildIndexCmd.MarkFlagRequired("meta")
	rootCmd.AddCommand(buildIndexCmd)
}

func runBuildIndex(cmd *cobra.Command, args []string) error {
	rows, err := catalog.ReadEmbeddings(buildIndexFlags.embeddings)
	if err != nil {
		return fmt.Errorf("read embeddings: %w", err)
	}

	var usable []catalog.EmbeddingRow
	dropped := 0
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r.Key == "" || len(r.Embedding) == 0 {
			dropped++
			continue
		}
		if _, dup := seen[r.Key]; dup {
			return fmt.Errorf("duplicate key %q in embeddings file", r.Key)
		}
		seen[r.Key] = struct{}{}
		usable = append(usable, r)
	}
	if len(usable) == 0 {
		return fmt.Errorf("no usable embeddings in %s", buildIndexFlags.embeddings)
	}

	dim := len(usable[0].Embedding)
	log.Info("Building index",
		zap.Int("vectors", len(usable)),
		zap.Int("dropped", dropped),
		zap.Int("dimensions", dim),
	)

	ix, err := index.New(dim)
	if err != nil {
		return fmt.Errorf("new index: %w", err)
	}

	bar := progressbar.NewOptions(len(usable),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Indexing"),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	metaRows := make([]catalog.MetaRow, 0, len(usable))
	for _, r := range usable {
		if len(r.Embedding) != dim {
			return fmt.Errorf("key %q has %d dimensions, expected %d", r.Key, len(r.Embedding), dim)
		}
		if _, err := ix.Add(r.Embedding); err != nil {
			return fmt.Errorf("add vector for %q: %w", r.Key, err)
		}
		metaRows = append(metaRows, catalog.MetaRow{
			Key:     r.Key,
			Title:   r.Title,
			CoverID: r.CoverID,
		})
		_ = bar.Add(1)
	}

	if err := ix.Save(buildIndexFlags.indexPath); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	if err := catalog.WriteMeta(buildIndexFlags.metaPath, metaRows); err != nil {
		return err
	}

	log.Info("Index artifacts written",
		zap.String("index", buildIndexFlags.indexPath),
		zap.String("meta", buildIndexFlags.metaPath),
		zap.Int("vectors", ix.Len()),
	)
	return nil
}
