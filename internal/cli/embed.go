package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openshelf/bookdex/internal/catalog"
	"github.com/openshelf/bookdex/internal/domain"
	openaiEmb "github.com/openshelf/bookdex/internal/transport/openai"
	embeddinguc "github.com/openshelf/bookdex/internal/usecase/embedding"
)

var embedFlags struct {
	input      string
	output     string
	model      string
	dimensions int
	batchSize  int
	baseURL    string
	dryRun     bool
	resume     bool
}

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed book texts into an embeddings parquet file",
	Long: `Read the embedding-input parquet file (key, title, book_text, cover_i),
embed every non-empty book_text in batches, and write an embeddings parquet
file for build-index.

The provider API key is read from the OPENAI_API_KEY environment variable.
--dry-run replaces the provider with a deterministic local embedder, useful
for pipeline rehearsals without spending tokens.

With --resume, keys already present in the output file are skipped and the
existing rows are kept, so an interrupted run can pick up where it stopped.`,
	RunE: runEmbed,
}

func init() {
	embedCmd.Flags().StringVar(&embedFlags.input, "input", "", "input parquet file (required)")
	embedCmd.Flags().StringVar(&embedFlags.output, "output", "", "output embeddings parquet file (required)")
	embedCmd.Flags().StringVar(&embedFlags.model, "model", "text-embedding-3-small", "embedding model id")
	embedCmd.Flags().IntVar(&embedFlags.dimensions, "dimensions", 0, "embedding dimensions (0 = provider default)")
	embedCmd.Flags().IntVar(&embedFlags.batchSize, "batch-size", 128, "texts per provider request")
	embedCmd.Flags().StringVar(&embedFlags.baseURL, "base-url", "", "OpenAI-compatible API base URL")
	embedCmd.Flags().BoolVar(&embedFlags.dryRun, "dry-run", false, "use a deterministic local embedder")
	embedCmd.Flags().BoolVar(&embedFlags.resume, "resume", false, "skip keys already present in the output file")
	_ = embedCmd.MarkFlagRequired("input")
	_ = embedCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := catalog.ReadInput(embedFlags.input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	done, err := loadResumeState()
	if err != nil {
		return err
	}

	var pending []catalog.InputRow
	seen := make(map[string]struct{}, len(rows))
	skippedEmpty, skippedDone := 0, 0
	for _, r := range rows {
		if r.Key == "" || r.BookText == "" {
			skippedEmpty++
			continue
		}
		if _, dup := seen[r.Key]; dup {
			return fmt.Errorf("duplicate key %q in input", r.Key)
		}
		seen[r.Key] = struct{}{}
		if _, ok := done[r.Key]; ok {
			skippedDone++
			continue
		}
		pending = append(pending, r)
	}

	log.Info("Embedding input loaded",
		zap.Int("rows", len(rows)),
		zap.Int("pending", len(pending)),
		zap.Int("skipped_empty", skippedEmpty),
		zap.Int("skipped_done", skippedDone),
		zap.String("model", embedFlags.model),
		zap.Bool("dry_run", embedFlags.dryRun),
	)

	embedder, err := buildPipelineEmbedder()
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(pending),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Embedding"),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)

	embeddedAt := time.Now().UTC().Format(time.RFC3339)
	out := make([]catalog.EmbeddingRow, 0, len(done)+len(pending))
	for _, r := range done {
		out = append(out, r)
	}

	for offset := 0; offset < len(pending); offset += embedFlags.batchSize {
		end := offset + embedFlags.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[offset:end]

		texts := make([]string, len(batch))
		for i, r := range batch {
			texts[i] = r.BookText
		}

		result, err := embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch at row %d: %w", offset, err)
		}
		if len(result.Embeddings) != len(batch) {
			return fmt.Errorf("%w: batch at row %d returned %d vectors for %d texts",
				domain.ErrEmbeddingProviderError, offset, len(result.Embeddings), len(batch))
		}

		for i, r := range batch {
			out = append(out, catalog.EmbeddingRow{
				Key:        r.Key,
				Title:      r.Title,
				CoverID:    r.CoverID,
				Model:      embedFlags.model,
				EmbeddedAt: embeddedAt,
				Embedding:  result.Embeddings[i],
			})
		}
		_ = bar.Add(len(batch))
	}

	if err := catalog.WriteEmbeddings(embedFlags.output, out); err != nil {
		return err
	}

	log.Info("Embeddings written",
		zap.String("path", embedFlags.output),
		zap.Int("rows", len(out)),
	)
	return nil
}

// loadResumeState returns already-embedded rows keyed by item key, or an
// empty map when resume is off or the output does not exist yet.
func loadResumeState() (map[string]catalog.EmbeddingRow, error) {
	done := make(map[string]catalog.EmbeddingRow)
	if !embedFlags.resume {
		return done, nil
	}
	if _, err := os.Stat(embedFlags.output); err != nil {
		return done, nil
	}

	existing, err := catalog.ReadEmbeddings(embedFlags.output)
	if err != nil {
		return nil, fmt.Errorf("read existing output for resume: %w", err)
	}
	for _, r := range existing {
		if r.Key != "" && len(r.Embedding) > 0 {
			done[r.Key] = r
		}
	}
	return done, nil
}

func buildPipelineEmbedder() (domain.BatchEmbedder, error) {
	if embedFlags.dryRun {
		dim := embedFlags.dimensions
		if dim <= 0 {
			return nil, fmt.Errorf("--dimensions is required with --dry-run")
		}
		return embeddinguc.NewDryRunEmbedder(dim), nil
	}

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}

	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     apiKey,
		BaseURL:    embedFlags.baseURL,
		Model:      embedFlags.model,
		Dimensions: embedFlags.dimensions,
		Provider:   "openai",
		Logger:     log,
	})

	chunked := embeddinguc.NewInstrumentedEmbedder(base, "openai", embedFlags.model, log)
	return embeddinguc.NewRetryingEmbedder(chunked, 0, 0, log), nil
}
