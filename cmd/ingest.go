package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mentora-ai/mentora/internal/app"
	"github.com/mentora-ai/mentora/internal/config"
	"github.com/mentora-ai/mentora/internal/knowledge"
	"github.com/mentora-ai/mentora/internal/log"
)

var ingestNamespace string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Load knowledge chunks into the corpus",
	Long: `Ingest reads a JSON-lines file of knowledge chunks, embeds each one,
and upserts it into the vector store. One JSON object per line:

  {"parent_id": "doc-1", "chunk_index": 0, "namespace": "faqs", "content": "...", "metadata": {"source": "..."}}

Re-ingesting the same (parent_id, chunk_index) replaces the stored chunk.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context(), args[0])
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestNamespace, "namespace", "", "Namespace for chunks that do not carry one (default: configured default namespace)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context, path string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	namespace := ingestNamespace
	if namespace == "" {
		namespace = cfg.DefaultNamespace
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening chunk file: %w", err)
	}
	defer func() { _ = f.Close() }()

	chunks, err := knowledge.ReadChunks(f, namespace)
	if err != nil {
		return fmt.Errorf("reading chunk file: %w", err)
	}
	if len(chunks) == 0 {
		fmt.Println("no chunks to ingest")
		return nil
	}

	logger := log.New(log.Config{JSON: true})
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	for i, c := range chunks {
		if err := a.Knowledge.Upsert(ctx, c); err != nil {
			return fmt.Errorf("ingesting chunk %d of %d (%s[%d]): %w", i+1, len(chunks), c.ParentID, c.Index, err)
		}
	}

	fmt.Printf("ingested %d chunks\n", len(chunks))
	return nil
}
