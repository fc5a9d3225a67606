package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sushiva/omni-channel-ai-servicing/internal/config"
	"github.com/sushiva/omni-channel-ai-servicing/internal/retrieval"
)

var (
	indexDir         string
	indexWatch       bool
	indexConcurrency int
	indexDebounce    time.Duration
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the knowledge base index from policy and FAQ documents",
	Long: `Loads the markdown documents under the knowledge directory, chunks and embeds
them, and writes the index used by 'servicing serve'. With --watch the index is
rebuilt whenever a document changes; running servers pick it up on restart.`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexDir, "dir", "", "Knowledge base directory (default: knowledge_dir from config)")
	indexCmd.Flags().BoolVar(&indexWatch, "watch", false, "Rebuild on document changes until interrupted")
	indexCmd.Flags().IntVar(&indexConcurrency, "concurrency", retrieval.DefaultBuildConcurrency, "Parallel embedding calls")
	indexCmd.Flags().DurationVar(&indexDebounce, "debounce", retrieval.DefaultWatchDebounce, "Quiet period before a rebuild in --watch mode")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := indexDir
	if dir == "" {
		dir = cfg.KnowledgeDir
	}
	emb, err := newEmbedder(ctx, cfg, retrieval.TaskRetrievalDocument)
	if err != nil {
		return fmt.Errorf("embedding provider: %w", err)
	}

	build := func(ctx context.Context) error {
		return buildIndex(ctx, cfg, dir, emb, cmd)
	}
	if err := build(ctx); err != nil {
		return err
	}
	if !indexWatch {
		return nil
	}
	log.Info().Str("dir", dir).Msg("knowledge_watch_started")
	return retrieval.Watch(ctx, dir, indexDebounce, build)
}

func buildIndex(ctx context.Context, cfg *config.Config, dir string, emb retrieval.Embedder, cmd *cobra.Command) error {
	ctx, span := tracer.Start(ctx, "index.build")
	defer span.End()

	start := time.Now()
	ix, err := retrieval.BuildIndex(ctx, dir, emb, retrieval.BuildOptions{Concurrency: indexConcurrency})
	if err != nil {
		return fmt.Errorf("building index: %w", err)
	}
	if err := retrieval.SaveIndex(ctx, cfg.IndexPath, ix); err != nil {
		return fmt.Errorf("saving index: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\u2713 Indexed %d chunks from %s into %s (%s, %s)\n",
		ix.Len(), dir, cfg.IndexPath, ix.Embedder(), time.Since(start).Round(time.Millisecond))
	return nil
}
