package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultBuildConcurrency bounds parallel embedding calls during a build.
const DefaultBuildConcurrency = 4

// BuildOptions configures BuildIndex.
type BuildOptions struct {
	ChunkTokens   int
	OverlapTokens int
	Concurrency   int
}

// BuildIndex loads the knowledge base in dir, chunks it and embeds every
// chunk with bounded concurrency. The first embedding error cancels the
// remaining calls.
func BuildIndex(ctx context.Context, dir string, embedder Embedder, opts BuildOptions) (*Index, error) {
	ctx, span := tracer.Start(ctx, "retrieval.build_index")
	defer span.End()
	start := time.Now()

	docs, err := LoadDocuments(dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "loading documents failed")
		return nil, fmt.Errorf("loading knowledge base: %w", err)
	}
	chunks := ChunkDocuments(docs, NewSplitter(opts.ChunkTokens, opts.OverlapTokens))
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrIndexEmpty)
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultBuildConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range chunks {
		c := &chunks[i]
		g.Go(func() error {
			vec, err := embedder.Embed(gctx, c.Text)
			if err != nil {
				return fmt.Errorf("embedding chunk %s: %w", c.ID, err)
			}
			c.Embedding = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, err
	}

	ix, err := NewIndex(chunks, embedder.Name())
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("index.documents", len(docs)),
		attribute.Int("index.chunks", ix.Len()),
	)
	log.Info().
		Int("documents", len(docs)).
		Int("chunks", ix.Len()).
		Str("embedder", embedder.Name()).
		Dur("duration", time.Since(start)).
		Msg("index_built")
	return ix, nil
}
