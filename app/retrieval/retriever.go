package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"banyan/model"
	"banyan/store"
	"banyan/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("banyan/retrieval")

// Retriever runs the reference pipeline for a single claim text:
// embed, search, classify, format.
type Retriever struct {
	embedder model.Embedder
	searcher store.ChunkSearcher
	logger   *slog.Logger
}

func NewRetriever(embedder model.Embedder, searcher store.ChunkSearcher, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		searcher: searcher,
		logger:   logger,
	}
}

// FindReferences returns the passages most similar to text, best first.
// An empty result is not an error.
func (r *Retriever) FindReferences(ctx context.Context, text string, opts types.SearchOptions) ([]types.ReferencePassage, error) {
	ctx, span := tracer.Start(ctx, "retrieval.find_references")
	defer span.End()
	span.SetAttributes(
		attribute.Int("retrieval.top_k", opts.TopK),
		attribute.Float64("retrieval.min_similarity", opts.MinSimilarity),
	)

	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("embed claim: %w", err)
	}

	matches, err := r.searcher.SearchChunks(ctx, vec, opts.TopK, opts.MinSimilarity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, err
	}

	refs := make([]types.ReferencePassage, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, FormatReference(m))
	}
	span.SetAttributes(attribute.Int("retrieval.references", len(refs)))

	r.logger.Debug("references found", "count", len(refs), "top_k", opts.TopK)
	return refs, nil
}
