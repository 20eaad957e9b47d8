package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"banyan/loader/internal"
	"banyan/model"
	"banyan/store"
	"banyan/types"

	"github.com/google/uuid"
)

const DefaultEmbedBatchSize = 100

// SourceWriter is the part of the store the ingester writes through.
type SourceWriter interface {
	FindSourceByHash(ctx context.Context, hash string) (*types.Source, error)
	CreateSourceWithChunks(ctx context.Context, src types.Source, chunks []types.Chunk) error
}

type SourceInput struct {
	Title        string
	Type         types.SourceType
	Authors      []string
	URL          *string
	PublishedAt  *time.Time
	VettingScore *float64
	Metadata     map[string]any
	Content      string
}

type IngestResult struct {
	SourceID      uuid.UUID `json:"sourceId"`
	ChunksCreated int       `json:"chunksCreated"`
	Duplicate     bool      `json:"duplicate"`
}

type Ingester struct {
	store     SourceWriter
	embedder  model.BatchEmbedder
	chunker   internal.Chunker
	batchSize int
	logger    *slog.Logger
}

type IngesterConfig struct {
	ChunkTokens  int
	ChunkOverlap int
	BatchSize    int
	Count        internal.TokenCounter // nil estimates from length
}

func NewIngester(s SourceWriter, embedder model.BatchEmbedder, cfg IngesterConfig, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultEmbedBatchSize
	}
	return &Ingester{
		store:    s,
		embedder: embedder,
		chunker: internal.Chunker{
			TargetTokens: cfg.ChunkTokens,
			Overlap:      cfg.ChunkOverlap,
			Count:        cfg.Count,
		},
		batchSize: cfg.BatchSize,
		logger:    logger,
	}
}

// IngestSource chunks, embeds and stores one research source. Content that
// was ingested before (same sha256) is not stored again.
func (i *Ingester) IngestSource(ctx context.Context, in SourceInput) (IngestResult, error) {
	if strings.TrimSpace(in.Title) == "" {
		return IngestResult{}, errors.New("source title is required")
	}
	if strings.TrimSpace(in.Content) == "" {
		return IngestResult{}, errors.New("source content is empty")
	}
	if in.Type == "" {
		in.Type = types.SourcePaper
	}

	hash := hashContent(in.Content)
	existing, err := i.store.FindSourceByHash(ctx, hash)
	if err == nil {
		i.logger.Info("source already exists", "title", in.Title, "source_id", existing.ID)
		return IngestResult{SourceID: existing.ID, Duplicate: true}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return IngestResult{}, err
	}

	textChunks := i.chunker.Split(in.Content)
	i.logger.Info("source chunked", "title", in.Title, "chunks", len(textChunks))

	embeddings, err := i.embed(ctx, textChunks)
	if err != nil {
		return IngestResult{}, err
	}

	src := types.Source{
		ID:           uuid.New(),
		Title:        in.Title,
		Type:         in.Type,
		Authors:      in.Authors,
		URL:          in.URL,
		PublishedAt:  in.PublishedAt,
		VettingScore: in.VettingScore,
		Hash:         hash,
		Metadata:     in.Metadata,
		CreatedAt:    time.Now().UTC(),
	}

	chunks := make([]types.Chunk, len(textChunks))
	for idx, c := range textChunks {
		chunks[idx] = types.Chunk{
			ID:        uuid.New(),
			SourceID:  src.ID,
			Ord:       idx,
			Content:   c.Content,
			Tokens:    c.Tokens,
			Section:   c.Section,
			Embedding: embeddings[idx],
		}
	}

	if err := i.store.CreateSourceWithChunks(ctx, src, chunks); err != nil {
		return IngestResult{}, err
	}

	i.logger.Info("source ingested", "title", in.Title, "source_id", src.ID, "chunks", len(chunks))
	return IngestResult{SourceID: src.ID, ChunksCreated: len(chunks)}, nil
}

func (i *Ingester) embed(ctx context.Context, chunks []internal.TextChunk) ([][]float32, error) {
	out := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += i.batchSize {
		end := min(start+i.batchSize, len(chunks))

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		vecs, err := i.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start+1, end, err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embed chunks %d-%d: expected %d vectors, got %d", start+1, end, len(texts), len(vecs))
		}
		out = append(out, vecs...)
		i.logger.Debug("embedded chunks", "from", start+1, "to", end)
	}
	return out, nil
}

// IngestFile reads and ingests a single file without touching the inbox.
// override may adjust the metadata read from the file before ingestion.
func (i *Ingester) IngestFile(ctx context.Context, path string, override func(*SourceInput) error) (IngestResult, error) {
	doc, err := internal.ReadDocument(path)
	if err != nil {
		return IngestResult{}, err
	}
	in := inputFromDocument(doc)
	if override != nil {
		if err := override(&in); err != nil {
			return IngestResult{}, err
		}
	}
	return i.IngestSource(ctx, in)
}

// NewTokenCounter counts tokens with tiktoken, or estimates them when the
// encoding cannot be loaded.
func NewTokenCounter(logger *slog.Logger) internal.TokenCounter {
	return internal.NewTokenCounter(logger)
}

func ParseSourceType(s string) (types.SourceType, error) {
	return internal.ParseSourceType(s)
}

func ParseDate(s string) (time.Time, error) {
	return internal.ParseDate(s)
}

func inputFromDocument(doc *internal.Document) SourceInput {
	return SourceInput{
		Title:        doc.Title,
		Type:         doc.Type,
		Authors:      doc.Authors,
		URL:          doc.URL,
		PublishedAt:  doc.PublishedAt,
		VettingScore: doc.VettingScore,
		Metadata:     doc.Metadata,
		Content:      doc.Content,
	}
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
