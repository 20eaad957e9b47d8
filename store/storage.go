package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"banyan/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var ErrNotFound = errors.New("not found")

// ChunkSearcher is the read side used by the reference pipeline.
type ChunkSearcher interface {
	SearchChunks(ctx context.Context, embedding []float32, topK int, minSimilarity float64) ([]types.ChunkMatch, error)
}

// DBStorer is the full corpus store.
type DBStorer interface {
	ChunkSearcher
	FindSourceByHash(ctx context.Context, hash string) (*types.Source, error)
	CreateSourceWithChunks(ctx context.Context, src types.Source, chunks []types.Chunk) error
	DeleteSource(ctx context.Context, id uuid.UUID) error
	ListSources(ctx context.Context) ([]SourceSummary, error)
	Ping(ctx context.Context) error
}

type SourceSummary struct {
	ID        uuid.UUID        `json:"id"`
	Title     string           `json:"title"`
	Type      types.SourceType `json:"type"`
	Authors   []string         `json:"authors"`
	URL       *string          `json:"url,omitempty"`
	Chunks    int              `json:"chunks"`
	CreatedAt string           `json:"createdAt"`
}

type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPostgresStore(ctx context.Context, connStr string, logger *slog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{
		pool:   pool,
		logger: logger,
	}, nil
}

const searchChunksQuery = `
	SELECT c.id, c.content, c.section,
	       s.id, s.title, s.url, s.authors,
	       1 - (c.embedding <=> $1) AS similarity
	FROM chunks c
	JOIN sources s ON c.source_id = s.id
	WHERE c.embedding IS NOT NULL
	  AND 1 - (c.embedding <=> $1) >= $2
	ORDER BY c.embedding <=> $1
	LIMIT $3
`

// SearchChunks returns at most topK chunks whose cosine similarity to the
// query is at least minSimilarity, most similar first. Equal similarities
// come back in whatever order Postgres produces.
func (p *PostgresStore) SearchChunks(ctx context.Context, embedding []float32, topK int, minSimilarity float64) ([]types.ChunkMatch, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	rows, err := p.pool.Query(ctx, searchChunksQuery, pgvector.NewVector(embedding), minSimilarity, topK)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	matches := make([]types.ChunkMatch, 0, topK)
	for rows.Next() {
		var m types.ChunkMatch
		if err := rows.Scan(
			&m.ChunkID,
			&m.ChunkContent,
			&m.ChunkSection,
			&m.SourceID,
			&m.SourceTitle,
			&m.SourceURL,
			&m.SourceAuthors,
			&m.Similarity); err != nil {
			return nil, fmt.Errorf("scan chunk match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}

	p.logger.Debug("chunk search", "matches", len(matches), "top_k", topK, "min_similarity", minSimilarity)
	return matches, nil
}

func (p *PostgresStore) FindSourceByHash(ctx context.Context, hash string) (*types.Source, error) {
	src := &types.Source{}
	err := p.pool.QueryRow(ctx, `
		SELECT id, title, type, authors, url, published_at, vetting_score, hash, metadata, created_at
		FROM sources WHERE hash = $1`, hash).Scan(
		&src.ID,
		&src.Title,
		&src.Type,
		&src.Authors,
		&src.URL,
		&src.PublishedAt,
		&src.VettingScore,
		&src.Hash,
		&src.Metadata,
		&src.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find source by hash: %w", err)
	}
	return src, nil
}

// CreateSourceWithChunks inserts a source and all of its chunks atomically.
func (p *PostgresStore) CreateSourceWithChunks(ctx context.Context, src types.Source, chunks []types.Chunk) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	authors := src.Authors
	if authors == nil {
		authors = []string{}
	}
	metadata := src.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sources (id, title, type, authors, url, published_at, vetting_score, hash, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		src.ID,
		src.Title,
		string(src.Type),
		authors,
		src.URL,
		src.PublishedAt,
		src.VettingScore,
		src.Hash,
		metadata,
		src.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(`
			INSERT INTO chunks (id, source_id, ord, content, tokens, section, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, src.ID, c.Ord, c.Content, c.Tokens, c.Section, pgvector.NewVector(c.Embedding),
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DeleteSource removes a source; its chunks go with it via ON DELETE CASCADE.
func (p *PostgresStore) DeleteSource(ctx context.Context, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, "DELETE FROM sources WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListSources(ctx context.Context) ([]SourceSummary, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT s.id, s.title, s.type, s.authors, s.url, count(c.id),
		       to_char(s.created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"')
		FROM sources s
		LEFT JOIN chunks c ON c.source_id = s.id
		GROUP BY s.id
		ORDER BY s.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	out := []SourceSummary{}
	for rows.Next() {
		var s SourceSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Type, &s.Authors, &s.URL, &s.Chunks, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) createTables(ctx context.Context, dim int) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS sources (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('paper','article','book','report','thesis')),
		authors TEXT[] NOT NULL DEFAULT '{}',
		url TEXT,
		published_at TIMESTAMP WITH TIME ZONE,
		vetting_score DOUBLE PRECISION,
		hash TEXT NOT NULL UNIQUE,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		source_id UUID NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
		ord INT NOT NULL,
		content TEXT NOT NULL,
		tokens INT NOT NULL,
		section TEXT,
		embedding vector(%d)
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks USING hnsw (embedding vector_cosine_ops);

	CREATE INDEX IF NOT EXISTS idx_chunks_source_id ON chunks(source_id);
	`, dim)
	_, err := p.pool.Exec(ctx, query)
	return err
}

// Init creates the extension, tables and indexes if they are missing.
func (p *PostgresStore) Init(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dim)
	}
	return p.createTables(ctx, dim)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		p.logger.Info("postgres connection pool is closed")
	}
	return nil
}
