package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"banyan/app/qa"
	"banyan/app/retrieval"
	"banyan/loader/service"
	"banyan/model"
	"banyan/store"
	"banyan/telemetry"
)

// runtime holds the shared dependencies of every command that touches the
// corpus. retriever always searches the local corpus; claims may be checked
// through a remote instance instead.
type runtime struct {
	store     *store.PostgresStore
	embedder  model.BatchEmbedder
	retriever *retrieval.Retriever
	claims    qa.ReferenceFinder

	stopTracing func(context.Context) error
}

func openRuntime(ctx context.Context) (*runtime, error) {
	stopTracing, err := telemetry.InitTracer(ctx, cfg.Telemetry, version, log)
	if err != nil {
		return nil, err
	}

	db, err := store.NewPostgresStore(ctx, cfg.Postgres.ConnString(), log)
	if err != nil {
		_ = stopTracing(ctx)
		return nil, err
	}
	if err := db.Init(ctx, cfg.Embeddings.Dimensions); err != nil {
		db.Close()
		_ = stopTracing(ctx)
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	embedder, err := model.NewEmbedder(ctx, cfg.Embeddings, log)
	if err != nil {
		db.Close()
		_ = stopTracing(ctx)
		return nil, err
	}

	retriever := retrieval.NewRetriever(embedder, db, log)
	if cfg.QA.ReferencesURL != "" {
		log.Info("checking claims through remote reference service", "url", cfg.QA.ReferencesURL)
	}
	return &runtime{
		store:       db,
		embedder:    embedder,
		retriever:   retriever,
		claims:      claimFinder(retriever, cfg.QA.ReferencesURL, cfg.Embeddings.Timeout),
		stopTracing: stopTracing,
	}, nil
}

// claimFinder picks what the claim validator searches through. Only the
// validator makes the HTTP hop: /api/references must stay local, otherwise
// an instance pointed at itself forwards every request back to itself.
func claimFinder(local qa.ReferenceFinder, referencesURL string, timeout time.Duration) qa.ReferenceFinder {
	if referencesURL == "" {
		return local
	}
	return qa.NewHTTPReferenceClient(referencesURL, &http.Client{Timeout: timeout})
}

func (rt *runtime) validator() *qa.Validator {
	return qa.NewValidator(rt.claims, cfg.QA.Concurrency, log)
}

func (rt *runtime) ingester() *service.Ingester {
	return service.NewIngester(rt.store, rt.embedder, service.IngesterConfig{
		ChunkTokens:  cfg.Loader.ChunkTokens,
		ChunkOverlap: cfg.Loader.ChunkOverlap,
		BatchSize:    cfg.Loader.EmbedBatchSize,
		Count:        service.NewTokenCounter(log),
	}, log)
}

func (rt *runtime) Close(ctx context.Context) error {
	var closeEmbedder error
	if c, ok := rt.embedder.(io.Closer); ok {
		closeEmbedder = c.Close()
	}
	return errors.Join(closeEmbedder, rt.store.Close(), rt.stopTracing(ctx))
}
