package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"banyan/config"
)

var ErrEmptyEmbedding = errors.New("embedding provider returned an empty vector")

// Embedder turns text into a vector of the configured dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder embeds several texts in one call; results keep input order.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// NewEmbedder builds the embedder selected by EMBEDDINGS_PROVIDER and wraps
// it with the configured rate limit and circuit breaker.
func NewEmbedder(ctx context.Context, cfg config.EmbeddingsConfig, logger *slog.Logger) (BatchEmbedder, error) {
	var (
		base BatchEmbedder
		err  error
	)
	switch cfg.Provider {
	case "openai":
		base, err = NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIURL, cfg.OpenAIModel, cfg.Dimensions)
	case "google":
		base, err = NewGeminiEmbedder(ctx, cfg.GeminiAPIKey, cfg.GoogleModel)
	case "ollama":
		base = NewOllamaEmbedder(cfg.OllamaURL, cfg.OllamaModel, &http.Client{Timeout: cfg.Timeout})
	default:
		return nil, fmt.Errorf("unknown embeddings provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("embedder configured", "provider", cfg.Provider, "dimensions", cfg.Dimensions)

	return NewGuarded(base, GuardOptions{
		Name:       cfg.Provider,
		RPS:        cfg.RPS,
		Burst:      cfg.Burst,
		Breaker:    cfg.Breaker,
		Dimensions: cfg.Dimensions,
		Logger:     logger,
	}), nil
}

// normalize scales vec to unit length in place.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i, x := range vec {
		vec[i] = float32(float64(x) / norm)
	}
	return vec
}
