package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// ErrDimensionMismatch means the provider returned vectors of a different
// size than the chunks column was created with.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

type GuardOptions struct {
	Name       string
	RPS        float64 // zero disables rate limiting
	Burst      int
	Breaker    bool
	Dimensions int // zero skips the size check
	Logger     *slog.Logger
}

// Guarded throttles and optionally circuit-breaks calls to an embedding
// provider. It never retries and never caches.
type Guarded struct {
	next    BatchEmbedder
	dims    int
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func NewGuarded(next BatchEmbedder, opts GuardOptions) *Guarded {
	g := &Guarded{next: next, dims: opts.Dimensions}
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}
	if opts.Breaker {
		logger := opts.Logger
		if logger == nil {
			logger = slog.Default()
		}
		g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "embeddings-" + opts.Name,
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.6
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return g
}

func (g *Guarded) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (g *Guarded) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := g.call(ctx, texts)
	if err != nil {
		return nil, err
	}
	if err := g.checkDims(vecs); err != nil {
		return nil, err
	}
	return vecs, nil
}

func (g *Guarded) call(ctx context.Context, texts []string) ([][]float32, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	embed := func() ([][]float32, error) {
		if len(texts) == 1 {
			vec, err := g.next.Embed(ctx, texts[0])
			if err != nil {
				return nil, err
			}
			return [][]float32{vec}, nil
		}
		return g.next.EmbedBatch(ctx, texts)
	}
	if g.breaker == nil {
		return embed()
	}
	res, err := g.breaker.Execute(func() (interface{}, error) {
		return embed()
	})
	if err != nil {
		return nil, err
	}
	return res.([][]float32), nil
}

// checkDims runs outside the breaker: a misconfigured VECTOR_DIM is not a
// provider outage.
func (g *Guarded) checkDims(vecs [][]float32) error {
	if g.dims <= 0 {
		return nil
	}
	for _, vec := range vecs {
		if len(vec) != g.dims {
			return fmt.Errorf("%w: provider returned %d values, VECTOR_DIM is %d", ErrDimensionMismatch, len(vec), g.dims)
		}
	}
	return nil
}

// Close releases the wrapped provider client, if it holds one.
func (g *Guarded) Close() error {
	if c, ok := g.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (g *Guarded) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	return g.limiter.Wait(ctx)
}
