package model

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		var req OllamaEmbeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "nomic-embed-text" || req.Prompt != "goal alignment" {
			t.Errorf("unexpected request %+v", req)
		}
		_ = json.NewEncoder(w).Encode(OllamaEmbeddingResponse{Embedding: []float64{3, 4}})
	}))
	defer server.Close()

	e := NewOllamaEmbedder(server.URL, "nomic-embed-text", server.Client())
	vec, err := e.Embed(context.Background(), "goal alignment")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 2 {
		t.Fatalf("expected 2 dimensions, got %d", len(vec))
	}
	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("vector not normalized: %v", vec)
	}
}

func TestOllamaEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		}},
		{"empty vector", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"embedding":[]}`))
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			e := NewOllamaEmbedder(server.URL, "m", nil)
			if _, err := e.Embed(context.Background(), "text"); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("Expected path /embeddings, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}
		var body struct {
			Input      []string `json:"input"`
			Model      string   `json:"model"`
			Dimensions int      `json:"dimensions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Model != "text-embedding-3-small" || body.Dimensions != 3 || len(body.Input) != 2 {
			t.Errorf("unexpected request %+v", body)
		}
		// out of order on purpose
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":1,"embedding":[0,1,0]},
			{"object":"embedding","index":0,"embedding":[1,0,0]}
		]}`))
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder("test-key", server.URL, "text-embedding-3-small", 3)
	if err != nil {
		t.Fatalf("Failed to create embedder: %v", err)
	}

	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][1] != 1 {
		t.Errorf("vectors not in input order: %v", vecs)
	}
}

func TestOpenAIEmbedder_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder("bad-key", server.URL, "", 3)
	if err != nil {
		t.Fatalf("Failed to create embedder: %v", err)
	}
	if _, err := e.Embed(context.Background(), "text"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewOpenAIEmbedder_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIEmbedder("", "", "", 3); err == nil {
		t.Fatal("expected error for missing key")
	}
}

type fakeEmbedder struct {
	calls atomic.Int32
	err   error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func TestGuarded_PassThrough(t *testing.T) {
	fake := &fakeEmbedder{}
	g := NewGuarded(fake, GuardOptions{Name: "test"})

	if _, err := g.Embed(context.Background(), "a"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	vecs, err := g.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil || len(vecs) != 2 {
		t.Fatalf("EmbedBatch = %v, %v", vecs, err)
	}
	if fake.calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", fake.calls.Load())
	}
}

func TestGuarded_NoRetry(t *testing.T) {
	fake := &fakeEmbedder{err: errors.New("provider down")}
	g := NewGuarded(fake, GuardOptions{Name: "test"})

	if _, err := g.Embed(context.Background(), "a"); err == nil {
		t.Fatal("expected error")
	}
	if fake.calls.Load() != 1 {
		t.Errorf("failed calls must not be retried, got %d calls", fake.calls.Load())
	}
}

func TestGuarded_BreakerOpens(t *testing.T) {
	fake := &fakeEmbedder{err: errors.New("provider down")}
	g := NewGuarded(fake, GuardOptions{Name: "test", Breaker: true})

	for i := 0; i < 5; i++ {
		_, _ = g.Embed(context.Background(), "a")
	}
	before := fake.calls.Load()

	if _, err := g.Embed(context.Background(), "a"); err == nil {
		t.Fatal("expected error from open breaker")
	}
	if fake.calls.Load() != before {
		t.Errorf("open breaker should not reach the provider")
	}
}

func TestGuarded_RateLimitHonoursContext(t *testing.T) {
	fake := &fakeEmbedder{}
	g := NewGuarded(fake, GuardOptions{Name: "test", RPS: 0.001, Burst: 1})

	if _, err := g.Embed(context.Background(), "a"); err != nil {
		t.Fatalf("first call should use the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := g.Embed(ctx, "b"); err == nil {
		t.Fatal("expected limiter to give up on the deadline")
	}
}

func TestGuarded_DimensionMismatch(t *testing.T) {
	fake := &fakeEmbedder{}
	g := NewGuarded(fake, GuardOptions{Name: "test", Breaker: true, Dimensions: 768})

	_, err := g.Embed(context.Background(), "a")
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if _, err := g.EmbedBatch(context.Background(), []string{"a", "b"}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch from batch, got %v", err)
	}

	for i := 0; i < 5; i++ {
		_, _ = g.Embed(context.Background(), "a")
	}
	before := fake.calls.Load()
	if _, err := g.Embed(context.Background(), "a"); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("size errors must not open the breaker, got %v", err)
	}
	if fake.calls.Load() != before+1 {
		t.Errorf("provider should still be called")
	}
}

func TestGuarded_DimensionMatch(t *testing.T) {
	g := NewGuarded(&fakeEmbedder{}, GuardOptions{Name: "test", Dimensions: 1})

	if _, err := g.EmbedBatch(context.Background(), []string{"a", "b"}); err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
}
