package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"banyan/store"
	"banyan/types"
)

type fakeStore struct {
	mu      sync.Mutex
	sources map[string]types.Source
	chunks  map[string][]types.Chunk
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{sources: map[string]types.Source{}, chunks: map[string][]types.Chunk{}}
}

func (f *fakeStore) FindSourceByHash(_ context.Context, hash string) (*types.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if src, ok := f.sources[hash]; ok {
		return &src, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) CreateSourceWithChunks(_ context.Context, src types.Source, chunks []types.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sources[src.Hash] = src
	f.chunks[src.Hash] = chunks
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sources)
}

type fakeEmbedder struct {
	mu      sync.Mutex
	batches []int
	failAt  int // 1-based batch number that fails, 0 never
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches = append(f.batches, len(texts))
	n := len(f.batches)
	f.mu.Unlock()

	if f.failAt == n {
		return nil, errors.New("provider unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = f.Embed(ctx, t)
	}
	return out, nil
}

func wordCount(s string) int { return len(strings.Fields(s)) }

// paragraphs builds n one-word paragraphs, one chunk each with a target of 1.
func paragraphs(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(parts, "\n\n")
}

func TestIngestSource(t *testing.T) {
	st := newFakeStore()
	emb := &fakeEmbedder{}
	ing := NewIngester(st, emb, IngesterConfig{ChunkTokens: 1, Count: wordCount}, nil)

	res, err := ing.IngestSource(context.Background(), SourceInput{
		Title:   "Goal Congruence",
		Content: "Abstract: aligned goals\n\n## Results\nengagement rises",
	})
	if err != nil {
		t.Fatalf("IngestSource failed: %v", err)
	}
	if res.Duplicate || res.ChunksCreated != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	hash := hashContent("Abstract: aligned goals\n\n## Results\nengagement rises")
	src := st.sources[hash]
	if src.ID != res.SourceID || src.Type != types.SourcePaper {
		t.Errorf("unexpected source %+v", src)
	}
	chunks := st.chunks[hash]
	for i, c := range chunks {
		if c.Ord != i || c.SourceID != src.ID || len(c.Embedding) != 2 {
			t.Errorf("chunk %d not linked: %+v", i, c)
		}
	}
	if chunks[1].Section == nil || *chunks[1].Section != "## Results" {
		t.Errorf("section not carried to chunk")
	}
}

func TestIngestSource_Duplicate(t *testing.T) {
	st := newFakeStore()
	emb := &fakeEmbedder{}
	ing := NewIngester(st, emb, IngesterConfig{ChunkTokens: 100}, nil)
	in := SourceInput{Title: "Paper", Content: "same text"}

	first, err := ing.IngestSource(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	in.Title = "Renamed copy"
	second, err := ing.IngestSource(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}

	if !second.Duplicate || second.SourceID != first.SourceID || second.ChunksCreated != 0 {
		t.Errorf("expected duplicate of %s, got %+v", first.SourceID, second)
	}
	if len(emb.batches) != 1 {
		t.Errorf("duplicate must not be embedded again, got %d batches", len(emb.batches))
	}
	if st.count() != 1 {
		t.Errorf("expected 1 stored source, got %d", st.count())
	}
}

func TestIngestSource_Batches(t *testing.T) {
	st := newFakeStore()
	emb := &fakeEmbedder{}
	ing := NewIngester(st, emb, IngesterConfig{ChunkTokens: 1, Count: wordCount}, nil)

	res, err := ing.IngestSource(context.Background(), SourceInput{Title: "Long", Content: paragraphs(250)})
	if err != nil {
		t.Fatal(err)
	}
	if res.ChunksCreated != 250 {
		t.Fatalf("expected 250 chunks, got %d", res.ChunksCreated)
	}
	want := []int{100, 100, 50}
	if fmt.Sprint(emb.batches) != fmt.Sprint(want) {
		t.Errorf("batches = %v, want %v", emb.batches, want)
	}
}

func TestIngestSource_EmbedErrorStoresNothing(t *testing.T) {
	st := newFakeStore()
	emb := &fakeEmbedder{failAt: 2}
	ing := NewIngester(st, emb, IngesterConfig{ChunkTokens: 1, BatchSize: 2, Count: wordCount}, nil)

	_, err := ing.IngestSource(context.Background(), SourceInput{Title: "Paper", Content: paragraphs(5)})
	if err == nil || !strings.Contains(err.Error(), "embed chunks 3-4") {
		t.Fatalf("unexpected error %v", err)
	}
	if st.count() != 0 {
		t.Errorf("nothing may be stored after a failed embedding")
	}
}

func TestIngestSource_Invalid(t *testing.T) {
	ing := NewIngester(newFakeStore(), &fakeEmbedder{}, IngesterConfig{ChunkTokens: 10}, nil)
	if _, err := ing.IngestSource(context.Background(), SourceInput{Content: "text"}); err == nil {
		t.Error("expected error for missing title")
	}
	if _, err := ing.IngestSource(context.Background(), SourceInput{Title: "t", Content: "  "}); err == nil {
		t.Error("expected error for empty content")
	}
}

func TestIngestFile_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.md")
	if err := os.WriteFile(path, []byte("Findings: teams with shared goals execute faster"), 0o644); err != nil {
		t.Fatal(err)
	}
	st := newFakeStore()
	ing := NewIngester(st, &fakeEmbedder{}, IngesterConfig{ChunkTokens: 100}, nil)

	_, err := ing.IngestFile(context.Background(), path, func(in *SourceInput) error {
		in.Title = "Shared Goals"
		in.Type = types.SourceReport
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, src := range st.sources {
		if src.Title != "Shared Goals" || src.Type != types.SourceReport {
			t.Errorf("override not applied: %+v", src)
		}
	}
}

func TestService_Run(t *testing.T) {
	root := t.TempDir()
	cfg := Config{
		SourceDir:      filepath.Join(root, "inbox"),
		ArchiveDir:     filepath.Join(root, "archive"),
		BadDir:         filepath.Join(root, "bad"),
		MonitoringTime: 10 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	}
	st := newFakeStore()
	svc, err := New(NewIngester(st, &fakeEmbedder{}, IngesterConfig{ChunkTokens: 100}, nil), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.SourceDir, "paper.txt"), []byte("evidence text"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Run(ctx)
	}()

	archived := filepath.Join(cfg.ArchiveDir, time.Now().Format("2006-01-02"), "paper.txt")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(archived); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if _, err := os.Stat(archived); err != nil {
		t.Fatalf("file was not archived: %v", err)
	}
	if st.count() != 1 {
		t.Errorf("expected 1 stored source, got %d", st.count())
	}
}
