package qa

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"banyan/types"
)

type fakeFinder struct {
	mu    sync.Mutex
	refs  map[string][]types.ReferencePassage
	fail  map[string]error
	delay map[string]time.Duration
	calls []string
	opts  types.SearchOptions
}

func (f *fakeFinder) FindReferences(ctx context.Context, text string, opts types.SearchOptions) ([]types.ReferencePassage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.opts = opts
	f.mu.Unlock()

	if d := f.delay[text]; d > 0 {
		time.Sleep(d)
	}
	if err := f.fail[text]; err != nil {
		return nil, err
	}
	return f.refs[text], nil
}

func ref(score float64) types.ReferencePassage {
	return types.ReferencePassage{ID: fmt.Sprintf("chunk-%v", score), PaperTitle: "Paper", Score: score, Stance: types.StanceNeutral}
}

func defaultOpts() types.ValidationOptions {
	return types.ValidationOptions{
		SearchOptions: types.SearchOptions{TopK: types.DefaultTopK, MinSimilarity: types.DefaultMinSimilarity},
		PassThreshold: types.DefaultPassThreshold,
	}
}

func TestValidator_EmbeddingFailureIsIsolated(t *testing.T) {
	finder := &fakeFinder{
		refs: map[string][]types.ReferencePassage{
			"Second claim has evidence": {ref(0.61), ref(0.4)},
		},
		fail: map[string]error{
			"First claim fails to embed": errors.New("embedding provider unavailable"),
		},
	}
	v := NewValidator(finder, 1, nil)

	claims := []types.Claim{
		{ID: "c1", Text: "First claim fails to embed"},
		{ID: "c2", Text: "Second claim has evidence"},
	}
	checks := v.Run(context.Background(), claims, defaultOpts())

	if len(checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(checks))
	}
	if checks[0].ClaimID != "c1" || checks[0].Pass {
		t.Errorf("first check should fail: %+v", checks[0])
	}
	if len(checks[0].Issues) != 1 || checks[0].Issues[0] != "Validation failed: embedding provider unavailable" {
		t.Errorf("unexpected issues: %v", checks[0].Issues)
	}
	if checks[0].References == nil || len(checks[0].References) != 0 {
		t.Errorf("failed check must carry an empty reference list, got %#v", checks[0].References)
	}
	if checks[1].ClaimID != "c2" || !checks[1].Pass || len(checks[1].Issues) != 0 || len(checks[1].References) != 2 {
		t.Errorf("second check should pass: %+v", checks[1])
	}
	if len(finder.calls) != 2 || finder.calls[0] != claims[0].Text {
		t.Errorf("claims not processed in order: %v", finder.calls)
	}
}

func TestValidator_PassRule(t *testing.T) {
	tests := []struct {
		name      string
		refs      []types.ReferencePassage
		threshold float64
		wantPass  bool
		wantIssue string
	}{
		{"no evidence", nil, 0.25, false, "No similar evidence found in research corpus."},
		{"no evidence zero threshold", nil, 0, false, "No similar evidence found in research corpus."},
		{"below threshold", []types.ReferencePassage{ref(0.3)}, 0.5, false, "Evidence similarity (0.30) below threshold (0.50)."},
		{"equal threshold", []types.ReferencePassage{ref(0.5)}, 0.5, true, ""},
		{"first decides", []types.ReferencePassage{ref(0.26), ref(0.9)}, 0.3, false, "Evidence similarity (0.26) below threshold (0.30)."},
		{"threshold below floor", []types.ReferencePassage{ref(0.5)}, 0.1, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := "Claim under test for " + tt.name
			finder := &fakeFinder{refs: map[string][]types.ReferencePassage{text: tt.refs}}
			opts := defaultOpts()
			opts.PassThreshold = tt.threshold

			checks := NewValidator(finder, 1, nil).Run(context.Background(), []types.Claim{{ID: "c", Text: text}}, opts)
			got := checks[0]

			if got.Pass != tt.wantPass {
				t.Errorf("pass = %v, want %v", got.Pass, tt.wantPass)
			}
			wantPass := len(got.References) > 0 && got.References[0].Score >= tt.threshold
			if got.Pass != wantPass {
				t.Errorf("pass does not follow the best reference")
			}
			if tt.wantIssue == "" && len(got.Issues) != 0 {
				t.Errorf("expected no issues, got %v", got.Issues)
			}
			if tt.wantIssue != "" && (len(got.Issues) != 1 || got.Issues[0] != tt.wantIssue) {
				t.Errorf("issues = %v, want [%s]", got.Issues, tt.wantIssue)
			}
			if got.References == nil {
				t.Errorf("references must never be nil")
			}
		})
	}
}

func TestValidator_ConcurrentKeepsOrder(t *testing.T) {
	finder := &fakeFinder{
		refs:  map[string][]types.ReferencePassage{},
		fail:  map[string]error{},
		delay: map[string]time.Duration{},
	}
	var claims []types.Claim
	for i := 0; i < 12; i++ {
		text := fmt.Sprintf("Claim number %02d about alignment", i)
		claims = append(claims, types.Claim{ID: fmt.Sprintf("c%d", i), Text: text})
		finder.refs[text] = []types.ReferencePassage{ref(0.5)}
		// earlier claims finish later
		finder.delay[text] = time.Duration(12-i) * time.Millisecond
		if i%4 == 0 {
			finder.fail[text] = errors.New("boom")
		}
	}

	checks := NewValidator(finder, 4, nil).Run(context.Background(), claims, defaultOpts())

	if len(checks) != len(claims) {
		t.Fatalf("expected %d checks, got %d", len(claims), len(checks))
	}
	for i, c := range checks {
		if c.ClaimID != claims[i].ID {
			t.Errorf("check %d has claim %s, want %s", i, c.ClaimID, claims[i].ID)
		}
		if wantPass := i%4 != 0; c.Pass != wantPass {
			t.Errorf("check %d pass = %v, want %v", i, c.Pass, wantPass)
		}
	}
}

func TestValidator_EmptyBatch(t *testing.T) {
	checks := NewValidator(&fakeFinder{}, 1, nil).Run(context.Background(), []types.Claim{}, defaultOpts())
	if checks == nil || len(checks) != 0 {
		t.Errorf("expected empty non-nil checks, got %#v", checks)
	}
}

func TestValidator_PassesSearchOptions(t *testing.T) {
	finder := &fakeFinder{}
	opts := types.ValidationOptions{SearchOptions: types.SearchOptions{TopK: 3, MinSimilarity: 0.4}, PassThreshold: 0.5}
	NewValidator(finder, 1, nil).Run(context.Background(), []types.Claim{{ID: "c", Text: "Some claim text"}}, opts)
	if finder.opts != opts.SearchOptions {
		t.Errorf("search options = %+v, want %+v", finder.opts, opts.SearchOptions)
	}
}

func TestHTTPReferenceClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/references" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"references":[{"id":"1","paperId":"p","paperTitle":"T","snippet":"s","score":0.7,"stance":"supports"}]}`))
	}))
	defer server.Close()

	c := NewHTTPReferenceClient(server.URL+"/", server.Client())
	refs, err := c.FindReferences(context.Background(), "claim text here", types.SearchOptions{TopK: 5, MinSimilarity: 0.25})
	if err != nil {
		t.Fatalf("FindReferences failed: %v", err)
	}
	if len(refs) != 1 || refs[0].Score != 0.7 || refs[0].Stance != types.StanceSupports {
		t.Errorf("unexpected references: %+v", refs)
	}
}

func TestHTTPReferenceClient_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewHTTPReferenceClient(server.URL, nil)
	_, err := c.FindReferences(context.Background(), "claim text here", types.SearchOptions{TopK: 5})
	if err == nil || err.Error() != "References API returned 502" {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := NewValidator(c, 1, nil).Run(context.Background(), []types.Claim{{ID: "c", Text: "claim text here"}}, defaultOpts())
	if !strings.HasPrefix(checks[0].Issues[0], "Validation failed: References API returned 502") {
		t.Errorf("unexpected issue: %v", checks[0].Issues)
	}
}
