package qa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"banyan/types"
)

// HTTPReferenceClient asks a remote banyan instance for references over
// POST /api/references.
type HTTPReferenceClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPReferenceClient(baseURL string, client *http.Client) *HTTPReferenceClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPReferenceClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type referencesRequest struct {
	ClaimText     string  `json:"claimText"`
	TopK          int     `json:"topK"`
	MinSimilarity float64 `json:"minSimilarity"`
}

type referencesResponse struct {
	References []types.ReferencePassage `json:"references"`
}

func (c *HTTPReferenceClient) FindReferences(ctx context.Context, text string, opts types.SearchOptions) ([]types.ReferencePassage, error) {
	body, err := json.Marshal(referencesRequest{
		ClaimText:     text,
		TopK:          opts.TopK,
		MinSimilarity: opts.MinSimilarity,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/references", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("References API returned %d", resp.StatusCode)
	}

	var out referencesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode references: %w", err)
	}
	if out.References == nil {
		return []types.ReferencePassage{}, nil
	}
	return out.References, nil
}
