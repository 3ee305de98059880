// Package rerank scores query/candidate pairs against a remote rerank
// model endpoint (Jina/Cohere-compatible API) and re-sorts candidates.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/ragstack/localrag/rag/types"
)

// Client talks to a /v1/rerank endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a rerank client. baseURL points at the inference
// server root, e.g. http://localhost:8081.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponseDocument struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Model   string                   `json:"model"`
	Results []rerankResponseDocument `json:"results"`
}

// Rerank sends the candidates' text to the rerank endpoint and returns all
// of them re-sorted by model score. The output ids are exactly the input
// ids: documents the endpoint did not score keep a zero score and their
// input order at the tail. The request's top_n always equals the candidate
// count; bounding the window is the caller's job (the retrieval pipeline
// only ever passes the fused top window), so every candidate comes back
// scored.
func (c *Client) Rerank(ctx context.Context, query string, candidates []types.Result) ([]types.RerankedResult, error) {
	if len(candidates) == 0 {
		return []types.RerankedResult{}, nil
	}

	documents := make([]string, len(candidates))
	for i, cand := range candidates {
		documents[i] = cand.Content
	}

	payload, err := json.Marshal(rerankRequest{
		Model:     c.model,
		Query:     query,
		Documents: documents,
		TopN:      len(documents),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rerank", bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrRerankerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", types.ErrRerankerUnavailable, resp.StatusCode)
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", types.ErrRerankerUnavailable, err)
	}

	scores := make(map[int]float64, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.Index < 0 || r.Index >= len(candidates) {
			return nil, fmt.Errorf("%w: candidate index %d out of range", types.ErrRerankerUnavailable, r.Index)
		}
		scores[r.Index] = r.RelevanceScore
	}

	reranked := make([]types.RerankedResult, len(candidates))
	for i, cand := range candidates {
		reranked[i] = types.RerankedResult{
			Result:     cand,
			ModelScore: scores[i],
		}
	}

	// Stable sort keeps the input order on tied scores.
	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].ModelScore > reranked[j].ModelScore
	})

	return reranked, nil
}
