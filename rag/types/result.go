package types

// Source identifies the retrieval signal that produced a candidate.
type Source string

const (
	SourceDense  Source = "dense"
	SourceSparse Source = "sparse"
)

// Result represents a single retrieved chunk.
type Result struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Content  string            `json:"content"`

	// Score is the retriever-native score. For dense retrieval this is the
	// cosine similarity between query and document, in the range [-1, 1].
	// For sparse retrieval it is the lexical score on the backend's own
	// scale. The two scales are not comparable, which is why fusion works
	// on ranks instead of raw scores.
	Score float64 `json:"score"`

	Source Source `json:"source,omitempty"`
}

// RankedList is the ordered output of one retriever: rank 1 first,
// descending by retriever-native score, ties kept in backend order.
type RankedList struct {
	Source  Source   `json:"source"`
	Results []Result `json:"results"`
}

// FusedResult is one entry of the fused ranking. Ranks holds the 1-based
// position the chunk had in each contributing input list.
type FusedResult struct {
	Result
	FusedScore float64        `json:"fused_score"`
	Ranks      map[Source]int `json:"ranks"`
}

// RerankedResult pairs a chunk with the relevance score the rerank model
// assigned to it.
type RerankedResult struct {
	Result
	ModelScore float64 `json:"model_score"`
}

// Query is the per-call retrieval context. Embedding is optional; when nil
// the pipeline computes it from Text.
type Query struct {
	Text      string    `json:"query"`
	Embedding []float32 `json:"-"`
	K         int       `json:"max_results"`
	Rerank    bool      `json:"rerank"`
}

// SearchResult is one entry of the final pipeline output.
type SearchResult struct {
	Result
	FusedScore float64  `json:"fused_score"`
	ModelScore *float64 `json:"model_score,omitempty"`
	Sources    []Source `json:"sources"`
}

// Timings reports per-stage wall-clock durations in milliseconds.
type Timings struct {
	RetrievalMS int64 `json:"retrieval_ms"`
	RerankMS    int64 `json:"rerank_ms,omitempty"`
	TotalMS     int64 `json:"total_ms"`
}

// SearchResponse is the full pipeline output: the ranked context set plus
// the degradation and timing information the evaluation harness consumes.
type SearchResponse struct {
	TraceID      string         `json:"trace_id"`
	Results      []SearchResult `json:"results"`
	Reranked     bool           `json:"reranked"`
	Degraded     bool           `json:"degraded"`
	Degradations []string       `json:"degradations,omitempty"`
	Timings      Timings        `json:"timings"`
}
