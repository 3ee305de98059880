package types

import "context"

// Reranker recomputes a finer-grained relevance score per candidate with a
// model and re-sorts. Implementations must return exactly the input chunk
// ids, sorted descending by model score, ties kept in input order.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Result) ([]RerankedResult, error)
}
