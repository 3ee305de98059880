package interfaces

import (
	"context"

	"github.com/ragstack/localrag/rag/types"
)

// DenseRetriever queries a vector index with a query embedding. The
// embedding dimensionality must match the index; a mismatch fails with
// types.ErrDimensionMismatch. An unreachable index fails with
// types.ErrRetrievalUnavailable, never a silent empty list.
type DenseRetriever interface {
	SearchVectors(ctx context.Context, embedding []float32, limit int) (types.RankedList, error)
}

// SparseRetriever queries a lexical index with raw query text. Same
// failure semantics as DenseRetriever.
type SparseRetriever interface {
	SearchKeywords(ctx context.Context, query string, limit int) (types.RankedList, error)
}

// Embedder turns text into a query embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Indexer stores chunks so the retrieval signals can see them.
type Indexer interface {
	Store(s string, meta map[string]string) (types.Result, error)
	StoreDocuments(s []string, meta map[string]string) ([]types.Result, error)
	Delete(ids ...string) error
	Reset() error
	Count() int
}

// Engine is a backend exposing both retrieval signals over one store.
type Engine interface {
	Indexer
	DenseRetriever
	SparseRetriever
}
