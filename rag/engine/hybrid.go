package engine

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/ragstack/localrag/rag/types"
)

// HybridEngine exposes a chromem vector store and a bleve full-text index
// behind one store interface, so a collection feeds both retrieval signals
// with a single Store call. Searching the signals is left to the retrieval
// pipeline, which fuses their rankings.
type HybridEngine struct {
	dense  *ChromemDB
	sparse *FullTextIndex
}

// NewHybridEngine creates the full-text index next to the vector store.
func NewHybridEngine(dense *ChromemDB, dbPath, analyzer string) (*HybridEngine, error) {
	sparse, err := NewFullTextIndex(filepath.Join(dbPath, "bleve", dense.collectionName), analyzer)
	if err != nil {
		return nil, fmt.Errorf("failed to create full-text index: %w", err)
	}

	return &HybridEngine{
		dense:  dense,
		sparse: sparse,
	}, nil
}

// Store writes a chunk to both indexes under the same id.
func (h *HybridEngine) Store(s string, metadata map[string]string) (types.Result, error) {
	result, err := h.dense.Store(s, metadata)
	if err != nil {
		return types.Result{}, err
	}

	if err := h.sparse.Store(result.ID, s, metadata); err != nil {
		return types.Result{}, err
	}

	return result, nil
}

func (h *HybridEngine) StoreDocuments(s []string, metadata map[string]string) ([]types.Result, error) {
	results, err := h.dense.StoreDocuments(s, metadata)
	if err != nil {
		return nil, err
	}

	for i, result := range results {
		if err := h.sparse.Store(result.ID, s[i], metadata); err != nil {
			return nil, err
		}
	}

	return results, nil
}

func (h *HybridEngine) Delete(ids ...string) error {
	if err := h.dense.Delete(ids...); err != nil {
		return err
	}
	return h.sparse.Delete(ids...)
}

func (h *HybridEngine) Reset() error {
	if err := h.dense.Reset(); err != nil {
		return err
	}
	return h.sparse.Reset()
}

func (h *HybridEngine) Count() int {
	return h.dense.Count()
}

func (h *HybridEngine) SearchVectors(ctx context.Context, embedding []float32, limit int) (types.RankedList, error) {
	return h.dense.SearchVectors(ctx, embedding, limit)
}

func (h *HybridEngine) SearchKeywords(ctx context.Context, query string, limit int) (types.RankedList, error) {
	return h.sparse.SearchKeywords(ctx, query, limit)
}
