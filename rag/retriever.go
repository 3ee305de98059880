package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mudler/xlog"
	"github.com/ragstack/localrag/rag/fusion"
	"github.com/ragstack/localrag/rag/interfaces"
	"github.com/ragstack/localrag/rag/types"
)

const (
	// DefaultResults is the result count used when the caller does not ask
	// for a specific K.
	DefaultResults = 5

	// DefaultTopNForRerank bounds the candidate window handed to the
	// reranker. Reranking is O(candidates) model invocations, so the
	// window stays small regardless of corpus size.
	DefaultTopNForRerank = 20

	// DefaultRetrieverTimeout bounds each retriever query so one slow
	// backend cannot stall the whole call.
	DefaultRetrieverTimeout = 10 * time.Second
)

// RetrieverConfig tunes the retrieval pipeline. The zero value picks the
// defaults above.
type RetrieverConfig struct {
	SmoothingK       float64
	TopNForRerank    int
	RetrieverTimeout time.Duration
}

func (c RetrieverConfig) withDefaults() RetrieverConfig {
	if c.SmoothingK == 0 {
		c.SmoothingK = fusion.DefaultK
	}
	if c.TopNForRerank <= 0 {
		c.TopNForRerank = DefaultTopNForRerank
	}
	if c.RetrieverTimeout <= 0 {
		c.RetrieverTimeout = DefaultRetrieverTimeout
	}
	return c
}

// Retriever runs the hybrid retrieval pipeline: dense and sparse queries
// issued concurrently, rank fusion, and an optional rerank pass. It holds
// no per-call state, so callers may share one instance across concurrent
// requests.
type Retriever struct {
	embedder interfaces.Embedder
	dense    interfaces.DenseRetriever
	sparse   interfaces.SparseRetriever
	reranker types.Reranker
	config   RetrieverConfig
}

// NewRetriever wires the pipeline. reranker may be nil, in which case the
// rerank stage is skipped regardless of the per-query flag.
func NewRetriever(embedder interfaces.Embedder, dense interfaces.DenseRetriever, sparse interfaces.SparseRetriever, reranker types.Reranker, config RetrieverConfig) *Retriever {
	return &Retriever{
		embedder: embedder,
		dense:    dense,
		sparse:   sparse,
		reranker: reranker,
		config:   config.withDefaults(),
	}
}

// Retrieve answers one retrieval call. Single-retriever failures degrade
// the call instead of failing it; configuration errors (bad smoothing
// constant, embedding dimension mismatch) and the loss of both retrievers
// are hard errors.
func (r *Retriever) Retrieve(ctx context.Context, query types.Query) (*types.SearchResponse, error) {
	if query.K <= 0 {
		query.K = DefaultResults
	}
	// Validate fusion configuration before doing any I/O.
	if r.config.SmoothingK <= 0 {
		return nil, types.ErrInvalidSmoothingConstant
	}

	resp := &types.SearchResponse{TraceID: uuid.NewString()}
	start := time.Now()

	// Fetch enough candidates from each retriever to give fusion room to
	// surface cross-signal agreement.
	fetchLimit := query.K
	if r.config.TopNForRerank > fetchLimit {
		fetchLimit = r.config.TopNForRerank
	}

	denseList, sparseList, denseErr, sparseErr := r.retrieveConcurrently(ctx, query, fetchLimit)
	resp.Timings.RetrievalMS = time.Since(start).Milliseconds()

	if denseErr != nil && errors.Is(denseErr, types.ErrDimensionMismatch) {
		return nil, denseErr
	}
	if denseErr != nil && sparseErr != nil {
		return nil, fmt.Errorf("%w: dense: %v; sparse: %v", types.ErrAllRetrieversUnavailable, denseErr, sparseErr)
	}

	lists := make([]types.RankedList, 0, 2)
	if denseErr != nil {
		resp.Degraded = true
		resp.Degradations = append(resp.Degradations, fmt.Sprintf("dense retriever unavailable: %v", denseErr))
		xlog.Warn("Dense retriever unavailable, degrading to sparse only", "trace", resp.TraceID, "error", denseErr)
	} else {
		lists = append(lists, denseList)
	}
	if sparseErr != nil {
		resp.Degraded = true
		resp.Degradations = append(resp.Degradations, fmt.Sprintf("sparse retriever unavailable: %v", sparseErr))
		xlog.Warn("Sparse retriever unavailable, degrading to dense only", "trace", resp.TraceID, "error", sparseErr)
	} else {
		lists = append(lists, sparseList)
	}

	fused, err := fusion.Fuse(lists, r.config.SmoothingK)
	if err != nil {
		return nil, err
	}

	results := fusedToSearchResults(fused)
	if query.Rerank && r.reranker != nil {
		// The reranker only ever sees the fused top window; candidates
		// past the window keep their fused order behind it.
		window := fused
		if len(window) > r.config.TopNForRerank {
			window = window[:r.config.TopNForRerank]
		}
		rerankStart := time.Now()
		reranked, err := r.rerankFused(ctx, query.Text, window)
		resp.Timings.RerankMS = time.Since(rerankStart).Milliseconds()
		if err != nil {
			// Reranking is an enhancement: fall back to the fused order.
			resp.Degraded = true
			resp.Degradations = append(resp.Degradations, fmt.Sprintf("reranker unavailable: %v", err))
			xlog.Warn("Reranker unavailable, falling back to fused order", "trace", resp.TraceID, "error", err)
		} else {
			results = append(reranked, fusedToSearchResults(fused[len(window):])...)
			resp.Reranked = true
		}
	}

	if len(results) > query.K {
		results = results[:query.K]
	}
	resp.Results = results
	resp.Timings.TotalMS = time.Since(start).Milliseconds()

	return resp, nil
}

// retrieveConcurrently issues both retriever queries in parallel, each
// bounded by the per-retriever timeout, and waits for both to settle.
func (r *Retriever) retrieveConcurrently(ctx context.Context, query types.Query, limit int) (denseList, sparseList types.RankedList, denseErr, sparseErr error) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		dctx, cancel := context.WithTimeout(ctx, r.config.RetrieverTimeout)
		defer cancel()

		embedding := query.Embedding
		if embedding == nil {
			var err error
			embedding, err = r.embedder.Embed(dctx, query.Text)
			if err != nil {
				denseErr = fmt.Errorf("%w: computing query embedding: %v", types.ErrRetrievalUnavailable, err)
				return
			}
		}
		denseList, denseErr = r.dense.SearchVectors(dctx, embedding, limit)
	}()

	go func() {
		defer wg.Done()
		sctx, cancel := context.WithTimeout(ctx, r.config.RetrieverTimeout)
		defer cancel()
		sparseList, sparseErr = r.sparse.SearchKeywords(sctx, query.Text, limit)
	}()

	wg.Wait()
	return
}

func (r *Retriever) rerankFused(ctx context.Context, query string, fused []types.FusedResult) ([]types.SearchResult, error) {
	candidates := make([]types.Result, len(fused))
	byID := make(map[string]types.FusedResult, len(fused))
	for i, f := range fused {
		candidates[i] = f.Result
		byID[f.ID] = f
	}

	reranked, err := r.reranker.Rerank(ctx, query, candidates)
	if err != nil {
		return nil, err
	}
	if len(reranked) != len(fused) {
		return nil, fmt.Errorf("%w: reranker returned %d results for %d candidates", types.ErrRerankerUnavailable, len(reranked), len(fused))
	}

	results := make([]types.SearchResult, 0, len(reranked))
	for _, rr := range reranked {
		f, ok := byID[rr.ID]
		if !ok {
			return nil, fmt.Errorf("%w: reranker returned unknown id %s", types.ErrRerankerUnavailable, rr.ID)
		}
		score := rr.ModelScore
		results = append(results, types.SearchResult{
			Result:     f.Result,
			FusedScore: f.FusedScore,
			ModelScore: &score,
			Sources:    contributingSources(f),
		})
	}
	return results, nil
}

func fusedToSearchResults(fused []types.FusedResult) []types.SearchResult {
	results := make([]types.SearchResult, 0, len(fused))
	for _, f := range fused {
		results = append(results, types.SearchResult{
			Result:     f.Result,
			FusedScore: f.FusedScore,
			Sources:    contributingSources(f),
		})
	}
	return results
}

func contributingSources(f types.FusedResult) []types.Source {
	sources := make([]types.Source, 0, len(f.Ranks))
	if _, ok := f.Ranks[types.SourceDense]; ok {
		sources = append(sources, types.SourceDense)
	}
	if _, ok := f.Ranks[types.SourceSparse]; ok {
		sources = append(sources, types.SourceSparse)
	}
	return sources
}
