package types

import "errors"

var (
	// ErrRetrievalUnavailable signals that a single retrieval backend is
	// unreachable or timed out. Recoverable: the pipeline degrades to the
	// surviving retriever.
	ErrRetrievalUnavailable = errors.New("retrieval backend unavailable")

	// ErrAllRetrieversUnavailable signals that every retrieval signal
	// failed. Fatal for the call.
	ErrAllRetrieversUnavailable = errors.New("all retrieval backends unavailable")

	// ErrDimensionMismatch signals that the query embedding does not match
	// the index dimensionality. Fatal: caller configuration bug.
	ErrDimensionMismatch = errors.New("query embedding dimension mismatch")

	// ErrInvalidSmoothingConstant signals a non-positive RRF smoothing
	// constant.
	ErrInvalidSmoothingConstant = errors.New("smoothing constant must be positive")

	// ErrRerankerUnavailable signals that the rerank model backend is
	// unreachable. Recoverable: callers fall back to the fused order.
	ErrRerankerUnavailable = errors.New("reranker backend unavailable")
)
