// Package fusion merges independently-ranked retrieval lists into a single
// ranking with Reciprocal Rank Fusion.
package fusion

import (
	"math"
	"sort"

	"github.com/ragstack/localrag/rag/types"
)

// DefaultK is the smoothing constant from the original RRF paper. It keeps
// rank differences near the top gentle enough that no single retriever
// dominates on tie density alone.
const DefaultK = 60

// Fuse combines N ranked lists into one fused ranking. Each candidate
// contributes 1/(k+rank) per list it appears in, with rank being its
// 1-based position in that list; contributions are summed across lists.
// Absence from a list adds nothing: a retriever's blind spot is not
// evidence of irrelevance.
//
// Ties on fused score are broken by: number of contributing lists, then
// dense rank, then sparse rank, then lexicographic chunk id. The output is
// therefore fully deterministic for fixed inputs.
//
// Fuse is a pure function and safe to call concurrently. Empty input lists
// contribute nothing and are not an error.
func Fuse(lists []types.RankedList, k float64) ([]types.FusedResult, error) {
	if k <= 0 {
		return nil, types.ErrInvalidSmoothingConstant
	}

	byID := map[string]*types.FusedResult{}
	for _, list := range lists {
		for i, r := range list.Results {
			rank := i + 1
			f, seen := byID[r.ID]
			if !seen {
				f = &types.FusedResult{
					Result: r,
					Ranks:  map[types.Source]int{},
				}
				f.Source = ""
				byID[r.ID] = f
			}
			if f.Content == "" {
				f.Content = r.Content
			}
			if f.Metadata == nil {
				f.Metadata = r.Metadata
			}
			// First occurrence wins if the same source appears twice.
			if _, ok := f.Ranks[list.Source]; !ok {
				f.Ranks[list.Source] = rank
				f.FusedScore += 1 / (k + float64(rank))
			}
		}
	}

	fused := make([]types.FusedResult, 0, len(byID))
	for _, f := range byID {
		fused = append(fused, *f)
	}

	sort.Slice(fused, func(i, j int) bool {
		a, b := fused[i], fused[j]
		if a.FusedScore != b.FusedScore {
			return a.FusedScore > b.FusedScore
		}
		if len(a.Ranks) != len(b.Ranks) {
			return len(a.Ranks) > len(b.Ranks)
		}
		if ra, rb := rankOrWorst(a, types.SourceDense), rankOrWorst(b, types.SourceDense); ra != rb {
			return ra < rb
		}
		if ra, rb := rankOrWorst(a, types.SourceSparse), rankOrWorst(b, types.SourceSparse); ra != rb {
			return ra < rb
		}
		return a.ID < b.ID
	})

	return fused, nil
}

func rankOrWorst(f types.FusedResult, source types.Source) int {
	if r, ok := f.Ranks[source]; ok {
		return r
	}
	return math.MaxInt
}
