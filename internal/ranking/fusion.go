package ranking

import (
	"sort"

	"github.com/hyperjump/dashrag/internal/models"
	"github.com/hyperjump/dashrag/internal/vector"
)

type fused struct {
	c     vector.Candidate
	score float64
}

// Fuse scores candidates with the configured method and returns the top k as
// search results, best first. Equal scores keep insertion order (lower Seq first).
func Fuse(cands []vector.Candidate, cfg *FusionConfig, k int) []*models.SearchResult {
	if cfg == nil {
		cfg = DefaultFusionConfig()
	}
	var scored []fused
	switch cfg.Method {
	case FusionRRF:
		scored = reciprocalRank(cands, cfg.RRFK)
	default:
		scored = weighted(cands, cfg.DenseWeight, cfg.SparseWeight)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].c.Point.Seq < scored[j].c.Point.Seq
	})
	if k > len(scored) {
		k = len(scored)
	}
	out := make([]*models.SearchResult, 0, k)
	for i := 0; i < k; i++ {
		s := scored[i]
		out = append(out, &models.SearchResult{
			Document:    s.c.Point.Document,
			Score:       s.score,
			DenseScore:  s.c.Dense,
			SparseScore: s.c.Sparse,
			Rank:        i + 1,
		})
	}
	return out
}

// NormalizeSparse divides sparse scores by their maximum so they land in [0,1].
func NormalizeSparse(cands []vector.Candidate) []float64 {
	maxScore := 0.0
	for _, c := range cands {
		if c.Sparse > maxScore {
			maxScore = c.Sparse
		}
	}
	out := make([]float64, len(cands))
	if maxScore <= 0 {
		return out
	}
	for i, c := range cands {
		out[i] = c.Sparse / maxScore
	}
	return out
}

func weighted(cands []vector.Candidate, denseWeight, sparseWeight float64) []fused {
	norm := NormalizeSparse(cands)
	out := make([]fused, len(cands))
	for i, c := range cands {
		out[i] = fused{c: c, score: denseWeight*c.Dense + sparseWeight*norm[i]}
	}
	return out
}

// reciprocalRank sums 1/(k+rank) over both channels. A candidate with no sparse
// overlap takes no sparse contribution.
func reciprocalRank(cands []vector.Candidate, k float64) []fused {
	denseRank := ranks(cands, func(c vector.Candidate) float64 { return c.Dense })
	sparseRank := ranks(cands, func(c vector.Candidate) float64 { return c.Sparse })
	out := make([]fused, len(cands))
	for i, c := range cands {
		score := 1 / (k + float64(denseRank[i]))
		if c.Sparse > 0 {
			score += 1 / (k + float64(sparseRank[i]))
		}
		out[i] = fused{c: c, score: score}
	}
	return out
}

// ranks returns the 1-based rank of each candidate by descending channel score.
func ranks(cands []vector.Candidate, score func(vector.Candidate) float64) []int {
	order := make([]int, len(cands))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := score(cands[order[a]]), score(cands[order[b]])
		if sa != sb {
			return sa > sb
		}
		return cands[order[a]].Point.Seq < cands[order[b]].Point.Seq
	})
	out := make([]int, len(cands))
	for r, i := range order {
		out[i] = r + 1
	}
	return out
}
