package vector

import (
	"math"

	"github.com/hyperjump/dashrag/pkg/utils"
)

// InnerProduct returns a·b, or 0 when the lengths differ or are zero.
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the Euclidean length of x.
func L2Norm(x []float32) float64 {
	return math.Sqrt(InnerProduct(x, x))
}

// CosineSimilarity returns the cosine of a and b clamped to [0,1], so opposite
// directions score like unrelated ones. Zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return utils.Clamp(InnerProduct(a, b)/(na*nb), 0, 1)
}
