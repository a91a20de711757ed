// Package sparse provides lexical sparse embeddings (BM25-style term weights) over bleve analyzers.
package sparse

import (
	"context"
	"math"

	"github.com/hyperjump/dashrag/internal/models"
)

// Embedder produces sparse term-weight vectors. Embed is used for stored documents
// and EmbedQuery for search text; both are pure functions of their input.
type Embedder interface {
	Embed(ctx context.Context, text string) (models.SparseVector, error)
	EmbedQuery(ctx context.Context, text string) (models.SparseVector, error)
	// Name identifies the analyzer and weighting; recorded with a collection.
	Name() string
}

// IDF returns the BM25 inverse document frequency of a term that occurs in df of n documents.
func IDF(n, df int) float64 {
	if n <= 0 || df <= 0 {
		return 0
	}
	return math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
}

// Dot returns sum(q[i] * d[i] * weight(i)) over indices present in both vectors.
// Both vectors must have strictly increasing indices. A nil weight means 1.
func Dot(q, d models.SparseVector, weight func(uint32) float64) float64 {
	var sum float64
	i, j := 0, 0
	for i < len(q.Indices) && j < len(d.Indices) {
		switch {
		case q.Indices[i] < d.Indices[j]:
			i++
		case q.Indices[i] > d.Indices[j]:
			j++
		default:
			w := 1.0
			if weight != nil {
				w = weight(q.Indices[i])
			}
			sum += float64(q.Values[i]) * float64(d.Values[j]) * w
			i++
			j++
		}
	}
	return sum
}
