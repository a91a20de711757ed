// Package vector holds the in-memory scoring segment of a collection: every point's
// dense and sparse vectors, scored by brute force over the filtered candidate set.
package vector

import "github.com/hyperjump/dashrag/internal/models"

// Candidate is a point that passed the filter, with its raw channel scores.
type Candidate struct {
	Point  *models.Point
	Dense  float64 // clamped cosine in [0,1]
	Sparse float64 // BM25 with collection IDF
}

// Matcher reports whether a point's metadata is admitted. A nil Matcher admits everything.
type Matcher func(models.Metadata) bool
