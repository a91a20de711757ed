package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/dashrag/internal/models"
	"github.com/hyperjump/dashrag/internal/sparse"
)

// ctxCheckEvery bounds how many points are scored between context checks.
const ctxCheckEvery = 1024

// Segment is an append-only in-memory set of points kept in insertion order.
// It also tracks document frequencies of sparse indices for IDF.
type Segment struct {
	dimensions int
	points     []*models.Point
	df         map[uint32]int
	mu         sync.RWMutex
}

// NewSegment creates an empty segment for vectors of the given dimension.
func NewSegment(dimensions int) (*Segment, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &Segment{
		dimensions: dimensions,
		points:     make([]*models.Point, 0),
		df:         make(map[uint32]int),
	}, nil
}

// Dimensions returns the dense dimension every point must have.
func (s *Segment) Dimensions() int {
	return s.dimensions
}

// Add appends points. All points are validated first; on error nothing is added.
func (s *Segment) Add(points ...*models.Point) error {
	for _, p := range points {
		if err := s.check(p); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.points = append(s.points, p)
		for _, idx := range p.Sparse.Indices {
			s.df[idx]++
		}
	}
	return nil
}

func (s *Segment) check(p *models.Point) error {
	if p == nil {
		return fmt.Errorf("nil point")
	}
	if len(p.Dense) != s.dimensions {
		return &models.DimensionMismatchError{Want: s.dimensions, Got: len(p.Dense)}
	}
	if err := p.Sparse.Validate(); err != nil {
		return fmt.Errorf("point %s: %w", p.PointID, err)
	}
	return nil
}

// Size returns the number of points.
func (s *Segment) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// Points returns the points matching m in insertion order. The slice is a copy;
// the points themselves are shared and must not be modified.
func (s *Segment) Points(m Matcher) []*models.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Point, 0, len(s.points))
	for _, p := range s.points {
		if m == nil || m(p.Document.Metadata) {
			out = append(out, p)
		}
	}
	return out
}

// IDF returns the inverse document frequency of a sparse index in this segment.
func (s *Segment) IDF(idx uint32) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sparse.IDF(len(s.points), s.df[idx])
}

// Score filters the segment with m and scores every admitted point against the
// dense and sparse query vectors. Candidates come back in insertion order.
func (s *Segment) Score(ctx context.Context, dense []float32, sq models.SparseVector, m Matcher) ([]Candidate, error) {
	if len(dense) != s.dimensions {
		return nil, &models.DimensionMismatchError{Want: s.dimensions, Got: len(dense)}
	}
	if err := sq.Validate(); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.points)
	idf := make(map[uint32]float64, len(sq.Indices))
	for _, idx := range sq.Indices {
		idf[idx] = sparse.IDF(n, s.df[idx])
	}
	weight := func(idx uint32) float64 { return idf[idx] }

	out := make([]Candidate, 0)
	for i, p := range s.points {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if m != nil && !m(p.Document.Metadata) {
			continue
		}
		out = append(out, Candidate{
			Point:  p,
			Dense:  CosineSimilarity(dense, p.Dense),
			Sparse: sparse.Dot(sq, p.Sparse, weight),
		})
	}
	return out, nil
}

// Newest returns up to k points matching m, newest first.
func (s *Segment) Newest(m Matcher, k int) []*models.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Point, 0, k)
	for i := len(s.points) - 1; i >= 0 && len(out) < k; i-- {
		p := s.points[i]
		if m == nil || m(p.Document.Metadata) {
			out = append(out, p)
		}
	}
	return out
}

// SortBySeq orders points by their persisted sequence.
func SortBySeq(points []*models.Point) {
	sort.SliceStable(points, func(i, j int) bool { return points[i].Seq < points[j].Seq })
}
