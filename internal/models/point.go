package models

import (
	"fmt"
	"time"
)

// SparseVector is a lexical term-weight vector. Indices are strictly increasing
// and Values has the same length.
type SparseVector struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

// Len returns the number of non-zero entries.
func (s SparseVector) Len() int { return len(s.Indices) }

// Validate checks the ordering and length invariants.
func (s SparseVector) Validate() error {
	if len(s.Indices) != len(s.Values) {
		return fmt.Errorf("sparse vector has %d indices and %d values", len(s.Indices), len(s.Values))
	}
	for i := 1; i < len(s.Indices); i++ {
		if s.Indices[i] <= s.Indices[i-1] {
			return fmt.Errorf("sparse vector indices not strictly increasing at %d", i)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s SparseVector) Clone() SparseVector {
	return SparseVector{
		Indices: append([]uint32(nil), s.Indices...),
		Values:  append([]float32(nil), s.Values...),
	}
}

// Point is a persisted (document, dense, sparse) triple. Seq is assigned by the
// storage backend on append and orders points by insertion.
type Point struct {
	Seq       uint64
	PointID   string
	Document  Document
	Dense     []float32
	Sparse    SparseVector
	CreatedAt time.Time
}

// CollectionInfo describes a collection. It is written once at build time.
type CollectionInfo struct {
	Name        string    `json:"name"`
	DenseModel  string    `json:"dense_model"`
	Dimensions  int       `json:"dimensions"`
	SparseModel string    `json:"sparse_model"`
	Backend     string    `json:"backend"`
	CreatedAt   time.Time `json:"created_at"`
}
