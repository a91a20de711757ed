package models

import (
	"errors"
	"fmt"
)

// Collection lifecycle errors. They signal that the caller chose the wrong branch
// (build vs. load) and are always surfaced.
var (
	ErrCollectionExists    = errors.New("collection already exists")
	ErrCollectionNotFound  = errors.New("collection not found")
	ErrCollectionNotLoaded = errors.New("collection not loaded")
	ErrEmptyBuild          = errors.New("cannot build a collection from zero documents")
	ErrModelMismatch       = errors.New("embedding model does not match collection")
)

// Input errors.
var (
	ErrInvalidK          = errors.New("k must be >= 1")
	ErrInvalidDocument   = errors.New("invalid document")
	ErrUnsupportedSource = errors.New("unsupported source type")
	ErrEmptySource       = errors.New("source produced no content")
)

// LoadError reports a source file that could not be turned into documents.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// DimensionMismatchError is returned when a vector does not match the collection's
// dimensionality. It is never retried.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: got %d, expected %d", e.Got, e.Want)
}

// EmbeddingError wraps a failure of a dense or sparse embedding backend.
// Callers may retry the whole operation; the core does not.
type EmbeddingError struct {
	Model string
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding with %s failed: %v", e.Model, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient embedding failure.
func IsRetryable(err error) bool {
	var embErr *EmbeddingError
	return errors.As(err, &embErr)
}
