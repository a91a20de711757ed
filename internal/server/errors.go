package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/hyperjump/dashrag/internal/ingest"
	"github.com/hyperjump/dashrag/internal/models"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		dimErr  *models.DimensionMismatchError
		embErr  *models.EmbeddingError
		loadErr *models.LoadError
	)
	switch {
	case errors.Is(err, models.ErrInvalidK),
		errors.Is(err, models.ErrInvalidDocument),
		errors.Is(err, models.ErrEmptyBuild):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrCollectionNotFound),
		errors.Is(err, models.ErrCollectionNotLoaded):
		return http.StatusNotFound
	case errors.Is(err, models.ErrCollectionExists):
		return http.StatusConflict
	case errors.As(err, &dimErr),
		errors.Is(err, models.ErrModelMismatch),
		errors.As(err, &loadErr),
		errors.Is(err, ingest.ErrNothingLoaded):
		return http.StatusUnprocessableEntity
	case errors.As(err, &embErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
