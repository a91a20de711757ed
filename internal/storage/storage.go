// Package storage persists a collection (its info record and every point) under the
// collection directory. Backends are append-only and single-writer.
package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/dashrag/internal/models"
)

// Supported backend kinds.
const (
	KindSQLite = "sqlite"
	KindBadger = "badger"
)

// ErrNoInfo is returned by Info when the backend holds no collection record.
var ErrNoInfo = errors.New("collection info not found")

// Backend defines collection persistence operations.
type Backend interface {
	// Create writes the info record and the initial points in one transaction.
	// It fails if the backend already holds a collection.
	Create(ctx context.Context, info *models.CollectionInfo, points []*models.Point) error
	// Info returns the collection record or ErrNoInfo.
	Info(ctx context.Context) (*models.CollectionInfo, error)
	// Append writes all points in one transaction. Seq, PointID and CreatedAt are
	// assigned on the given points only after the commit succeeds.
	Append(ctx context.Context, points []*models.Point) error
	// Scan calls fn for every point in Seq order.
	Scan(ctx context.Context, fn func(*models.Point) error) error
	Count(ctx context.Context) (int64, error)
	Close() error
}

// Open opens (creating files as needed) a backend of the given kind inside dir.
func Open(kind, dir string, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch kind {
	case KindSQLite, "":
		return NewSQLiteBackend(dir)
	case KindBadger:
		return NewBadgerBackend(dir, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: sqlite, badger)", kind)
	}
}
