package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"github.com/hyperjump/dashrag/internal/models"
)

// BadgerDir is the badger directory inside the collection directory.
const BadgerDir = "badger"

const (
	infoKey                  = "meta:info"
	pointPrefix              = "pt:"
	pointSeqKey              = "meta:ptseq"
	defaultSequenceBandwidth = 100
)

// BadgerBackend implements Backend on an embedded badger key-value store.
// Points live under pt:<big-endian seq> so key order is insertion order.
type BadgerBackend struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *zap.Logger
}

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	s *zap.SugaredLogger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any)   { l.s.Errorf(msg, items...) }
func (l *badgerLogger) Warningf(msg string, items ...any) { l.s.Warnf(msg, items...) }
func (l *badgerLogger) Infof(msg string, items ...any)    { l.s.Debugf(msg, items...) }
func (l *badgerLogger) Debugf(msg string, items ...any)   { l.s.Debugf(msg, items...) }

// pointRecord is the stored value of a point. Vectors use the little-endian blob codec.
type pointRecord struct {
	PointID       string          `json:"point_id"`
	Document      models.Document `json:"document"`
	Dense         []byte          `json:"dense"`
	SparseIndices []byte          `json:"sparse_indices"`
	SparseValues  []byte          `json:"sparse_values"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewBadgerBackend opens or creates dir/badger.
func NewBadgerBackend(dir string, logger *zap.Logger) (*BadgerBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	path := filepath.Join(dir, BadgerDir)
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create badger directory: %w", err)
	}
	opts := badger.DefaultOptions(path)
	opts.Logger = &badgerLogger{s: logger.Named("badger").Sugar()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	seq, err := db.GetSequence([]byte(pointSeqKey), defaultSequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open point sequence: %w", err)
	}
	return &BadgerBackend{db: db, seq: seq, logger: logger}, nil
}

func pointKey(seq uint64) []byte {
	key := make([]byte, len(pointPrefix)+8)
	copy(key, pointPrefix)
	binary.BigEndian.PutUint64(key[len(pointPrefix):], seq)
	return key
}

// Create writes the info record and the initial points in one transaction.
func (b *BadgerBackend) Create(ctx context.Context, info *models.CollectionInfo, points []*models.Point) error {
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal collection info: %w", err)
	}
	written, err := b.assign(points)
	if err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(infoKey)); err == nil {
			return models.ErrCollectionExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set([]byte(infoKey), infoJSON); err != nil {
			return err
		}
		return putPoints(ctx, txn, written)
	})
	if err != nil {
		return err
	}
	commit(points, written)
	return nil
}

// Info returns the stored collection record.
func (b *BadgerBackend) Info(ctx context.Context) (*models.CollectionInfo, error) {
	var info models.CollectionInfo
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(infoKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoInfo
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &info)
		})
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Append writes all points in one transaction.
func (b *BadgerBackend) Append(ctx context.Context, points []*models.Point) error {
	if len(points) == 0 {
		return nil
	}
	written, err := b.assign(points)
	if err != nil {
		return err
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return putPoints(ctx, txn, written)
	})
	if err != nil {
		return err
	}
	commit(points, written)
	return nil
}

// assign stamps copies of points with ids and sequence numbers. Sequence numbers
// consumed by a failed write are skipped, never reused.
func (b *BadgerBackend) assign(points []*models.Point) ([]models.Point, error) {
	written := stamp(points, time.Now().UTC())
	for i := range written {
		n, err := b.seq.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to allocate point sequence: %w", err)
		}
		written[i].Seq = n + 1
	}
	return written, nil
}

func putPoints(ctx context.Context, txn *badger.Txn, points []models.Point) error {
	for i := range points {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := &points[i]
		val, err := json.Marshal(pointRecord{
			PointID:       p.PointID,
			Document:      p.Document,
			Dense:         float32SliceToBytes(p.Dense),
			SparseIndices: uint32SliceToBytes(p.Sparse.Indices),
			SparseValues:  float32SliceToBytes(p.Sparse.Values),
			CreatedAt:     p.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal point %s: %w", p.Document.ID, err)
		}
		if err := txn.Set(pointKey(p.Seq), val); err != nil {
			return fmt.Errorf("failed to write point %s: %w", p.Document.ID, err)
		}
	}
	return nil
}

// Scan iterates points in key (= seq) order.
func (b *BadgerBackend) Scan(ctx context.Context, fn func(*models.Point) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pointPrefix)
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			key := item.KeyCopy(nil)
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			p, err := decodePoint(key, val)
			if err != nil {
				return err
			}
			if err := fn(p); err != nil {
				return err
			}
		}
		return nil
	})
}

func decodePoint(key, val []byte) (*models.Point, error) {
	if len(key) != len(pointPrefix)+8 {
		return nil, fmt.Errorf("malformed point key %q", key)
	}
	seq := binary.BigEndian.Uint64(key[len(pointPrefix):])
	var rec pointRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal point %d: %w", seq, err)
	}
	dense, err := bytesToFloat32Slice(rec.Dense)
	if err != nil {
		return nil, fmt.Errorf("point %d: %w", seq, err)
	}
	sv, err := decodeSparse(rec.SparseIndices, rec.SparseValues)
	if err != nil {
		return nil, fmt.Errorf("point %d: %w", seq, err)
	}
	return &models.Point{
		Seq:       seq,
		PointID:   rec.PointID,
		Document:  rec.Document,
		Dense:     dense,
		Sparse:    sv,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// Count returns the number of points, iterating keys only.
func (b *BadgerBackend) Count(ctx context.Context) (int64, error) {
	var n int64
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pointPrefix)
		opts.PrefetchValues = false
		iter := txn.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Close releases the sequence lease and closes the database.
func (b *BadgerBackend) Close() error {
	if err := b.seq.Release(); err != nil {
		b.logger.Warn("Failed to release point sequence", zap.Error(err))
	}
	return b.db.Close()
}
