package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/dashrag/internal/models"
)

// SQLiteFile is the database file name inside the collection directory.
const SQLiteFile = "collection.db"

// SQLiteBackend implements Backend using SQLite.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens or creates dir/collection.db and initializes the schema.
func NewSQLiteBackend(dir string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create collection directory: %w", err)
	}
	db, err := sql.Open("sqlite3", filepath.Join(dir, SQLiteFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps the WAL pragma and transactions on the same handle.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collection_info (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		name TEXT NOT NULL,
		dense_model TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		sparse_model TEXT NOT NULL,
		backend TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS points (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		point_id TEXT NOT NULL UNIQUE,
		doc_id TEXT NOT NULL,
		content TEXT NOT NULL,
		source_file TEXT NOT NULL,
		has_table INTEGER NOT NULL,
		metadata TEXT NOT NULL,
		dense BLOB NOT NULL,
		sparse_indices BLOB,
		sparse_values BLOB,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_points_doc_id ON points(doc_id);
	CREATE INDEX IF NOT EXISTS idx_points_source_file ON points(source_file);
	`
	_, err := db.Exec(schema)
	return err
}

// Create writes the info row and the initial points in one transaction.
func (s *SQLiteBackend) Create(ctx context.Context, info *models.CollectionInfo, points []*models.Point) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM collection_info`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return models.ErrCollectionExists
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO collection_info (id, name, dense_model, dimensions, sparse_model, backend, created_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?)`,
		info.Name, info.DenseModel, info.Dimensions, info.SparseModel, info.Backend, info.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to write collection info: %w", err)
	}
	written, err := insertPoints(ctx, tx, points)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	commit(points, written)
	return nil
}

// Info returns the collection row.
func (s *SQLiteBackend) Info(ctx context.Context) (*models.CollectionInfo, error) {
	var info models.CollectionInfo
	err := s.db.QueryRowContext(ctx,
		`SELECT name, dense_model, dimensions, sparse_model, backend, created_at
		 FROM collection_info WHERE id = 1`,
	).Scan(&info.Name, &info.DenseModel, &info.Dimensions, &info.SparseModel, &info.Backend, &info.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoInfo
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Append inserts points in a transaction.
func (s *SQLiteBackend) Append(ctx context.Context, points []*models.Point) error {
	if len(points) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	written, err := insertPoints(ctx, tx, points)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	commit(points, written)
	return nil
}

func insertPoints(ctx context.Context, tx *sql.Tx, points []*models.Point) ([]models.Point, error) {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO points (point_id, doc_id, content, source_file, has_table, metadata, dense, sparse_indices, sparse_values, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	written := stamp(points, time.Now().UTC())
	for i := range written {
		p := &written[i]
		metadataJSON, err := json.Marshal(p.Document.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		res, err := stmt.ExecContext(ctx,
			p.PointID, p.Document.ID, p.Document.Content, p.Document.Metadata.SourceFile,
			p.Document.Metadata.HasTable, string(metadataJSON), float32SliceToBytes(p.Dense),
			uint32SliceToBytes(p.Sparse.Indices), float32SliceToBytes(p.Sparse.Values), p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert point %s: %w", p.Document.ID, err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		p.Seq = uint64(seq)
	}
	return written, nil
}

// Scan reads every point ordered by seq.
func (s *SQLiteBackend) Scan(ctx context.Context, fn func(*models.Point) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, point_id, doc_id, content, metadata, dense, sparse_indices, sparse_values, created_at
		 FROM points ORDER BY seq`,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p            models.Point
			seq          int64
			metadataJSON string
			dense        []byte
			sparseIdx    []byte
			sparseVals   []byte
		)
		if err := rows.Scan(&seq, &p.PointID, &p.Document.ID, &p.Document.Content, &metadataJSON,
			&dense, &sparseIdx, &sparseVals, &p.CreatedAt); err != nil {
			return err
		}
		p.Seq = uint64(seq)
		if err := json.Unmarshal([]byte(metadataJSON), &p.Document.Metadata); err != nil {
			return fmt.Errorf("failed to unmarshal metadata of point %d: %w", seq, err)
		}
		if p.Dense, err = bytesToFloat32Slice(dense); err != nil {
			return fmt.Errorf("point %d: %w", seq, err)
		}
		if p.Sparse, err = decodeSparse(sparseIdx, sparseVals); err != nil {
			return fmt.Errorf("point %d: %w", seq, err)
		}
		if err := fn(&p); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of points.
func (s *SQLiteBackend) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM points`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
