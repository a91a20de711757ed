// Package collection implements the persistent hybrid index: a named collection of
// documents with dense and sparse vectors, stored on disk and scored in memory.
package collection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/dashrag/internal/embedding"
	"github.com/hyperjump/dashrag/internal/models"
	"github.com/hyperjump/dashrag/internal/ranking"
	"github.com/hyperjump/dashrag/internal/sparse"
	"github.com/hyperjump/dashrag/internal/storage"
	"github.com/hyperjump/dashrag/internal/vector"
	"github.com/hyperjump/dashrag/pkg/utils"
)

// Collection is a hybrid index rooted at a directory. The directory is the collection
// marker: Build requires it to be absent, Load requires it to be present.
// A Collection is safe for concurrent use; writes are serialized.
type Collection struct {
	path        string
	name        string
	backendKind string
	dense       embedding.Embedder
	sparse      sparse.Embedder
	fusion      *ranking.FusionConfig
	workers     int
	logger      *zap.Logger

	writeMu sync.Mutex
	mu      sync.RWMutex
	backend storage.Backend
	segment *vector.Segment
	info    *models.CollectionInfo
}

// Option configures a Collection.
type Option func(*Collection)

// WithLogger sets a logger for build/load/add events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Collection) { c.logger = utils.MustNop(l) }
}

// WithBackend selects the storage backend used by Build ("sqlite" or "badger").
// Load always reopens the backend recorded at build time.
func WithBackend(kind string) Option {
	return func(c *Collection) { c.backendKind = kind }
}

// WithName overrides the collection name (defaults to the directory base name).
func WithName(name string) Option {
	return func(c *Collection) { c.name = name }
}

// WithWorkers sets the embedding worker pool size.
func WithWorkers(n int) Option {
	return func(c *Collection) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithFusion sets the score fusion parameters.
func WithFusion(cfg *ranking.FusionConfig) Option {
	return func(c *Collection) { c.fusion = cfg }
}

// New creates a collection handle for path. Nothing is read or written until
// Build or Load is called.
func New(path string, dense embedding.Embedder, sp sparse.Embedder, opts ...Option) *Collection {
	c := &Collection{
		path:        path,
		name:        filepath.Base(path),
		backendKind: storage.KindSQLite,
		dense:       dense,
		sparse:      sp,
		fusion:      ranking.DefaultFusionConfig(),
		workers:     4,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.fusion == nil {
		c.fusion = ranking.DefaultFusionConfig()
	}
	c.fusion.ApplyDefaults()
	return c
}

// Path returns the collection directory.
func (c *Collection) Path() string { return c.path }

// Exists reports whether the collection directory is present.
func (c *Collection) Exists() bool {
	info, err := os.Stat(c.path)
	return err == nil && info.IsDir()
}

// Loaded reports whether the collection is ready for Add and Search.
func (c *Collection) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.segment != nil
}

// Build embeds docs and creates the collection on disk. Embedding completes before
// anything is written; if writing fails the directory is removed again.
func (c *Collection) Build(ctx context.Context, docs []models.Document) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if len(docs) == 0 {
		return models.ErrEmptyBuild
	}
	if err := validateAll(docs); err != nil {
		return err
	}
	if c.Exists() {
		return fmt.Errorf("build %s: %w", c.path, models.ErrCollectionExists)
	}

	start := time.Now()
	points, err := c.embedDocuments(ctx, docs)
	if err != nil {
		return err
	}
	dims := c.dense.Dimensions()
	if err := checkDimensions(points, dims); err != nil {
		return err
	}
	segment, err := vector.NewSegment(dims)
	if err != nil {
		return err
	}

	info := &models.CollectionInfo{
		Name:        c.name,
		DenseModel:  c.dense.Name(),
		Dimensions:  dims,
		SparseModel: c.sparse.Name(),
		Backend:     c.backendKind,
		CreatedAt:   time.Now().UTC(),
	}

	if err := os.MkdirAll(c.path, 0755); err != nil {
		return fmt.Errorf("failed to create collection directory: %w", err)
	}
	backend, err := storage.Open(c.backendKind, c.path, c.logger)
	if err != nil {
		c.abortBuild(nil)
		return fmt.Errorf("failed to open storage: %w", err)
	}
	if err := backend.Create(ctx, info, points); err != nil {
		c.abortBuild(backend)
		return fmt.Errorf("failed to write collection: %w", err)
	}
	if err := segment.Add(points...); err != nil {
		c.abortBuild(backend)
		return err
	}

	c.mu.Lock()
	c.closeLocked()
	c.backend, c.segment, c.info = backend, segment, info
	c.mu.Unlock()

	c.logger.Info("Collection built",
		zap.String("path", c.path),
		zap.Int("documents", len(points)),
		zap.String("dense_model", info.DenseModel),
		zap.String("backend", info.Backend),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// abortBuild returns the collection to the absent state after a failed build.
func (c *Collection) abortBuild(backend storage.Backend) {
	if backend != nil {
		if err := backend.Close(); err != nil {
			c.logger.Warn("Failed to close storage after failed build", zap.Error(err))
		}
	}
	if err := os.RemoveAll(c.path); err != nil {
		c.logger.Error("Failed to remove partial collection", zap.String("path", c.path), zap.Error(err))
	}
}

// Load opens an existing collection and reads every point into memory.
func (c *Collection) Load(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if !c.Exists() {
		return fmt.Errorf("load %s: %w", c.path, models.ErrCollectionNotFound)
	}
	kind, err := detectBackend(c.path)
	if err != nil {
		return fmt.Errorf("load %s: %w", c.path, err)
	}
	backend, err := storage.Open(kind, c.path, c.logger)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	info, err := backend.Info(ctx)
	if err != nil {
		_ = backend.Close()
		if errors.Is(err, storage.ErrNoInfo) {
			return fmt.Errorf("load %s: %w", c.path, models.ErrCollectionNotFound)
		}
		return fmt.Errorf("failed to read collection info: %w", err)
	}
	segment, err := vector.NewSegment(info.Dimensions)
	if err != nil {
		_ = backend.Close()
		return err
	}
	err = backend.Scan(ctx, func(p *models.Point) error {
		return segment.Add(p)
	})
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("failed to read points: %w", err)
	}

	if info.DenseModel != c.dense.Name() || info.SparseModel != c.sparse.Name() {
		c.logger.Warn("Collection was built with different embedding models",
			zap.String("collection_dense", info.DenseModel),
			zap.String("dense", c.dense.Name()),
			zap.String("collection_sparse", info.SparseModel),
			zap.String("sparse", c.sparse.Name()))
	}

	c.mu.Lock()
	c.closeLocked()
	c.backend, c.segment, c.info = backend, segment, info
	c.mu.Unlock()

	c.logger.Info("Collection loaded",
		zap.String("path", c.path),
		zap.Int("documents", segment.Size()),
		zap.String("backend", info.Backend))
	return nil
}

// detectBackend picks the backend from the files present in dir. An empty
// directory opens as SQLite, which then reports no collection info.
func detectBackend(dir string) (string, error) {
	if _, err := os.Stat(filepath.Join(dir, storage.BadgerDir)); err == nil {
		return storage.KindBadger, nil
	} else if !os.IsNotExist(err) {
		return "", err
	}
	return storage.KindSQLite, nil
}

// Add embeds docs and appends them. Nothing is written unless every document
// embeds successfully and matches the collection's models and dimensions.
// Documents with an id already in the collection are appended as new points.
func (c *Collection) Add(ctx context.Context, docs []models.Document) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.RLock()
	backend, segment, info := c.backend, c.segment, c.info
	c.mu.RUnlock()
	if segment == nil {
		return models.ErrCollectionNotLoaded
	}
	if len(docs) == 0 {
		return nil
	}
	if err := validateAll(docs); err != nil {
		return err
	}

	points, err := c.embedDocuments(ctx, docs)
	if err != nil {
		return err
	}
	if err := checkDimensions(points, info.Dimensions); err != nil {
		return err
	}
	if err := c.checkModels(info); err != nil {
		return err
	}
	if err := backend.Append(ctx, points); err != nil {
		return fmt.Errorf("failed to append points: %w", err)
	}
	if err := segment.Add(points...); err != nil {
		return err
	}
	c.logger.Debug("Documents added", zap.String("path", c.path), zap.Int("documents", len(points)))
	return nil
}

func (c *Collection) checkModels(info *models.CollectionInfo) error {
	if info.DenseModel != c.dense.Name() {
		return fmt.Errorf("%w: dense %s, collection has %s", models.ErrModelMismatch, c.dense.Name(), info.DenseModel)
	}
	if info.SparseModel != c.sparse.Name() {
		return fmt.Errorf("%w: sparse %s, collection has %s", models.ErrModelMismatch, c.sparse.Name(), info.SparseModel)
	}
	return nil
}

// Search returns up to k documents matching filter, best first. A blank query
// skips scoring and returns the newest matching documents with score 0.
func (c *Collection) Search(ctx context.Context, query string, k int, filter models.Filter) ([]*models.SearchResult, error) {
	if k < 1 {
		return nil, models.ErrInvalidK
	}
	c.mu.RLock()
	segment, info := c.segment, c.info
	c.mu.RUnlock()
	if segment == nil {
		return nil, models.ErrCollectionNotLoaded
	}
	match := matcher(filter)

	if isBlank(query) {
		points := segment.Newest(match, k)
		out := make([]*models.SearchResult, len(points))
		for i, p := range points {
			out[i] = &models.SearchResult{Document: p.Document.Clone(), Rank: i + 1}
		}
		return out, nil
	}

	if err := c.checkModels(info); err != nil {
		return nil, err
	}
	dense, err := c.dense.Embed(ctx, query)
	if err != nil {
		return nil, wrapEmbedding(c.dense.Name(), err)
	}
	sq, err := c.sparse.EmbedQuery(ctx, query)
	if err != nil {
		return nil, wrapEmbedding(c.sparse.Name(), err)
	}
	cands, err := segment.Score(ctx, dense, sq, match)
	if err != nil {
		return nil, err
	}
	results := ranking.Fuse(cands, c.fusion, k)
	for _, r := range results {
		r.Document = r.Document.Clone()
	}
	c.logger.Debug("Collection searched",
		zap.String("query", query),
		zap.Int("k", k),
		zap.Stringer("filter", filter),
		zap.Int("candidates", len(cands)),
		zap.Int("results", len(results)))
	return results, nil
}

// Info returns a copy of the collection record.
func (c *Collection) Info() (*models.CollectionInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.info == nil {
		return nil, models.ErrCollectionNotLoaded
	}
	info := *c.info
	return &info, nil
}

// Count returns the number of stored points, or 0 when not loaded.
func (c *Collection) Count() int {
	c.mu.RLock()
	segment := c.segment
	c.mu.RUnlock()
	if segment == nil {
		return 0
	}
	return segment.Size()
}

// Documents lists documents matching filter in insertion order.
// A limit <= 0 returns everything after offset.
func (c *Collection) Documents(ctx context.Context, filter models.Filter, offset, limit int) ([]models.Document, error) {
	c.mu.RLock()
	segment := c.segment
	c.mu.RUnlock()
	if segment == nil {
		return nil, models.ErrCollectionNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	points := segment.Points(matcher(filter))
	if offset < 0 {
		offset = 0
	}
	if offset >= len(points) {
		return []models.Document{}, nil
	}
	points = points[offset:]
	if limit > 0 && limit < len(points) {
		points = points[:limit]
	}
	out := make([]models.Document, len(points))
	for i, p := range points {
		out[i] = p.Document.Clone()
	}
	return out, nil
}

// DiskUsage returns the bytes used by the collection directory.
func (c *Collection) DiskUsage() (int64, error) {
	return storage.DiskUsageBytes(c.path)
}

// Close releases the storage backend. The collection must be loaded again before use.
func (c *Collection) Close() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Collection) closeLocked() error {
	var err error
	if c.backend != nil {
		err = c.backend.Close()
	}
	c.backend, c.segment, c.info = nil, nil, nil
	return err
}

func validateAll(docs []models.Document) error {
	for i := range docs {
		if err := docs[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

func checkDimensions(points []*models.Point, dims int) error {
	for _, p := range points {
		if len(p.Dense) != dims {
			return &models.DimensionMismatchError{Want: dims, Got: len(p.Dense)}
		}
	}
	return nil
}

func matcher(filter models.Filter) vector.Matcher {
	if len(filter) == 0 {
		return nil
	}
	return filter.Matches
}

func wrapEmbedding(model string, err error) error {
	var embErr *models.EmbeddingError
	if errors.As(err, &embErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &models.EmbeddingError{Model: model, Err: err}
}
