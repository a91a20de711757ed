// Package search provides the query facade over a collection: k defaults,
// the tables-only switch, and plain document results.
package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/dashrag/internal/config"
	"github.com/hyperjump/dashrag/internal/models"
	"github.com/hyperjump/dashrag/pkg/utils"
)

// Index is the ranked retrieval the facade runs on; *collection.Collection implements it.
type Index interface {
	Search(ctx context.Context, query string, k int, filter models.Filter) ([]*models.SearchResult, error)
}

// Searcher answers SearchQuery requests against an Index.
type Searcher struct {
	index    Index
	defaultK int
	maxK     int
	logger   *zap.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithLogger sets a logger for query events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Searcher) { s.logger = utils.MustNop(l) }
}

// NewSearcher creates a facade with k bounds from cfg.
func NewSearcher(index Index, cfg config.SearchConfig, opts ...Option) *Searcher {
	s := &Searcher{
		index:    index,
		defaultK: cfg.DefaultK,
		maxK:     cfg.MaxK,
		logger:   zap.NewNop(),
	}
	if s.defaultK <= 0 {
		s.defaultK = 3
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns the matching documents, best first. Scores are not exposed.
func (s *Searcher) Search(ctx context.Context, query *models.SearchQuery) ([]models.Document, error) {
	results, err := s.SearchWithScores(ctx, query)
	if err != nil {
		return nil, err
	}
	docs := make([]models.Document, len(results))
	for i, r := range results {
		docs[i] = r.Document
	}
	return docs, nil
}

// SearchWithScores is Search with the fused and per-channel scores kept.
func (s *Searcher) SearchWithScores(ctx context.Context, query *models.SearchQuery) ([]*models.SearchResult, error) {
	if err := ProcessQuery(query, s.defaultK, s.maxK); err != nil {
		return nil, err
	}
	filter := query.EffectiveFilter()
	analyzed := AnalyzeQuery(query.Query)
	results, err := s.index.Search(ctx, analyzed.Text(), query.K, filter)
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Debug("search",
			zap.String("query", query.Query),
			zap.String("embedded_text", analyzed.Text()),
			zap.Strings("negated", analyzed.Negated),
			zap.Int("k", query.K),
			zap.Stringer("filter", filter),
			zap.Int("results", len(results)))
	}
	return results, nil
}

// Respond runs Search and wraps the documents with timing, for the HTTP surface.
func (s *Searcher) Respond(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	docs, err := s.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	return &models.SearchResponse{
		Documents: docs,
		Total:     len(docs),
		Query:     query.Query,
		QueryTime: time.Since(startTime).Milliseconds(),
	}, nil
}
