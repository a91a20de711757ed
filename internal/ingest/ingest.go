// Package ingest loads source files and folds them into the collection: the first
// batch builds it, later batches load it (if needed) and append.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/dashrag/internal/config"
	"github.com/hyperjump/dashrag/internal/loader"
	"github.com/hyperjump/dashrag/internal/models"
	"github.com/hyperjump/dashrag/pkg/utils"
)

// ErrNothingLoaded is returned when none of the given paths produced a document.
var ErrNothingLoaded = errors.New("no documents loaded")

// Index is the part of a collection ingestion writes to.
type Index interface {
	Exists() bool
	Loaded() bool
	Build(ctx context.Context, docs []models.Document) error
	Load(ctx context.Context) error
	Add(ctx context.Context, docs []models.Document) error
}

// Report summarizes one ProcessFiles call.
type Report struct {
	BatchID   string              `json:"batch_id"`
	Paths     int                 `json:"paths"`
	Documents int                 `json:"documents"`
	Built     bool                `json:"built"`
	Attempts  int                 `json:"attempts"`
	Failures  []*models.LoadError `json:"-"`
	Duration  time.Duration       `json:"duration"`
}

// FailedPaths lists the paths that produced no documents.
func (r *Report) FailedPaths() []string {
	out := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.Path
	}
	return out
}

// Service serializes ingestion into a single collection.
type Service struct {
	loader   loader.Loader
	index    Index
	attempts int
	delay    time.Duration
	logger   *zap.Logger
	mu       sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets a logger for batch and retry events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = utils.MustNop(l) }
}

// NewService returns a service that retries transient embedding failures
// cfg.RetryAttempts times in total, doubling cfg.RetryDelay between attempts.
func NewService(l loader.Loader, index Index, cfg config.IngestConfig, opts ...Option) *Service {
	s := &Service{
		loader:   l,
		index:    index,
		attempts: max(cfg.RetryAttempts, 1),
		delay:    cfg.RetryDelay,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// ProcessFiles loads paths and builds the collection if it does not exist yet,
// otherwise loads it and adds the new documents. Load failures of individual paths
// are reported, not returned, unless the loader is strict or nothing was loaded.
func (s *Service) ProcessFiles(ctx context.Context, paths ...string) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	report := &Report{BatchID: uuid.NewString(), Paths: len(paths)}
	log := s.logger.With(zap.String("batch_id", report.BatchID))

	res, err := s.loader.Load(ctx, paths...)
	if err != nil {
		return report, fmt.Errorf("load sources: %w", err)
	}
	report.Failures = res.Failures
	report.Documents = len(res.Documents)
	if len(res.Documents) == 0 {
		return report, fmt.Errorf("%w: %d of %d sources failed", ErrNothingLoaded, len(res.Failures), len(paths))
	}

	write := s.index.Add
	switch {
	case s.index.Loaded():
	case s.index.Exists():
		if err := s.index.Load(ctx); err != nil {
			return report, fmt.Errorf("load collection: %w", err)
		}
	default:
		write = s.index.Build
		report.Built = true
	}

	err = s.retry(ctx, log, func() error {
		report.Attempts++
		return write(ctx, res.Documents)
	})
	report.Duration = time.Since(start)
	if err != nil {
		report.Built = false
		return report, err
	}
	log.Info("Ingested batch",
		zap.Int("paths", len(paths)),
		zap.Int("documents", report.Documents),
		zap.Int("failures", len(report.Failures)),
		zap.Bool("built", report.Built),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// retry runs op until it succeeds, fails with a non-retryable error, or runs out of
// attempts. The delay doubles after each failed attempt.
func (s *Service) retry(ctx context.Context, log *zap.Logger, op func() error) error {
	var lastErr error
	delay := s.delay
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op()
		if lastErr == nil {
			if attempt > 1 {
				log.Debug("ingest succeeded after retry", zap.Int("attempt", attempt))
			}
			return nil
		}
		if !models.IsRetryable(lastErr) || attempt == s.attempts {
			break
		}
		log.Warn("Embedding failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.attempts),
			zap.Duration("delay", delay),
			zap.Error(lastErr))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
	return lastErr
}
