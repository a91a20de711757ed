package collection

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/hyperjump/dashrag/internal/models"
)

// embedBatchSize is the number of documents one pool task embeds.
const embedBatchSize = 16

// embedDocuments computes dense and sparse vectors for docs on a worker pool.
// Output order matches docs; the first failure cancels the remaining tasks.
func (c *Collection) embedDocuments(ctx context.Context, docs []models.Document) ([]*models.Point, error) {
	pool, err := ants.NewPool(c.workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding pool: %w", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	points := make([]*models.Point, len(docs))
	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(docs); start += embedBatchSize {
		end := min(start+embedBatchSize, len(docs))
		batch, out := docs[start:end], points[start:end]
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			if err := c.embedBatch(ctx, batch, out); err != nil {
				fail(err)
			}
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("failed to submit embedding task: %w", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return points, nil
}

func (c *Collection) embedBatch(ctx context.Context, docs []models.Document, out []*models.Point) error {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	dense, err := c.dense.EmbedBatch(ctx, texts)
	if err != nil {
		return wrapEmbedding(c.dense.Name(), err)
	}
	if len(dense) != len(docs) {
		return &models.EmbeddingError{
			Model: c.dense.Name(),
			Err:   fmt.Errorf("got %d vectors for %d texts", len(dense), len(docs)),
		}
	}
	for i, d := range docs {
		sv, err := c.sparse.Embed(ctx, d.Content)
		if err != nil {
			return wrapEmbedding(c.sparse.Name(), err)
		}
		out[i] = &models.Point{
			Document: d.Clone(),
			Dense:    dense[i],
			Sparse:   sv,
		}
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
