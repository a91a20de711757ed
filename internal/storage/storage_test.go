package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/dashrag/internal/models"
)

var backendKinds = []string{KindSQLite, KindBadger}

func testInfo(kind string) *models.CollectionInfo {
	return &models.CollectionInfo{
		Name:        "user_input",
		DenseModel:  "hashing-v1-4",
		Dimensions:  4,
		SparseModel: "bm25:en",
		Backend:     kind,
		CreatedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testPoint(page int, table bool) *models.Point {
	meta := models.Metadata{SourceFile: "report.pdf", HasTable: table}.With("quarter", "Q1")
	return &models.Point{
		Document: models.NewDocument(models.DocumentID(0, page), "content of page", meta),
		Dense:    []float32{0.1, -0.25, 0.5, float32(page) / 3},
		Sparse:   models.SparseVector{Indices: []uint32{3, 17, 4000000000}, Values: []float32{1.1, 0.7, 0.3333}},
	}
}

func openBackend(t *testing.T, kind, dir string) Backend {
	t.Helper()
	b, err := Open(kind, dir, nil)
	require.NoError(t, err)
	return b
}

func scanAll(t *testing.T, b Backend) []*models.Point {
	t.Helper()
	var out []*models.Point
	require.NoError(t, b.Scan(context.Background(), func(p *models.Point) error {
		out = append(out, p)
		return nil
	}))
	return out
}

func TestBackend_CreateAndReopen(t *testing.T) {
	for _, kind := range backendKinds {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			b := openBackend(t, kind, dir)

			_, err := b.Info(ctx)
			require.ErrorIs(t, err, ErrNoInfo)

			points := []*models.Point{testPoint(0, true), testPoint(1, false)}
			require.NoError(t, b.Create(ctx, testInfo(kind), points))
			assert.NotZero(t, points[0].Seq)
			assert.Less(t, points[0].Seq, points[1].Seq)
			assert.NotEmpty(t, points[0].PointID)
			assert.False(t, points[0].CreatedAt.IsZero())
			require.NoError(t, b.Close())

			b = openBackend(t, kind, dir)
			defer b.Close()

			info, err := b.Info(ctx)
			require.NoError(t, err)
			assert.Equal(t, "hashing-v1-4", info.DenseModel)
			assert.Equal(t, 4, info.Dimensions)
			assert.True(t, info.CreatedAt.Equal(testInfo(kind).CreatedAt))

			got := scanAll(t, b)
			require.Len(t, got, 2)
			for i, p := range got {
				assert.Equal(t, points[i].Seq, p.Seq)
				assert.Equal(t, points[i].PointID, p.PointID)
				assert.Equal(t, points[i].Document.ID, p.Document.ID)
				assert.Equal(t, points[i].Document.Content, p.Document.Content)
				assert.Equal(t, points[i].Document.Metadata.HasTable, p.Document.Metadata.HasTable)
				assert.Equal(t, "Q1", p.Document.Metadata.Extra["quarter"])
				assert.Equal(t, points[i].Dense, p.Dense, "dense vectors must round-trip bit-exact")
				assert.Equal(t, points[i].Sparse, p.Sparse)
			}

			n, err := b.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)
		})
	}
}

func TestBackend_CreateTwice(t *testing.T) {
	for _, kind := range backendKinds {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			b := openBackend(t, kind, t.TempDir())
			defer b.Close()

			require.NoError(t, b.Create(ctx, testInfo(kind), []*models.Point{testPoint(0, false)}))
			err := b.Create(ctx, testInfo(kind), []*models.Point{testPoint(1, false)})
			assert.True(t, errors.Is(err, models.ErrCollectionExists))

			n, err := b.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n, "failed create must not write points")
		})
	}
}

func TestBackend_AppendKeepsOrder(t *testing.T) {
	for _, kind := range backendKinds {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			b := openBackend(t, kind, dir)
			require.NoError(t, b.Create(ctx, testInfo(kind), []*models.Point{testPoint(0, false)}))
			require.NoError(t, b.Close())

			b = openBackend(t, kind, dir)
			defer b.Close()
			more := []*models.Point{testPoint(1, true), testPoint(2, false)}
			require.NoError(t, b.Append(ctx, more))
			require.NoError(t, b.Append(ctx, nil))

			got := scanAll(t, b)
			require.Len(t, got, 3)
			assert.Equal(t, "doc_0_page_0", got[0].Document.ID)
			assert.Equal(t, "doc_0_page_1", got[1].Document.ID)
			assert.Equal(t, "doc_0_page_2", got[2].Document.ID)
			assert.Less(t, got[0].Seq, got[1].Seq)
			assert.Less(t, got[1].Seq, got[2].Seq)
		})
	}
}

func TestBackend_AppendCanceled(t *testing.T) {
	for _, kind := range backendKinds {
		t.Run(kind, func(t *testing.T) {
			ctx := context.Background()
			b := openBackend(t, kind, t.TempDir())
			defer b.Close()
			require.NoError(t, b.Create(ctx, testInfo(kind), []*models.Point{testPoint(0, false)}))

			canceled, cancel := context.WithCancel(ctx)
			cancel()
			p := testPoint(1, false)
			assert.Error(t, b.Append(canceled, []*models.Point{p}))
			assert.Zero(t, p.Seq, "points keep their zero seq when the write fails")

			n, err := b.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
		})
	}
}

func TestOpen_UnknownKind(t *testing.T) {
	_, err := Open("leveldb", t.TempDir(), nil)
	assert.Error(t, err)
}

func TestCodec_RejectsTruncatedBlob(t *testing.T) {
	_, err := bytesToFloat32Slice([]byte{1, 2, 3})
	assert.Error(t, err)
	_, err = decodeSparse([]byte{1, 0, 0, 0, 0, 0, 0, 0}, []byte{0, 0, 128, 63})
	assert.Error(t, err, "length mismatch between indices and values")
}
