package e2e

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/dashrag/internal/collection"
	"github.com/hyperjump/dashrag/internal/config"
	"github.com/hyperjump/dashrag/internal/embedding"
	"github.com/hyperjump/dashrag/internal/ingest"
	"github.com/hyperjump/dashrag/internal/loader"
	"github.com/hyperjump/dashrag/internal/models"
	"github.com/hyperjump/dashrag/internal/ranking"
	"github.com/hyperjump/dashrag/internal/search"
	"github.com/hyperjump/dashrag/internal/sparse"
)

const (
	e2eSearchK     = 10
	e2eDimensions  = 64
	e2eFileLimit   = 32
	e2eRetryBudget = 1
)

func newCollection(t *testing.T, dir string, fusion string) *collection.Collection {
	t.Helper()
	sp, err := sparse.NewBM25Embedder(sparse.AnalyzerEnglish)
	if err != nil {
		t.Fatal(err)
	}
	c := collection.New(filepath.Join(dir, "user_input"), embedding.NewHashingEmbedder(e2eDimensions), sp,
		collection.WithFusion(&ranking.FusionConfig{Method: fusion}))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newSearcher(c *collection.Collection) *search.Searcher {
	return search.NewSearcher(c, config.SearchConfig{DefaultK: 3, MaxK: 100})
}

func TestE2E_SearchReturnsCorrectResults(t *testing.T) {
	corpus := BuildCorpus()
	if corpus.TotalDocs == 0 || corpus.TotalQueries == 0 {
		t.Fatal("corpus is empty")
	}
	for _, fusion := range []string{ranking.FusionWeighted, ranking.FusionRRF} {
		t.Run(fusion, func(t *testing.T) {
			ctx := context.Background()
			c := newCollection(t, t.TempDir(), fusion)
			if err := c.Build(ctx, corpus.ToDocuments()); err != nil {
				t.Fatalf("build: %v", err)
			}
			s := newSearcher(c)
			t.Logf("indexed %d documents; running %d query test cases", corpus.TotalDocs, corpus.TotalQueries)

			for _, tc := range corpus.TestCases {
				t.Run(tc.Description, func(t *testing.T) {
					docs, err := s.Search(ctx, &models.SearchQuery{Query: tc.Query, K: e2eSearchK})
					if err != nil {
						t.Fatalf("search failed: %v", err)
					}
					resultIDs := documentIDs(docs)
					if !containsAny(resultIDs, tc.ExpectedDocIDs) {
						t.Errorf("query %q: expected at least one of %v in results, got %v",
							tc.Query, tc.ExpectedDocIDs, resultIDs)
					}
				})
			}
		})
	}
}

func TestE2E_TablesOnlyNeverLeaksPlainPages(t *testing.T) {
	ctx := context.Background()
	corpus := BuildCorpus()
	c := newCollection(t, t.TempDir(), ranking.FusionWeighted)
	if err := c.Build(ctx, corpus.ToDocuments()); err != nil {
		t.Fatal(err)
	}
	s := newSearcher(c)
	for _, tc := range corpus.TestCases {
		docs, err := s.Search(ctx, &models.SearchQuery{Query: tc.Query, K: e2eSearchK, TablesOnly: true})
		if err != nil {
			t.Fatal(err)
		}
		for _, d := range docs {
			if !d.Metadata.HasTable {
				t.Errorf("query %q returned non-table document %s", tc.Query, d.ID)
			}
		}
	}
}

// TestE2E_FileIngestSearch writes the corpus as files of every generated type, ingests them
// through the loader and ingest service, then runs the query test cases against source paths.
func TestE2E_FileIngestSearch(t *testing.T) {
	dir := t.TempDir()
	docDir := filepath.Join(dir, "docs")
	if err := os.MkdirAll(docDir, 0755); err != nil {
		t.Fatal(err)
	}

	corpus := BuildCorpus()
	exts := SupportedFileExtensions
	corpusIDToPath := make(map[string]string)
	var paths []string
	for i, d := range corpus.Documents {
		if len(paths) >= e2eFileLimit {
			break
		}
		ext := exts[i%len(exts)]
		path := filepath.Join(docDir, d.ID+ext)
		fileBytes, err := WriteMinimalFile(ext, d.Title+"\n\n"+d.Content)
		if err != nil {
			t.Fatalf("write minimal file %s: %v", path, err)
		}
		if err := os.WriteFile(path, fileBytes, 0644); err != nil {
			t.Fatalf("write file %s: %v", path, err)
		}
		corpusIDToPath[d.ID] = path
		paths = append(paths, path)
	}

	ctx := context.Background()
	c := newCollection(t, dir, ranking.FusionWeighted)
	svc := ingest.NewService(loader.New(), c, config.IngestConfig{RetryAttempts: e2eRetryBudget})

	// Two batches: the first builds the collection, the second appends.
	half := len(paths) / 2
	first, err := svc.ProcessFiles(ctx, paths[:half]...)
	if err != nil {
		t.Fatalf("ingest first batch: %v", err)
	}
	if !first.Built || first.Documents != half {
		t.Fatalf("first batch: built=%v documents=%d", first.Built, first.Documents)
	}
	second, err := svc.ProcessFiles(ctx, paths[half:]...)
	if err != nil {
		t.Fatalf("ingest second batch: %v", err)
	}
	if second.Built || second.Documents != len(paths)-half {
		t.Fatalf("second batch: built=%v documents=%d", second.Built, second.Documents)
	}
	if c.Count() != len(paths) {
		t.Fatalf("expected %d documents, got %d", len(paths), c.Count())
	}

	s := newSearcher(c)
	var run int
	for _, tc := range corpus.TestCases {
		var expected []string
		for _, id := range tc.ExpectedDocIDs {
			if p, ok := corpusIDToPath[id]; ok {
				expected = append(expected, p)
			}
		}
		if len(expected) == 0 {
			continue
		}
		run++
		t.Run(tc.Description, func(t *testing.T) {
			docs, err := s.Search(ctx, &models.SearchQuery{Query: tc.Query, K: e2eSearchK})
			if err != nil {
				t.Fatalf("search failed: %v", err)
			}
			sources := make([]string, len(docs))
			for i, d := range docs {
				sources[i] = d.Metadata.SourceFile
			}
			if !containsAny(sources, expected) {
				t.Errorf("query %q: expected one of %v in results, got %v", tc.Query, expected, sources)
			}
		})
	}
	if run == 0 {
		t.Fatal("no query test cases matched the file-based corpus")
	}
	t.Logf("ran %d query test cases for file-based index", run)
}

func documentIDs(docs []models.Document) []string {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids
}

func containsAny(got []string, expected []string) bool {
	set := make(map[string]bool)
	for _, id := range got {
		set[id] = true
	}
	for _, id := range expected {
		if set[id] {
			return true
		}
	}
	return false
}
