package ranking

import (
	"math"
	"testing"

	"github.com/hyperjump/dashrag/internal/models"
	"github.com/hyperjump/dashrag/internal/vector"
)

func cand(seq uint64, dense, sparse float64) vector.Candidate {
	return vector.Candidate{
		Point: &models.Point{
			Seq:      seq,
			Document: models.Document{ID: models.DocumentID(0, int(seq))},
		},
		Dense:  dense,
		Sparse: sparse,
	}
}

func TestFuse_Weighted(t *testing.T) {
	cands := []vector.Candidate{
		cand(1, 0.2, 4),
		cand(2, 0.9, 0),
		cand(3, 0.5, 2),
	}
	results := Fuse(cands, DefaultFusionConfig(), 3)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	// seq1: 0.5*0.2+0.5*1 = 0.6; seq3: 0.25+0.25 = 0.5; seq2: 0.45
	wantOrder := []string{"doc_0_page_1", "doc_0_page_3", "doc_0_page_2"}
	for i, want := range wantOrder {
		if results[i].Document.ID != want {
			t.Errorf("result[%d] = %s, want %s", i, results[i].Document.ID, want)
		}
		if results[i].Rank != i+1 {
			t.Errorf("result[%d].Rank = %d", i, results[i].Rank)
		}
	}
	if math.Abs(results[0].Score-0.6) > 1e-9 {
		t.Errorf("top score = %f, want 0.6", results[0].Score)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Error("results should be sorted by score descending")
		}
	}
}

func TestFuse_TiesKeepInsertionOrder(t *testing.T) {
	cands := []vector.Candidate{cand(3, 0.5, 0), cand(1, 0.5, 0), cand(2, 0.5, 0)}
	for _, method := range []string{FusionWeighted, FusionRRF} {
		cfg := &FusionConfig{Method: method}
		cfg.ApplyDefaults()
		results := Fuse(cands, cfg, 3)
		if results[0].Document.ID != "doc_0_page_1" || results[1].Document.ID != "doc_0_page_2" {
			t.Errorf("%s: ties should be broken by sequence, got %s,%s", method, results[0].Document.ID, results[1].Document.ID)
		}
	}
}

func TestFuse_KLimits(t *testing.T) {
	cands := []vector.Candidate{cand(1, 0.1, 0), cand(2, 0.2, 0)}
	if got := len(Fuse(cands, nil, 1)); got != 1 {
		t.Errorf("k=1: got %d results", got)
	}
	if got := len(Fuse(cands, nil, 10)); got != 2 {
		t.Errorf("k larger than candidates: got %d results", got)
	}
	if got := len(Fuse(nil, nil, 3)); got != 0 {
		t.Errorf("no candidates: got %d results", got)
	}
}

func TestFuse_RRF(t *testing.T) {
	cands := []vector.Candidate{
		cand(1, 0.9, 0), // dense rank 1, no sparse
		cand(2, 0.8, 3), // dense rank 2, sparse rank 1
		cand(3, 0.1, 1), // dense rank 3, sparse rank 2
	}
	cfg := &FusionConfig{Method: FusionRRF}
	cfg.ApplyDefaults()
	results := Fuse(cands, cfg, 3)
	if results[0].Document.ID != "doc_0_page_2" {
		t.Errorf("top = %s, want doc_0_page_2", results[0].Document.ID)
	}
	want := 1/62.0 + 1/61.0
	if math.Abs(results[0].Score-want) > 1e-12 {
		t.Errorf("score = %f, want %f", results[0].Score, want)
	}
}

func TestNormalizeSparse(t *testing.T) {
	norm := NormalizeSparse([]vector.Candidate{cand(1, 0, 2), cand(2, 0, 4), cand(3, 0, 0)})
	if norm[0] != 0.5 || norm[1] != 1 || norm[2] != 0 {
		t.Errorf("unexpected normalization %v", norm)
	}
	zero := NormalizeSparse([]vector.Candidate{cand(1, 0, 0)})
	if zero[0] != 0 {
		t.Errorf("all-zero sparse should stay zero, got %v", zero)
	}
}

func TestFusionConfig_Validate(t *testing.T) {
	cfg := &FusionConfig{}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
	if cfg.Method != FusionWeighted || cfg.RRFK != 60 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	bad := &FusionConfig{Method: "max", RRFK: 60}
	if err := bad.Validate(); err == nil {
		t.Error("expected error for unknown method")
	}
	neg := &FusionConfig{Method: FusionWeighted, DenseWeight: -1, RRFK: 60}
	if err := neg.Validate(); err == nil {
		t.Error("expected error for negative weight")
	}
}
