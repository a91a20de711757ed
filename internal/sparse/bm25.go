package sparse

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"

	"github.com/hyperjump/dashrag/internal/models"
)

// Analyzer names accepted by NewBM25Embedder.
const (
	AnalyzerEnglish  = en.AnalyzerName
	AnalyzerStandard = standard.Name
)

// Default BM25 parameters.
const (
	DefaultK1        = 1.2
	DefaultB         = 0.75
	DefaultAvgDocLen = 256
)

// BM25Embedder turns text into hashed term weights. The document side stores the
// BM25 term-frequency component; IDF depends on the collection and is applied at
// search time, so a stored vector never changes when documents are added.
type BM25Embedder struct {
	analyzerName string
	analyze      func([]byte) analysis.TokenStream
	k1           float64
	b            float64
	avgDocLen    float64
}

// BM25Option configures a BM25Embedder.
type BM25Option func(*BM25Embedder)

// WithParameters overrides k1, b and the average document length used for length normalization.
func WithParameters(k1, b, avgDocLen float64) BM25Option {
	return func(e *BM25Embedder) {
		if k1 > 0 {
			e.k1 = k1
		}
		if b >= 0 && b <= 1 {
			e.b = b
		}
		if avgDocLen > 0 {
			e.avgDocLen = avgDocLen
		}
	}
}

// NewBM25Embedder resolves analyzerName (e.g. "en", "standard") from bleve's registry.
func NewBM25Embedder(analyzerName string, opts ...BM25Option) (*BM25Embedder, error) {
	if analyzerName == "" {
		analyzerName = AnalyzerEnglish
	}
	im := bleve.NewIndexMapping()
	a := im.AnalyzerNamed(analyzerName)
	if a == nil {
		return nil, fmt.Errorf("unknown analyzer: %s", analyzerName)
	}
	e := &BM25Embedder{
		analyzerName: analyzerName,
		analyze:      a.Analyze,
		k1:           DefaultK1,
		b:            DefaultB,
		avgDocLen:    DefaultAvgDocLen,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Embed returns document-side weights: tf*(k1+1) / (tf + k1*(1-b+b*len/avgLen)).
func (e *BM25Embedder) Embed(ctx context.Context, text string) (models.SparseVector, error) {
	counts, length := e.termCounts(text)
	norm := e.k1 * (1 - e.b + e.b*float64(length)/e.avgDocLen)
	return toVector(counts, func(tf int) float32 {
		f := float64(tf)
		return float32(f * (e.k1 + 1) / (f + norm))
	}), nil
}

// EmbedQuery returns weight 1 for every distinct query term.
func (e *BM25Embedder) EmbedQuery(ctx context.Context, text string) (models.SparseVector, error) {
	counts, _ := e.termCounts(text)
	return toVector(counts, func(int) float32 { return 1 }), nil
}

// Name identifies the analyzer and parameters.
func (e *BM25Embedder) Name() string {
	return fmt.Sprintf("bm25:%s:k1=%g:b=%g:avg=%g", e.analyzerName, e.k1, e.b, e.avgDocLen)
}

// Terms returns the analyzed terms of text in order; exposed for diagnostics and tests.
func (e *BM25Embedder) Terms(text string) []string {
	tokens := e.analyze([]byte(text))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok.Term) > 0 {
			out = append(out, string(tok.Term))
		}
	}
	return out
}

func (e *BM25Embedder) termCounts(text string) (map[uint32]int, int) {
	counts := make(map[uint32]int)
	terms := e.Terms(text)
	for _, term := range terms {
		counts[TermIndex(term)]++
	}
	return counts, len(terms)
}

// TermIndex maps an analyzed term to its sparse index (32-bit FNV-1a).
func TermIndex(term string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return h.Sum32()
}

func toVector(counts map[uint32]int, weight func(int) float32) models.SparseVector {
	v := models.SparseVector{
		Indices: make([]uint32, 0, len(counts)),
		Values:  make([]float32, 0, len(counts)),
	}
	for idx := range counts {
		v.Indices = append(v.Indices, idx)
	}
	sort.Slice(v.Indices, func(i, j int) bool { return v.Indices[i] < v.Indices[j] })
	for _, idx := range v.Indices {
		v.Values = append(v.Values, weight(counts[idx]))
	}
	return v
}
