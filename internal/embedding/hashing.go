package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"

	"github.com/hyperjump/dashrag/pkg/utils"
)

// HashingEmbedder is an offline dense embedder based on signed feature hashing.
// Each word and each character trigram of a word is hashed into one of the
// vector's buckets with a sign taken from a second hash bit, weighted by
// 1+ln(tf), and the result is L2-normalized. Texts sharing words or word
// fragments get a positive inner product; the output depends only on the text.
type HashingEmbedder struct {
	dimensions int
}

// NewHashingEmbedder returns a hashing embedder with the given dimensions (384 when <= 0).
func NewHashingEmbedder(dimensions int) *HashingEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashingEmbedder{dimensions: dimensions}
}

// Embed returns the hashed feature vector for text. Empty text maps to the zero vector.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	counts := make(map[string]int)
	for _, word := range Terms(text) {
		counts["w:"+word]++
		for _, gram := range trigrams(word) {
			counts["g:"+gram]++
		}
	}
	// Accumulate in sorted feature order so float sums are reproducible.
	features := make([]string, 0, len(counts))
	for f := range counts {
		features = append(features, f)
	}
	sort.Strings(features)
	acc := make([]float64, e.dimensions)
	for _, feature := range features {
		tf := counts[feature]
		h := featureHash(feature)
		bucket := int(h % uint64(e.dimensions))
		weight := 1 + math.Log(float64(tf))
		if feature[0] == 'g' {
			weight *= 0.5
		}
		if h&(1<<63) != 0 {
			weight = -weight
		}
		acc[bucket] += weight
	}
	emb := make([]float32, e.dimensions)
	for i, v := range acc {
		emb[i] = float32(v)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *HashingEmbedder) Dimensions() int {
	return e.dimensions
}

// Name returns the model identifier.
func (e *HashingEmbedder) Name() string {
	return fmt.Sprintf("hashing-v1-%d", e.dimensions)
}

// Close is a no-op for HashingEmbedder.
func (e *HashingEmbedder) Close() error {
	return nil
}

func featureHash(feature string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	return h.Sum64()
}

// trigrams returns the character trigrams of a word padded with boundary markers.
// Words shorter than two runes produce none.
func trigrams(word string) []string {
	runes := []rune("<" + word + ">")
	if len(runes) < 4 {
		return nil
	}
	out := make([]string, 0, len(runes)-2)
	for i := 0; i+3 <= len(runes); i++ {
		out = append(out, string(runes[i:i+3]))
	}
	return out
}
