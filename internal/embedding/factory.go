package embedding

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/dashrag/internal/config"
)

// Provider names accepted in embedding.dense.provider.
const (
	ProviderHashing = "hashing"
	ProviderONNX    = "onnx"
	ProviderOpenAI  = "openai"
)

// New creates the dense embedder selected by cfg, wrapped in an LRU cache when
// cfg.CacheSize > 0. When the ONNX runtime is unavailable, it falls back to the
// hashing embedder and logs a warning; the fallback has a different model name,
// so an existing ONNX collection will reject writes instead of mixing vectors.
func New(cfg config.DenseConfig, logger *zap.Logger) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)
	switch cfg.Provider {
	case ProviderHashing, "":
		inner = NewHashingEmbedder(cfg.Dimensions)
	case ProviderONNX:
		var onnx *ONNXEmbedder
		onnx, err = NewONNXEmbedder(cfg.ModelPath, vocabPath(cfg), cfg.Model, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			if logger != nil {
				logger.Warn("onnx embedder unavailable, falling back to hashing embedder",
					zap.String("model_path", cfg.ModelPath), zap.Error(err))
			}
			inner = NewHashingEmbedder(cfg.Dimensions)
		} else {
			inner = onnx
		}
	case ProviderOpenAI:
		var oa *OpenAIEmbedder
		oa, err = NewOpenAIEmbedder(cfg.BaseURL, os.Getenv(cfg.APIKeyEnv), cfg.Model, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		inner = oa
	default:
		return nil, fmt.Errorf("unknown dense embedding provider: %s (supported: hashing, onnx, openai)", cfg.Provider)
	}
	if logger != nil {
		logger.Info("dense embedder initialized",
			zap.String("model", inner.Name()),
			zap.Int("dimensions", inner.Dimensions()),
			zap.Int("cache_size", cfg.CacheSize))
	}
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(inner, cfg.CacheSize), nil
	}
	return inner, nil
}

// vocabPath defaults to the vocab.txt shipped next to the model file.
func vocabPath(cfg config.DenseConfig) string {
	if cfg.VocabPath != "" {
		return cfg.VocabPath
	}
	return filepath.Join(filepath.Dir(cfg.ModelPath), "vocab.txt")
}
