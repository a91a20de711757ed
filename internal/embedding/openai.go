package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/hyperjump/dashrag/internal/models"
)

// OpenAIEmbedder calls an OpenAI-compatible embeddings endpoint through langchaingo.
// Documents and queries go through the same call so identical text gets identical
// vectors as far as the backend is deterministic.
type OpenAIEmbedder struct {
	embedder   embeddings.Embedder
	model      string
	dimensions int
}

// NewOpenAIEmbedder creates an embedder for model at baseURL (empty = api.openai.com).
// token may be "none" for local services that do not authenticate.
func NewOpenAIEmbedder(baseURL, token, model string, dimensions int) (*OpenAIEmbedder, error) {
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &OpenAIEmbedder{embedder: embedder, model: model, dimensions: dimensions}, nil
}

// Embed returns the embedding for one text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch sends texts in one request. Empty texts are replaced by a single space
// because the endpoint rejects empty input.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := make([]string, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			t = " "
		}
		inputs[i] = t
	}
	vecs, err := e.embedder.EmbedDocuments(ctx, inputs)
	if err != nil {
		return nil, &models.EmbeddingError{Model: e.Name(), Err: err}
	}
	if len(vecs) != len(texts) {
		return nil, &models.EmbeddingError{
			Model: e.Name(),
			Err:   fmt.Errorf("backend returned %d embeddings for %d texts", len(vecs), len(texts)),
		}
	}
	return vecs, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Name returns the model identifier.
func (e *OpenAIEmbedder) Name() string {
	return "openai:" + e.model
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
