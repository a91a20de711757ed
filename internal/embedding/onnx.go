//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/dashrag/internal/models"
	"github.com/hyperjump/dashrag/pkg/utils"
)

// Tensor names of a BERT-style sentence-transformers export.
var (
	onnxInputNames  = []string{"input_ids", "attention_mask", "token_type_ids"}
	onnxOutputNames = []string{"last_hidden_state"}
)

// The runtime environment is process-wide and initialized once.
var (
	ortInit    sync.Once
	ortInitErr error
)

// ONNXEmbedder runs a sentence-transformers model (all-MiniLM-L6-v2 by default)
// through ONNX Runtime and mean-pools its token states. Input IDs come from the
// model's own WordPiece vocabulary. It requires CGO and the
// onnxruntime shared library. Inference is serialized because the session reuses
// its tensors.
type ONNXEmbedder struct {
	name       string
	dimensions int
	seqLen     int
	tokenizer  Tokenizer

	mu      sync.Mutex
	session *ort.AdvancedSession
	inputs  []*ort.Tensor[int64]
	hidden  *ort.Tensor[float32]
}

// NewONNXEmbedder loads modelPath with fixed shapes of maxTokens tokens and
// dimensions hidden units. vocabPath is the model's WordPiece vocab.txt.
func NewONNXEmbedder(modelPath, vocabPath, modelName string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("onnx: dimensions must be positive, got %d", dimensions)
	}
	tokenizer, err := LoadVocab(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: %w", err)
	}
	ortInit.Do(func() { ortInitErr = ort.InitializeEnvironment() })
	if ortInitErr != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", ortInitErr)
	}

	e := &ONNXEmbedder{name: modelName, dimensions: dimensions, tokenizer: tokenizer}
	ids, mask, types := e.tokenizer.Tokenize("", maxTokens)
	e.seqLen = len(ids)
	shape := ort.NewShape(1, int64(e.seqLen))

	for i, data := range [][]int64{ids, mask, types} {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			e.destroy()
			return nil, fmt.Errorf("failed to create %s tensor: %w", onnxInputNames[i], err)
		}
		e.inputs = append(e.inputs, t)
	}
	hidden, err := ort.NewTensor(ort.NewShape(1, int64(e.seqLen), int64(dimensions)), make([]float32, e.seqLen*dimensions))
	if err != nil {
		e.destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	e.hidden = hidden

	inputs := make([]ort.ArbitraryTensor, len(e.inputs))
	for i, t := range e.inputs {
		inputs[i] = t
	}
	session, err := ort.NewAdvancedSession(modelPath, onnxInputNames, onnxOutputNames,
		inputs, []ort.ArbitraryTensor{e.hidden}, nil)
	if err != nil {
		e.destroy()
		return nil, fmt.Errorf("failed to create ONNX session for %s: %w", modelPath, err)
	}
	e.session = session
	return e, nil
}

// Embed returns the L2-normalized mean of the token states of text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, &models.EmbeddingError{Model: e.Name(), Err: errors.New("embedder closed")}
	}

	ids, mask, types := e.tokenizer.Tokenize(text, e.seqLen)
	for i, data := range [][]int64{ids, mask, types} {
		copy(e.inputs[i].GetData(), data)
	}
	if err := e.session.Run(); err != nil {
		return nil, &models.EmbeddingError{Model: e.Name(), Err: fmt.Errorf("inference failed: %w", err)}
	}

	vec := meanPool(e.hidden.GetData(), mask, e.dimensions)
	utils.NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch calls Embed for each text.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

func (e *ONNXEmbedder) Dimensions() int { return e.dimensions }

func (e *ONNXEmbedder) Name() string { return "onnx:" + e.name }

// Close destroys the session and its tensors. Later Embed calls fail.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroy()
}

func (e *ONNXEmbedder) destroy() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	for _, t := range e.inputs {
		_ = t.Destroy()
	}
	e.inputs = nil
	if e.hidden != nil {
		_ = e.hidden.Destroy()
		e.hidden = nil
	}
	return err
}
