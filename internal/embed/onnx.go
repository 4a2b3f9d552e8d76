package embed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/screenager/vexd/internal/vecmath"
)

const (
	// onnxMaxSeqLen caps tokenized input length. The model accepts 512
	// tokens; 256 halves the attention cost and covers typical uploads.
	onnxMaxSeqLen = 256

	// ONNXDim is the output dimension of BGE-small-en-v1.5.
	ONNXDim = 384

	// onnxBatchSize bounds a single inference call.
	onnxBatchSize = 4
)

// ONNXEmbedder runs BGE-small-en-v1.5 locally through ONNX Runtime.
// Vectors are L2-normalized.
type ONNXEmbedder struct {
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
}

// NewONNX loads model.onnx and tokenizer.json from modelDir. ortLibPath
// points at onnxruntime.so; empty means the system default. numThreads
// controls intra-op parallelism, 0 = min(NumCPU, 4).
func NewONNX(modelDir, ortLibPath string, numThreads int) (*ONNXEmbedder, error) {
	modelPath := filepath.Join(modelDir, "model.onnx")
	tokenPath := filepath.Join(modelDir, "tokenizer.json")

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: model not found at %s", ErrModelInit, modelPath)
	}
	if _, err := os.Stat(tokenPath); err != nil {
		return nil, fmt.Errorf("%w: tokenizer not found at %s", ErrModelInit, tokenPath)
	}

	if ortLibPath != "" {
		ort.SetSharedLibraryPath(ortLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("%w: init onnxruntime: %v", ErrModelInit, err)
	}

	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
		if numThreads > 4 {
			numThreads = 4
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: session options: %v", ErrModelInit, err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(numThreads); err != nil {
		return nil, fmt.Errorf("%w: intra threads: %v", ErrModelInit, err)
	}
	// Inter-op stays at 1; two thread pools contend badly on small machines.
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("%w: inter threads: %v", ErrModelInit, err)
	}

	inputNames := []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames := []string{"last_hidden_state"}
	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: create session: %v", ErrModelInit, err)
	}

	tk, err := tokenizers.FromFile(tokenPath)
	if err != nil {
		session.Destroy()
		return nil, fmt.Errorf("%w: load tokenizer: %v", ErrModelInit, err)
	}

	return &ONNXEmbedder{session: session, tokenizer: tk}, nil
}

// Close releases the ONNX session and tokenizer.
func (e *ONNXEmbedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.tokenizer != nil {
		e.tokenizer.Close()
	}
}

// Dim returns the embedding dimension.
func (e *ONNXEmbedder) Dim() int { return ONNXDim }

// EmbedOne embeds a single text.
func (e *ONNXEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return one(ctx, e, text)
}

// EmbedBatch embeds texts in order, slicing the input into inference-sized
// sub-batches. ctx is checked between sub-batches; the session call itself
// is a blocking CGo call and cannot be interrupted.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += onnxBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + onnxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := e.infer(texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: batch [%d:%d]: %v", ErrEncode, start, end, err)
		}
		results = append(results, vecs...)
	}
	return results, nil
}

// tokenized holds one text's ids and attention mask.
type tokenized struct {
	ids  []int64
	mask []int64
}

// infer runs one ONNX call over up to onnxBatchSize texts and CLS-pools the
// hidden state into normalized vectors.
func (e *ONNXEmbedder) infer(texts []string) ([][]float32, error) {
	batch := len(texts)

	all := make([]tokenized, batch)
	maxLen := 0
	for i, text := range texts {
		enc := e.tokenizer.EncodeWithOptions(text, true, tokenizers.WithReturnAttentionMask())
		ids := enc.IDs
		if len(ids) > onnxMaxSeqLen {
			ids = ids[:onnxMaxSeqLen]
		}
		ids64 := make([]int64, len(ids))
		mask64 := make([]int64, len(ids))
		for j, v := range ids {
			ids64[j] = int64(v)
			mask64[j] = 1
		}
		if len(enc.AttentionMask) >= len(ids) {
			for j := range ids64 {
				mask64[j] = int64(enc.AttentionMask[j])
			}
		}
		all[i] = tokenized{ids: ids64, mask: mask64}
		if len(ids64) > maxLen {
			maxLen = len(ids64)
		}
	}
	if maxLen == 0 {
		return nil, fmt.Errorf("all texts tokenized to zero length")
	}

	flatIDs := make([]int64, batch*maxLen)
	flatMask := make([]int64, batch*maxLen)
	flatType := make([]int64, batch*maxLen)
	for i, t := range all {
		copy(flatIDs[i*maxLen:], t.ids)
		copy(flatMask[i*maxLen:], t.mask)
	}
	shape := ort.NewShape(int64(batch), int64(maxLen))

	inputIDs, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()
	attnMask, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer attnMask.Destroy()
	typeIDs, err := ort.NewTensor(shape, flatType)
	if err != nil {
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typeIDs.Destroy()

	outputs := []ort.Value{nil}
	if err := e.session.Run([]ort.Value{inputIDs, attnMask, typeIDs}, outputs); err != nil {
		return nil, fmt.Errorf("session run: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	hiddenTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}
	hidden := hiddenTensor.GetData()
	seqLen := int(hiddenTensor.GetShape()[1])

	vecs := make([][]float32, batch)
	for i := 0; i < batch; i++ {
		vec := make([]float32, ONNXDim)
		// CLS pooling: the embedding is the hidden state of the first token.
		base := i * seqLen * ONNXDim
		copy(vec, hidden[base:base+ONNXDim])
		vecmath.Normalize(vec)
		vecs[i] = vec
	}
	return vecs, nil
}
