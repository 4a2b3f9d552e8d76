package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaEmbedder talks to a local Ollama server's embeddings API. Useful
// when the ONNX model files aren't available on the host.
type OllamaEmbedder struct {
	endpoint string
	model    string
	dim      int
	client   *http.Client
}

// NewOllama creates an embedder against endpoint (default
// http://localhost:11434) using model (default nomic-embed-text, 768-dim).
func NewOllama(endpoint, model string, dim int) *OllamaEmbedder {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	if dim <= 0 {
		dim = 768
	}
	return &OllamaEmbedder{
		endpoint: endpoint,
		model:    model,
		dim:      dim,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

// Dim returns the embedding dimension.
func (e *OllamaEmbedder) Dim() int { return e.dim }

// EmbedOne embeds a single text.
func (e *OllamaEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(struct {
		Model  string `json:"model"`
		Prompt string `json:"prompt"`
	}{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrEncode, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrEncode, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama request: %v", ErrEncode, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: ollama status %d: %s", ErrEncode, resp.StatusCode, msg)
	}

	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrEncode, err)
	}
	if len(out.Embedding) != e.dim {
		return nil, fmt.Errorf("%w: ollama returned %d dims, want %d", ErrEncode, len(out.Embedding), e.dim)
	}

	vec := make([]float32, len(out.Embedding))
	for i, v := range out.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// EmbedBatch embeds texts sequentially; the embeddings API takes one prompt
// per call.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.EmbedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		vecs[i] = v
	}
	return vecs, nil
}
