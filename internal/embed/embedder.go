// Package embed produces fixed-dimension text embeddings for vexd. Three
// providers implement the contract: a local ONNX model (BGE-small-en-v1.5),
// a remote Ollama server, and a deterministic hash embedder for offline use
// and tests.
package embed

import (
	"context"
	"errors"
)

// ErrModelInit indicates the provider could not be constructed (missing
// model files, runtime or session setup failure).
var ErrModelInit = errors.New("embed: model init failed")

// ErrEncode indicates an embedding request failed. The batched ingest path
// drops the batch on this error; the synchronous paths surface it.
var ErrEncode = errors.New("embed: encode failed")

// Embedder turns text into fixed-dimension float32 vectors.
//
// EmbedBatch preserves input order and returns exactly one vector per input;
// every vector has length Dim(). EmbedOne is the query-side convenience for
// a single text.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// one adapts a batch call to the single-text case.
func one(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, errors.New("embed: batch of one returned wrong count")
	}
	return vecs[0], nil
}
