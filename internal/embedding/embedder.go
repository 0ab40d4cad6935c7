// Package embedding maps text to fixed-length float vectors. Implementations
// must fail explicitly on provider errors rather than return zero vectors:
// a silent zero embedding poisons retrieval with no error signal.
package embedding

import "context"

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Model identifies the embedding space. Ingestion records it per
	// document and retrieval refuses to mix spaces.
	Model() string
}
