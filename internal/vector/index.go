// Package vector defines the namespace-partitioned vector index capability.
// Every call is scoped by agentID; enforcing that scope on each operation is
// how cross-agent isolation is guaranteed.
package vector

import "context"

type ChunkRecord struct {
	ID             string
	DocumentID     string
	SequenceIndex  int
	Text           string
	SourceFilename string
	Vector         []float32
}

// Match is one nearest-neighbor result. Score is a similarity normalized
// to [0,1], higher is more relevant.
type Match struct {
	ChunkID        string
	DocumentID     string
	SequenceIndex  int
	Text           string
	SourceFilename string
	Score          float64
}

type Index interface {
	// Upsert writes records into the agent's namespace as a single batch.
	Upsert(ctx context.Context, agentID int64, records []ChunkRecord) error
	// Search returns up to topK matches from the agent's namespace. An
	// empty or missing namespace yields an empty slice, not an error.
	Search(ctx context.Context, agentID int64, vector []float32, topK int) ([]Match, error)
	// DeleteDocument removes every chunk of a document from the agent's
	// namespace. Used for cascade deletes and ingestion rollback.
	DeleteDocument(ctx context.Context, agentID int64, documentID string) error
	// DropNamespace removes the agent's namespace entirely.
	DropNamespace(ctx context.Context, agentID int64) error
}

// NormalizeScore maps a cosine similarity in [-1,1] to [0,1].
func NormalizeScore(similarity float64) float64 {
	score := (similarity + 1) / 2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
