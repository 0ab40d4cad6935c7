// Package memory is a brute-force in-memory vector index used by tests and
// single-node development setups. It mirrors the Milvus client's namespace
// semantics: one logical partition per agent.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/agentforge/backend/internal/vector"
)

type record struct {
	chunk  vector.ChunkRecord
	vector []float32
}

type Index struct {
	mu         sync.RWMutex
	namespaces map[int64][]record
}

func NewIndex() *Index {
	return &Index{
		namespaces: make(map[int64][]record),
	}
}

func (idx *Index) Upsert(ctx context.Context, agentID int64, records []vector.ChunkRecord) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, r := range records {
		idx.namespaces[agentID] = append(idx.namespaces[agentID], record{chunk: r, vector: r.Vector})
	}
	return nil
}

func (idx *Index) Search(ctx context.Context, agentID int64, queryVector []float32, topK int) ([]vector.Match, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	records := idx.namespaces[agentID]
	if len(records) == 0 {
		return nil, nil
	}

	matches := make([]vector.Match, 0, len(records))
	for _, r := range records {
		matches = append(matches, vector.Match{
			ChunkID:        r.chunk.ID,
			DocumentID:     r.chunk.DocumentID,
			SequenceIndex:  r.chunk.SequenceIndex,
			Text:           r.chunk.Text,
			SourceFilename: r.chunk.SourceFilename,
			Score:          vector.NormalizeScore(cosine(r.vector, queryVector)),
		})
	}

	// Same ordering the retrieval engine applies, so a tie at the topK
	// boundary cuts deterministically.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].SequenceIndex != matches[j].SequenceIndex {
			return matches[i].SequenceIndex < matches[j].SequenceIndex
		}
		return matches[i].DocumentID < matches[j].DocumentID
	})

	if topK < len(matches) {
		matches = matches[:topK]
	}
	return matches, nil
}

func (idx *Index) DeleteDocument(ctx context.Context, agentID int64, documentID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	records := idx.namespaces[agentID]
	kept := records[:0]
	for _, r := range records {
		if r.chunk.DocumentID != documentID {
			kept = append(kept, r)
		}
	}
	idx.namespaces[agentID] = kept
	return nil
}

func (idx *Index) DropNamespace(ctx context.Context, agentID int64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.namespaces, agentID)
	return nil
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
