package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/backend/internal/storage/models"
	"github.com/agentforge/backend/internal/vector"
	"github.com/agentforge/backend/internal/vector/memory"
)

// mockEmbedder produces deterministic vectors derived from the text so
// similar inputs score identically across calls.
type mockEmbedder struct {
	model     string
	embedErr  error
	callCount int
}

func (m *mockEmbedder) Model() string {
	if m.model != "" {
		return m.model
	}
	return "mock-embedder"
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.callCount++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		var a, b float32
		for _, r := range text {
			a += float32(r % 13)
			b += float32(r % 7)
		}
		vectors[i] = []float32{a + 1, b + 1, float32(len(text) + 1)}
	}
	return vectors, nil
}

type mockStore struct {
	docs        map[string]*models.Document
	chunks      map[string][]models.DocumentChunk
	insertErr   error
	modelsByAgt map[int64][]string
}

func newMockStore() *mockStore {
	return &mockStore{
		docs:        make(map[string]*models.Document),
		chunks:      make(map[string][]models.DocumentChunk),
		modelsByAgt: make(map[int64][]string),
	}
}

func (m *mockStore) InsertDocumentWithChunks(doc *models.Document, chunks []models.DocumentChunk) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.docs[doc.ID] = doc
	m.chunks[doc.ID] = chunks
	m.modelsByAgt[doc.AgentID] = append(m.modelsByAgt[doc.AgentID], doc.EmbeddingModel)
	return nil
}

func (m *mockStore) DeleteDocument(id string) error {
	delete(m.docs, id)
	delete(m.chunks, id)
	return nil
}

func (m *mockStore) AgentEmbeddingModels(agentID int64) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, name := range m.modelsByAgt[agentID] {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out, nil
}

func newTestEngine(t *testing.T) (*Engine, *mockEmbedder, *memory.Index, *mockStore) {
	t.Helper()
	embedder := &mockEmbedder{}
	index := memory.NewIndex()
	store := newMockStore()
	engine := NewEngine(embedder, index, store, Config{ChunkSize: 100, ChunkOverlap: 20, TopK: 4})
	return engine, embedder, index, store
}

func TestIngestAndRetrieve_RoundTrip(t *testing.T) {
	engine, _, _, store := newTestEngine(t)
	ctx := context.Background()

	text := "The refund policy allows returns within thirty days of purchase. " +
		strings.Repeat("Additional terms apply to sale items. ", 10)

	count, err := engine.Ingest(ctx, IngestRequest{
		AgentID:        1,
		DocumentID:     "doc-1",
		Text:           text,
		SourceFilename: "policy.txt",
	})
	require.NoError(t, err)
	assert.Greater(t, count, 1)
	assert.Len(t, store.chunks["doc-1"], count)

	matches, err := engine.Retrieve(ctx, 1, "what is the refund policy", 4)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	for _, m := range matches {
		assert.Equal(t, "doc-1", m.DocumentID)
		assert.Equal(t, "policy.txt", m.SourceFilename)
		assert.GreaterOrEqual(t, m.Score, 0.0)
		assert.LessOrEqual(t, m.Score, 1.0)
	}
}

func TestRetrieve_NamespaceIsolation(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Ingest(ctx, IngestRequest{
		AgentID:        1,
		DocumentID:     "doc-a",
		Text:           "Agent one's private knowledge about shipping rates.",
		SourceFilename: "shipping.txt",
	})
	require.NoError(t, err)

	// Agent 2 never ingested anything; its namespace must be empty even
	// though agent 1 has matching content.
	matches, err := engine.Retrieve(ctx, 2, "shipping rates", 4)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRetrieve_EmptyNamespaceIsNotAnError(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	matches, err := engine.Retrieve(context.Background(), 99, "anything", 4)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRetrieve_EmptyQueryRejected(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	_, err := engine.Retrieve(context.Background(), 1, "   ", 4)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestIngest_EmptyDocumentRejected(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	_, err := engine.Ingest(context.Background(), IngestRequest{
		AgentID:    1,
		DocumentID: "doc-1",
		Text:       "  \n\t ",
	})
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestIngest_EmbeddingFailureCommitsNothing(t *testing.T) {
	engine, embedder, index, store := newTestEngine(t)
	embedder.embedErr = errors.New("provider down")

	count, err := engine.Ingest(context.Background(), IngestRequest{
		AgentID:        1,
		DocumentID:     "doc-1",
		Text:           strings.Repeat("some document text ", 20),
		SourceFilename: "doc.txt",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no chunks committed")
	assert.Zero(t, count)
	assert.Empty(t, store.docs)

	matches, err := index.Search(context.Background(), 1, []float32{1, 1, 1}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestIngest_MetadataFailureRollsBackIndex(t *testing.T) {
	engine, _, index, store := newTestEngine(t)
	store.insertErr = errors.New("disk full")

	_, err := engine.Ingest(context.Background(), IngestRequest{
		AgentID:        1,
		DocumentID:     "doc-1",
		Text:           strings.Repeat("some document text ", 20),
		SourceFilename: "doc.txt",
	})
	require.Error(t, err)

	matches, err := index.Search(context.Background(), 1, []float32{1, 1, 1}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRetrieve_EmbedderMismatchRejected(t *testing.T) {
	engine, embedder, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Ingest(ctx, IngestRequest{
		AgentID:        1,
		DocumentID:     "doc-1",
		Text:           "Knowledge embedded with the original model.",
		SourceFilename: "doc.txt",
	})
	require.NoError(t, err)

	// Swap the query-side model; retrieval must refuse rather than return
	// garbage similarity scores.
	embedder.model = "different-embedder"

	_, err = engine.Retrieve(ctx, 1, "question", 4)
	assert.ErrorIs(t, err, ErrEmbedderMismatch)
}

func TestRetrieve_ResultsSortedByScore(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := engine.Ingest(ctx, IngestRequest{
			AgentID:        1,
			DocumentID:     fmt.Sprintf("doc-%d", i),
			Text:           fmt.Sprintf("Document number %d with distinct content padding %s.", i, strings.Repeat("z", i*17)),
			SourceFilename: fmt.Sprintf("doc%d.txt", i),
		})
		require.NoError(t, err)
	}

	matches, err := engine.Retrieve(ctx, 1, "document content", 10)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestDeleteDocument_RemovesFromIndexAndStore(t *testing.T) {
	engine, _, _, store := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Ingest(ctx, IngestRequest{
		AgentID:        1,
		DocumentID:     "doc-1",
		Text:           "Content that will be deleted.",
		SourceFilename: "doc.txt",
	})
	require.NoError(t, err)

	require.NoError(t, engine.DeleteDocument(ctx, 1, "doc-1"))
	assert.Empty(t, store.docs)

	matches, err := engine.Retrieve(ctx, 1, "deleted content", 4)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

var _ vector.Index = (*memory.Index)(nil)
