// Package rag implements the document ingestion and retrieval pipeline:
// chunking, embedding, namespace-scoped similarity search, and bounded
// context assembly with citations.
package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/agentforge/backend/internal/chunker"
	"github.com/agentforge/backend/internal/embedding"
	"github.com/agentforge/backend/internal/metrics"
	"github.com/agentforge/backend/internal/storage/models"
	"github.com/agentforge/backend/internal/vector"
	"github.com/agentforge/backend/pkg/logger"
)

// MetadataStore is the slice of the persistence layer the engine needs.
type MetadataStore interface {
	InsertDocumentWithChunks(doc *models.Document, chunks []models.DocumentChunk) error
	DeleteDocument(id string) error
	AgentEmbeddingModels(agentID int64) ([]string, error)
}

type Config struct {
	ChunkSize    int
	ChunkOverlap int
	TopK         int
}

type Engine struct {
	embedder embedding.Embedder
	index    vector.Index
	store    MetadataStore
	cfg      Config
}

func NewEngine(embedder embedding.Embedder, index vector.Index, store MetadataStore, cfg Config) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 200
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 4
	}
	return &Engine{
		embedder: embedder,
		index:    index,
		store:    store,
		cfg:      cfg,
	}
}

type IngestRequest struct {
	AgentID        int64
	DocumentID     string
	Text           string
	SourceFilename string
	ContentHash    string
	FileSize       int
	FileType       string
}

// Ingest chunks and embeds a document and writes it into the agent's
// namespace. Ingestion is all-or-nothing: any embedding or index failure
// leaves zero chunks committed.
func (e *Engine) Ingest(ctx context.Context, req IngestRequest) (int, error) {
	start := time.Now()

	if strings.TrimSpace(req.Text) == "" {
		return 0, ErrEmptyDocument
	}

	chunks, err := chunker.Split(req.Text, e.cfg.ChunkSize, e.cfg.ChunkOverlap)
	if err != nil {
		return 0, fmt.Errorf("failed to chunk document: %w", err)
	}

	vectors, err := e.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		metrics.DocumentsProcessed.WithLabelValues("failed").Inc()
		return 0, fmt.Errorf("embedding failed, no chunks committed: %w", err)
	}
	if len(vectors) != len(chunks) {
		metrics.DocumentsProcessed.WithLabelValues("failed").Inc()
		return 0, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(vectors), len(chunks))
	}

	now := time.Now()
	records := make([]vector.ChunkRecord, len(chunks))
	chunkRows := make([]models.DocumentChunk, len(chunks))
	for i, text := range chunks {
		chunkID := fmt.Sprintf("%s_chunk_%d", req.DocumentID, i)
		records[i] = vector.ChunkRecord{
			ID:             chunkID,
			DocumentID:     req.DocumentID,
			SequenceIndex:  i,
			Text:           text,
			SourceFilename: req.SourceFilename,
			Vector:         vectors[i],
		}
		chunkRows[i] = models.DocumentChunk{
			ID:             chunkID,
			DocumentID:     req.DocumentID,
			AgentID:        req.AgentID,
			SequenceIndex:  i,
			Text:           text,
			SourceFilename: req.SourceFilename,
			CreatedAt:      now,
		}
	}

	if err := e.index.Upsert(ctx, req.AgentID, records); err != nil {
		// Best-effort cleanup of a possibly partial batch.
		if cleanupErr := e.index.DeleteDocument(ctx, req.AgentID, req.DocumentID); cleanupErr != nil {
			logger.Error("Failed to roll back partial index write",
				zap.String("document_id", req.DocumentID),
				zap.Error(cleanupErr),
			)
		}
		metrics.DocumentsProcessed.WithLabelValues("failed").Inc()
		return 0, fmt.Errorf("vector index write failed, no chunks committed: %w", err)
	}

	doc := &models.Document{
		ID:             req.DocumentID,
		AgentID:        req.AgentID,
		Filename:       req.SourceFilename,
		ContentHash:    req.ContentHash,
		FileSize:       req.FileSize,
		FileType:       req.FileType,
		ChunkCount:     len(chunks),
		EmbeddingModel: e.embedder.Model(),
		ProcessedAt:    now,
	}
	if err := e.store.InsertDocumentWithChunks(doc, chunkRows); err != nil {
		if cleanupErr := e.index.DeleteDocument(ctx, req.AgentID, req.DocumentID); cleanupErr != nil {
			logger.Error("Failed to roll back index write after metadata failure",
				zap.String("document_id", req.DocumentID),
				zap.Error(cleanupErr),
			)
		}
		metrics.DocumentsProcessed.WithLabelValues("failed").Inc()
		return 0, fmt.Errorf("metadata write failed, no chunks committed: %w", err)
	}

	metrics.DocumentsProcessed.WithLabelValues("ok").Inc()
	metrics.ChunksIngested.Add(float64(len(chunks)))
	metrics.IngestDuration.Observe(time.Since(start).Seconds())

	logger.Info("Document ingested",
		zap.Int64("agent_id", req.AgentID),
		zap.String("document_id", req.DocumentID),
		zap.String("filename", req.SourceFilename),
		zap.Int("chunks", len(chunks)),
	)
	return len(chunks), nil
}

// Retrieve embeds the query and returns the topK nearest chunks from the
// agent's namespace, sorted by descending relevance. An agent with no
// ingested documents yields an empty slice.
func (e *Engine) Retrieve(ctx context.Context, agentID int64, queryText string, topK int) ([]vector.Match, error) {
	start := time.Now()

	if strings.TrimSpace(queryText) == "" {
		return nil, ErrEmptyQuery
	}
	if topK < 1 {
		topK = e.cfg.TopK
	}

	ingestedModels, err := e.store.AgentEmbeddingModels(agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check embedding models: %w", err)
	}
	for _, model := range ingestedModels {
		if model != e.embedder.Model() {
			return nil, fmt.Errorf("%w: documents embedded with %q, queries use %q",
				ErrEmbedderMismatch, model, e.embedder.Model())
		}
	}

	queryVector, err := e.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	matches, err := e.index.Search(ctx, agentID, queryVector, topK)
	if err != nil {
		return nil, fmt.Errorf("vector index query failed: %w", err)
	}

	// Descending score, ties broken by sequence index then document id so
	// results are reproducible.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].SequenceIndex != matches[j].SequenceIndex {
			return matches[i].SequenceIndex < matches[j].SequenceIndex
		}
		return matches[i].DocumentID < matches[j].DocumentID
	})

	metrics.RetrievalDuration.Observe(time.Since(start).Seconds())
	metrics.RetrievalResults.Observe(float64(len(matches)))

	logger.Debug("Retrieval completed",
		zap.Int64("agent_id", agentID),
		zap.Int("top_k", topK),
		zap.Int("results", len(matches)),
	)
	return matches, nil
}

// DeleteDocument removes a document from both the vector index and the
// metadata store.
func (e *Engine) DeleteDocument(ctx context.Context, agentID int64, documentID string) error {
	if err := e.index.DeleteDocument(ctx, agentID, documentID); err != nil {
		return fmt.Errorf("failed to delete document from index: %w", err)
	}
	if err := e.store.DeleteDocument(documentID); err != nil {
		return fmt.Errorf("failed to delete document metadata: %w", err)
	}
	return nil
}
