package milvus

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/agentforge/backend/internal/vector"
	"github.com/agentforge/backend/pkg/logger"
)

// Client stores chunks in a single Milvus collection with one partition
// per agent. Partition scoping on every insert and search is what keeps
// agents' knowledge bases isolated from each other.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewClient(ctx context.Context, endpoint, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Agent knowledge base chunks",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:     "document_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "sequence_index",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "4096",
				},
			},
			{
				Name:     "source_filename",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index definition: %w", err)
	}
	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))
	return nil
}

func partitionName(agentID int64) string {
	return fmt.Sprintf("agent_%d", agentID)
}

func (m *Client) ensurePartition(ctx context.Context, agentID int64) (string, error) {
	partition := partitionName(agentID)

	has, err := m.client.HasPartition(ctx, m.collectionName, partition)
	if err != nil {
		return "", fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		if err := m.client.CreatePartition(ctx, m.collectionName, partition); err != nil {
			return "", fmt.Errorf("failed to create partition: %w", err)
		}
	}
	return partition, nil
}

func (m *Client) Upsert(ctx context.Context, agentID int64, records []vector.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	partition, err := m.ensurePartition(ctx, agentID)
	if err != nil {
		return err
	}

	chunkIDs := make([]string, len(records))
	embeddings := make([][]float32, len(records))
	documentIDs := make([]string, len(records))
	sequences := make([]int64, len(records))
	texts := make([]string, len(records))
	filenames := make([]string, len(records))

	for i, record := range records {
		chunkIDs[i] = record.ID
		embeddings[i] = record.Vector
		documentIDs[i] = record.DocumentID
		sequences[i] = int64(record.SequenceIndex)
		texts[i] = record.Text
		filenames[i] = record.SourceFilename
	}

	_, err = m.client.Insert(
		ctx,
		m.collectionName,
		partition,
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("document_id", documentIDs),
		entity.NewColumnInt64("sequence_index", sequences),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("source_filename", filenames),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Debug("Chunks inserted into vector index",
		zap.Int64("agent_id", agentID),
		zap.Int("count", len(records)),
	)
	return nil
}

func (m *Client) Search(ctx context.Context, agentID int64, queryVector []float32, topK int) ([]vector.Match, error) {
	partition := partitionName(agentID)

	has, err := m.client.HasPartition(ctx, m.collectionName, partition)
	if err != nil {
		return nil, fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		// Agent has never ingested anything; empty namespace is not an error.
		return nil, nil
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{partition},
		"",
		[]string{"chunk_id", "document_id", "sequence_index", "text", "source_filename"},
		[]entity.Vector{entity.FloatVector(queryVector)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var matches []vector.Match
	for _, sr := range searchResult {
		chunkIDCol := sr.Fields.GetColumn("chunk_id")
		documentIDCol := sr.Fields.GetColumn("document_id")
		sequenceCol := sr.Fields.GetColumn("sequence_index")
		textCol := sr.Fields.GetColumn("text")
		filenameCol := sr.Fields.GetColumn("source_filename")

		for i := 0; i < sr.ResultCount; i++ {
			chunkID, _ := chunkIDCol.GetAsString(i)
			documentID, _ := documentIDCol.GetAsString(i)
			sequence, _ := sequenceCol.GetAsInt64(i)
			text, _ := textCol.GetAsString(i)
			filename, _ := filenameCol.GetAsString(i)

			matches = append(matches, vector.Match{
				ChunkID:        chunkID,
				DocumentID:     documentID,
				SequenceIndex:  int(sequence),
				Text:           text,
				SourceFilename: filename,
				Score:          vector.NormalizeScore(float64(sr.Scores[i])),
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int64("agent_id", agentID),
		zap.Int("top_k", topK),
		zap.Int("results", len(matches)),
	)
	return matches, nil
}

func (m *Client) DeleteDocument(ctx context.Context, agentID int64, documentID string) error {
	partition := partitionName(agentID)

	has, err := m.client.HasPartition(ctx, m.collectionName, partition)
	if err != nil {
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		return nil
	}

	expr := fmt.Sprintf(`document_id == "%s"`, documentID)
	err = m.client.Delete(ctx, m.collectionName, partition, expr)
	if err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}

	logger.Debug("Document chunks removed from vector index",
		zap.Int64("agent_id", agentID),
		zap.String("document_id", documentID),
	)
	return nil
}

func (m *Client) DropNamespace(ctx context.Context, agentID int64) error {
	partition := partitionName(agentID)

	has, err := m.client.HasPartition(ctx, m.collectionName, partition)
	if err != nil {
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		return nil
	}

	err = m.client.ReleasePartitions(ctx, m.collectionName, []string{partition})
	if err != nil {
		return fmt.Errorf("failed to release partition: %w", err)
	}

	err = m.client.DropPartition(ctx, m.collectionName, partition)
	if err != nil {
		return fmt.Errorf("failed to drop partition: %w", err)
	}

	logger.Info("Agent namespace dropped", zap.Int64("agent_id", agentID))
	return nil
}
