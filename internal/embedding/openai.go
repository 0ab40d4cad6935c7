package embedding

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/agentforge/backend/pkg/circuitbreaker"
	"github.com/agentforge/backend/pkg/logger"
	"github.com/agentforge/backend/pkg/retry"
)

const embedBatchSize = 100

// OpenAIEmbedder generates embeddings through the OpenAI API, with retries
// and a circuit breaker around every call.
type OpenAIEmbedder struct {
	client      *openai.Client
	model       string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	cb := circuitbreaker.New("embedder", circuitbreaker.Config{
		MaxProbes:        2,
		OpenTimeout:      30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("OpenAI embedder initialized", zap.String("model", model))

	return &OpenAIEmbedder{
		client:      openai.NewClient(apiKey),
		model:       model,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (e *OpenAIEmbedder) Model() string {
	return e.model
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		batchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)

		var batchVectors [][]float32
		err := e.cb.Execute(batchCtx, func() error {
			return retry.Do(batchCtx, e.retryConfig, func() error {
				resp, err := e.client.CreateEmbeddings(
					batchCtx,
					openai.EmbeddingRequest{
						Input: batch,
						Model: openai.EmbeddingModel(e.model),
					},
				)
				if err != nil {
					return fmt.Errorf("failed to create embeddings: %w", err)
				}

				if len(resp.Data) != len(batch) {
					return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(resp.Data), len(batch))
				}

				batchVectors = batchVectors[:0]
				for _, data := range resp.Data {
					if len(data.Embedding) == 0 {
						return fmt.Errorf("provider returned empty embedding")
					}
					vector := make([]float32, len(data.Embedding))
					copy(vector, data.Embedding)
					batchVectors = append(batchVectors, vector)
				}
				return nil
			})
		})
		cancel()

		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batchVectors...)
	}

	logger.Debug("Embeddings generated", zap.Int("count", len(vectors)), zap.String("model", e.model))

	return vectors, nil
}
