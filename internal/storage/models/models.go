package models

import "time"

type Agent struct {
	ID           int64
	Name         string
	SystemPrompt string
	Model        string
	Temperature  float64
	MaxTokens    int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Document struct {
	ID             string
	AgentID        int64
	Filename       string
	ContentHash    string
	FileSize       int
	FileType       string
	ChunkCount     int
	EmbeddingModel string
	ProcessedAt    time.Time
}

// DocumentChunk is the metadata-store mirror of what lives in the vector
// index. Chunks are written once at ingestion time and never mutated.
type DocumentChunk struct {
	ID             string
	DocumentID     string
	AgentID        int64
	SequenceIndex  int
	Text           string
	SourceFilename string
	CreatedAt      time.Time
}

type Webhook struct {
	ID              int64
	AgentID         int64
	Name            string
	URL             string
	Events          []string
	Secret          string
	IsActive        bool
	RetryLimit      int
	CreatedAt       time.Time
	LastTriggeredAt *time.Time
}

// DeliveryAttempt is one row of the append-only webhook delivery log.
// Attempt numbers within a delivery are contiguous from 1 and at most one
// attempt per delivery carries Success = true.
type DeliveryAttempt struct {
	ID            int64
	DeliveryID    string
	WebhookID     int64
	EventType     string
	AttemptNumber int
	StatusCode    *int
	Success       bool
	ErrorMessage  string
	CreatedAt     time.Time
}
