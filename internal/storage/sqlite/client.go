package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/agentforge/backend/internal/storage/models"
	"github.com/agentforge/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		system_prompt TEXT NOT NULL,
		model TEXT NOT NULL,
		temperature REAL DEFAULT 0.7,
		max_tokens INTEGER DEFAULT 1000,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		agent_id INTEGER NOT NULL,
		filename TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		file_type TEXT NOT NULL,
		chunk_count INTEGER DEFAULT 0,
		embedding_model TEXT NOT NULL,
		processed_at INTEGER NOT NULL,
		FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_documents_agent ON documents(agent_id);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		agent_id INTEGER NOT NULL,
		sequence_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		source_filename TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON document_chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_agent ON document_chunks(agent_id);

	CREATE TABLE IF NOT EXISTS webhooks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		url TEXT NOT NULL,
		events TEXT NOT NULL,
		secret TEXT NOT NULL,
		is_active INTEGER DEFAULT 1,
		retry_limit INTEGER DEFAULT 3,
		created_at INTEGER NOT NULL,
		last_triggered_at INTEGER,
		FOREIGN KEY (agent_id) REFERENCES agents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_webhooks_agent ON webhooks(agent_id);
	CREATE INDEX IF NOT EXISTS idx_webhooks_active ON webhooks(is_active);

	CREATE TABLE IF NOT EXISTS webhook_deliveries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		delivery_id TEXT NOT NULL,
		webhook_id INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		attempt_number INTEGER NOT NULL,
		status_code INTEGER,
		success INTEGER DEFAULT 0,
		error_message TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (webhook_id) REFERENCES webhooks(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_deliveries_webhook ON webhook_deliveries(webhook_id);
	CREATE INDEX IF NOT EXISTS idx_deliveries_created ON webhook_deliveries(created_at DESC);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) CreateAgent(agent *models.Agent) error {
	query := `
		INSERT INTO agents (name, system_prompt, model, temperature, max_tokens, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	res, err := c.db.Exec(
		query,
		agent.Name,
		agent.SystemPrompt,
		agent.Model,
		agent.Temperature,
		agent.MaxTokens,
		now.Unix(),
		now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert agent: %w", err)
	}

	agent.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read agent id: %w", err)
	}
	agent.CreatedAt = now
	agent.UpdatedAt = now

	logger.Info("Agent created", zap.Int64("agent_id", agent.ID), zap.String("name", agent.Name))
	return nil
}

func (c *Client) GetAgent(id int64) (*models.Agent, error) {
	query := `SELECT id, name, system_prompt, model, temperature, max_tokens, created_at, updated_at FROM agents WHERE id = ?`

	var agent models.Agent
	var createdAt, updatedAt int64

	err := c.db.QueryRow(query, id).Scan(
		&agent.ID,
		&agent.Name,
		&agent.SystemPrompt,
		&agent.Model,
		&agent.Temperature,
		&agent.MaxTokens,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}

	agent.CreatedAt = time.Unix(createdAt, 0)
	agent.UpdatedAt = time.Unix(updatedAt, 0)

	return &agent, nil
}

func (c *Client) UpdateAgent(agent *models.Agent) error {
	query := `UPDATE agents SET name = ?, system_prompt = ?, model = ?, temperature = ?, max_tokens = ?, updated_at = ? WHERE id = ?`

	now := time.Now()
	_, err := c.db.Exec(
		query,
		agent.Name,
		agent.SystemPrompt,
		agent.Model,
		agent.Temperature,
		agent.MaxTokens,
		now.Unix(),
		agent.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update agent: %w", err)
	}
	agent.UpdatedAt = now
	return nil
}

// InsertDocumentWithChunks writes the document row and its chunk mirror rows
// in one transaction so a failed ingestion leaves no metadata behind.
func (c *Client) InsertDocumentWithChunks(doc *models.Document, chunks []models.DocumentChunk) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO documents (id, agent_id, filename, content_hash, file_size, file_type, chunk_count, embedding_model, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID,
		doc.AgentID,
		doc.Filename,
		doc.ContentHash,
		doc.FileSize,
		doc.FileType,
		doc.ChunkCount,
		doc.EmbeddingModel,
		doc.ProcessedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO document_chunks (id, document_id, agent_id, sequence_index, text, source_filename, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		_, err = stmt.Exec(
			chunk.ID,
			chunk.DocumentID,
			chunk.AgentID,
			chunk.SequenceIndex,
			chunk.Text,
			chunk.SourceFilename,
			chunk.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", chunk.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}

	logger.Debug("Document persisted",
		zap.String("doc_id", doc.ID),
		zap.Int("chunks", len(chunks)),
	)
	return nil
}

func (c *Client) GetDocument(id string) (*models.Document, error) {
	query := `SELECT id, agent_id, filename, content_hash, file_size, file_type, chunk_count, embedding_model, processed_at FROM documents WHERE id = ?`

	var doc models.Document
	var processedAt int64

	err := c.db.QueryRow(query, id).Scan(
		&doc.ID,
		&doc.AgentID,
		&doc.Filename,
		&doc.ContentHash,
		&doc.FileSize,
		&doc.FileType,
		&doc.ChunkCount,
		&doc.EmbeddingModel,
		&processedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.ProcessedAt = time.Unix(processedAt, 0)
	return &doc, nil
}

func (c *Client) ListDocuments(agentID int64) ([]models.Document, error) {
	query := `
		SELECT id, filename, content_hash, file_size, file_type, chunk_count, embedding_model, processed_at
		FROM documents
		WHERE agent_id = ?
		ORDER BY processed_at DESC
	`

	rows, err := c.db.Query(query, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc := models.Document{AgentID: agentID}
		var processedAt int64

		err := rows.Scan(&doc.ID, &doc.Filename, &doc.ContentHash, &doc.FileSize, &doc.FileType, &doc.ChunkCount, &doc.EmbeddingModel, &processedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		doc.ProcessedAt = time.Unix(processedAt, 0)
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

func (c *Client) DeleteDocument(id string) error {
	_, err := c.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// AgentEmbeddingModels returns the distinct embedding models recorded for an
// agent's documents. Used to reject cross-embedder queries.
func (c *Client) AgentEmbeddingModels(agentID int64) ([]string, error) {
	rows, err := c.db.Query(`SELECT DISTINCT embedding_model FROM documents WHERE agent_id = ?`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query embedding models: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

func (c *Client) CreateWebhook(webhook *models.Webhook) error {
	query := `
		INSERT INTO webhooks (agent_id, name, url, events, secret, is_active, retry_limit, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	res, err := c.db.Exec(
		query,
		webhook.AgentID,
		webhook.Name,
		webhook.URL,
		strings.Join(webhook.Events, ","),
		webhook.Secret,
		boolToInt(webhook.IsActive),
		webhook.RetryLimit,
		now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert webhook: %w", err)
	}

	webhook.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read webhook id: %w", err)
	}
	webhook.CreatedAt = now

	logger.Info("Webhook created",
		zap.Int64("webhook_id", webhook.ID),
		zap.Int64("agent_id", webhook.AgentID),
		zap.String("url", webhook.URL),
	)
	return nil
}

func (c *Client) GetWebhook(id int64) (*models.Webhook, error) {
	query := `SELECT id, agent_id, name, url, events, secret, is_active, retry_limit, created_at, last_triggered_at FROM webhooks WHERE id = ?`

	row := c.db.QueryRow(query, id)
	webhook, err := scanWebhook(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return webhook, nil
}

func (c *Client) ListWebhooks(agentID int64) ([]models.Webhook, error) {
	query := `
		SELECT id, agent_id, name, url, events, secret, is_active, retry_limit, created_at, last_triggered_at
		FROM webhooks
		WHERE agent_id = ?
		ORDER BY created_at DESC
	`

	rows, err := c.db.Query(query, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []models.Webhook
	for rows.Next() {
		webhook, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		webhooks = append(webhooks, *webhook)
	}

	return webhooks, rows.Err()
}

// ActiveWebhooks returns the active webhooks of an agent subscribed to
// eventType, honoring the "*" wildcard subscription.
func (c *Client) ActiveWebhooks(agentID int64, eventType string) ([]models.Webhook, error) {
	webhooks, err := c.ListWebhooks(agentID)
	if err != nil {
		return nil, err
	}

	var matched []models.Webhook
	for _, webhook := range webhooks {
		if !webhook.IsActive {
			continue
		}
		for _, event := range webhook.Events {
			if event == eventType || event == "*" {
				matched = append(matched, webhook)
				break
			}
		}
	}

	return matched, nil
}

func (c *Client) UpdateWebhook(webhook *models.Webhook) error {
	query := `UPDATE webhooks SET name = ?, url = ?, events = ?, is_active = ?, retry_limit = ? WHERE id = ?`

	_, err := c.db.Exec(
		query,
		webhook.Name,
		webhook.URL,
		strings.Join(webhook.Events, ","),
		boolToInt(webhook.IsActive),
		webhook.RetryLimit,
		webhook.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	return nil
}

func (c *Client) DeleteWebhook(id int64) error {
	_, err := c.db.Exec(`DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	return nil
}

func (c *Client) TouchWebhook(id int64, at time.Time) error {
	_, err := c.db.Exec(`UPDATE webhooks SET last_triggered_at = ? WHERE id = ?`, at.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to touch webhook: %w", err)
	}
	return nil
}

// RecordDeliveryAttempt appends one row to the delivery log. Rows are never
// updated or deleted except through webhook cascade deletion.
func (c *Client) RecordDeliveryAttempt(attempt *models.DeliveryAttempt) error {
	query := `
		INSERT INTO webhook_deliveries (delivery_id, webhook_id, event_type, attempt_number, status_code, success, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var statusCode sql.NullInt64
	if attempt.StatusCode != nil {
		statusCode = sql.NullInt64{Int64: int64(*attempt.StatusCode), Valid: true}
	}

	var errMsg sql.NullString
	if attempt.ErrorMessage != "" {
		errMsg = sql.NullString{String: attempt.ErrorMessage, Valid: true}
	}

	_, err := c.db.Exec(
		query,
		attempt.DeliveryID,
		attempt.WebhookID,
		attempt.EventType,
		attempt.AttemptNumber,
		statusCode,
		boolToInt(attempt.Success),
		errMsg,
		attempt.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record delivery attempt: %w", err)
	}
	return nil
}

func (c *Client) ListDeliveryAttempts(webhookID int64, limit int) ([]models.DeliveryAttempt, error) {
	query := `
		SELECT id, delivery_id, webhook_id, event_type, attempt_number, status_code, success, error_message, created_at
		FROM webhook_deliveries
		WHERE webhook_id = ?
		ORDER BY created_at DESC, attempt_number DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, webhookID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list delivery attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.DeliveryAttempt
	for rows.Next() {
		var a models.DeliveryAttempt
		var statusCode sql.NullInt64
		var errMsg sql.NullString
		var success int
		var createdAt int64

		err := rows.Scan(&a.ID, &a.DeliveryID, &a.WebhookID, &a.EventType, &a.AttemptNumber, &statusCode, &success, &errMsg, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if statusCode.Valid {
			code := int(statusCode.Int64)
			a.StatusCode = &code
		}
		a.ErrorMessage = errMsg.String
		a.Success = success == 1
		a.CreatedAt = time.Unix(createdAt, 0)
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWebhook(row rowScanner) (*models.Webhook, error) {
	var webhook models.Webhook
	var events string
	var isActive int
	var createdAt int64
	var lastTriggered sql.NullInt64

	err := row.Scan(
		&webhook.ID,
		&webhook.AgentID,
		&webhook.Name,
		&webhook.URL,
		&events,
		&webhook.Secret,
		&isActive,
		&webhook.RetryLimit,
		&createdAt,
		&lastTriggered,
	)
	if err != nil {
		return nil, err
	}

	if events != "" {
		for _, event := range strings.Split(events, ",") {
			webhook.Events = append(webhook.Events, strings.TrimSpace(event))
		}
	}
	webhook.IsActive = isActive == 1
	webhook.CreatedAt = time.Unix(createdAt, 0)
	if lastTriggered.Valid {
		t := time.Unix(lastTriggered.Int64, 0)
		webhook.LastTriggeredAt = &t
	}

	return &webhook, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
