package handlers

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentforge/backend/internal/extract"
	"github.com/agentforge/backend/internal/rag"
	"github.com/agentforge/backend/internal/storage/sqlite"
	"github.com/agentforge/backend/internal/webhook"
	"github.com/agentforge/backend/pkg/logger"
)

type DocumentHandler struct {
	store      *sqlite.Client
	engine     *rag.Engine
	dispatcher *webhook.Dispatcher
}

func NewDocumentHandler(store *sqlite.Client, engine *rag.Engine, dispatcher *webhook.Dispatcher) *DocumentHandler {
	return &DocumentHandler{
		store:      store,
		engine:     engine,
		dispatcher: dispatcher,
	}
}

// UploadDocument ingests an uploaded file into the agent's knowledge base.
// Ingestion is all-or-nothing: on any failure the response reports the
// filename and zero chunks are committed.
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	agentID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid agent id",
		})
	}

	agent, err := h.store.GetAgent(int64(agentID))
	if err != nil {
		logger.Error("Failed to get agent", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get agent",
		})
	}
	if agent == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Agent not found",
		})
	}

	filename, content, errResp := readUpload(c)
	if filename == "" {
		return errResp
	}

	if !extract.IsSupported(filename) {
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
			"error":    "Unsupported file type: supported types are .txt, .md, .html",
			"filename": filename,
		})
	}

	extracted, err := extract.Extract(filename, content)
	if err != nil {
		logger.Error("Failed to extract document text",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":            err.Error(),
			"filename":         filename,
			"chunks_committed": 0,
		})
	}

	documentID := uuid.New().String()
	chunkCount, err := h.engine.Ingest(c.Context(), rag.IngestRequest{
		AgentID:        int64(agentID),
		DocumentID:     documentID,
		Text:           extracted.Text,
		SourceFilename: filename,
		ContentHash:    extracted.ContentHash,
		FileSize:       extracted.FileSize,
		FileType:       extracted.FileType,
	})
	if err != nil {
		logger.Error("Failed to ingest document",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":            "Failed to process document",
			"filename":         filename,
			"chunks_committed": 0,
		})
	}

	h.dispatcher.Dispatch(webhook.EventDocumentUploaded, agent.ID, agent.Name, map[string]interface{}{
		"document_id": documentID,
		"filename":    filename,
		"file_type":   extracted.FileType,
		"chunk_count": chunkCount,
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"document_id": documentID,
		"filename":    filename,
		"file_type":   extracted.FileType,
		"chunk_count": chunkCount,
	})
}

func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	agentID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid agent id",
		})
	}

	docs, err := h.store.ListDocuments(int64(agentID))
	if err != nil {
		logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}

	items := make([]fiber.Map, 0, len(docs))
	for _, doc := range docs {
		items = append(items, fiber.Map{
			"document_id":  doc.ID,
			"filename":     doc.Filename,
			"file_type":    doc.FileType,
			"file_size":    doc.FileSize,
			"chunk_count":  doc.ChunkCount,
			"processed_at": doc.ProcessedAt.Unix(),
		})
	}

	return c.JSON(fiber.Map{
		"documents": items,
	})
}

func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	agentID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid agent id",
		})
	}
	documentID := c.Params("docId")

	doc, err := h.store.GetDocument(documentID)
	if err != nil {
		logger.Error("Failed to get document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get document",
		})
	}
	if doc == nil || doc.AgentID != int64(agentID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Document not found",
		})
	}

	if err := h.engine.DeleteDocument(c.Context(), doc.AgentID, documentID); err != nil {
		logger.Error("Failed to delete document",
			zap.String("document_id", documentID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete document",
		})
	}

	return c.JSON(fiber.Map{
		"message":     "Document deleted",
		"document_id": documentID,
	})
}

// readUpload accepts either a multipart upload named "file" or a JSON body
// with filename and content fields. An empty filename means the error
// response has already been written.
func readUpload(c *fiber.Ctx) (string, []byte, error) {
	if fileHeader, err := c.FormFile("file"); err == nil && fileHeader.Filename != "" {
		file, err := fileHeader.Open()
		if err != nil {
			logger.Error("Failed to open upload", zap.Error(err))
			return "", nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to read uploaded file",
			})
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			logger.Error("Failed to read upload", zap.Error(err))
			return "", nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to read uploaded file",
			})
		}
		return fileHeader.Filename, content, nil
	}

	var req struct {
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil || req.Filename == "" || req.Content == "" {
		return "", nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Provide a multipart 'file' upload or a JSON body with filename and content",
		})
	}
	return req.Filename, []byte(req.Content), nil
}
