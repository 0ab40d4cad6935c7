package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentforge/backend/internal/llm"
	"github.com/agentforge/backend/internal/rag"
	"github.com/agentforge/backend/internal/storage/sqlite"
	"github.com/agentforge/backend/internal/webhook"
	"github.com/agentforge/backend/pkg/logger"
)

type QueryHandler struct {
	store           *sqlite.Client
	engine          *rag.Engine
	llmClient       *llm.Client
	dispatcher      *webhook.Dispatcher
	maxContextChars int
}

func NewQueryHandler(store *sqlite.Client, engine *rag.Engine, llmClient *llm.Client, dispatcher *webhook.Dispatcher, maxContextChars int) *QueryHandler {
	return &QueryHandler{
		store:           store,
		engine:          engine,
		llmClient:       llmClient,
		dispatcher:      dispatcher,
		maxContextChars: maxContextChars,
	}
}

// HandleQuery answers a user message with the agent's knowledge base:
// retrieve, assemble a bounded context, complete, cite.
func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	agentID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid agent id",
		})
	}

	var req struct {
		Message        string `json:"message"`
		ConversationID string `json:"conversation_id"`
		TopK           int    `json:"top_k"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
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

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
		h.dispatcher.Dispatch(webhook.EventConversationStarted, agent.ID, agent.Name, map[string]interface{}{
			"conversation_id": conversationID,
		})
	}

	matches, err := h.engine.Retrieve(c.Context(), agent.ID, req.Message, req.TopK)
	if err != nil {
		if errors.Is(err, rag.ErrEmbedderMismatch) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		logger.Error("Retrieval failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to retrieve context",
		})
	}

	assembled := rag.Assemble(matches, h.maxContextChars)

	completion, err := h.llmClient.Complete(c.Context(), llm.CompletionRequest{
		Model:        agent.Model,
		SystemPrompt: rag.BuildSystemPrompt(agent.SystemPrompt, assembled.Text),
		UserPrompt:   req.Message,
		Temperature:  float32(agent.Temperature),
		MaxTokens:    agent.MaxTokens,
	})
	if err != nil {
		logger.Error("Completion failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Failed to generate response",
		})
	}

	h.dispatcher.Dispatch(webhook.EventMessageSent, agent.ID, agent.Name, map[string]interface{}{
		"conversation_id": conversationID,
		"message":         req.Message,
		"response":        completion.Content,
		"tokens_used":     completion.TokensUsed,
	})

	citations := assembled.Citations
	if citations == nil {
		citations = []rag.Citation{}
	}

	return c.JSON(fiber.Map{
		"answer":          completion.Content,
		"sources":         citations,
		"conversation_id": conversationID,
		"tokens_used":     completion.TokensUsed,
	})
}

// EndConversation closes a conversation and notifies subscribers.
func (h *QueryHandler) EndConversation(c *fiber.Ctx) error {
	agentID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid agent id",
		})
	}

	var req struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.ConversationID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "conversation_id is required",
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

	h.dispatcher.Dispatch(webhook.EventConversationEnded, agent.ID, agent.Name, map[string]interface{}{
		"conversation_id": req.ConversationID,
	})

	return c.JSON(fiber.Map{
		"message":         "Conversation ended",
		"conversation_id": req.ConversationID,
	})
}
