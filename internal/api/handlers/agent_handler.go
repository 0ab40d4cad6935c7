package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/agentforge/backend/internal/storage/models"
	"github.com/agentforge/backend/internal/storage/sqlite"
	"github.com/agentforge/backend/internal/webhook"
	"github.com/agentforge/backend/pkg/logger"
)

type AgentHandler struct {
	store      *sqlite.Client
	dispatcher *webhook.Dispatcher
}

func NewAgentHandler(store *sqlite.Client, dispatcher *webhook.Dispatcher) *AgentHandler {
	return &AgentHandler{
		store:      store,
		dispatcher: dispatcher,
	}
}

func (h *AgentHandler) CreateAgent(c *fiber.Ctx) error {
	var req struct {
		Name         string  `json:"name"`
		SystemPrompt string  `json:"system_prompt"`
		Model        string  `json:"model"`
		Temperature  float64 `json:"temperature"`
		MaxTokens    int     `json:"max_tokens"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Agent name is required",
		})
	}
	if req.Model == "" {
		req.Model = "gpt-4"
	}
	if req.Temperature == 0 {
		req.Temperature = 0.7
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 1000
	}

	agent := &models.Agent{
		Name:         req.Name,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	}

	if err := h.store.CreateAgent(agent); err != nil {
		logger.Error("Failed to create agent", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create agent",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":            agent.ID,
		"name":          agent.Name,
		"system_prompt": agent.SystemPrompt,
		"model":         agent.Model,
		"temperature":   agent.Temperature,
		"max_tokens":    agent.MaxTokens,
		"created_at":    agent.CreatedAt.Unix(),
	})
}

func (h *AgentHandler) GetAgent(c *fiber.Ctx) error {
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

	return c.JSON(fiber.Map{
		"id":            agent.ID,
		"name":          agent.Name,
		"system_prompt": agent.SystemPrompt,
		"model":         agent.Model,
		"temperature":   agent.Temperature,
		"max_tokens":    agent.MaxTokens,
		"created_at":    agent.CreatedAt.Unix(),
		"updated_at":    agent.UpdatedAt.Unix(),
	})
}

func (h *AgentHandler) UpdateAgent(c *fiber.Ctx) error {
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

	var req struct {
		Name         *string  `json:"name"`
		SystemPrompt *string  `json:"system_prompt"`
		Model        *string  `json:"model"`
		Temperature  *float64 `json:"temperature"`
		MaxTokens    *int     `json:"max_tokens"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	changed := []string{}
	if req.Name != nil && *req.Name != agent.Name {
		agent.Name = *req.Name
		changed = append(changed, "name")
	}
	if req.SystemPrompt != nil && *req.SystemPrompt != agent.SystemPrompt {
		agent.SystemPrompt = *req.SystemPrompt
		changed = append(changed, "system_prompt")
	}
	if req.Model != nil && *req.Model != agent.Model {
		agent.Model = *req.Model
		changed = append(changed, "model")
	}
	if req.Temperature != nil && *req.Temperature != agent.Temperature {
		agent.Temperature = *req.Temperature
		changed = append(changed, "temperature")
	}
	if req.MaxTokens != nil && *req.MaxTokens != agent.MaxTokens {
		agent.MaxTokens = *req.MaxTokens
		changed = append(changed, "max_tokens")
	}

	if agent.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Agent name is required",
		})
	}

	if err := h.store.UpdateAgent(agent); err != nil {
		logger.Error("Failed to update agent", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update agent",
		})
	}

	if len(changed) > 0 {
		h.dispatcher.Dispatch(webhook.EventAgentUpdated, agent.ID, agent.Name, map[string]interface{}{
			"changed_fields": changed,
		})
	}

	return c.JSON(fiber.Map{
		"id":            agent.ID,
		"name":          agent.Name,
		"system_prompt": agent.SystemPrompt,
		"model":         agent.Model,
		"temperature":   agent.Temperature,
		"max_tokens":    agent.MaxTokens,
		"updated_at":    agent.UpdatedAt.Unix(),
	})
}
