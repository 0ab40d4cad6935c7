package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/agentforge/backend/internal/storage/models"
	"github.com/agentforge/backend/internal/storage/sqlite"
	"github.com/agentforge/backend/internal/webhook"
	"github.com/agentforge/backend/pkg/logger"
)

type WebhookHandler struct {
	store      *sqlite.Client
	dispatcher *webhook.Dispatcher
}

func NewWebhookHandler(store *sqlite.Client, dispatcher *webhook.Dispatcher) *WebhookHandler {
	return &WebhookHandler{
		store:      store,
		dispatcher: dispatcher,
	}
}

// CreateWebhook registers an endpoint. The signing secret is generated
// server-side and returned exactly once, in this response.
func (h *WebhookHandler) CreateWebhook(c *fiber.Ctx) error {
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
		Name       string   `json:"name"`
		URL        string   `json:"url"`
		Events     []string `json:"events"`
		Secret     string   `json:"secret"`
		RetryLimit *int     `json:"retry_limit"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	retryLimit := 3
	if req.RetryLimit != nil {
		retryLimit = *req.RetryLimit
	}

	secret := req.Secret
	if secret == "" {
		secret, err = generateSecret()
		if err != nil {
			logger.Error("Failed to generate webhook secret", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create webhook",
			})
		}
	}

	wh := &models.Webhook{
		AgentID:    agent.ID,
		Name:       req.Name,
		URL:        req.URL,
		Events:     req.Events,
		Secret:     secret,
		IsActive:   true,
		RetryLimit: retryLimit,
	}

	if err := webhook.Validate(wh); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := h.store.CreateWebhook(wh); err != nil {
		logger.Error("Failed to create webhook", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create webhook",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":          wh.ID,
		"name":        wh.Name,
		"url":         wh.URL,
		"events":      wh.Events,
		"secret":      wh.Secret,
		"is_active":   wh.IsActive,
		"retry_limit": wh.RetryLimit,
		"created_at":  wh.CreatedAt.Unix(),
	})
}

func (h *WebhookHandler) ListWebhooks(c *fiber.Ctx) error {
	agentID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid agent id",
		})
	}

	webhooks, err := h.store.ListWebhooks(int64(agentID))
	if err != nil {
		logger.Error("Failed to list webhooks", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list webhooks",
		})
	}

	items := make([]fiber.Map, 0, len(webhooks))
	for _, wh := range webhooks {
		items = append(items, webhookResponse(&wh))
	}

	return c.JSON(fiber.Map{
		"webhooks": items,
	})
}

// UpdateWebhook changes name, url, events, active flag, or retry limit.
// The secret is immutable; delete and recreate to rotate it.
func (h *WebhookHandler) UpdateWebhook(c *fiber.Ctx) error {
	wh, errResp := h.loadWebhook(c)
	if wh == nil {
		return errResp
	}

	var req struct {
		Name       *string   `json:"name"`
		URL        *string   `json:"url"`
		Events     *[]string `json:"events"`
		IsActive   *bool     `json:"is_active"`
		RetryLimit *int      `json:"retry_limit"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Name != nil {
		wh.Name = *req.Name
	}
	if req.URL != nil {
		wh.URL = *req.URL
	}
	if req.Events != nil {
		wh.Events = *req.Events
	}
	if req.IsActive != nil {
		wh.IsActive = *req.IsActive
	}
	if req.RetryLimit != nil {
		wh.RetryLimit = *req.RetryLimit
	}

	if err := webhook.Validate(wh); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := h.store.UpdateWebhook(wh); err != nil {
		logger.Error("Failed to update webhook", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update webhook",
		})
	}

	return c.JSON(webhookResponse(wh))
}

func (h *WebhookHandler) DeleteWebhook(c *fiber.Ctx) error {
	wh, errResp := h.loadWebhook(c)
	if wh == nil {
		return errResp
	}

	if err := h.store.DeleteWebhook(wh.ID); err != nil {
		logger.Error("Failed to delete webhook", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete webhook",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Webhook deleted",
	})
}

func (h *WebhookHandler) ListDeliveries(c *fiber.Ctx) error {
	wh, errResp := h.loadWebhook(c)
	if wh == nil {
		return errResp
	}

	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	attempts, err := h.store.ListDeliveryAttempts(wh.ID, limit)
	if err != nil {
		logger.Error("Failed to list delivery attempts", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list deliveries",
		})
	}

	items := make([]fiber.Map, 0, len(attempts))
	for _, a := range attempts {
		item := fiber.Map{
			"delivery_id":    a.DeliveryID,
			"event_type":     a.EventType,
			"attempt_number": a.AttemptNumber,
			"success":        a.Success,
			"created_at":     a.CreatedAt.Unix(),
		}
		if a.StatusCode != nil {
			item["status_code"] = *a.StatusCode
		}
		if a.ErrorMessage != "" {
			item["error_message"] = a.ErrorMessage
		}
		items = append(items, item)
	}

	return c.JSON(fiber.Map{
		"deliveries": items,
	})
}

// TestWebhook fires a test.webhook event at one endpoint synchronously and
// reports the outcome.
func (h *WebhookHandler) TestWebhook(c *fiber.Ctx) error {
	wh, errResp := h.loadWebhook(c)
	if wh == nil {
		return errResp
	}

	agent, err := h.store.GetAgent(wh.AgentID)
	if err != nil || agent == nil {
		logger.Error("Failed to get agent for test delivery", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get agent",
		})
	}

	payload := webhook.NewPayload(webhook.EventTestWebhook, agent.ID, agent.Name, map[string]interface{}{
		"webhook_id": wh.ID,
		"message":    "This is a test delivery",
	}, time.Now())

	success, statusCode := h.dispatcher.DeliverSync(c.Context(), *wh, payload)

	resp := fiber.Map{
		"success": success,
	}
	if statusCode != 0 {
		resp["status_code"] = statusCode
	}
	return c.JSON(resp)
}

func (h *WebhookHandler) loadWebhook(c *fiber.Ctx) (*models.Webhook, error) {
	agentID, err := c.ParamsInt("id")
	if err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid agent id",
		})
	}
	webhookID, err := c.ParamsInt("webhookId")
	if err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook id",
		})
	}

	wh, err := h.store.GetWebhook(int64(webhookID))
	if err != nil {
		logger.Error("Failed to get webhook", zap.Error(err))
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get webhook",
		})
	}
	if wh == nil || wh.AgentID != int64(agentID) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Webhook not found",
		})
	}
	return wh, nil
}

func webhookResponse(wh *models.Webhook) fiber.Map {
	resp := fiber.Map{
		"id":          wh.ID,
		"name":        wh.Name,
		"url":         wh.URL,
		"events":      wh.Events,
		"is_active":   wh.IsActive,
		"retry_limit": wh.RetryLimit,
		"created_at":  wh.CreatedAt.Unix(),
	}
	if wh.LastTriggeredAt != nil {
		resp["last_triggered_at"] = wh.LastTriggeredAt.Unix()
	}
	return resp
}

func generateSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("whsec_%s", hex.EncodeToString(buf)), nil
}
