package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentforge/backend/internal/metrics"
	"github.com/agentforge/backend/internal/storage/models"
	"github.com/agentforge/backend/pkg/clock"
	"github.com/agentforge/backend/pkg/logger"
)

// DeliveryStore is the slice of the persistence layer the dispatcher needs:
// subscription lookup, the append-only delivery log, and the last-triggered
// marker.
type DeliveryStore interface {
	ActiveWebhooks(agentID int64, eventType string) ([]models.Webhook, error)
	RecordDeliveryAttempt(attempt *models.DeliveryAttempt) error
	TouchWebhook(id int64, at time.Time) error
}

type Config struct {
	Workers        int
	QueueSize      int
	AttemptTimeout time.Duration
	Clock          clock.Clock
	HTTPClient     *http.Client
}

// Dispatcher fans events out to subscribed endpoints from a bounded worker
// pool. Dispatch never blocks the caller: when the queue is full the
// delivery is dropped and counted, not queued.
type Dispatcher struct {
	store      DeliveryStore
	client     *http.Client
	clock      clock.Clock
	timeout    time.Duration
	queue      chan delivery
	wg         sync.WaitGroup
	closeOnce  sync.Once
	cancelRoot context.CancelFunc
	rootCtx    context.Context
}

type delivery struct {
	webhook models.Webhook
	payload Payload
}

func NewDispatcher(store DeliveryStore, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		store:      store,
		client:     cfg.HTTPClient,
		clock:      cfg.Clock,
		timeout:    cfg.AttemptTimeout,
		queue:      make(chan delivery, cfg.QueueSize),
		cancelRoot: cancel,
		rootCtx:    ctx,
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	logger.Info("Webhook dispatcher started",
		zap.Int("workers", cfg.Workers),
		zap.Int("queue_size", cfg.QueueSize),
	)
	return d
}

// Dispatch looks up the agent's active subscriptions for event and enqueues
// one delivery per matching webhook. It is fire-and-forget: errors are
// logged, never returned to the event producer's caller.
func (d *Dispatcher) Dispatch(event string, agentID int64, agentName string, data map[string]interface{}) {
	webhooks, err := d.store.ActiveWebhooks(agentID, event)
	if err != nil {
		logger.Error("Failed to look up webhook subscriptions",
			zap.String("event", event),
			zap.Int64("agent_id", agentID),
			zap.Error(err),
		)
		return
	}
	if len(webhooks) == 0 {
		return
	}

	payload := NewPayload(event, agentID, agentName, data, d.clock.Now())

	for _, wh := range webhooks {
		select {
		case d.queue <- delivery{webhook: wh, payload: payload}:
		default:
			metrics.WebhookQueueDrops.Inc()
			logger.Warn("Webhook delivery dropped, queue full",
				zap.Int64("webhook_id", wh.ID),
				zap.String("event", event),
			)
		}
	}
}

// DeliverSync runs one delivery inline, bypassing the queue. Used for the
// test-fire endpoint where the caller wants the outcome.
func (d *Dispatcher) DeliverSync(ctx context.Context, wh models.Webhook, payload Payload) (bool, int) {
	return d.deliver(ctx, delivery{webhook: wh, payload: payload})
}

// Shutdown stops accepting work and waits for in-flight deliveries, up to
// ctx's deadline. Deliveries still pending after the deadline are abandoned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.closeOnce.Do(func() {
		close(d.queue)
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.cancelRoot()
		return fmt.Errorf("dispatcher shutdown timed out: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(d.rootCtx, job)
	}
}

// deliver runs the full attempt loop for one webhook and event. Attempt
// numbers are contiguous from 1; before attempt n (n >= 2) the worker backs
// off 2^(n-2) seconds. The loop stops on the first 2xx response or when the
// webhook's retry limit is exhausted.
func (d *Dispatcher) deliver(ctx context.Context, job delivery) (bool, int) {
	deliveryID := uuid.New().String()

	body, err := json.Marshal(job.payload)
	if err != nil {
		logger.Error("Failed to marshal webhook payload",
			zap.Int64("webhook_id", job.webhook.ID),
			zap.Error(err),
		)
		return false, 0
	}
	signature := Sign(job.webhook.Secret, body)

	maxAttempts := job.webhook.RetryLimit
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastStatus int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(1<<(attempt-2)) * time.Second
			if err := d.clock.Sleep(ctx, backoff); err != nil {
				logger.Warn("Webhook retry abandoned during shutdown",
					zap.Int64("webhook_id", job.webhook.ID),
					zap.String("delivery_id", deliveryID),
				)
				return false, lastStatus
			}
		}

		metrics.WebhookAttempts.Inc()
		statusCode, attemptErr := d.attempt(ctx, job.webhook.URL, body, signature)
		success := attemptErr == nil && statusCode >= 200 && statusCode < 300
		lastStatus = statusCode

		record := &models.DeliveryAttempt{
			DeliveryID:    deliveryID,
			WebhookID:     job.webhook.ID,
			EventType:     job.payload.Event,
			AttemptNumber: attempt,
			Success:       success,
			CreatedAt:     d.clock.Now(),
		}
		if statusCode != 0 {
			record.StatusCode = &statusCode
		}
		if attemptErr != nil {
			record.ErrorMessage = attemptErr.Error()
		} else if !success {
			record.ErrorMessage = fmt.Sprintf("endpoint returned status %d", statusCode)
		}
		if err := d.store.RecordDeliveryAttempt(record); err != nil {
			logger.Error("Failed to record delivery attempt",
				zap.Int64("webhook_id", job.webhook.ID),
				zap.Error(err),
			)
		}

		if success {
			if err := d.store.TouchWebhook(job.webhook.ID, d.clock.Now()); err != nil {
				logger.Error("Failed to update webhook last triggered",
					zap.Int64("webhook_id", job.webhook.ID),
					zap.Error(err),
				)
			}
			metrics.WebhookDeliveries.WithLabelValues(job.payload.Event, "success").Inc()
			logger.Debug("Webhook delivered",
				zap.Int64("webhook_id", job.webhook.ID),
				zap.String("event", job.payload.Event),
				zap.Int("attempt", attempt),
			)
			return true, statusCode
		}

		logger.Warn("Webhook attempt failed",
			zap.Int64("webhook_id", job.webhook.ID),
			zap.String("event", job.payload.Event),
			zap.Int("attempt", attempt),
			zap.Int("status", statusCode),
			zap.Error(attemptErr),
		)
	}

	metrics.WebhookDeliveries.WithLabelValues(job.payload.Event, "failed").Inc()
	return false, lastStatus
}

// attempt POSTs the signed payload once. A zero status code means no
// response was received at all.
func (d *Dispatcher) attempt(ctx context.Context, url string, body []byte, signature string) (int, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode, nil
}
