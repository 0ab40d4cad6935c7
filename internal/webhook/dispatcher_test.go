package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentforge/backend/internal/storage/models"
)

// fakeClock advances instantly on Sleep and records the requested backoff
// durations.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

type fakeStore struct {
	mu       sync.Mutex
	webhooks []models.Webhook
	attempts []models.DeliveryAttempt
	touched  []int64
}

func (s *fakeStore) ActiveWebhooks(agentID int64, eventType string) ([]models.Webhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.Webhook
	for _, wh := range s.webhooks {
		if wh.AgentID != agentID || !wh.IsActive {
			continue
		}
		for _, event := range wh.Events {
			if event == eventType || event == EventWildcard {
				matched = append(matched, wh)
				break
			}
		}
	}
	return matched, nil
}

func (s *fakeStore) RecordDeliveryAttempt(attempt *models.DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, *attempt)
	return nil
}

func (s *fakeStore) TouchWebhook(id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, id)
	return nil
}

func (s *fakeStore) recordedAttempts() []models.DeliveryAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.DeliveryAttempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

func testWebhook(url string, retryLimit int, events ...string) models.Webhook {
	if len(events) == 0 {
		events = []string{EventWildcard}
	}
	return models.Webhook{
		ID:         7,
		AgentID:    1,
		Name:       "test endpoint",
		URL:        url,
		Events:     events,
		Secret:     "whsec_testsecret",
		IsActive:   true,
		RetryLimit: retryLimit,
	}
}

func drain(t *testing.T, d *Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Shutdown(ctx))
}

func TestDispatch_RetriesUntilLimitWithBackoff(t *testing.T) {
	var requests int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	clk := newFakeClock()
	store := &fakeStore{webhooks: []models.Webhook{testWebhook(server.URL, 3)}}
	d := NewDispatcher(store, Config{Workers: 1, Clock: clk})

	d.Dispatch(EventMessageSent, 1, "Support Bot", map[string]interface{}{"k": "v"})
	drain(t, d)

	mu.Lock()
	assert.Equal(t, 3, requests)
	mu.Unlock()

	// Backoff before attempt 2 is 1s, before attempt 3 is 2s. Attempt 1
	// goes out immediately.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clk.recorded())

	attempts := store.recordedAttempts()
	require.Len(t, attempts, 3)
	for i, attempt := range attempts {
		assert.Equal(t, i+1, attempt.AttemptNumber)
		assert.False(t, attempt.Success)
		require.NotNil(t, attempt.StatusCode)
		assert.Equal(t, http.StatusInternalServerError, *attempt.StatusCode)
		assert.Equal(t, attempts[0].DeliveryID, attempt.DeliveryID)
	}
	assert.Empty(t, store.touched)
}

func TestDispatch_StopsRetryingAfterSuccess(t *testing.T) {
	var requests int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	clk := newFakeClock()
	store := &fakeStore{webhooks: []models.Webhook{testWebhook(server.URL, 5)}}
	d := NewDispatcher(store, Config{Workers: 1, Clock: clk})

	d.Dispatch(EventDocumentUploaded, 1, "Support Bot", nil)
	drain(t, d)

	mu.Lock()
	assert.Equal(t, 2, requests)
	mu.Unlock()

	assert.Equal(t, []time.Duration{time.Second}, clk.recorded())

	attempts := store.recordedAttempts()
	require.Len(t, attempts, 2)
	assert.False(t, attempts[0].Success)
	assert.True(t, attempts[1].Success)
	assert.Equal(t, []int64{7}, store.touched)
}

func TestDispatch_FirstAttemptSuccessNoBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	clk := newFakeClock()
	store := &fakeStore{webhooks: []models.Webhook{testWebhook(server.URL, 3)}}
	d := NewDispatcher(store, Config{Workers: 1, Clock: clk})

	d.Dispatch(EventMessageSent, 1, "Support Bot", nil)
	drain(t, d)

	assert.Empty(t, clk.recorded())

	attempts := store.recordedAttempts()
	require.Len(t, attempts, 1)
	assert.True(t, attempts[0].Success)
}

func TestDispatch_SignsPayload(t *testing.T) {
	var gotSignature string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	clk := newFakeClock()
	store := &fakeStore{webhooks: []models.Webhook{testWebhook(server.URL, 1)}}
	d := NewDispatcher(store, Config{Workers: 1, Clock: clk})

	d.Dispatch(EventMessageSent, 1, "Support Bot", map[string]interface{}{"answer": "42"})
	drain(t, d)

	require.NotEmpty(t, gotSignature)
	assert.True(t, Verify("whsec_testsecret", gotBody, gotSignature))
	assert.False(t, Verify("wrong secret", gotBody, gotSignature))

	var payload Payload
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, EventMessageSent, payload.Event)
	assert.Equal(t, int64(1), payload.AgentID)
	assert.Equal(t, "Support Bot", payload.AgentName)
	assert.Equal(t, "42", payload.Data["answer"])

	ts, err := time.Parse(time.RFC3339, payload.Timestamp)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, ts.Location())
}

func TestDispatch_InactiveWebhookNeverFires(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("inactive webhook must not be called")
	}))
	defer server.Close()

	wh := testWebhook(server.URL, 3)
	wh.IsActive = false

	store := &fakeStore{webhooks: []models.Webhook{wh}}
	d := NewDispatcher(store, Config{Workers: 1, Clock: newFakeClock()})

	d.Dispatch(EventMessageSent, 1, "Support Bot", nil)
	drain(t, d)

	assert.Empty(t, store.recordedAttempts())
}

func TestDispatch_UnsubscribedEventNeverFires(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unsubscribed webhook must not be called")
	}))
	defer server.Close()

	store := &fakeStore{webhooks: []models.Webhook{
		testWebhook(server.URL, 3, EventDocumentUploaded),
	}}
	d := NewDispatcher(store, Config{Workers: 1, Clock: newFakeClock()})

	d.Dispatch(EventMessageSent, 1, "Support Bot", nil)
	drain(t, d)

	assert.Empty(t, store.recordedAttempts())
}

func TestDispatch_WildcardSubscriptionReceivesEverything(t *testing.T) {
	var requests int
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := &fakeStore{webhooks: []models.Webhook{
		testWebhook(server.URL, 1, EventWildcard),
	}}
	d := NewDispatcher(store, Config{Workers: 1, Clock: newFakeClock()})

	d.Dispatch(EventMessageSent, 1, "Support Bot", nil)
	d.Dispatch(EventConversationEnded, 1, "Support Bot", nil)
	drain(t, d)

	mu.Lock()
	assert.Equal(t, 2, requests)
	mu.Unlock()
}

func TestDispatch_ConnectionFailureRecordedWithoutStatus(t *testing.T) {
	// Grab a port nothing listens on.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	clk := newFakeClock()
	store := &fakeStore{webhooks: []models.Webhook{testWebhook(url, 2)}}
	d := NewDispatcher(store, Config{Workers: 1, Clock: clk})

	d.Dispatch(EventMessageSent, 1, "Support Bot", nil)
	drain(t, d)

	attempts := store.recordedAttempts()
	require.Len(t, attempts, 2)
	for _, attempt := range attempts {
		assert.False(t, attempt.Success)
		assert.Nil(t, attempt.StatusCode)
		assert.NotEmpty(t, attempt.ErrorMessage)
	}
}

func TestDeliverSync_ReportsOutcome(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	clk := newFakeClock()
	store := &fakeStore{}
	d := NewDispatcher(store, Config{Workers: 1, Clock: clk})
	defer drain(t, d)

	wh := testWebhook(server.URL, 1)
	payload := NewPayload(EventTestWebhook, 1, "Support Bot", nil, clk.Now())

	success, statusCode := d.DeliverSync(context.Background(), wh, payload)
	assert.True(t, success)
	assert.Equal(t, http.StatusOK, statusCode)
	require.Len(t, store.recordedAttempts(), 1)
}
