// Package webhook implements outbound event delivery: payload signing,
// subscription matching, and an asynchronous dispatcher with bounded
// retries and an append-only delivery log.
package webhook

import (
	"time"
)

// Event types a webhook can subscribe to. EventWildcard subscribes to all
// of them.
const (
	EventMessageSent         = "message.sent"
	EventConversationStarted = "conversation.started"
	EventConversationEnded   = "conversation.ended"
	EventDocumentUploaded    = "document.uploaded"
	EventAgentUpdated        = "agent.updated"
	EventTestWebhook         = "test.webhook"

	EventWildcard = "*"
)

// KnownEvents lists every concrete event type, wildcard excluded.
var KnownEvents = []string{
	EventMessageSent,
	EventConversationStarted,
	EventConversationEnded,
	EventDocumentUploaded,
	EventAgentUpdated,
	EventTestWebhook,
}

func IsKnownEvent(event string) bool {
	if event == EventWildcard {
		return true
	}
	for _, known := range KnownEvents {
		if event == known {
			return true
		}
	}
	return false
}

// Payload is the JSON body POSTed to webhook endpoints.
type Payload struct {
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	AgentID   int64                  `json:"agent_id"`
	AgentName string                 `json:"agent_name"`
	Data      map[string]interface{} `json:"data"`
}

// NewPayload stamps an event payload with an ISO-8601 UTC timestamp.
func NewPayload(event string, agentID int64, agentName string, data map[string]interface{}, at time.Time) Payload {
	if data == nil {
		data = map[string]interface{}{}
	}
	return Payload{
		Event:     event,
		Timestamp: at.UTC().Format(time.RFC3339),
		AgentID:   agentID,
		AgentName: agentName,
		Data:      data,
	}
}
