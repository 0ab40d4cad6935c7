package webhook

import (
	"fmt"
	"net/url"

	"github.com/agentforge/backend/internal/storage/models"
)

// MaxRetryLimit caps how many delivery attempts a single event may cost.
const MaxRetryLimit = 10

// Validate checks a webhook registration before it is persisted.
func Validate(webhook *models.Webhook) error {
	if webhook.Name == "" {
		return fmt.Errorf("webhook name is required")
	}

	parsed, err := url.Parse(webhook.URL)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("webhook url must use http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("webhook url is missing a host")
	}

	if len(webhook.Events) == 0 {
		return fmt.Errorf("webhook must subscribe to at least one event")
	}
	for _, event := range webhook.Events {
		if !IsKnownEvent(event) {
			return fmt.Errorf("unknown event type %q", event)
		}
	}

	if webhook.RetryLimit < 0 || webhook.RetryLimit > MaxRetryLimit {
		return fmt.Errorf("retry limit must be between 0 and %d, got %d", MaxRetryLimit, webhook.RetryLimit)
	}

	return nil
}
