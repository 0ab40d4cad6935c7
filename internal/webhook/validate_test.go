package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentforge/backend/internal/storage/models"
)

func validWebhook() *models.Webhook {
	return &models.Webhook{
		Name:       "crm sync",
		URL:        "https://example.com/hooks/agentforge",
		Events:     []string{EventMessageSent, EventDocumentUploaded},
		RetryLimit: 3,
	}
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(validWebhook()))
}

func TestValidate_WildcardEvent(t *testing.T) {
	wh := validWebhook()
	wh.Events = []string{EventWildcard}
	assert.NoError(t, Validate(wh))
}

func TestValidate_MissingName(t *testing.T) {
	wh := validWebhook()
	wh.Name = ""
	assert.Error(t, Validate(wh))
}

func TestValidate_BadScheme(t *testing.T) {
	wh := validWebhook()
	wh.URL = "ftp://example.com/hook"
	assert.Error(t, Validate(wh))

	wh.URL = "not a url at all"
	assert.Error(t, Validate(wh))
}

func TestValidate_NoEvents(t *testing.T) {
	wh := validWebhook()
	wh.Events = nil
	assert.Error(t, Validate(wh))
}

func TestValidate_UnknownEvent(t *testing.T) {
	wh := validWebhook()
	wh.Events = []string{"message.deleted"}
	assert.Error(t, Validate(wh))
}

func TestValidate_RetryLimitBounds(t *testing.T) {
	wh := validWebhook()

	wh.RetryLimit = 0
	assert.NoError(t, Validate(wh))

	wh.RetryLimit = MaxRetryLimit
	assert.NoError(t, Validate(wh))

	wh.RetryLimit = MaxRetryLimit + 1
	assert.Error(t, Validate(wh))

	wh.RetryLimit = -1
	assert.Error(t, Validate(wh))
}
