package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign_Deterministic(t *testing.T) {
	body := []byte(`{"event":"message.sent"}`)

	first := Sign("secret", body)
	second := Sign("secret", body)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestSign_SecretChangesSignature(t *testing.T) {
	body := []byte(`{"event":"message.sent"}`)
	assert.NotEqual(t, Sign("secret-a", body), Sign("secret-b", body))
}

func TestVerify(t *testing.T) {
	body := []byte(`{"event":"test.webhook","agent_id":1}`)
	signature := Sign("whsec_abc", body)

	assert.True(t, Verify("whsec_abc", body, signature))
	assert.False(t, Verify("whsec_other", body, signature))
	assert.False(t, Verify("whsec_abc", []byte("tampered"), signature))
	assert.False(t, Verify("whsec_abc", body, "deadbeef"))
}
