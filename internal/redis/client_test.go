package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "agent:session:app:U1:session_U1", AgentSessionKey("app", "U1", "session_U1"))
	assert.Equal(t, "registry:app", RegistryKey("app"))
	assert.Equal(t, "webhook:event:01H", WebhookEventKey("01H"))
	assert.Equal(t, "ratelimit:user:U1", UserRateLimitKey("U1"))
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient("not-a-url")
	assert.Error(t, err)
}
