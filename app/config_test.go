package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	config := &Config{ServerURL: "http://localhost:8000", NotificationCap: 200}
	assert.NoError(t, config.Validate())

	assert.Error(t, (&Config{ServerURL: "", NotificationCap: 200}).Validate())
	assert.Error(t, (&Config{ServerURL: "not a url", NotificationCap: 200}).Validate())
	assert.Error(t, (&Config{ServerURL: "http://localhost:8000", NotificationCap: 0}).Validate())
}

func TestWebSocketOrigin(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{
			name:   "derived from http",
			config: Config{ServerURL: "http://localhost:8000"},
			want:   "ws://localhost:8000",
		},
		{
			name:   "derived from https",
			config: Config{ServerURL: "https://feed.example.com"},
			want:   "wss://feed.example.com",
		},
		{
			name:   "explicit socket url wins",
			config: Config{ServerURL: "http://localhost:8000", SocketURL: "ws://other:9000"},
			want:   "ws://other:9000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.WebSocketOrigin())
		})
	}
}

func TestRetryPolicyConversion(t *testing.T) {
	config := &Config{
		Retry: RetryConfig{
			Base:        time.Second,
			Jitter:      100 * time.Millisecond,
			Cap:         10 * time.Second,
			MaxAttempts: 3,
		},
	}
	policy := config.RetryPolicy()
	require.Equal(t, time.Second, policy.Base)
	require.Equal(t, 100*time.Millisecond, policy.Jitter)
	require.Equal(t, 10*time.Second, policy.Cap)
	require.Equal(t, uint64(3), policy.MaxAttempts)
}
