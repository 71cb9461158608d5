package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndpointURLs(t *testing.T) {
	e := Endpoint{BaseURL: "ws://localhost:8000"}

	assert.Equal(t, "ws://localhost:8000/ws/chat/42/?token=abc", e.Chat(42, "abc"))
	assert.Equal(t, "ws://localhost:8000/ws/notifications/?token=abc", e.Notifications("abc"))
}

func TestEndpointTrailingSlashAndEscaping(t *testing.T) {
	e := Endpoint{BaseURL: "wss://feed.example.com/"}

	assert.Equal(t, "wss://feed.example.com/ws/chat/7/?token=a%2Bb", e.Chat(7, "a+b"))
}
