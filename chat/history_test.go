package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPHistoryLoader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/friends/chat", r.URL.Path)
		require.Equal(t, "7", r.URL.Query().Get("friend_id"))
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"sender":1,"receiver":7,"message":"hi","timestamp":"2024-01-01T00:00:00Z"},
			{"sender":7,"receiver":1,"message":"hey","timestamp":"2024-01-01T00:00:05Z"}
		]`))
	}))
	t.Cleanup(server.Close)

	loader := &HTTPHistoryLoader{
		BaseURL: server.URL,
		Token:   func() string { return "tok" },
	}

	messages, err := loader.ChatHistory(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "hi", messages[0].Text)
	assert.Equal(t, 1, messages[0].Sender)
	assert.True(t, messages[0].Timestamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "hey", messages[1].Text)
}

func TestHTTPHistoryLoaderUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	loader := &HTTPHistoryLoader{BaseURL: server.URL}
	_, err := loader.ChatHistory(context.Background(), 7)
	assert.Error(t, err)
}
