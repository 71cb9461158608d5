package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HistoryLoader fetches the prior messages of a conversation. The backend
// returns them ordered oldest first.
type HistoryLoader interface {
	ChatHistory(ctx context.Context, friendID int) ([]Message, error)
}

// HTTPHistoryLoader loads conversation history from the REST backend.
type HTTPHistoryLoader struct {
	// BaseURL is the HTTP origin, e.g. "http://localhost:8000".
	BaseURL string
	// Token supplies the bearer token per request.
	Token func() string
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

func (l *HTTPHistoryLoader) ChatHistory(ctx context.Context, friendID int) ([]Message, error) {
	q := url.Values{}
	q.Set("friend_id", strconv.Itoa(friendID))
	endpoint := strings.TrimRight(l.BaseURL, "/") + "/api/friends/chat?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build history request: %w", err)
	}
	if l.Token != nil {
		req.Header.Set("Authorization", "Bearer "+l.Token())
	}

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch history: unexpected status %d", res.StatusCode)
	}

	var wire []wireMessage
	if err := json.NewDecoder(res.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	messages := make([]Message, 0, len(wire))
	for _, w := range wire {
		ts, _ := time.Parse(time.RFC3339, w.Timestamp)
		messages = append(messages, Message{
			Sender:    w.Sender,
			Receiver:  w.Receiver,
			Text:      w.Text,
			Timestamp: ts,
		})
	}
	return messages, nil
}
