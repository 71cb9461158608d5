package realtime

import (
	"fmt"
	"net/url"
	"strings"
)

// Endpoint builds the websocket URLs exposed by the backend. The bearer
// token travels as a query parameter because browser WebSocket clients,
// which this client mirrors, cannot set headers during the handshake.
type Endpoint struct {
	// BaseURL is the websocket origin, e.g. "ws://localhost:8000".
	BaseURL string
}

// Chat returns the URL of the conversation-scoped chat stream. A
// conversation is identified by the peer's user ID.
func (e Endpoint) Chat(friendID int, token string) string {
	return e.build(fmt.Sprintf("/ws/chat/%d/", friendID), token)
}

// Notifications returns the URL of the user-scoped activity stream.
func (e Endpoint) Notifications(token string) string {
	return e.build("/ws/notifications/", token)
}

func (e Endpoint) build(path, token string) string {
	q := url.Values{}
	q.Set("token", token)
	return strings.TrimRight(e.BaseURL, "/") + path + "?" + q.Encode()
}
