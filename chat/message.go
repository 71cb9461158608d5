package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Message represents one chat message between two users. Messages are
// immutable once created; a session's list is append-only.
type Message struct {
	Sender   int    `json:"sender"`
	Receiver int    `json:"receiver"`
	Text     string `json:"message"`
	// Timestamp is the server stamp if the frame carried one, otherwise
	// the local wall clock at receipt.
	Timestamp time.Time `json:"timestamp"`
}

// SendInput represents the outbound frame shape. The server fills in sender
// and timestamp and echoes the message back over the same socket.
type SendInput struct {
	Text     string `json:"message" validate:"required"`
	Receiver int    `json:"receiver" validate:"required"`
}

// Validate validates the outbound message.
func (in *SendInput) Validate() error {
	return validate.Struct(in)
}

// wireMessage is the inbound frame shape. The timestamp travels as an
// ISO-8601 string and may be absent.
type wireMessage struct {
	Sender    int    `json:"sender"`
	Receiver  int    `json:"receiver"`
	Text      string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// decodeMessage parses an inbound frame. A missing or unparsable timestamp
// falls back to now.
func decodeMessage(data []byte, now func() time.Time) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	ts := time.Time{}
	if w.Timestamp != "" {
		ts, _ = time.Parse(time.RFC3339, w.Timestamp)
	}
	if ts.IsZero() {
		ts = now()
	}
	return Message{
		Sender:    w.Sender,
		Receiver:  w.Receiver,
		Text:      w.Text,
		Timestamp: ts,
	}, nil
}
