package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsDuplicate(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	msg := func(sender, receiver int, text string, offset time.Duration) Message {
		return Message{Sender: sender, Receiver: receiver, Text: text, Timestamp: base.Add(offset)}
	}

	existing := []Message{
		msg(1, 2, "hi", 0),
		msg(2, 1, "hello", 5*time.Second),
	}

	tests := []struct {
		name      string
		candidate Message
		want      bool
	}{
		{
			name:      "exact match",
			candidate: msg(1, 2, "hi", 0),
			want:      true,
		},
		{
			name:      "within window after",
			candidate: msg(1, 2, "hi", 500*time.Millisecond),
			want:      true,
		},
		{
			name:      "within window before",
			candidate: msg(1, 2, "hi", -800*time.Millisecond),
			want:      true,
		},
		{
			name:      "exactly on the window boundary",
			candidate: msg(1, 2, "hi", time.Second),
			want:      true,
		},
		{
			name:      "just past the window",
			candidate: msg(1, 2, "hi", time.Second+time.Millisecond),
			want:      false,
		},
		{
			name:      "different text",
			candidate: msg(1, 2, "hi there", 0),
			want:      false,
		},
		{
			name:      "different sender",
			candidate: msg(3, 2, "hi", 0),
			want:      false,
		},
		{
			name:      "swapped direction",
			candidate: msg(2, 1, "hi", 0),
			want:      false,
		},
		{
			name:      "matches second entry",
			candidate: msg(2, 1, "hello", 5*time.Second+900*time.Millisecond),
			want:      true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDuplicate(tt.candidate, existing))
		})
	}
}

func TestIsDuplicateEmptyList(t *testing.T) {
	candidate := Message{Sender: 1, Receiver: 2, Text: "hi", Timestamp: time.Now()}
	assert.False(t, IsDuplicate(candidate, nil))
}
