package chat

import "time"

// DedupWindow is how close two timestamps may be for otherwise identical
// messages to count as the same message.
const DedupWindow = time.Second

// IsDuplicate reports whether candidate is a duplicate of a message already
// in existing: same sender, same receiver, identical text, and timestamps
// within DedupWindow of each other (inclusive).
//
// This guards against the race where the sender's echoed copy and the
// broadcast copy of the same message both arrive. It is a heuristic, not a
// sequence-number scheme: two genuinely distinct identical messages sent
// within the window are indistinguishable and the second is dropped. The
// wire format carries no server-assigned message ID to key on.
func IsDuplicate(candidate Message, existing []Message) bool {
	for _, m := range existing {
		if m.Sender != candidate.Sender || m.Receiver != candidate.Receiver || m.Text != candidate.Text {
			continue
		}
		d := m.Timestamp.Sub(candidate.Timestamp)
		if d < 0 {
			d = -d
		}
		if d <= DedupWindow {
			return true
		}
	}
	return false
}
