package notification

import "fmt"

// TargetKind identifies what a notification navigates to.
type TargetKind int

const (
	// TargetNone means the notification has no destination.
	TargetNone TargetKind = iota
	TargetPost
	TargetPoll
)

// Target is a navigation destination: an anchor identifying a specific post
// or poll to scroll to.
type Target struct {
	Kind TargetKind
	ID   int
}

// ResolveTarget maps a notification's activity type to its destination.
// Post activities anchor to the post, poll activities to the poll, and
// anything else resolves to no navigation. Pure function, no side effects.
func ResolveTarget(n Notification) Target {
	switch n.ActivityType {
	case PostCreated, PostLiked, PostCommented:
		return Target{Kind: TargetPost, ID: n.ID}
	case PollCreated, PollVoted:
		return Target{Kind: TargetPoll, ID: n.ID}
	default:
		return Target{Kind: TargetNone}
	}
}

// Href renders the target as the frontend's fragment URL, or "" for
// TargetNone.
func (t Target) Href() string {
	switch t.Kind {
	case TargetPost:
		return fmt.Sprintf("/#post-%d", t.ID)
	case TargetPoll:
		return fmt.Sprintf("/poll#poll-%d", t.ID)
	default:
		return ""
	}
}
