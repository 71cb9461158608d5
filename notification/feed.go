package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/natthaphon/linkfeed/realtime"
)

// ActivityType classifies the backend event a notification reports.
type ActivityType string

const (
	PostCreated   ActivityType = "post_created"
	PostLiked     ActivityType = "post_liked"
	PostCommented ActivityType = "post_commented"
	PollCreated   ActivityType = "poll_created"
	PollVoted     ActivityType = "poll_voted"
)

// frameType is the only inbound frame type the feed acts on; frames with
// other type values are ignored.
const frameType = "activity_notification"

// Notification is one activity event delivered over the notification
// stream. IsNew flips to false when the user opens the panel and never
// flips back within a session.
type Notification struct {
	ID           int          `json:"id"`
	Message      string       `json:"message"`
	ActivityType ActivityType `json:"activity_type"`
	Timestamp    time.Time    `json:"timestamp"`
	IsNew        bool         `json:"is_new"`
}

type wireNotification struct {
	Type         string       `json:"type"`
	ID           int          `json:"id"`
	Message      string       `json:"message"`
	ActivityType ActivityType `json:"activity_type"`
	Timestamp    string       `json:"timestamp"`
}

// DefaultCap bounds the retained notifications when no cap is configured.
const DefaultCap = 200

type transport interface {
	Send(payload []byte) error
	Close()
}

type attachment struct {
	alive atomic.Bool
}

// Feed holds an ordered, capped list of activity notifications, most recent
// first, and tracks whether any of them are unread. It is attached once to
// the authenticated user's notification stream and lives for the lifetime
// of the app shell, independent of any open chat session.
type Feed struct {
	endpoint realtime.Endpoint
	logger   *slog.Logger
	cap      int
	retry    realtime.RetryPolicy
	now      func() time.Time
	onState  func(realtime.State)
	onNotify func(Notification)
	dial     func(ctx context.Context, endpoint string, cb realtime.Callbacks) transport

	mu     sync.Mutex
	items  []Notification
	unread bool
	conn   transport
	att    *attachment
}

type FeedOption func(*Feed)

func WithEndpoint(endpoint realtime.Endpoint) FeedOption {
	return func(f *Feed) {
		f.endpoint = endpoint
	}
}

func WithFeedLogger(logger *slog.Logger) FeedOption {
	return func(f *Feed) {
		f.logger = logger
	}
}

// WithCap bounds the feed to the most recent n notifications. The oldest
// entry is evicted in O(1) when the cap is exceeded.
func WithCap(n int) FeedOption {
	return func(f *Feed) {
		f.cap = n
	}
}

func WithRetryPolicy(policy realtime.RetryPolicy) FeedOption {
	return func(f *Feed) {
		f.retry = policy
	}
}

func WithFeedStateFunc(fn func(realtime.State)) FeedOption {
	return func(f *Feed) {
		f.onState = fn
	}
}

// WithNotifyFunc registers a callback invoked after each accepted
// notification, for consumers that render incrementally.
func WithNotifyFunc(fn func(Notification)) FeedOption {
	return func(f *Feed) {
		f.onNotify = fn
	}
}

// NewFeed creates an empty notification feed.
func NewFeed(opts ...FeedOption) *Feed {
	f := &Feed{
		logger: slog.Default(),
		cap:    DefaultCap,
		retry:  realtime.DefaultRetryPolicy(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.dial == nil {
		f.dial = func(ctx context.Context, endpoint string, cb realtime.Callbacks) transport {
			return realtime.Dial(ctx, endpoint, cb,
				realtime.WithLogger(f.logger), realtime.WithRetry(f.retry))
		}
	}
	return f
}

// Attach opens the user-scoped notification stream using the given
// credential. Unlike a chat session the stream reconnects on transport
// failure, because it is expected to outlive network blips.
func (f *Feed) Attach(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		return fmt.Errorf("feed already attached")
	}

	att := &attachment{}
	att.alive.Store(true)

	f.conn = f.dial(ctx, f.endpoint.Notifications(token), realtime.Callbacks{
		OnOpen: func() {
			f.notifyState(realtime.StateOpen)
		},
		OnMessage: func(data []byte) {
			f.receive(att, data)
		},
		OnError: func(err error) {
			f.logger.Error(fmt.Sprintf("notification stream: %v", err))
			f.notifyState(realtime.StateErrored)
		},
		OnClose: func(err error) {
			f.notifyState(realtime.StateClosed)
		},
	})
	f.att = att
	return nil
}

// Detach closes the underlying connection.
func (f *Feed) Detach() {
	f.mu.Lock()
	conn := f.conn
	if f.att != nil {
		f.att.alive.Store(false)
	}
	f.conn = nil
	f.att = nil
	f.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// MarkAllRead flips every notification's IsNew to false and clears the
// unread flag. It is idempotent.
func (f *Feed) MarkAllRead() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		f.items[i].IsNew = false
	}
	f.unread = false
}

// ClearAll empties the feed. It is only ever driven by an explicit user
// action.
func (f *Feed) ClearAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
	f.unread = false
}

// HasUnread reports whether any notification arrived since the last
// MarkAllRead.
func (f *Feed) HasUnread() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}

// Snapshot returns the notifications most recent first.
func (f *Feed) Snapshot() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.items)
}

// Len returns the number of retained notifications.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

func (f *Feed) receive(att *attachment, data []byte) {
	if !att.alive.Load() {
		return
	}
	var w wireNotification
	if err := json.Unmarshal(data, &w); err != nil {
		f.logger.Warn(fmt.Sprintf("dropping malformed frame: %v", err))
		return
	}
	if w.Type != frameType {
		return
	}

	ts := time.Time{}
	if w.Timestamp != "" {
		ts, _ = time.Parse(time.RFC3339, w.Timestamp)
	}
	if ts.IsZero() {
		ts = f.now()
	}

	n := Notification{
		ID:           w.ID,
		Message:      w.Message,
		ActivityType: w.ActivityType,
		Timestamp:    ts,
		IsNew:        true,
	}

	f.mu.Lock()
	if !att.alive.Load() {
		f.mu.Unlock()
		return
	}
	f.items = append([]Notification{n}, f.items...)
	if f.cap > 0 && len(f.items) > f.cap {
		f.items = f.items[:f.cap]
	}
	f.unread = true
	f.mu.Unlock()

	if f.onNotify != nil {
		f.onNotify(n)
	}
}

func (f *Feed) notifyState(state realtime.State) {
	if f.onState != nil {
		f.onState(state)
	}
}
