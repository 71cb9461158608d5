package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/natthaphon/linkfeed/realtime"
)

var (
	// ErrAlreadyAttached is returned when Attach is called on a session
	// that already owns a live connection.
	ErrAlreadyAttached = errors.New("session already attached")
	// ErrNotAttached is returned by Send when the session has no
	// connection.
	ErrNotAttached = errors.New("session not attached")
)

// transport is the slice of realtime.Conn the session needs. Tests swap it
// for a fake.
type transport interface {
	Send(payload []byte) error
	Close()
}

// attachment tracks the liveness of one Attach/Detach cycle. A callback
// that fires after Detach observes alive == false and becomes a no-op,
// so a queued frame can never mutate a store its view no longer observes.
type attachment struct {
	alive atomic.Bool
}

// Session holds the ordered message list for one conversation. It merges
// REST-fetched history with socket-delivered live messages and exposes send.
// Messages are ordered by arrival, which is not guaranteed to equal true
// send order across the two peers.
//
// The session owns at most one connection at a time, and it alone holds the
// authority to close it. Detach must be called when the conversation view is
// torn down; leaking the connection leaks a socket.
type Session struct {
	friendID  int
	endpoint  realtime.Endpoint
	history   HistoryLoader
	logger    *slog.Logger
	now       func() time.Time
	onState   func(realtime.State)
	onMessage func(Message)
	dial      func(ctx context.Context, endpoint string, cb realtime.Callbacks) transport

	mu       sync.Mutex
	messages []Message
	conn     transport
	att      *attachment
}

type SessionOption func(*Session)

func WithEndpoint(endpoint realtime.Endpoint) SessionOption {
	return func(s *Session) {
		s.endpoint = endpoint
	}
}

func WithHistoryLoader(loader HistoryLoader) SessionOption {
	return func(s *Session) {
		s.history = loader
	}
}

func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithStateFunc registers a callback for connection state transitions, e.g.
// to surface a passive "disconnected" indicator.
func WithStateFunc(f func(realtime.State)) SessionOption {
	return func(s *Session) {
		s.onState = f
	}
}

// WithMessageFunc registers a callback invoked after each appended message,
// for consumers that render incrementally instead of polling Messages.
func WithMessageFunc(f func(Message)) SessionOption {
	return func(s *Session) {
		s.onMessage = f
	}
}

// NewSession creates a session for the conversation with friendID.
func NewSession(friendID int, opts ...SessionOption) *Session {
	s := &Session{
		friendID: friendID,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dial == nil {
		s.dial = func(ctx context.Context, endpoint string, cb realtime.Callbacks) transport {
			return realtime.Dial(ctx, endpoint, cb, realtime.WithLogger(s.logger))
		}
	}
	return s
}

// FriendID returns the peer's user ID identifying this conversation.
func (s *Session) FriendID() int {
	return s.friendID
}

// LoadHistory fetches prior messages over REST and replaces the in-memory
// list with the result. Concurrent invocations are tolerated: whichever
// response arrives last wins.
func (s *Session) LoadHistory(ctx context.Context) error {
	if s.history == nil {
		return errors.New("no history loader configured")
	}
	history, err := s.history.ChatHistory(ctx, s.friendID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	s.mu.Lock()
	s.messages = slices.Clone(history)
	s.mu.Unlock()
	return nil
}

// Attach opens the conversation-scoped connection using the given
// credential. The credential is read once; after a logout/login transition
// the caller detaches and re-attaches with the fresh token.
func (s *Session) Attach(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return ErrAlreadyAttached
	}

	att := &attachment{}
	att.alive.Store(true)

	endpoint := s.endpoint.Chat(s.friendID, token)
	s.conn = s.dial(ctx, endpoint, realtime.Callbacks{
		OnOpen: func() {
			s.notifyState(realtime.StateOpen)
		},
		OnMessage: func(data []byte) {
			s.receive(att, data)
		},
		OnError: func(err error) {
			s.logger.Error(fmt.Sprintf("chat stream: %v", err))
			s.notifyState(realtime.StateErrored)
		},
		OnClose: func(err error) {
			s.notifyState(realtime.StateClosed)
		},
	})
	s.att = att
	return nil
}

// Send transmits text to the peer. Whitespace-only text is a no-op, not an
// error. There is no optimistic local append: the server echoes the message
// back over the same socket and the echo is the single source of appends.
func (s *Session) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	in := SendInput{Text: text, Receiver: s.friendID}
	if err := in.Validate(); err != nil {
		return fmt.Errorf("validate message: %w", err)
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotAttached
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return conn.Send(payload)
}

// Detach closes the underlying connection and invalidates the attachment so
// late callbacks are no-ops. It is safe to call more than once.
func (s *Session) Detach() {
	s.mu.Lock()
	conn := s.conn
	if s.att != nil {
		s.att.alive.Store(false)
	}
	s.conn = nil
	s.att = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Messages returns a snapshot of the ordered message list.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

// Len returns the number of messages currently held.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *Session) receive(att *attachment, data []byte) {
	if !att.alive.Load() {
		return
	}
	msg, err := decodeMessage(data, s.now)
	if err != nil {
		// Malformed frames are dropped, never fatal to the session.
		s.logger.Warn(fmt.Sprintf("dropping malformed frame: %v", err))
		return
	}

	s.mu.Lock()
	// Re-check under the lock: Detach may have won the race since the
	// callback fired.
	if !att.alive.Load() {
		s.mu.Unlock()
		return
	}
	if IsDuplicate(msg, s.messages) {
		s.mu.Unlock()
		s.logger.Debug("duplicate message dropped",
			slog.Int("sender", msg.Sender), slog.Int("receiver", msg.Receiver))
		return
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	if s.onMessage != nil {
		s.onMessage(msg)
	}
}

func (s *Session) notifyState(state realtime.State) {
	if s.onState != nil {
		s.onState(state)
	}
}
