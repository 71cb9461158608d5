// Package app wires the linkfeed client pieces into an application shell:
// configuration, logging, credential lifecycle, the long-lived notification
// feed, and per-conversation chat sessions.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/natthaphon/linkfeed/auth"
	"github.com/natthaphon/linkfeed/chat"
	"github.com/natthaphon/linkfeed/notification"
	"github.com/natthaphon/linkfeed/realtime"
)

var ErrNotLoggedIn = errors.New("not logged in")

// App is the authenticated shell. The notification feed attaches at login
// and runs for the shell's lifetime; chat sessions come and go with the
// conversations the user opens. Each session and the feed own exactly one
// connection, and the shell guarantees release of all of them on Close.
type App struct {
	config     *Config
	logger     *slog.Logger
	cred       *auth.Credential
	authClient *auth.Client
	endpoint   realtime.Endpoint
	feed       *notification.Feed
	feedOpts   []notification.FeedOption

	mu       sync.Mutex
	sessions map[int]*chat.Session
}

type Option func(*App)

func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithFeedOptions appends options to the notification feed the shell
// builds, e.g. a notify callback for incremental rendering.
func WithFeedOptions(opts ...notification.FeedOption) Option {
	return func(a *App) {
		a.feedOpts = append(a.feedOpts, opts...)
	}
}

// New builds the shell from config. Pass nil to load config from file and
// environment.
func New(config *Config, opts ...Option) (*App, error) {
	if config == nil {
		var err error
		config, err = LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	a := &App{
		config:   config,
		cred:     &auth.Credential{},
		sessions: make(map[int]*chat.Session),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = NewLogger()
	}

	a.authClient = &auth.Client{BaseURL: config.ServerURL}
	a.endpoint = realtime.Endpoint{BaseURL: config.WebSocketOrigin()}
	feedOpts := append([]notification.FeedOption{
		notification.WithEndpoint(a.endpoint),
		notification.WithFeedLogger(a.logger),
		notification.WithCap(config.NotificationCap),
		notification.WithRetryPolicy(config.RetryPolicy()),
	}, a.feedOpts...)
	a.feed = notification.NewFeed(feedOpts...)
	return a, nil
}

// NewLogger builds the default text logger.
func NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     slog.LevelDebug,
		AddSource: true,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.SourceKey {
				source, _ := attr.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return attr
		},
	}))
}

// Login signs in, stores the credential, and attaches the notification
// feed.
func (a *App) Login(ctx context.Context, username, password string) error {
	in := auth.LoginInput{Username: username, Password: password}
	if err := a.authClient.Login(ctx, in, a.cred); err != nil {
		return err
	}
	return a.feed.Attach(ctx, a.cred.Token())
}

// Logout detaches everything and clears the credential. A later Login
// re-attaches with the fresh token; live connections never adopt a new
// token in place.
func (a *App) Logout() {
	a.feed.Detach()
	a.mu.Lock()
	sessions := a.sessions
	a.sessions = make(map[int]*chat.Session)
	a.mu.Unlock()
	for _, s := range sessions {
		s.Detach()
	}
	a.authClient.Logout(a.cred)
}

// Feed returns the notification feed store.
func (a *App) Feed() *notification.Feed {
	return a.feed
}

// Identity returns the claims baked into the current credential.
func (a *App) Identity() (*auth.UserClaims, error) {
	if !a.cred.Valid() {
		return nil, ErrNotLoggedIn
	}
	return auth.InspectToken(a.cred.Token())
}

// OpenChat opens (or returns) the session for the conversation with
// friendID, loading history and attaching the live stream. Extra options
// only apply when the session is first created.
func (a *App) OpenChat(ctx context.Context, friendID int, opts ...chat.SessionOption) (*chat.Session, error) {
	if !a.cred.Valid() {
		return nil, ErrNotLoggedIn
	}

	a.mu.Lock()
	if s, ok := a.sessions[friendID]; ok {
		a.mu.Unlock()
		return s, nil
	}
	sessionOpts := append([]chat.SessionOption{
		chat.WithEndpoint(a.endpoint),
		chat.WithSessionLogger(a.logger),
		chat.WithHistoryLoader(&chat.HTTPHistoryLoader{
			BaseURL: a.config.ServerURL,
			Token:   a.cred.Token,
		}),
	}, opts...)
	s := chat.NewSession(friendID, sessionOpts...)
	a.sessions[friendID] = s
	a.mu.Unlock()

	if err := s.LoadHistory(ctx); err != nil {
		a.CloseChat(friendID)
		return nil, err
	}
	if err := s.Attach(ctx, a.cred.Token()); err != nil {
		a.CloseChat(friendID)
		return nil, err
	}
	return s, nil
}

// CloseChat detaches and forgets the session for friendID.
func (a *App) CloseChat(friendID int) {
	a.mu.Lock()
	s, ok := a.sessions[friendID]
	delete(a.sessions, friendID)
	a.mu.Unlock()
	if ok {
		s.Detach()
	}
}

// Close releases every connection the shell owns.
func (a *App) Close() {
	a.Logout()
}
