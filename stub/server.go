// Package stub implements a small development peer for the linkfeed client:
// the REST and websocket boundary the client consumes, backed by SQLite.
// It exists for integration tests and local development; the production
// backend is an external system.
package stub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/natthaphon/linkfeed/auth"
	"github.com/natthaphon/linkfeed/notification"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type ctxKey int

const claimsKey ctxKey = iota

// Server serves the stub backend: signup/login, chat history, and the two
// websocket streams.
type Server struct {
	store        *Store
	registry     *registry
	logger       *slog.Logger
	tokenOptions auth.TokenOptions
	upgrader     websocket.Upgrader
	router       chi.Router
	// baseCtx outlives individual requests; socket pumps and the writes
	// they trigger hang off it rather than the upgrade request's context.
	baseCtx context.Context
}

type ServerOption func(*Server)

func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithBaseContext(ctx context.Context) ServerOption {
	return func(s *Server) {
		s.baseCtx = ctx
	}
}

func NewServer(store *Store, tokenOptions auth.TokenOptions, opts ...ServerOption) *Server {
	s := &Server{
		store:        store,
		registry:     newRegistry(),
		logger:       slog.Default(),
		tokenOptions: tokenOptions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Delegate the check to CORS middleware.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Post("/api/auth/signup", s.signupHandler)
	r.Post("/api/auth/login", s.loginHandler)

	r.Group(func(r chi.Router) {
		r.Use(s.bearerAuth)
		r.Get("/api/friends/chat", s.historyHandler)
		r.Post("/api/activities", s.activityHandler)
	})

	r.Get("/ws/chat/{friendID}/", s.chatSocketHandler)
	r.Get("/ws/notifications/", s.notifySocketHandler)

	s.router = r
	return s
}

// Handler returns the HTTP handler to mount or serve.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close tears down every live socket.
func (s *Server) Close() {
	s.registry.closeAll()
}

type signupInput struct {
	Username string `json:"username" validate:"required,min=3"`
	Password string `json:"password" validate:"required,min=8"`
}

func (s *Server) signupHandler(w http.ResponseWriter, r *http.Request) {
	var in signupInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validate.Struct(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	id, err := s.store.CreateUser(r.Context(), in.Username, in.Password)
	if err != nil {
		if errors.Is(err, ErrConflictedUser) {
			writeError(w, http.StatusConflict, "username taken")
			return
		}
		s.logger.Error(fmt.Sprintf("create user: %v", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"id": id})
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var in auth.LoginInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	user, err := s.store.Authenticate(r.Context(), in.Username, in.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidUser) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.logger.Error(fmt.Sprintf("authenticate: %v", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, _, err := auth.SignToken(user.ID, user.Username, s.tokenOptions)
	if err != nil {
		s.logger.Error(fmt.Sprintf("sign token: %v", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// chatFrame is the wire shape of a delivered chat message.
type chatFrame struct {
	Sender    int    `json:"sender"`
	Receiver  int    `json:"receiver"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	friendID, err := strconv.Atoi(r.URL.Query().Get("friend_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid friend_id")
		return
	}

	messages, err := s.store.History(r.Context(), claims.UserID, friendID)
	if err != nil {
		s.logger.Error(fmt.Sprintf("history: %v", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	frames := make([]chatFrame, 0, len(messages))
	for _, m := range messages {
		frames = append(frames, chatFrame{
			Sender:    m.Sender,
			Receiver:  m.Receiver,
			Message:   m.Text,
			Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, frames)
}

type activityInput struct {
	ID           int                       `json:"id" validate:"required"`
	Message      string                    `json:"message" validate:"required"`
	ActivityType notification.ActivityType `json:"activity_type" validate:"required"`
}

// notifyFrame is the wire shape of a notification fan-out.
type notifyFrame struct {
	Type         string                    `json:"type"`
	ID           int                       `json:"id"`
	Message      string                    `json:"message"`
	ActivityType notification.ActivityType `json:"activity_type"`
	Timestamp    string                    `json:"timestamp"`
}

func (s *Server) activityHandler(w http.ResponseWriter, r *http.Request) {
	var in activityInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validate.Struct(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	payload, err := json.Marshal(notifyFrame{
		Type:         "activity_notification",
		ID:           in.ID,
		Message:      in.Message,
		ActivityType: in.ActivityType,
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.registry.broadcastNotify(payload)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) chatSocketHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.tokenQueryAuth(w, r)
	if !ok {
		return
	}
	friendID, err := strconv.Atoi(chi.URLParam(r, "friendID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation")
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error(fmt.Sprintf("upgrade: %v", err))
		return
	}

	sock := newSocket(ws, claims.UserID, s.logger)
	key := chatKey{owner: claims.UserID, friend: friendID}
	s.registry.addChat(key, sock)

	go sock.writeLoop()
	go func() {
		defer s.registry.removeChat(key, sock)
		sock.readLoop(func(data []byte) {
			s.handleChatFrame(sock, friendID, data)
		})
	}()
}

// handleChatFrame persists an inbound {message, receiver} frame, stamps it,
// and echoes it to both ends of the conversation — including the sender.
// The client deduplicates against that echo.
func (s *Server) handleChatFrame(sock *socket, friendID int, data []byte) {
	var in struct {
		Message  string `json:"message"`
		Receiver int    `json:"receiver"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		s.logger.Error(fmt.Sprintf("decode chat frame: %v", err))
		return
	}
	if strings.TrimSpace(in.Message) == "" {
		return
	}
	receiver := in.Receiver
	if receiver == 0 {
		receiver = friendID
	}

	now := time.Now().UTC()
	if err := s.store.SaveMessage(s.baseCtx, sock.userID, receiver, in.Message, now); err != nil {
		s.logger.Error(fmt.Sprintf("save message: %v", err))
		return
	}

	payload, err := json.Marshal(chatFrame{
		Sender:    sock.userID,
		Receiver:  receiver,
		Message:   in.Message,
		Timestamp: now.Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.Error(fmt.Sprintf("encode chat frame: %v", err))
		return
	}
	s.registry.deliverChat(sock.userID, receiver, payload)
}

func (s *Server) notifySocketHandler(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.tokenQueryAuth(w, r)
	if !ok {
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error(fmt.Sprintf("upgrade: %v", err))
		return
	}

	sock := newSocket(ws, claims.UserID, s.logger)
	s.registry.addNotify(claims.UserID, sock)

	go sock.writeLoop()
	go func() {
		defer s.registry.removeNotify(claims.UserID, sock)
		// The notification stream is one-way; inbound frames are ignored.
		sock.readLoop(nil)
	}()
}

// bearerAuth authenticates REST requests from the Authorization header.
func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		claims, err := auth.VerifyToken(token, s.tokenOptions)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// tokenQueryAuth authenticates websocket upgrades from the token query
// parameter, the only channel a browser WebSocket has for credentials.
func (s *Server) tokenQueryAuth(w http.ResponseWriter, r *http.Request) (*auth.UserClaims, bool) {
	claims, err := auth.VerifyToken(r.URL.Query().Get("token"), s.tokenOptions)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return nil, false
	}
	return claims, true
}
