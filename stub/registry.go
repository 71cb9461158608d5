package stub

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// socket wraps one upgraded connection with an outbound queue and the
// read/write pump pair.
type socket struct {
	id        string
	userID    int
	ws        *websocket.Conn
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

func newSocket(ws *websocket.Conn, userID int, logger *slog.Logger) *socket {
	id := uuid.NewString()
	return &socket{
		id:     id,
		userID: userID,
		ws:     ws,
		out:    make(chan []byte, 16),
		done:   make(chan struct{}),
		logger: logger.With(slog.String("socket.id", id), slog.Int("user.id", userID)),
	}
}

// send queues a frame without blocking. A socket that cannot keep up is
// closed rather than allowed to stall the sender.
func (s *socket) send(payload []byte) {
	select {
	case s.out <- payload:
	case <-s.done:
	default:
		s.logger.Error("send queue full, closing socket")
		s.close()
	}
}

func (s *socket) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *socket) readLoop(onFrame func(data []byte)) {
	defer func() {
		s.close()
		s.ws.Close()
		s.logger.Debug("exited read loop")
	}()

	s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		s.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		mt, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug(fmt.Sprintf("expected close: %v", err))
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				s.logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			return
		}
		if mt != websocket.TextMessage {
			s.logger.Error(fmt.Sprintf("unexpected message format: %d", mt))
			continue
		}
		if onFrame != nil {
			onFrame(data)
		}
	}
}

func (s *socket) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.logger.Debug("exited write loop")
	}()

	for {
		select {
		case payload := <-s.out:
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.logger.Error(fmt.Sprintf("write message: %v", err))
				return
			}
		case <-ticker.C:
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Error(fmt.Sprintf("write ping: %v", err))
				return
			}
		case <-s.done:
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			s.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			s.ws.Close()
			return
		}
	}
}

// chatKey scopes a chat socket to one conversation as seen by its owner.
type chatKey struct {
	owner  int
	friend int
}

// registry tracks the live sockets. Chat sockets are conversation-scoped,
// notification sockets user-scoped.
type registry struct {
	mu       sync.Mutex
	chats    map[chatKey][]*socket
	notifies map[int][]*socket
}

func newRegistry() *registry {
	return &registry{
		chats:    make(map[chatKey][]*socket),
		notifies: make(map[int][]*socket),
	}
}

func (r *registry) addChat(key chatKey, s *socket) {
	r.mu.Lock()
	r.chats[key] = append(r.chats[key], s)
	r.mu.Unlock()
}

func (r *registry) removeChat(key chatKey, s *socket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.chats[key]
	idx := slices.Index(conns, s)
	if idx == -1 {
		return
	}
	conns = slices.Delete(conns, idx, idx+1)
	if len(conns) == 0 {
		delete(r.chats, key)
	} else {
		r.chats[key] = conns
	}
}

func (r *registry) addNotify(userID int, s *socket) {
	r.mu.Lock()
	r.notifies[userID] = append(r.notifies[userID], s)
	r.mu.Unlock()
}

func (r *registry) removeNotify(userID int, s *socket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conns := r.notifies[userID]
	idx := slices.Index(conns, s)
	if idx == -1 {
		return
	}
	conns = slices.Delete(conns, idx, idx+1)
	if len(conns) == 0 {
		delete(r.notifies, userID)
	} else {
		r.notifies[userID] = conns
	}
}

// deliverChat sends a frame to both ends of the conversation between a and
// b, including the sender's own sockets. The client relies on that echo.
func (r *registry) deliverChat(a, b int, payload []byte) {
	r.mu.Lock()
	targets := slices.Concat(r.chats[chatKey{a, b}], r.chats[chatKey{b, a}])
	r.mu.Unlock()
	for _, s := range targets {
		s.send(payload)
	}
}

// broadcastNotify fans a frame out to every connected notification socket.
func (r *registry) broadcastNotify(payload []byte) {
	r.mu.Lock()
	var targets []*socket
	for _, conns := range r.notifies {
		targets = append(targets, conns...)
	}
	r.mu.Unlock()
	for _, s := range targets {
		s.send(payload)
	}
}

// closeAll closes every registered socket. Used on server shutdown.
func (r *registry) closeAll() {
	r.mu.Lock()
	var targets []*socket
	for _, conns := range r.chats {
		targets = append(targets, conns...)
	}
	for _, conns := range r.notifies {
		targets = append(targets, conns...)
	}
	r.mu.Unlock()
	for _, s := range targets {
		s.close()
	}
}
