package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
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

// State represents the lifecycle state of a connection.
// It is owned by the Conn; consumers observe transitions through callbacks.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

var (
	// ErrNotReady is returned by Send when the transport handshake has not
	// completed yet. The caller decides whether to drop or retry.
	ErrNotReady = errors.New("connection not ready")
	// ErrClosed is returned by Send after the connection has been closed.
	ErrClosed = errors.New("connection closed")
)

// Callbacks are invoked serially from the connection's main goroutine.
// A nil field is simply skipped.
type Callbacks struct {
	// OnOpen fires after each successful handshake, including the one
	// following a reconnect.
	OnOpen func()
	// OnMessage fires once per inbound text frame with the raw payload.
	OnMessage func(data []byte)
	// OnError fires on a transport failure. The connection may still
	// reconnect afterwards if a retry policy is configured.
	OnError func(err error)
	// OnClose fires exactly once, when the connection is permanently done.
	OnClose func(err error)
}

// Conn is a handle to one logical stream. Each call to Dial owns exactly one
// live transport at a time; Close releases it. There is no pooling or
// multiplexing of multiple logical streams over one transport.
type Conn struct {
	id       string
	endpoint string
	cb       Callbacks
	dialer   *websocket.Dialer
	logger   *slog.Logger
	retry    *RetryPolicy

	state atomic.Int32
	// out carries payloads from Send to the write loop. It survives
	// reconnects so a send during a brief drop is not lost.
	out chan []byte
	// done is closed by Close to request transport shutdown.
	done      chan struct{}
	closeOnce sync.Once

	mu sync.Mutex
	ws *websocket.Conn
}

type Option func(*Conn)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		c.logger = logger
	}
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Conn) {
		c.dialer = dialer
	}
}

// WithRetry enables automatic reconnection with exponential backoff.
// Without it a transport failure is terminal, matching the behavior of
// a plain browser WebSocket.
func WithRetry(policy RetryPolicy) Option {
	return func(c *Conn) {
		c.retry = &policy
	}
}

// Dial opens a connection to endpoint. It is non-blocking: the returned
// handle is usable immediately and OnOpen fires asynchronously once the
// handshake completes. The endpoint must already embed any auth token as a
// query parameter; the connection does not manage credentials.
func Dial(ctx context.Context, endpoint string, cb Callbacks, opts ...Option) *Conn {
	c := &Conn{
		id:       uuid.NewString(),
		endpoint: endpoint,
		cb:       cb,
		dialer:   websocket.DefaultDialer,
		logger:   slog.Default(),
		out:      make(chan []byte, 16),
		done:     make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))

	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("conn.id", c.id))

	go c.run(ctx)
	return c
}

// ID returns the unique identifier of this handle.
func (c *Conn) ID() string {
	return c.id
}

// State reports the current connection state. It is a snapshot; callers that
// need transitions should use callbacks instead.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Send enqueues a text frame for delivery. It returns ErrNotReady before the
// handshake has completed and ErrClosed after Close.
func (c *Conn) Send(payload []byte) error {
	switch c.State() {
	case StateOpen:
	case StateClosed:
		return ErrClosed
	default:
		return ErrNotReady
	}
	select {
	case c.out <- payload:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Close requests transport shutdown. It is safe to call more than once and
// from any goroutine; OnClose still fires exactly once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.ws != nil {
			// Nudge the read loop out of NextReader.
			c.ws.SetReadDeadline(time.Now())
		}
		c.mu.Unlock()
	})
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// run owns the transport for the lifetime of the handle. All callbacks are
// invoked from this goroutine, so consumers observe them serially.
func (c *Conn) run(ctx context.Context) {
	var closeErr error
	defer func() {
		c.state.Store(int32(StateClosed))
		if c.cb.OnClose != nil {
			c.cb.OnClose(closeErr)
		}
		c.logger.Debug("connection done")
	}()

	for {
		ws, err := c.dial(ctx)
		if err != nil {
			c.state.Store(int32(StateErrored))
			if c.cb.OnError != nil && !c.closed() {
				c.cb.OnError(err)
			}
			if !c.closed() {
				closeErr = err
			}
			return
		}

		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()
		c.state.Store(int32(StateOpen))
		c.logger.Debug("connected", slog.String("endpoint", c.endpoint))
		if c.cb.OnOpen != nil {
			c.cb.OnOpen()
		}

		err = c.serve(ws)

		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()

		if c.closed() || ctx.Err() != nil {
			return
		}

		c.state.Store(int32(StateErrored))
		c.logger.Error(fmt.Sprintf("transport lost: %v", err))
		if c.cb.OnError != nil {
			c.cb.OnError(err)
		}
		if c.retry == nil {
			closeErr = err
			return
		}
		c.state.Store(int32(StateConnecting))
		// Loop around and redial the same endpoint.
	}
}

// serve pumps the transport until it fails or Close is called. The write
// loop runs on its own goroutine; callbacks only ever fire from the caller's
// goroutine.
func (c *Conn) serve(ws *websocket.Conn) error {
	sessionDone := make(chan struct{})
	defer close(sessionDone)

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- c.writeLoop(ws, sessionDone)
	}()

	err := c.readLoop(ws)
	select {
	case werr := <-writeErr:
		if werr != nil {
			return werr
		}
	default:
	}
	return err
}

func (c *Conn) readLoop(ws *websocket.Conn) error {
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug(fmt.Sprintf("expected close: %v", err))
				return err
			}
			if websocket.IsUnexpectedCloseError(err) {
				c.logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return err
			}
			return err
		}
		if mt != websocket.TextMessage {
			c.logger.Error(fmt.Sprintf("unexpected message format: %d", mt))
			continue
		}
		if c.closed() {
			return nil
		}
		if c.cb.OnMessage != nil {
			c.cb.OnMessage(data)
		}
	}
}

func (c *Conn) writeLoop(ws *websocket.Conn, sessionDone <-chan struct{}) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.out:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return fmt.Errorf("write message: %w", err)
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		case <-c.done:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			ws.Close()
			return nil
		case <-sessionDone:
			return nil
		}
	}
}
