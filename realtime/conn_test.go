package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsAddr(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func waitOrTimeout(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// echoServer upgrades every request and echoes text frames back until the
// client goes away.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestConnOpenAndEcho(t *testing.T) {
	server := echoServer(t)

	opened := make(chan struct{})
	received := make(chan []byte, 1)
	conn := Dial(context.Background(), wsAddr(server), Callbacks{
		OnOpen:    func() { close(opened) },
		OnMessage: func(data []byte) { received <- data },
	})
	defer conn.Close()

	waitOrTimeout(t, opened, "handshake")
	assert.Equal(t, StateOpen, conn.State())

	require.NoError(t, conn.Send([]byte(`{"message":"hi"}`)))
	select {
	case data := <-received:
		assert.JSONEq(t, `{"message":"hi"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestConnSendBeforeOpen(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	defer close(release)

	conn := Dial(context.Background(), wsAddr(server), Callbacks{})
	defer conn.Close()

	err := conn.Send([]byte("too early"))
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestConnCloseFiresOnCloseOnce(t *testing.T) {
	server := echoServer(t)

	opened := make(chan struct{})
	var (
		mu         sync.Mutex
		closeCalls int
	)
	done := make(chan struct{})
	conn := Dial(context.Background(), wsAddr(server), Callbacks{
		OnOpen: func() { close(opened) },
		OnClose: func(err error) {
			mu.Lock()
			closeCalls++
			mu.Unlock()
			close(done)
		},
	})

	waitOrTimeout(t, opened, "handshake")
	conn.Close()
	conn.Close()
	waitOrTimeout(t, done, "OnClose")

	mu.Lock()
	assert.Equal(t, 1, closeCalls)
	mu.Unlock()

	assert.Equal(t, StateClosed, conn.State())
	assert.ErrorIs(t, conn.Send([]byte("late")), ErrClosed)
}

func TestConnServerDropWithoutRetryIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.Close()
	}))
	t.Cleanup(server.Close)

	errored := make(chan struct{}, 1)
	done := make(chan struct{})
	conn := Dial(context.Background(), wsAddr(server), Callbacks{
		OnError: func(err error) {
			select {
			case errored <- struct{}{}:
			default:
			}
		},
		OnClose: func(err error) { close(done) },
	})
	defer conn.Close()

	waitOrTimeout(t, errored, "OnError")
	waitOrTimeout(t, done, "OnClose")
	assert.Equal(t, StateClosed, conn.State())
}

func TestConnReconnectsWithRetry(t *testing.T) {
	var (
		mu    sync.Mutex
		conns int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		conns++
		first := conns == 1
		mu.Unlock()
		if first {
			// Drop the first session right away to force a redial.
			ws.Close()
			return
		}
		defer ws.Close()
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	opens := make(chan struct{}, 4)
	received := make(chan []byte, 1)
	conn := Dial(context.Background(), wsAddr(server), Callbacks{
		OnOpen:    func() { opens <- struct{}{} },
		OnMessage: func(data []byte) { received <- data },
	}, WithRetry(RetryPolicy{
		Base:        10 * time.Millisecond,
		Jitter:      time.Millisecond,
		Cap:         100 * time.Millisecond,
		MaxAttempts: 5,
	}))
	defer conn.Close()

	waitOrTimeout(t, opens, "first handshake")
	waitOrTimeout(t, opens, "reconnect handshake")

	// The reopened transport must carry traffic again.
	require.NoError(t, conn.Send([]byte("back")))
	select {
	case data := <-received:
		assert.Equal(t, "back", string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo after reconnect")
	}
}

func TestConnDialFailureWithoutRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	done := make(chan struct{})
	var closeErr error
	conn := Dial(context.Background(), wsAddr(server), Callbacks{
		OnClose: func(err error) {
			closeErr = err
			close(done)
		},
	})
	defer conn.Close()

	waitOrTimeout(t, done, "OnClose")
	assert.Error(t, closeErr)
}
