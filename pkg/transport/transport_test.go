package transport

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

// echoServer upgrades connections and echoes every text frame back.
type echoServer struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newEchoServer(t *testing.T) (*echoServer, *httptest.Server) {
	s := &echoServer{t: t}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, ws)
		s.mu.Unlock()

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
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *echoServer) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ws := range s.conns {
		ws.Close()
	}
	s.conns = nil
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestNewClient(t *testing.T) {
	t.Run("ValidEndpoint", func(t *testing.T) {
		_, err := NewClient(Config{Endpoint: "wss://app.hyperate.io/socket/websocket"})
		require.NoError(t, err)
	})

	t.Run("BadScheme", func(t *testing.T) {
		_, err := NewClient(Config{Endpoint: "https://app.hyperate.io"})
		assert.Error(t, err)
	})

	t.Run("BadURL", func(t *testing.T) {
		_, err := NewClient(Config{Endpoint: "://nope"})
		assert.Error(t, err)
	})
}

func TestConnSendReceive(t *testing.T) {
	_, srv := newEchoServer(t)

	client, err := NewClient(Config{Endpoint: wsURL(srv)})
	require.NoError(t, err)

	conn, err := client.Connect(context.Background(), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send([]byte(`{"topic":"phoenix"}`)))

	select {
	case frame := <-conn.Frames():
		assert.Equal(t, `{"topic":"phoenix"}`, string(frame))
	case <-time.After(time.Second):
		t.Fatal("no frame received")
	}
}

func TestConnRemoteClose(t *testing.T) {
	s, srv := newEchoServer(t)

	client, err := NewClient(Config{Endpoint: wsURL(srv)})
	require.NoError(t, err)

	closed := make(chan error, 1)
	conn, err := client.Connect(context.Background(), func(reason error) {
		closed <- reason
	})
	require.NoError(t, err)
	defer conn.Close()

	s.closeAll()

	// Frame channel terminates and the close notification fires.
	select {
	case _, ok := <-conn.Frames():
		assert.False(t, ok, "frame channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("frame channel did not close")
	}

	select {
	case reason := <-closed:
		assert.Error(t, reason)
	case <-time.After(time.Second):
		t.Fatal("onClose not invoked")
	}

	assert.Error(t, conn.CloseReason())
	assert.ErrorIs(t, conn.Send([]byte("x")), ErrConnectionClosed)
}

func TestConnLocalClose(t *testing.T) {
	_, srv := newEchoServer(t)

	client, err := NewClient(Config{Endpoint: wsURL(srv)})
	require.NoError(t, err)

	closed := make(chan error, 1)
	conn, err := client.Connect(context.Background(), func(reason error) {
		closed <- reason
	})
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close(), "Close is idempotent")

	select {
	case reason := <-closed:
		assert.ErrorIs(t, reason, ErrConnectionClosed)
	case <-time.After(time.Second):
		t.Fatal("onClose not invoked")
	}

	assert.ErrorIs(t, conn.Send([]byte("x")), ErrConnectionClosed)
}

func TestConnectTimeout(t *testing.T) {
	// A TCP listener that never answers the HTTP upgrade.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		Endpoint:       wsURL(srv),
		ConnectTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)

	start := time.Now()
	_, err = client.Connect(context.Background(), nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestConnectRefused(t *testing.T) {
	client, err := NewClient(Config{Endpoint: "ws://127.0.0.1:1/socket"})
	require.NoError(t, err)

	_, err = client.Connect(context.Background(), nil)
	assert.Error(t, err)
}
