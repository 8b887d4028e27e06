package hyperate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperate/hyperate-go/pkg/client"
	"github.com/hyperate/hyperate-go/pkg/connection"
	"github.com/hyperate/hyperate-go/pkg/event"
)

// relay is a minimal in-process stand-in for the production relay: it
// answers keep-alives and joins, and can push heartbeats into joined
// channels.
type relay struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	connCh chan *relaySession
}

type relaySession struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	joinCh chan string
}

func newRelay(t *testing.T) *relay {
	r := &relay{connCh: make(chan *relaySession, 8)}
	r.server = httptest.NewServer(http.HandlerFunc(r.handle))
	t.Cleanup(r.server.Close)
	return r
}

func (r *relay) url() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http")
}

func (r *relay) handle(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	s := &relaySession{ws: ws, joinCh: make(chan string, 8)}
	select {
	case r.connCh <- s:
	default:
	}
	s.serve()
}

func (r *relay) next(t *testing.T) *relaySession {
	t.Helper()
	select {
	case s := <-r.connCh:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for connection")
		return nil
	}
}

func (s *relaySession) serve() {
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return
		}

		var pkt struct {
			Topic string  `json:"topic"`
			Event string  `json:"event"`
			Ref   *uint64 `json:"ref"`
		}
		if json.Unmarshal(data, &pkt) != nil {
			continue
		}

		switch {
		case pkt.Topic == "phoenix":
			s.reply("phoenix", pkt.Ref)
		case pkt.Event == "phx_join":
			s.reply(pkt.Topic, pkt.Ref)
			select {
			case s.joinCh <- pkt.Topic:
			default:
			}
		case pkt.Event == "phx_leave":
			s.reply(pkt.Topic, pkt.Ref)
		}
	}
}

func (s *relaySession) reply(topic string, ref *uint64) {
	s.send(map[string]any{
		"topic": topic, "event": "phx_reply",
		"payload": map[string]any{"status": "ok", "response": map[string]any{}},
		"ref":     ref,
	})
}

func (s *relaySession) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.ws.WriteMessage(websocket.TextMessage, data)
}

func (s *relaySession) pushHeartbeat(deviceID string, bpm int) {
	s.send(map[string]any{
		"topic":   "hr:" + deviceID,
		"event":   "hr_update",
		"payload": map[string]any{"hr": bpm},
	})
}

func (s *relaySession) awaitJoin(t *testing.T, topic string) {
	t.Helper()
	select {
	case got := <-s.joinCh:
		require.Equal(t, topic, got)
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for join of %s", topic)
	}
}

// TestSessionLifecycle drives a complete session: connect, subscribe,
// stream, survive a relay restart with automatic resubscription, and
// shut down cleanly.
func TestSessionLifecycle(t *testing.T) {
	r := newRelay(t)

	c, err := client.New(client.Config{
		Endpoint: r.url(),
		APIToken: "integration-token",
		KeepAlive: client.KeepAliveConfig{
			Interval:       150 * time.Millisecond,
			PongTimeout:    100 * time.Millisecond,
			MaxMissedPongs: 2,
		},
		Backoff: connection.BackoffConfig{
			Initial:    20 * time.Millisecond,
			Max:        50 * time.Millisecond,
			Multiplier: 2,
		},
	})
	require.NoError(t, err)

	var mu sync.Mutex
	var bpms []int
	var states []connection.State
	c.On(event.CategoryHeartbeat, func(evt event.Event) error {
		mu.Lock()
		bpms = append(bpms, evt.(event.Heartbeat).BPM)
		mu.Unlock()
		return nil
	})
	c.On(event.CategoryConnection, func(evt event.Event) error {
		mu.Lock()
		states = append(states, evt.(event.StateChanged).New)
		mu.Unlock()
		return nil
	})

	require.NoError(t, c.Start(context.Background()))
	require.Equal(t, connection.StateConnected, c.State())
	s1 := r.next(t)

	require.NoError(t, c.SubscribeHeartbeat("internal-testing"))
	s1.awaitJoin(t, "hr:internal-testing")

	s1.pushHeartbeat("internal-testing", 72)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bpms) == 1 && bpms[0] == 72
	}, 5*time.Second, 5*time.Millisecond)

	// Relay restart: the client reconnects and replays the join
	// without application involvement.
	_ = s1.ws.Close()
	s2 := r.next(t)
	s2.awaitJoin(t, "hr:internal-testing")
	require.Eventually(t, func() bool {
		return c.State() == connection.StateConnected
	}, 5*time.Second, 5*time.Millisecond)

	s2.pushHeartbeat("internal-testing", 84)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bpms) == 2 && bpms[1] == 84
	}, 5*time.Second, 5*time.Millisecond)

	c.Stop()
	require.Equal(t, connection.StateClosed, c.State())

	// The state stream saw the full journey.
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, connection.StateConnected)
	assert.Contains(t, states, connection.StateReconnecting)
	assert.Equal(t, connection.StateClosed, states[len(states)-1])
}
