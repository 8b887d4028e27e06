package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Transport defaults.
const (
	// DefaultConnectTimeout bounds the WebSocket handshake.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultMaxMessageSize is the maximum inbound frame size (64KB).
	// Relay envelopes are tiny; anything larger is a protocol error.
	DefaultMaxMessageSize = 64 * 1024
)

// Transport errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
)

// Config configures a transport client.
type Config struct {
	// Endpoint is the relay WebSocket URL (ws:// or wss://).
	Endpoint string

	// ConnectTimeout bounds the handshake (default DefaultConnectTimeout).
	ConnectTimeout time.Duration

	// MaxMessageSize limits inbound frames (default DefaultMaxMessageSize).
	MaxMessageSize int64

	// Header is sent with the handshake request (optional).
	Header http.Header
}

// Client dials WebSocket connections to the relay.
type Client struct {
	config Config
	dialer *websocket.Dialer
}

// NewClient creates a transport client for the given endpoint.
func NewClient(config Config) (*Client, error) {
	u, err := url.Parse(config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid endpoint scheme %q: want ws or wss", u.Scheme)
	}

	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = DefaultMaxMessageSize
	}

	return &Client{
		config: config,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.ConnectTimeout,
		},
	}, nil
}

// Connect opens one WebSocket connection. It blocks until the handshake
// completes, the timeout elapses, or ctx is cancelled.
//
// onClose, if non-nil, is invoked exactly once when the connection's
// receive loop terminates, with the reason. It fires for planned closes
// too, so the session always learns the connection is gone.
func (c *Client) Connect(ctx context.Context, onClose func(reason error)) (*Conn, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	ws, resp, err := c.dialer.DialContext(ctx, c.config.Endpoint, c.config.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (http %d)", c.config.Endpoint, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", c.config.Endpoint, err)
	}

	ws.SetReadLimit(c.config.MaxMessageSize)
	return newConn(ws, onClose), nil
}
