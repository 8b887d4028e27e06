package client

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperate/hyperate-go/pkg/connection"
	"github.com/hyperate/hyperate-go/pkg/dispatch"
	"github.com/hyperate/hyperate-go/pkg/log"
	"github.com/hyperate/hyperate-go/pkg/transport"
)

// DefaultEndpoint is the production relay WebSocket endpoint.
const DefaultEndpoint = "wss://app.hyperate.io/socket/websocket"

// Config configures a Client. The zero value plus an APIToken is a
// working production configuration.
type Config struct {
	// Endpoint is the relay WebSocket URL (default DefaultEndpoint).
	Endpoint string

	// APIToken authenticates the session. Sent as the token query
	// parameter of the handshake URL. Surrounding whitespace is
	// stripped.
	APIToken string

	// ConnectTimeout bounds each connection attempt including the
	// initial keep-alive round trip (default 30s).
	ConnectTimeout time.Duration

	// MaxMessageSize limits inbound frames in bytes (default 64KB).
	MaxMessageSize int64

	// KeepAlive configures the liveness loop.
	KeepAlive KeepAliveConfig

	// Backoff configures the reconnection delay schedule.
	Backoff connection.BackoffConfig

	// DispatchQueueSize is the handler queue capacity (default 256).
	DispatchQueueSize int

	// Logger receives protocol log events. Nil disables logging.
	Logger log.Logger
}

// fileConfig mirrors Config for YAML decoding; durations are given in
// Go notation ("10s", "1m30s").
type fileConfig struct {
	Endpoint       string `yaml:"endpoint"`
	APIToken       string `yaml:"api_token"`
	ConnectTimeout string `yaml:"connect_timeout"`
	MaxMessageSize int64  `yaml:"max_message_size"`

	KeepAlive struct {
		Interval       string `yaml:"interval"`
		PongTimeout    string `yaml:"pong_timeout"`
		MaxMissedPongs int    `yaml:"max_missed_pongs"`
	} `yaml:"keepalive"`

	Backoff struct {
		Initial    string  `yaml:"initial"`
		Max        string  `yaml:"max"`
		Multiplier float64 `yaml:"multiplier"`
		Jitter     float64 `yaml:"jitter"`
	} `yaml:"backoff"`

	DispatchQueueSize int `yaml:"dispatch_queue_size"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg := Config{
		Endpoint:          fc.Endpoint,
		APIToken:          fc.APIToken,
		MaxMessageSize:    fc.MaxMessageSize,
		DispatchQueueSize: fc.DispatchQueueSize,
	}
	cfg.KeepAlive.MaxMissedPongs = fc.KeepAlive.MaxMissedPongs
	cfg.Backoff.Multiplier = fc.Backoff.Multiplier
	cfg.Backoff.Jitter = fc.Backoff.Jitter

	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"connect_timeout", fc.ConnectTimeout, &cfg.ConnectTimeout},
		{"keepalive.interval", fc.KeepAlive.Interval, &cfg.KeepAlive.Interval},
		{"keepalive.pong_timeout", fc.KeepAlive.PongTimeout, &cfg.KeepAlive.PongTimeout},
		{"backoff.initial", fc.Backoff.Initial, &cfg.Backoff.Initial},
		{"backoff.max", fc.Backoff.Max, &cfg.Backoff.Max},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse config %s: invalid %s: %w", path, d.name, err)
		}
		*d.dst = parsed
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	c.APIToken = strings.TrimSpace(c.APIToken)
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = transport.DefaultConnectTimeout
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = transport.DefaultMaxMessageSize
	}
	if c.KeepAlive.Interval <= 0 {
		c.KeepAlive.Interval = DefaultKeepAliveInterval
	}
	if c.KeepAlive.PongTimeout <= 0 {
		c.KeepAlive.PongTimeout = DefaultPongTimeout
	}
	if c.KeepAlive.MaxMissedPongs <= 0 {
		c.KeepAlive.MaxMissedPongs = DefaultMaxMissedPongs
	}
	if c.DispatchQueueSize <= 0 {
		c.DispatchQueueSize = dispatch.DefaultQueueSize
	}
	if c.Logger == nil {
		c.Logger = log.NoopLogger{}
	}
}

// connectURL builds the handshake URL with the token attached.
func (c *Config) connectURL() (string, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint: %w", err)
	}
	if c.APIToken != "" {
		q := u.Query()
		q.Set("token", c.APIToken)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
