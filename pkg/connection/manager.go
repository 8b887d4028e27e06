package connection

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Connection errors.
var (
	ErrClosed           = errors.New("connection manager closed")
	ErrAlreadyConnected = errors.New("already connected")
)

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection and no pending
	// reconnection attempt.
	StateDisconnected State = iota

	// StateConnecting indicates a connection attempt is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates a reconnection attempt is scheduled.
	StateReconnecting

	// StateClosed indicates the manager has been closed. Terminal.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ConnectFunc establishes a connection. It must not return until the
// connection is usable (for the relay session: WebSocket handshake
// done and the initial keep-alive round trip completed) or failed.
type ConnectFunc func(ctx context.Context) error

// ManagerConfig configures a connection manager.
type ManagerConfig struct {
	// Backoff is the reconnection delay schedule.
	Backoff BackoffConfig

	// ConnectTimeout bounds each reconnection attempt (default 30s).
	ConnectTimeout time.Duration
}

// Manager drives the connection state machine with automatic
// reconnection. All transitions happen under a single mutex.
type Manager struct {
	mu sync.RWMutex

	state          State
	backoff        *Backoff
	connectFn      ConnectFunc
	connectTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Coalesced reconnect trigger.
	reconnectCh chan struct{}

	// lost records a ConnectionLost that arrived while a connect
	// attempt was still being finalized, so the attempt does not
	// settle on Connected for a connection that is already gone.
	lost bool

	onStateChange  func(oldState, newState State)
	onReconnecting func(attempt int, delay time.Duration)
}

// NewManager creates a connection manager around connectFn.
func NewManager(connectFn ConnectFunc, cfg ManagerConfig) *Manager {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		state:          StateDisconnected,
		backoff:        NewBackoffWithConfig(cfg.Backoff),
		connectFn:      connectFn,
		connectTimeout: cfg.ConnectTimeout,
		ctx:            ctx,
		cancel:         cancel,
		reconnectCh:    make(chan struct{}, 1),
	}

	m.wg.Add(1)
	go m.reconnectLoop()

	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsConnected returns true if currently connected.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// OnStateChange sets a callback invoked after every state transition.
// Must be set before Connect. The callback runs while the manager lock
// is held so observers see transitions in order; it must not call back
// into the Manager.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// OnReconnecting sets a callback invoked before each backoff wait.
// Must be set before Connect.
func (m *Manager) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnecting = fn
}

// Connect performs the initial connection attempt. On failure the
// manager transitions to Reconnecting and keeps retrying in the
// background; the first attempt's error is returned so the caller can
// report it.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return ErrClosed
	case StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	case StateConnecting:
		m.mu.Unlock()
		return nil
	}
	m.lost = false
	m.transitionLocked(StateConnecting)
	m.mu.Unlock()

	err := m.connectFn(ctx)

	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		m.transitionLocked(StateReconnecting)
		m.mu.Unlock()
		m.triggerReconnect()
		return err
	}
	m.backoff.Reset()
	if m.lost {
		// The connection established and then died before the attempt
		// settled; go straight back to reconnecting.
		m.lost = false
		m.transitionLocked(StateReconnecting)
		m.mu.Unlock()
		m.triggerReconnect()
		return nil
	}
	m.transitionLocked(StateConnected)
	m.mu.Unlock()
	return nil
}

// ConnectionLost must be called when an established connection dies.
// It schedules reconnection. A loss reported while a connect attempt
// is still being finalized is remembered, and the attempt resolves to
// Reconnecting instead of Connected. No-op in any other state.
func (m *Manager) ConnectionLost() {
	m.mu.Lock()
	switch m.state {
	case StateConnecting:
		m.lost = true
		m.mu.Unlock()
		return
	case StateConnected:
	default:
		m.mu.Unlock()
		return
	}
	m.transitionLocked(StateReconnecting)
	m.mu.Unlock()

	m.triggerReconnect()
}

// Close shuts the manager down. Any backoff wait or in-flight
// reconnection attempt is cancelled promptly. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.transitionLocked(StateClosed)
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

// Attempts returns the reconnection attempt count since the last
// successful connection.
func (m *Manager) Attempts() int {
	return m.backoff.Attempts()
}

// transitionLocked changes state and fires the callback.
// Caller holds m.mu; the callback runs under the lock so observers see
// transitions in order.
func (m *Manager) transitionLocked(next State) {
	old := m.state
	if old == next {
		return
	}
	m.state = next
	if m.onStateChange != nil {
		m.onStateChange(old, next)
	}
}

func (m *Manager) triggerReconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
		// Already pending.
	}
}

func (m *Manager) reconnectLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.reconnectCh:
			m.attemptReconnect()
		}
	}
}

// attemptReconnect retries the connection until it succeeds, the
// manager is closed, or something else established a connection.
func (m *Manager) attemptReconnect() {
	for {
		m.mu.RLock()
		state := m.state
		onReconnecting := m.onReconnecting
		m.mu.RUnlock()

		if state != StateReconnecting {
			return
		}

		delay := m.backoff.Next()
		if onReconnecting != nil {
			onReconnecting(m.backoff.Attempts(), delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-m.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		m.mu.Lock()
		if m.state != StateReconnecting {
			m.mu.Unlock()
			return
		}
		m.lost = false
		m.transitionLocked(StateConnecting)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(m.ctx, m.connectTimeout)
		err := m.connectFn(ctx)
		cancel()

		m.mu.Lock()
		if m.state == StateClosed {
			m.mu.Unlock()
			return
		}
		if err == nil && !m.lost {
			m.backoff.Reset()
			m.transitionLocked(StateConnected)
			m.mu.Unlock()
			return
		}
		if err == nil {
			// Established and immediately lost; retry.
			m.backoff.Reset()
			m.lost = false
		}
		m.transitionLocked(StateReconnecting)
		m.mu.Unlock()
	}
}
