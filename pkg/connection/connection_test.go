package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	t.Run("GrowsTowardCap", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial:    100 * time.Millisecond,
			Max:        400 * time.Millisecond,
			Multiplier: 2.0,
			Jitter:     -1,
		})

		expected := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			400 * time.Millisecond, // stays at cap
		}
		for i, want := range expected {
			got := b.Next()
			assert.Equal(t, want, got, "delay %d", i)
		}
	})

	t.Run("JitterAppliedByDefault", func(t *testing.T) {
		// With 25% jitter every first delay lands in [0.75s, 1.25s],
		// and fresh schedules must not all agree on the same instant.
		delays := make([]time.Duration, 0, 8)
		for i := 0; i < 8; i++ {
			d := NewBackoff().Next()
			assert.GreaterOrEqual(t, d, 750*time.Millisecond)
			assert.LessOrEqual(t, d, 1250*time.Millisecond)
			delays = append(delays, d)
		}

		distinct := make(map[time.Duration]struct{}, len(delays))
		for _, d := range delays {
			distinct[d] = struct{}{}
		}
		assert.Greater(t, len(distinct), 1, "no jitter: all first delays identical")
	})

	t.Run("ZeroConfigGetsDefaultJitter", func(t *testing.T) {
		// A zero BackoffConfig must behave like NewBackoff, jitter
		// included.
		delays := make(map[time.Duration]struct{}, 8)
		for i := 0; i < 8; i++ {
			delays[NewBackoffWithConfig(BackoffConfig{}).Next()] = struct{}{}
		}
		assert.Greater(t, len(delays), 1, "zero config has no jitter")
	})

	t.Run("NegativeJitterDisables", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial: 100 * time.Millisecond,
			Jitter:  -1,
		})
		assert.Equal(t, 100*time.Millisecond, b.Next())
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial:    100 * time.Millisecond,
			Max:        time.Second,
			Multiplier: 2.0,
			Jitter:     -1,
		})

		for i := 0; i < 4; i++ {
			b.Next()
		}
		require.Equal(t, 4, b.Attempts())

		b.Reset()
		assert.Equal(t, 0, b.Attempts())
		assert.Equal(t, 100*time.Millisecond, b.Next())
	})
}

// testConfig keeps reconnect delays short enough for tests.
func testConfig() ManagerConfig {
	return ManagerConfig{
		Backoff: BackoffConfig{
			Initial:    10 * time.Millisecond,
			Max:        20 * time.Millisecond,
			Multiplier: 2.0,
			Jitter:     -1,
		},
		ConnectTimeout: time.Second,
	}
}

func TestManagerConnect(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		m := NewManager(func(ctx context.Context) error { return nil }, testConfig())
		defer m.Close()

		require.NoError(t, m.Connect(context.Background()))
		assert.Equal(t, StateConnected, m.State())
		assert.True(t, m.IsConnected())
	})

	t.Run("AlreadyConnected", func(t *testing.T) {
		m := NewManager(func(ctx context.Context) error { return nil }, testConfig())
		defer m.Close()

		require.NoError(t, m.Connect(context.Background()))
		assert.ErrorIs(t, m.Connect(context.Background()), ErrAlreadyConnected)
	})

	t.Run("FailureSchedulesReconnect", func(t *testing.T) {
		var calls atomic.Int32
		m := NewManager(func(ctx context.Context) error {
			if calls.Add(1) < 3 {
				return errors.New("refused")
			}
			return nil
		}, testConfig())
		defer m.Close()

		err := m.Connect(context.Background())
		require.Error(t, err)

		// Retries run in the background until the third attempt succeeds.
		require.Eventually(t, m.IsConnected, time.Second, 5*time.Millisecond)
		assert.Equal(t, int32(3), calls.Load())
		assert.Equal(t, 0, m.Attempts(), "backoff resets on success")
	})

	t.Run("ClosedManagerRefuses", func(t *testing.T) {
		m := NewManager(func(ctx context.Context) error { return nil }, testConfig())
		m.Close()

		assert.ErrorIs(t, m.Connect(context.Background()), ErrClosed)
	})
}

func TestManagerStateTransitions(t *testing.T) {
	var mu sync.Mutex
	var transitions []State

	fail := atomic.Bool{}
	fail.Store(true)

	m := NewManager(func(ctx context.Context) error {
		if fail.Load() {
			return errors.New("refused")
		}
		return nil
	}, testConfig())
	defer m.Close()

	m.OnStateChange(func(old, next State) {
		mu.Lock()
		transitions = append(transitions, next)
		mu.Unlock()
	})

	require.Error(t, m.Connect(context.Background()))
	fail.Store(false)
	require.Eventually(t, m.IsConnected, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateConnecting, StateReconnecting, StateConnecting, StateConnected}, transitions)
}

func TestManagerConnectionLost(t *testing.T) {
	m := NewManager(func(ctx context.Context) error { return nil }, testConfig())
	defer m.Close()

	require.NoError(t, m.Connect(context.Background()))

	m.ConnectionLost()
	require.Eventually(t, m.IsConnected, time.Second, 5*time.Millisecond)
}

func TestManagerConnectionLostDuringConnect(t *testing.T) {
	// A transport close can arrive while the connect attempt is still
	// being finalized. The loss must not be swallowed: the attempt has
	// to resolve to Reconnecting and schedule a retry instead of
	// settling on Connected with a dead connection.
	var mgr atomic.Pointer[Manager]
	var calls atomic.Int32

	cfg := testConfig()
	cfg.Backoff.Initial = 100 * time.Millisecond // keep the retry out of the first assertion
	cfg.Backoff.Max = 100 * time.Millisecond

	m := NewManager(func(ctx context.Context) error {
		if calls.Add(1) == 1 {
			mgr.Load().ConnectionLost()
		}
		return nil
	}, cfg)
	mgr.Store(m)
	defer m.Close()

	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, StateReconnecting, m.State(), "loss during connect was swallowed")

	// The retry runs in the background and succeeds.
	require.Eventually(t, m.IsConnected, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestManagerConnectionLostBeforeConnect(t *testing.T) {
	m := NewManager(func(ctx context.Context) error { return nil }, testConfig())
	defer m.Close()

	// No-op unless currently connected.
	m.ConnectionLost()
	assert.Equal(t, StateDisconnected, m.State())
}

func TestManagerClose(t *testing.T) {
	t.Run("CancelsBackoffWait", func(t *testing.T) {
		var calls atomic.Int32
		cfg := testConfig()
		cfg.Backoff.Initial = 10 * time.Second // long wait that Close must cancel
		cfg.Backoff.Max = 10 * time.Second

		m := NewManager(func(ctx context.Context) error {
			calls.Add(1)
			return errors.New("refused")
		}, cfg)

		require.Error(t, m.Connect(context.Background()))
		attemptsBefore := calls.Load()

		done := make(chan struct{})
		go func() {
			m.Close()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Close did not cancel the backoff wait")
		}

		assert.Equal(t, StateClosed, m.State())

		// No connect attempt after Close returned.
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, attemptsBefore, calls.Load())
	})

	t.Run("Idempotent", func(t *testing.T) {
		m := NewManager(func(ctx context.Context) error { return nil }, testConfig())
		m.Close()
		m.Close()
		assert.Equal(t, StateClosed, m.State())
	})

	t.Run("TerminalState", func(t *testing.T) {
		m := NewManager(func(ctx context.Context) error { return nil }, testConfig())
		require.NoError(t, m.Connect(context.Background()))
		m.Close()

		m.ConnectionLost()
		assert.Equal(t, StateClosed, m.State())
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "DISCONNECTED", StateDisconnected.String())
	assert.Equal(t, "CONNECTING", StateConnecting.String())
	assert.Equal(t, "CONNECTED", StateConnected.String())
	assert.Equal(t, "RECONNECTING", StateReconnecting.String())
	assert.Equal(t, "CLOSED", StateClosed.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}
