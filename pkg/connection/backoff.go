package connection

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff defaults. Doubling from 1s capped at 30s, with up to 25%
// jitter so a relay restart does not see every client reconnect in the
// same instant.
const (
	// InitialBackoff is the initial reconnection delay.
	InitialBackoff = 1 * time.Second

	// MaxBackoff is the maximum reconnection delay.
	MaxBackoff = 30 * time.Second

	// BackoffMultiplier is the factor by which the delay grows.
	BackoffMultiplier = 2.0

	// JitterFactor is the randomization applied to each delay.
	JitterFactor = 0.25
)

// BackoffConfig allows customizing the reconnection delay schedule.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64

	// Jitter is the randomization applied to each delay. Zero selects
	// the default JitterFactor; a negative value disables jitter.
	Jitter float64
}

// Backoff produces reconnection delays. It wraps an exponential backoff
// with jitter and tracks the attempt count since the last reset.
type Backoff struct {
	mu sync.Mutex

	exp      *backoff.ExponentialBackOff
	attempts int
}

// NewBackoff creates a backoff with the default schedule.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(BackoffConfig{})
}

// NewBackoffWithConfig creates a backoff with a custom schedule.
// Zero fields fall back to the defaults.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	if cfg.Initial <= 0 {
		cfg.Initial = InitialBackoff
	}
	if cfg.Max <= 0 {
		cfg.Max = MaxBackoff
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = BackoffMultiplier
	}
	if cfg.Jitter == 0 {
		cfg.Jitter = JitterFactor
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.Initial
	exp.MaxInterval = cfg.Max
	exp.Multiplier = cfg.Multiplier
	exp.RandomizationFactor = cfg.Jitter
	// Retry forever; giving up is the session's decision, not the
	// schedule's.
	exp.MaxElapsedTime = 0
	exp.Reset()

	return &Backoff{exp: exp}
}

// Next returns the next delay and advances the schedule.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempts++
	return b.exp.NextBackOff()
}

// Reset restarts the schedule. Call after a successful connection has
// proven itself (first frame received).
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exp.Reset()
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}
