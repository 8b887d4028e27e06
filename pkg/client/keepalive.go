package client

import (
	"sync"
	"time"
)

// Keep-alive defaults.
const (
	// DefaultKeepAliveInterval is the default interval between
	// keep-alive pings on the phoenix topic.
	DefaultKeepAliveInterval = 10 * time.Second

	// DefaultPongTimeout is the default time to wait for the relay's
	// reply to a ping.
	DefaultPongTimeout = 5 * time.Second

	// DefaultMaxMissedPongs is the default number of consecutive
	// missed replies before the connection is declared dead.
	DefaultMaxMissedPongs = 2
)

// KeepAliveConfig configures liveness monitoring.
type KeepAliveConfig struct {
	// Interval is the time between pings.
	Interval time.Duration

	// PongTimeout is the time to wait for a reply to each ping.
	PongTimeout time.Duration

	// MaxMissedPongs is the number of consecutive missed replies
	// before the connection is considered dead.
	MaxMissedPongs int
}

// DetectionDelay returns the worst-case time to detect a dead
// connection with this configuration.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.Interval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

// keepAlive drives the liveness loop of one connection. sendPing emits
// a keep-alive frame and returns the ref it carried; replies are
// matched by ref through PongReceived. After MaxMissedPongs pings go
// unanswered, onTimeout fires once and the loop stops.
type keepAlive struct {
	config    KeepAliveConfig
	sendPing  func() (ref uint64, err error)
	onTimeout func()

	mu         sync.Mutex
	pendingRef uint64
	hasPending bool
	missed     int
	lastPing   time.Time
	lastPong   time.Time
	running    bool
	stopped    bool
	stopCh     chan struct{}

	pongCh chan uint64
}

func newKeepAlive(config KeepAliveConfig, sendPing func() (uint64, error), onTimeout func()) *keepAlive {
	if config.Interval <= 0 {
		config.Interval = DefaultKeepAliveInterval
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = DefaultPongTimeout
	}
	if config.MaxMissedPongs <= 0 {
		config.MaxMissedPongs = DefaultMaxMissedPongs
	}

	return &keepAlive{
		config:    config,
		sendPing:  sendPing,
		onTimeout: onTimeout,
		stopCh:    make(chan struct{}),
		pongCh:    make(chan uint64, 1),
	}
}

// Start begins the monitoring loop. The session completes the first
// ping/pong round trip itself before calling Start, so the loop sends
// its first ping one interval later.
func (ka *keepAlive) Start() {
	ka.mu.Lock()
	if ka.running || ka.stopped {
		ka.mu.Unlock()
		return
	}
	ka.running = true
	ka.mu.Unlock()

	go ka.loop()
}

// Stop ends monitoring, permanently: a stopped keep-alive cannot be
// restarted, so Stop racing Start never leaves a loop running.
// Idempotent.
func (ka *keepAlive) Stop() {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	if ka.stopped {
		return
	}
	ka.stopped = true
	ka.running = false
	close(ka.stopCh)
}

// PongReceived records a keep-alive reply carrying the given ref.
func (ka *keepAlive) PongReceived(ref uint64) {
	select {
	case ka.pongCh <- ref:
	default:
		// A pong is already queued; the loop will catch up.
	}
}

// MissedPongs returns the current consecutive miss count.
func (ka *keepAlive) MissedPongs() int {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.missed
}

func (ka *keepAlive) loop() {
	ticker := time.NewTicker(ka.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ka.stopCh:
			return
		case <-ticker.C:
			if dead := ka.handleTick(); dead {
				ka.onTimeout()
				return
			}
		case ref := <-ka.pongCh:
			ka.handlePong(ref)
		}
	}
}

// handleTick checks the pending ping for timeout and sends the next
// ping. Returns true once the miss limit is reached.
func (ka *keepAlive) handleTick() bool {
	ka.mu.Lock()
	if ka.hasPending {
		if time.Since(ka.lastPing) < ka.config.PongTimeout {
			// The outstanding ping is still within its reply window.
			// It must run out before another is sent, or a timeout
			// longer than the interval would never be able to elapse.
			ka.mu.Unlock()
			return false
		}
		ka.missed++
		ka.hasPending = false
		if ka.missed >= ka.config.MaxMissedPongs {
			ka.mu.Unlock()
			return true
		}
	}
	ka.mu.Unlock()

	ka.ping()
	return false
}

func (ka *keepAlive) ping() {
	ref, err := ka.sendPing()

	ka.mu.Lock()
	defer ka.mu.Unlock()
	if err != nil {
		// Send failed; the miss counter handles it on the next tick.
		ka.hasPending = false
		return
	}
	ka.pendingRef = ref
	ka.hasPending = true
	ka.lastPing = time.Now()
}

func (ka *keepAlive) handlePong(ref uint64) {
	ka.mu.Lock()
	defer ka.mu.Unlock()

	ka.lastPong = time.Now()
	if ka.hasPending && ref == ka.pendingRef {
		ka.hasPending = false
		ka.missed = 0
	}
	// A ref mismatch is a stale reply to an earlier ping; ignore it.
}
