package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hyperate/hyperate-go/pkg/connection"
	"github.com/hyperate/hyperate-go/pkg/device"
	"github.com/hyperate/hyperate-go/pkg/dispatch"
	"github.com/hyperate/hyperate-go/pkg/event"
	"github.com/hyperate/hyperate-go/pkg/log"
	"github.com/hyperate/hyperate-go/pkg/subscription"
	"github.com/hyperate/hyperate-go/pkg/transport"
	"github.com/hyperate/hyperate-go/pkg/wire"
)

// Client errors.
var (
	// ErrClosed is returned by operations on a stopped client.
	ErrClosed = errors.New("client closed")

	// ErrInvalidDeviceID is returned when a device identifier fails
	// validation.
	ErrInvalidDeviceID = errors.New("invalid device id")
)

type pendingOp uint8

const (
	opJoin pendingOp = iota
	opLeave
)

// pendingRequest tracks an outstanding join or leave awaiting its
// phx_reply.
type pendingRequest struct {
	op  pendingOp
	sub subscription.Subscription
}

// Client is a session with the HypeRate relay.
//
// Subscriptions are intents: they survive connection loss and are
// replayed on every reconnect. All methods are safe for concurrent use.
type Client struct {
	config Config
	logger log.Logger

	transport  *transport.Client
	registry   *subscription.Registry
	dispatcher *dispatch.Dispatcher
	manager    *connection.Manager

	refs atomic.Uint64

	// mu guards the per-connection state below. A new connection
	// attempt replaces connID; callbacks from older connections check
	// it and bail out.
	mu            sync.Mutex
	conn          *transport.Conn
	connID        string
	keepAlive     *keepAlive
	pending       map[uint64]pendingRequest
	firstPong     chan struct{}
	connectCancel context.CancelFunc

	wg sync.WaitGroup
}

// New creates a client. The connection is not opened until Start.
func New(config Config) (*Client, error) {
	config.applyDefaults()

	endpoint, err := config.connectURL()
	if err != nil {
		return nil, err
	}

	tc, err := transport.NewClient(transport.Config{
		Endpoint:       endpoint,
		ConnectTimeout: config.ConnectTimeout,
		MaxMessageSize: config.MaxMessageSize,
	})
	if err != nil {
		return nil, err
	}

	c := &Client{
		config:    config,
		logger:    config.Logger,
		transport: tc,
		registry:  subscription.NewRegistry(),
	}
	c.dispatcher = dispatch.NewDispatcher(config.DispatchQueueSize, c.dispatchError)
	c.manager = connection.NewManager(c.establish, connection.ManagerConfig{
		Backoff:        config.Backoff,
		ConnectTimeout: config.ConnectTimeout,
	})
	c.manager.OnStateChange(c.stateChanged)
	c.manager.OnReconnecting(c.reconnecting)

	return c, nil
}

// Start opens the connection and begins event delivery. On failure the
// client keeps retrying in the background with backoff; the first
// attempt's error is returned so the caller can report it.
func (c *Client) Start(ctx context.Context) error {
	c.dispatcher.Start()

	err := c.manager.Connect(ctx)
	if errors.Is(err, connection.ErrClosed) {
		return ErrClosed
	}
	return err
}

// Stop ends the session: the connection is closed, reconnection stops,
// and registered handlers receive no further events once Stop returns.
// Safe to call from any state; idempotent.
func (c *Client) Stop() {
	c.manager.Close()

	c.mu.Lock()
	if c.connectCancel != nil {
		c.connectCancel()
	}
	conn := c.conn
	c.conn = nil
	if c.keepAlive != nil {
		c.keepAlive.Stop()
		c.keepAlive = nil
	}
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()
	c.dispatcher.Stop()
}

// State returns the current connection state.
func (c *Client) State() connection.State {
	return c.manager.State()
}

// SubscribeHeartbeat subscribes to a device's heartbeat channel. The
// intent is recorded immediately; if connected, the join is sent now,
// otherwise on the next (re)connect.
func (c *Client) SubscribeHeartbeat(deviceID string) error {
	if !device.IsValidDeviceID(deviceID) {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceID, deviceID)
	}
	return c.subscribe(subscription.Heartbeat(deviceID))
}

// SubscribeClip subscribes to a device's clip notification channel.
func (c *Client) SubscribeClip(deviceID string) error {
	if !device.IsValidDeviceID(deviceID) {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceID, deviceID)
	}
	return c.subscribe(subscription.Clip(deviceID))
}

// Unsubscribe drops a subscription. If connected, a leave frame is
// sent. Unsubscribing a channel that was never subscribed is a no-op.
func (c *Client) Unsubscribe(sub subscription.Subscription) error {
	if c.manager.State() == connection.StateClosed {
		return ErrClosed
	}
	if !c.registry.Remove(sub) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.manager.IsConnected() {
		return nil
	}
	return c.sendLeaveLocked(c.conn, sub)
}

// UnsubscribeHeartbeat drops a device's heartbeat subscription.
func (c *Client) UnsubscribeHeartbeat(deviceID string) error {
	return c.Unsubscribe(subscription.Heartbeat(deviceID))
}

// UnsubscribeClip drops a device's clip subscription.
func (c *Client) UnsubscribeClip(deviceID string) error {
	return c.Unsubscribe(subscription.Clip(deviceID))
}

// Subscriptions returns the current subscription intents in the order
// they were added.
func (c *Client) Subscriptions() []subscription.Subscription {
	return c.registry.Snapshot()
}

// On registers a handler for a category of events. The returned handle
// unregisters it via Off. Handlers run on the dispatch goroutine in
// registration order.
func (c *Client) On(category event.Category, fn dispatch.HandlerFunc) dispatch.Handle {
	return c.dispatcher.Register(category, "", fn)
}

// OnChannel registers a handler restricted to events of one device.
func (c *Client) OnChannel(category event.Category, deviceID string, fn dispatch.HandlerFunc) dispatch.Handle {
	return c.dispatcher.Register(category, deviceID, fn)
}

// Off removes a handler registration. Returns false if the handle is
// unknown.
func (c *Client) Off(handle dispatch.Handle) bool {
	return c.dispatcher.Unregister(handle)
}

func (c *Client) subscribe(sub subscription.Subscription) error {
	if c.manager.State() == connection.StateClosed {
		return ErrClosed
	}
	c.registry.Add(sub)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.manager.IsConnected() {
		// Joined when the connection comes up.
		return nil
	}
	return c.sendJoinLocked(c.conn, sub)
}

// establish performs one full connection attempt: dial, initial
// keep-alive round trip, subscription replay, keep-alive start. It is
// the manager's ConnectFunc and only returns nil once the connection
// has proven itself.
func (c *Client) establish(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	connID := uuid.NewString()

	c.mu.Lock()
	c.connectCancel = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.connectCancel = nil
		c.mu.Unlock()
	}()

	c.logConnection(connID, "dialing", nil)

	conn, err := c.transport.Connect(ctx, func(reason error) {
		c.connectionClosed(connID, reason)
	})
	if err != nil {
		c.logConnection(connID, "dial failed", err)
		return err
	}

	firstPong := make(chan struct{}, 1)
	ka := newKeepAlive(c.config.KeepAlive,
		func() (uint64, error) { return c.sendKeepAlive(connID, conn) },
		func() { c.keepAliveTimeout(connID) },
	)

	c.mu.Lock()
	c.conn = conn
	c.connID = connID
	c.keepAlive = ka
	c.pending = make(map[uint64]pendingRequest)
	c.firstPong = firstPong
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(conn, connID)

	// The handshake alone proves nothing; require one keep-alive
	// round trip before the connection counts as established.
	if _, err := c.sendKeepAlive(connID, conn); err != nil {
		_ = conn.Close()
		return fmt.Errorf("initial keep-alive: %w", err)
	}

	timer := time.NewTimer(c.config.KeepAlive.PongTimeout)
	defer timer.Stop()
	select {
	case <-firstPong:
	case <-timer.C:
		_ = conn.Close()
		return errors.New("initial keep-alive: no reply within timeout")
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	}

	if err := c.replaySubscriptions(conn); err != nil {
		_ = conn.Close()
		return err
	}

	ka.Start()

	// Stop may have raced this attempt; if it cancelled us before this
	// point it did not see the connection yet, so tear down here.
	select {
	case <-ctx.Done():
		ka.Stop()
		_ = conn.Close()
		return ctx.Err()
	default:
	}

	c.logConnection(connID, "established", nil)
	return nil
}

// replaySubscriptions sends one join per registered intent, in
// registration order.
func (c *Client) replaySubscriptions(conn *transport.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.registry.Snapshot() {
		if err := c.sendJoinLocked(conn, sub); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) readLoop(conn *transport.Conn, connID string) {
	defer c.wg.Done()
	for data := range conn.Frames() {
		c.handleFrame(connID, data)
	}
}

// connectionClosed is the transport's close notification. It tears
// down the per-connection state and hands control to the reconnection
// state machine. Notifications from superseded connections are ignored.
func (c *Client) connectionClosed(connID string, reason error) {
	c.mu.Lock()
	if c.connID != connID {
		c.mu.Unlock()
		return
	}
	if c.keepAlive != nil {
		c.keepAlive.Stop()
		c.keepAlive = nil
	}
	c.conn = nil
	c.firstPong = nil
	c.pending = nil
	c.mu.Unlock()

	c.logConnection(connID, "connection lost", reason)
	c.manager.ConnectionLost()
}

// keepAliveTimeout fires when the relay stopped answering pings. The
// socket may still look open; drop it so reconnection starts.
func (c *Client) keepAliveTimeout(connID string) {
	c.mu.Lock()
	if c.connID != connID || c.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.mu.Unlock()

	c.logConnection(connID, "keep-alive timeout", nil)
	c.dispatcher.Dispatch(event.Error{Op: "keep-alive timeout"})
	_ = conn.Close()
}

func (c *Client) handleFrame(connID string, data []byte) {
	pkt, err := wire.Decode(data)
	if err != nil {
		// Malformed frames are reported; the connection stays up.
		c.log(log.Event{
			ConnectionID: connID,
			Direction:    log.DirectionIn,
			Category:     log.CategoryError,
			Err:          err.Error(),
			Size:         len(data),
		})
		c.dispatcher.Dispatch(event.Error{Op: "decode frame", Err: err})
		return
	}

	c.log(log.Event{
		ConnectionID: connID,
		Direction:    log.DirectionIn,
		Category:     log.CategoryFrame,
		Topic:        pkt.Topic,
		FrameEvent:   pkt.Event,
		Size:         len(data),
	})

	switch {
	case pkt.Topic == wire.TopicPhoenix:
		// Keep-alive replies; the relay sometimes omits the event
		// field on these.
		if pkt.IsReply() || pkt.Event == "" {
			c.pongReceived(connID, pkt.RefValue())
		}
	case pkt.IsReply():
		c.handleReply(connID, pkt)
	case pkt.Event == wire.EventError || pkt.Event == wire.EventClose:
		c.handleChannelDown(pkt)
	case wire.IsHeartbeatTopic(pkt.Topic):
		c.handleHeartbeatPush(pkt)
	case wire.IsClipsTopic(pkt.Topic):
		c.handleClipPush(pkt)
	default:
		// Unknown topic; ignore for forward compatibility.
	}
}

func (c *Client) pongReceived(connID string, ref uint64) {
	c.mu.Lock()
	if c.connID != connID {
		c.mu.Unlock()
		return
	}
	ka := c.keepAlive
	firstPong := c.firstPong
	c.mu.Unlock()

	if firstPong != nil {
		select {
		case firstPong <- struct{}{}:
		default:
		}
	}
	if ka != nil {
		ka.PongReceived(ref)
	}
	c.dispatcher.Dispatch(event.Pong{Timestamp: time.Now()})
}

// handleReply resolves a channel phx_reply against the outstanding
// join/leave it answers.
func (c *Client) handleReply(connID string, pkt *wire.Packet) {
	c.mu.Lock()
	var req pendingRequest
	var ok bool
	if c.connID == connID && c.pending != nil {
		req, ok = c.pending[pkt.RefValue()]
		if ok {
			delete(c.pending, pkt.RefValue())
		}
	}
	c.mu.Unlock()
	if !ok {
		// Reply to a request from a superseded connection.
		return
	}

	reply, err := wire.ParseReply(pkt)
	if err != nil {
		c.dispatcher.Dispatch(event.Error{Op: "parse reply", Err: err})
		return
	}

	switch {
	case reply.OK() && req.op == opJoin:
		c.dispatcher.Dispatch(event.ChannelJoined{DeviceID: req.sub.ID, Topic: pkt.Topic})
	case reply.OK():
		c.dispatcher.Dispatch(event.ChannelLeft{DeviceID: req.sub.ID, Topic: pkt.Topic})
	default:
		reason := reply.Response.Reason
		if reason == "" {
			reason = "rejected"
		}
		c.dispatcher.Dispatch(event.ChannelError{DeviceID: req.sub.ID, Topic: pkt.Topic, Reason: reason})
	}
}

// handleChannelDown maps a relay-initiated phx_error or phx_close to a
// channel error. The intent stays registered, so the join is retried on
// the next reconnect.
func (c *Client) handleChannelDown(pkt *wire.Packet) {
	sub, ok := subscription.FromTopic(pkt.Topic)
	if !ok {
		return
	}
	c.dispatcher.Dispatch(event.ChannelError{DeviceID: sub.ID, Topic: pkt.Topic, Reason: pkt.Event})
}

func (c *Client) handleHeartbeatPush(pkt *wire.Packet) {
	payload, ok, err := wire.ParseHeartbeat(pkt)
	if err != nil {
		c.dispatcher.Dispatch(event.Error{Op: "parse heartbeat", Err: err})
		return
	}
	if !ok {
		return
	}
	_, id, _ := wire.SplitTopic(pkt.Topic)
	c.dispatcher.Dispatch(event.Heartbeat{DeviceID: id, BPM: payload.HR, Timestamp: time.Now()})
}

func (c *Client) handleClipPush(pkt *wire.Packet) {
	payload, ok, err := wire.ParseClip(pkt)
	if err != nil {
		c.dispatcher.Dispatch(event.Error{Op: "parse clip", Err: err})
		return
	}
	if !ok {
		return
	}
	_, id, _ := wire.SplitTopic(pkt.Topic)
	c.dispatcher.Dispatch(event.Clip{DeviceID: id, TwitchSlug: payload.TwitchSlug, Timestamp: time.Now()})
}

// sendJoinLocked sends a join for sub and records the pending ref.
// Caller holds c.mu with c.conn and c.pending live.
func (c *Client) sendJoinLocked(conn *transport.Conn, sub subscription.Subscription) error {
	return c.sendRequestLocked(conn, sub, opJoin)
}

// sendLeaveLocked sends a leave for sub and records the pending ref.
// Caller holds c.mu with c.conn and c.pending live.
func (c *Client) sendLeaveLocked(conn *transport.Conn, sub subscription.Subscription) error {
	return c.sendRequestLocked(conn, sub, opLeave)
}

func (c *Client) sendRequestLocked(conn *transport.Conn, sub subscription.Subscription, op pendingOp) error {
	ref := c.refs.Add(1)

	var frame []byte
	var err error
	name := wire.EventJoin
	if op == opLeave {
		name = wire.EventLeave
	}
	if op == opJoin {
		frame, err = wire.EncodeJoin(sub.Topic(), ref)
	} else {
		frame, err = wire.EncodeLeave(sub.Topic(), ref)
	}
	if err != nil {
		return err
	}

	c.log(log.Event{
		ConnectionID: c.connID,
		Direction:    log.DirectionOut,
		Category:     log.CategoryFrame,
		Topic:        sub.Topic(),
		FrameEvent:   name,
		Size:         len(frame),
	})

	if c.pending != nil {
		c.pending[ref] = pendingRequest{op: op, sub: sub}
	}
	if err := conn.Send(frame); err != nil {
		delete(c.pending, ref)
		sendErr := fmt.Errorf("send %s %s: %w", name, sub.Topic(), err)
		c.dispatcher.Dispatch(event.Error{Op: "send " + name, Err: err})
		return sendErr
	}
	return nil
}

// sendKeepAlive emits one ping on the phoenix topic and returns its ref.
func (c *Client) sendKeepAlive(connID string, conn *transport.Conn) (uint64, error) {
	ref := c.refs.Add(1)
	frame, err := wire.EncodeKeepAlive(ref)
	if err != nil {
		return 0, err
	}

	c.log(log.Event{
		ConnectionID: connID,
		Direction:    log.DirectionOut,
		Category:     log.CategoryKeepAlive,
		Topic:        wire.TopicPhoenix,
		FrameEvent:   wire.EventKeepAlive,
		Size:         len(frame),
	})

	if err := conn.Send(frame); err != nil {
		return 0, err
	}
	return ref, nil
}

// stateChanged is the manager's transition callback. It runs under the
// manager lock, so it must only log and enqueue.
func (c *Client) stateChanged(oldState, newState connection.State) {
	c.log(log.Event{
		Direction: log.DirectionLocal,
		Category:  log.CategoryConnection,
		State:     newState.String(),
		Detail:    "was " + oldState.String(),
	})
	c.dispatcher.Dispatch(event.StateChanged{Old: oldState, New: newState})
}

func (c *Client) reconnecting(attempt int, delay time.Duration) {
	c.log(log.Event{
		Direction: log.DirectionLocal,
		Category:  log.CategoryConnection,
		Detail:    fmt.Sprintf("reconnect attempt %d in %s", attempt, delay),
	})
}

// dispatchError receives handler failures and queue overflow reports
// from the dispatcher.
func (c *Client) dispatchError(e event.Error) {
	c.log(log.Event{
		Direction: log.DirectionLocal,
		Category:  log.CategoryError,
		Err:       e.Error(),
	})
}

func (c *Client) logConnection(connID, detail string, err error) {
	e := log.Event{
		ConnectionID: connID,
		Direction:    log.DirectionLocal,
		Category:     log.CategoryConnection,
		Detail:       detail,
	}
	if err != nil {
		e.Err = err.Error()
	}
	c.log(e)
}

func (c *Client) log(e log.Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	c.logger.Log(e)
}
