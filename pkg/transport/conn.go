package transport

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Conn is one established relay connection.
//
// Frames are received by a single internal loop and delivered on the
// Frames channel, which is closed when the connection terminates for
// any reason. Writes are serialized; the WebSocket protocol permits
// only one concurrent writer.
type Conn struct {
	ws *websocket.Conn

	frames  chan []byte
	onClose func(reason error)

	closeOnce sync.Once
	closeCh   chan struct{}
	writeMu   sync.Mutex

	reasonMu sync.Mutex
	reason   error
}

func newConn(ws *websocket.Conn, onClose func(reason error)) *Conn {
	c := &Conn{
		ws:      ws,
		frames:  make(chan []byte),
		onClose: onClose,
		closeCh: make(chan struct{}),
	}
	go c.receiveLoop()
	return c
}

// Frames returns the inbound frame channel. It is closed when the
// remote closes, a network error occurs, or Close is called. Receiving
// from it is the only way to consume inbound data; frames are never
// dropped.
func (c *Conn) Frames() <-chan []byte {
	return c.frames
}

// Send writes one text frame. Fails with ErrConnectionClosed after the
// connection has been closed locally or by the remote.
func (c *Conn) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}

	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	return nil
}

// Close tears the connection down. A close frame is attempted so the
// relay sees a clean shutdown. Idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)

		c.writeMu.Lock()
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}

// CloseReason returns why the receive loop ended, or nil while the
// connection is still alive. A planned Close reports ErrConnectionClosed.
func (c *Conn) CloseReason() error {
	c.reasonMu.Lock()
	defer c.reasonMu.Unlock()
	return c.reason
}

// receiveLoop is the sole reader. It terminates the frame sequence and
// fires the onClose notification when the connection dies.
func (c *Conn) receiveLoop() {
	var reason error
loop:
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			reason = err
			break
		}
		select {
		case c.frames <- data:
		case <-c.closeCh:
			reason = ErrConnectionClosed
			break loop
		}
	}

	select {
	case <-c.closeCh:
		// Planned close.
		reason = ErrConnectionClosed
	default:
	}

	c.reasonMu.Lock()
	c.reason = reason
	c.reasonMu.Unlock()

	close(c.frames)
	_ = c.ws.Close()

	if c.onClose != nil {
		c.onClose(reason)
	}
}
