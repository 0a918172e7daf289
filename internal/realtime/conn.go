package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 32
)

// ErrConnClosed indicates a send against a connection whose pump has stopped.
var ErrConnClosed = errors.New("realtime: connection closed")

// Conn is a live bidirectional connection as seen by the registry, dispatcher,
// and gateway. The websocket implementation lives behind this interface so the
// engine is testable without a transport.
type Conn interface {
	// Send queues an outbound message. Best effort: a full buffer or closed
	// connection returns an error, which broadcast callers ignore.
	Send(msg Message) error
	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// WSConn adapts a gorilla websocket connection to Conn with a buffered send
// channel and a single writer pump, so concurrent broadcasts never interleave
// writes on the socket.
type WSConn struct {
	socket *websocket.Conn
	send   chan Message
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// NewWSConn wraps the websocket connection and starts its write pump.
func NewWSConn(socket *websocket.Conn, logger *zap.Logger) *WSConn {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn := &WSConn{
		socket: socket,
		send:   make(chan Message, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	// Read-side setup happens here, before either goroutine touches the
	// socket: gorilla groups these with the read methods, so they must not
	// run concurrently with the caller's ReadEnvelope loop.
	socket.SetReadLimit(maxMessageSize)
	_ = socket.SetReadDeadline(time.Now().Add(pongWait))
	socket.SetPongHandler(func(string) error {
		return socket.SetReadDeadline(time.Now().Add(pongWait))
	})
	go conn.writePump()
	return conn
}

// Send queues the message for the write pump without blocking. A slow consumer
// whose buffer is full loses the message rather than stalling a broadcast.
func (c *WSConn) Send(msg Message) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		c.logger.Warn("send buffer full, dropping message", zap.String("event", msg.Event))
		return ErrConnClosed
	}
}

// Close stops the write pump and closes the socket.
func (c *WSConn) Close() error {
	c.once.Do(func() {
		close(c.done)
	})
	return c.socket.Close()
}

// ReadEnvelope blocks for the next inbound frame. The caller owns the read
// loop; a returned error means the connection is gone.
func (c *WSConn) ReadEnvelope() (Envelope, error) {
	var envelope Envelope
	if err := c.socket.ReadJSON(&envelope); err != nil {
		return Envelope{}, err
	}
	return envelope, nil
}

func (c *WSConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(msg); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			_ = c.socket.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
