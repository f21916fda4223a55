package gatewaysvc

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// clientConn adapts a server-side websocket connection to
// clienthub.Sender, serializing writes through its own outbound queue so
// Fanout's concurrent deliveries never race on the socket (spec.md §5:
// "a single writer per client stream").
type clientConn struct {
	ws       *websocket.Conn
	logger   zerolog.Logger
	outbound chan []byte
	closed   chan struct{}
}

func newClientConn(ws *websocket.Conn, logger zerolog.Logger) *clientConn {
	ws.SetReadLimit(1 << 20)
	_ = ws.SetReadDeadline(time.Now().Add(clientPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(clientPongWait))
	})
	return &clientConn{
		ws:       ws,
		logger:   logger,
		outbound: make(chan []byte, 256),
		closed:   make(chan struct{}),
	}
}

// Send implements clienthub.Sender.
func (c *clientConn) Send(frame []byte) error {
	select {
	case <-c.closed:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case c.outbound <- frame:
		return nil
	case <-c.closed:
		return websocket.ErrCloseSent
	}
}

// Close tears down the connection. Idempotent.
func (c *clientConn) Close() {
	select {
	case <-c.closed:
		return
	default:
		close(c.closed)
	}
	_ = c.ws.Close()
}

func (c *clientConn) writePump() {
	ticker := time.NewTicker(clientPingPer)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case frame, ok := <-c.outbound:
			_ = c.ws.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(clientWriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
