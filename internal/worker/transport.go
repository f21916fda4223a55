package worker

import (
	"fmt"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hackstrix/zeusgate/internal/wire"
)

// Keepalive/timeout constants for the worker-side stream, grounded on
// teranos/QNTX's server/client.go gorilla-websocket conventions.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB
)

// ErrNotConnected is returned by Send when the outbound stream to the
// worker is not open (spec.md §4.2).
var ErrNotConnected = errors.New("worker stream not connected")

// Conn is the gateway's bidirectional client connection to one worker's
// inner port. It owns a dedicated read goroutine and serializes writes
// through an outbound queue, the way the Router/Fanout split synchronizes
// only through the Supervisor's queues (spec.md §9).
type Conn struct {
	ws     *websocket.Conn
	logger zerolog.Logger

	outbound chan wire.Envelope
	events   chan<- wire.Envelope // forwarded to the Supervisor's event sink
	closed   chan struct{}
}

// Dial opens a websocket connection to the worker's inner health/stream
// port (spec.md §6, worker contract step 1) and starts its read/write
// pumps. events receives every frame the worker emits, in emission order.
func Dial(host string, port int, logger zerolog.Logger, events chan<- wire.Envelope) (*Conn, error) {
	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", host, port), Path: "/stream"}
	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "dial worker stream at %s", u.String())
	}

	c := &Conn{
		ws:       ws,
		logger:   logger,
		outbound: make(chan wire.Envelope, 256),
		events:   events,
		closed:   make(chan struct{}),
	}
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	return c, nil
}

// Send enqueues an envelope for delivery on the outbound stream
// (spec.md §4.2). Returns ErrNotConnected once the connection has closed.
func (c *Conn) Send(e wire.Envelope) error {
	select {
	case <-c.closed:
		return ErrNotConnected
	default:
	}
	select {
	case c.outbound <- e:
		return nil
	case <-c.closed:
		return ErrNotConnected
	}
}

// Close tears down the connection. Idempotent.
func (c *Conn) Close() {
	select {
	case <-c.closed:
		return
	default:
		close(c.closed)
	}
	_ = c.ws.Close()
}

// Done reports a channel that closes when the connection has terminated,
// whether by explicit Close or by the worker closing its side.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

func (c *Conn) readPump() {
	defer c.Close()
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		env, err := wire.Decode(raw)
		if err != nil {
			c.logger.Warn().Err(err).Msg("dropped malformed worker frame")
			continue
		}
		select {
		case c.events <- env:
		case <-c.closed:
			return
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case env, ok := <-c.outbound:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			raw, err := env.Bytes()
			if err != nil {
				c.logger.Warn().Err(err).Msg("failed to encode outbound frame")
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
