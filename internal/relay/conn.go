package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"fleetrelay/internal/audit"
	"fleetrelay/internal/auth"
	"fleetrelay/internal/metrics"
	"fleetrelay/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 32
)

// Conn drives one client connection through the relay state machine:
// Connecting -> Authenticated -> Subscribed -> Closed. All inbound traffic is
// handled by a single read loop; all writes go through the send queue owned
// by the write pump.
type Conn struct {
	ID       string
	ws       *websocket.Conn
	registry *Registry
	auth     auth.Authenticator
	audit    *audit.Logger
	limiter  *rate.Limiter

	state   State
	session model.Session

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewConn(ws *websocket.Conn, reg *Registry, a auth.Authenticator, log *audit.Logger, limiter *rate.Limiter) *Conn {
	if log == nil {
		log = audit.Nop()
	}
	return &Conn{
		ID:       uuid.New().String(),
		ws:       ws,
		registry: reg,
		auth:     a,
		audit:    log,
		limiter:  limiter,
		state:    StateConnecting,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
	}
}

// Session returns the session established by the auth handshake. Zero until
// the connection reaches Authenticated.
func (c *Conn) Session() model.Session { return c.session }

// Run services the connection until the transport closes. It blocks; the
// caller owns the goroutine.
func (c *Conn) Run(ctx context.Context) {
	metrics.Connections.Inc()
	defer metrics.Connections.Dec()

	go c.writePump()
	c.readLoop(ctx)
	c.close()
}

// enqueue offers data to the send queue without blocking. A full queue or a
// closed connection drops the message; the caller decides whether that is an
// error.
func (c *Conn) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

func (c *Conn) reply(env Envelope) { c.enqueue(env.encode()) }

func (c *Conn) replyError(msg string) { c.reply(Envelope{Type: "error", Error: msg}) }

func (c *Conn) readLoop(ctx context.Context) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var m inbound
		if err := c.ws.ReadJSON(&m); err != nil {
			// malformed JSON is a validation error, not a transport error
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.replyError("Invalid message")
				continue
			}
			return
		}
		metrics.Messages.WithLabelValues(m.Type).Inc()

		switch m.Type {
		case "auth":
			if !c.handleAuth(ctx, m) {
				return
			}
		case "ping":
			c.reply(Envelope{Type: "pong"})
		case "subscribe":
			c.handleSubscribe()
		case "broadcast":
			c.handleBroadcast(m)
		default:
			c.replyError(fmt.Sprintf("Unknown message type: %s", m.Type))
		}
	}
}

// handleAuth validates the session token. Returns false when the connection
// must close (invalid token is fatal by policy).
func (c *Conn) handleAuth(ctx context.Context, m inbound) bool {
	if c.state != StateConnecting {
		c.replyError("Already authenticated")
		return true
	}
	sess, err := c.auth.Authenticate(ctx, m.SessionToken)
	if err != nil {
		c.audit.AuthFailure(c.ID, err.Error())
		c.replyError("Invalid session token")
		return false
	}
	c.session = sess
	c.state = StateAuthenticated
	c.audit.AuthSuccess(c.ID, sess.UserID, sess.OrgID, sess.Channel)
	c.reply(Envelope{Type: "auth_success", Channel: sess.Channel})
	return true
}

func (c *Conn) handleSubscribe() {
	switch c.state {
	case StateConnecting:
		c.replyError("Not authenticated")
	case StateAuthenticated, StateSubscribed:
		// re-subscribing is a no-op on the registry's subscriber set
		c.registry.Subscribe(c.session.Channel, c)
		c.state = StateSubscribed
		c.audit.Subscribed(c.ID, c.session.Channel)
		c.reply(Envelope{Type: "subscribed", Channel: c.session.Channel})
	}
}

func (c *Conn) handleBroadcast(m inbound) {
	switch c.state {
	case StateConnecting:
		c.replyError("Not authenticated")
		return
	case StateAuthenticated:
		c.replyError("Not subscribed")
		return
	}
	if c.limiter != nil && !c.limiter.Allow() {
		c.replyError("Rate limit exceeded")
		return
	}
	c.registry.Dispatch(c.session.Channel, c.session.UserID, m.Payload)
}

// close tears the connection down exactly once. Deregistration from the
// registry happens synchronously so no further deliveries target this
// connection.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		if c.state == StateSubscribed {
			c.registry.Unsubscribe(c.session.Channel, c)
		}
		c.audit.Disconnect(c.ID, c.session.Channel)
		c.state = StateClosed
		close(c.done)
	})
}

// writePump owns all writes to the websocket. On shutdown it drains whatever
// is still queued (the auth error on a failed handshake, typically), sends a
// close frame, and closes the transport.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				// closing the transport unblocks the read loop, which owns
				// the actual teardown
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			for {
				select {
				case data := <-c.send:
					_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
					_ = c.ws.WriteMessage(websocket.TextMessage, data)
				default:
					_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
					_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}
