package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/abhigit-saha/hack36-sub000/internal/auth"
	"github.com/abhigit-saha/hack36-sub000/internal/event"
)

var (
	writeWait          = 10 * time.Second       // time allowed to write a message to the peer
	inboundSendTimeout = 500 * time.Millisecond // timeout for sending to a worker queue
	closeGrace         = 5 * time.Second        // time WritePump gets to close the socket itself
)

// Client is one live socket. It is joined to at most one conversation at a time.
type Client struct {
	id       string
	conn     *websocket.Conn
	hub      *Hub
	egress   chan event.WsEvent
	identity auth.Identity
	authed   bool
	logger   *zap.Logger

	joinedMu sync.RWMutex
	joined   *event.Participant

	ctx            context.Context
	cancel         context.CancelFunc
	once           sync.Once
	connClosed     chan struct{}
	connClosedOnce sync.Once
}

func newClient(conn *websocket.Conn, h *Hub, identity auth.Identity, authed bool) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()

	return &Client{
		id:         id,
		conn:       conn,
		hub:        h,
		egress:     make(chan event.WsEvent, h.opts.SendBuffer),
		identity:   identity,
		authed:     authed,
		logger:     h.logger.With(zap.String("client_id", id)),
		ctx:        ctx,
		cancel:     cancel,
		connClosed: make(chan struct{}),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Deliver enqueues ev on the client's outbound channel.
func (c *Client) Deliver(ev event.WsEvent, timeout time.Duration) error {
	select {
	case <-c.ctx.Done():
		return errClientClosed
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c.egress <- ev:
		return nil
	case <-c.ctx.Done():
		return errClientClosed
	case <-timer.C:
		return errEgressFull
	}
}

// Send encodes and delivers a single event to this client only.
func (c *Client) Send(ev event.Outbound) {
	wire, err := event.Encode(ev)
	if err != nil {
		c.logger.Error("failed to encode outbound event", zap.String("event", ev.Name()), zap.Error(err))
		return
	}
	if err := c.Deliver(wire, c.hub.opts.SendTimeout); err != nil {
		c.logger.Warn("direct send failed", zap.String("event", wire.Event), zap.Error(err))
	}
}

func (c *Client) sendError(message string) {
	c.Send(event.Error{Message: message})
}

// Joined returns the room membership of the client, if any.
func (c *Client) Joined() (event.Participant, bool) {
	c.joinedMu.RLock()
	defer c.joinedMu.RUnlock()
	if c.joined == nil {
		return event.Participant{}, false
	}
	return *c.joined, true
}

func (c *Client) setJoined(p event.Participant) {
	c.joinedMu.Lock()
	defer c.joinedMu.Unlock()
	c.joined = &p
}

// takeJoined clears the joined room and returns it. Exactly one caller gets a
// given membership.
func (c *Client) takeJoined() (event.Participant, bool) {
	c.joinedMu.Lock()
	defer c.joinedMu.Unlock()
	if c.joined == nil {
		return event.Participant{}, false
	}
	p := *c.joined
	c.joined = nil
	return p, true
}

// ReadPump decodes frames and hands them to the hub's worker for this client.
// Any frame, including pong, extends the read deadline.
func (c *Client) ReadPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(c.hub.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))

		var ev event.WsEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.sendError("malformed frame")
			continue
		}

		if !c.hub.enqueue(inboundMessage{client: c, event: ev}) {
			c.logger.Warn("inbound queue full, dropping client")
			return
		}
	}
}

func (c *Client) logReadError(err error) {
	var ne net.Error
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.logger.Debug("client disconnected")
	case errors.As(err, &ne) && ne.Timeout():
		c.logger.Info("heartbeat missed, closing connection")
	case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.logger.Info("unexpected close", zap.Error(err))
	default:
		c.logger.Debug("read ended", zap.Error(err))
	}
}

// WritePump owns every write to the socket: queued events and the periodic
// ping.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.hub.opts.HeartbeatInterval)
	ping, _ := event.Encode(event.Ping{})

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.connClosedOnce.Do(func() {
			close(c.connClosed)
		})
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case ev := <-c.egress:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				c.cancel()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ping); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				c.cancel()
				return
			}
		}
	}
}

// Close stops both pumps. It is safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()

		go func() {
			select {
			case <-c.connClosed:
			case <-time.After(closeGrace):
				_ = c.conn.Close()
				c.logger.Warn("safety timeout: force closed connection")
			}
		}()
	})
}

func (c *Client) IsClosed() bool {
	return c.ctx.Err() != nil
}
