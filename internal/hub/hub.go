package hub

import (
	"context"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/abhigit-saha/hack36-sub000/internal/apperror"
	"github.com/abhigit-saha/hack36-sub000/internal/auth"
	"github.com/abhigit-saha/hack36-sub000/internal/event"
	"github.com/abhigit-saha/hack36-sub000/internal/model"
	"github.com/abhigit-saha/hack36-sub000/internal/service"
)

type Options struct {
	HeartbeatInterval time.Duration // ping period
	PongWait          time.Duration // read deadline extended on every inbound frame
	SendTimeout       time.Duration // per-subscriber enqueue bound
	SendBuffer        int           // per-connection outbound buffer size
	Workers           int           // number of inbound worker queues
	MaxMessageSize    int64         // max inbound frame size
	OperationTimeout  time.Duration // bound on a single event's store work
	AllowedOrigins    []string      // empty allows any origin
}

type inboundMessage struct {
	client     *Client
	event      event.WsEvent
	disconnect bool
}

// Hub accepts socket connections and dispatches their events. Each client is
// pinned to one worker queue so its events are handled in arrival order.
type Hub struct {
	rooms    *Rooms
	presence *Presence
	chat     service.ChatService
	verifier *auth.Verifier
	opts     Options
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[string]*Client

	queues   []chan inboundMessage
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

func NewHub(rooms *Rooms, presence *Presence, chat service.ChatService, verifier *auth.Verifier, opts Options, logger *zap.Logger) *Hub {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 1
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = 5 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		rooms:    rooms,
		presence: presence,
		chat:     chat,
		verifier: verifier,
		opts:     opts,
		logger:   logger,
		clients:  make(map[string]*Client),
		queues:   make([]chan inboundMessage, opts.Workers),
		ctx:      ctx,
		cancel:   cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	for i := range h.queues {
		h.queues[i] = make(chan inboundMessage, 256)
	}
	return h
}

// Start launches the inbound workers.
func (h *Hub) Start() {
	for _, q := range h.queues {
		h.wg.Add(1)
		go func(q chan inboundMessage) {
			defer h.wg.Done()
			for {
				select {
				case <-h.ctx.Done():
					return
				case in := <-q:
					h.handle(in)
				}
			}
		}(q)
	}
	h.logger.Info("hub started", zap.Int("workers", len(h.queues)))
}

// Stop halts the workers and runs the disconnect sequence for every client.
// Calls after the first are no-ops.
func (h *Hub) Stop() {
	h.stopOnce.Do(h.stop)
}

func (h *Hub) stop() {
	h.cancel()
	h.wg.Wait()

	h.clientsMu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	for _, c := range clients {
		h.disconnect(c)
	}
	h.logger.Info("hub stopped", zap.Int("closed_clients", len(clients)))
}

// ServeWS authenticates the handshake when a verifier is configured, upgrades
// the connection and starts its pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var (
		identity auth.Identity
		authed   bool
	)
	if h.verifier != nil {
		var err error
		identity, authed, err = h.verifier.FromRequest(r)
		if err != nil {
			http.Error(w, apperror.PublicMessage(err), apperror.HTTPStatus(err))
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(conn, h, identity, authed)
	if !h.register(c) {
		_ = conn.Close()
		return
	}

	go c.ReadPump()
	go c.WritePump()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (h *Hub) register(c *Client) bool {
	if h.ctx.Err() != nil {
		return false
	}
	h.clientsMu.Lock()
	h.clients[c.id] = c
	h.clientsMu.Unlock()

	c.logger.Debug("client registered",
		zap.String("user_id", c.identity.ID),
		zap.Bool("authenticated", c.authed),
	)
	return true
}

// removeClient reports whether c was still registered.
func (h *Hub) removeClient(c *Client) bool {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return false
	}
	delete(h.clients, c.id)
	return true
}

func (h *Hub) registered(c *Client) bool {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	_, ok := h.clients[c.id]
	return ok
}

// unregister queues the disconnect behind the client's pending events.
func (h *Hub) unregister(c *Client) {
	timer := time.NewTimer(h.opts.OperationTimeout)
	defer timer.Stop()

	select {
	case h.queueFor(c) <- inboundMessage{client: c, disconnect: true}:
	case <-h.ctx.Done():
		h.disconnect(c)
	case <-timer.C:
		h.disconnect(c)
	}
}

func (h *Hub) enqueue(in inboundMessage) bool {
	timer := time.NewTimer(inboundSendTimeout)
	defer timer.Stop()

	select {
	case h.queueFor(in.client) <- in:
		return true
	case <-h.ctx.Done():
		return false
	case <-timer.C:
		return false
	}
}

func (h *Hub) queueFor(c *Client) chan inboundMessage {
	f := fnv.New32a()
	_, _ = f.Write([]byte(c.id))
	return h.queues[f.Sum32()%uint32(len(h.queues))]
}

func (h *Hub) handle(in inboundMessage) {
	c := in.client
	if in.disconnect {
		h.disconnect(c)
		return
	}
	if c.IsClosed() {
		return
	}

	ev, err := event.Decode(in.event)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(h.ctx, h.opts.OperationTimeout)
	defer cancel()

	switch e := ev.(type) {
	case event.JoinChat:
		err = h.join(ctx, c, e.Participant)
	case event.LeaveChat:
		err = h.leave(ctx, c, e.Participant)
	case event.SendMessage:
		err = h.sendMessage(ctx, c, e)
	case event.MarkRead:
		err = h.markRead(ctx, c, e)
	case event.TypingStart:
		err = h.typing(ctx, c, e.Participant, true)
	case event.TypingStop:
		err = h.typing(ctx, c, e.Participant, false)
	case event.Pong:
		h.pong(ctx, c)
	default:
		c.logger.Error("unhandled inbound event", zap.String("event", ev.Name()))
		return
	}

	if err != nil {
		h.reject(c, ev.Name(), err)
	}
}

func (h *Hub) reject(c *Client, name string, err error) {
	fields := []zap.Field{zap.String("event", name), zap.Error(err)}
	if apperror.HTTPStatus(err) >= http.StatusInternalServerError {
		c.logger.Warn("event failed", fields...)
	} else {
		c.logger.Debug("event rejected", fields...)
	}
	c.sendError(apperror.PublicMessage(err))
}

// authorize checks a payload identity against the session when the handshake
// was authenticated.
func (h *Hub) authorize(c *Client, userID string, userType model.SenderType) error {
	if !c.authed {
		return nil
	}
	if c.identity.ID != userID || c.identity.Type != userType {
		return apperror.Forbidden("identity does not match session")
	}
	return nil
}

func (h *Hub) join(ctx context.Context, c *Client, p event.Participant) error {
	if p.ChatID == "" || p.UserID == "" {
		return apperror.Validation("chat_id and user_id are required")
	}
	if !p.UserType.Valid() {
		return apperror.Validation("user_type must be doctor or user")
	}
	if err := h.authorize(c, p.UserID, p.UserType); err != nil {
		return err
	}

	conv, err := h.chat.GetConversation(ctx, p.ChatID)
	if err != nil {
		return err
	}
	if !conv.IsParticipant(p.UserID, p.UserType) {
		return apperror.Forbidden("not a participant of this conversation")
	}

	if prev, ok := c.Joined(); ok && prev.ChatID == p.ChatID && prev.UserID == p.UserID {
		h.presence.Joined(ctx, p.ChatID)
		return nil
	}
	if prev, ok := c.takeJoined(); ok {
		h.leaveRoom(ctx, c, prev)
	}

	h.rooms.Join(p.ChatID, c)
	c.setJoined(p)
	h.presence.Joined(ctx, p.ChatID)

	// A disconnect that ran outside the worker may have missed this room.
	if !h.registered(c) {
		if joined, ok := c.takeJoined(); ok {
			h.leaveRoom(ctx, c, joined)
		}
		return nil
	}

	h.rooms.Broadcast(p.ChatID, event.UserJoined{Presence: h.presenceEvent(p)}, c.id)
	c.logger.Debug("joined conversation",
		zap.String("conversation_id", p.ChatID),
		zap.String("user_id", p.UserID),
	)
	return nil
}

func (h *Hub) leave(ctx context.Context, c *Client, p event.Participant) error {
	joined, ok := c.Joined()
	if !ok || joined.ChatID != p.ChatID {
		return apperror.Validation("not joined to this conversation")
	}
	if joined, ok = c.takeJoined(); ok {
		h.leaveRoom(ctx, c, joined)
	}
	return nil
}

func (h *Hub) leaveRoom(ctx context.Context, c *Client, p event.Participant) {
	remaining := h.rooms.Leave(p.ChatID, c.id)
	h.presence.Left(ctx, p.ChatID, remaining)
	h.rooms.Broadcast(p.ChatID, event.UserLeft{Presence: h.presenceEvent(p)}, c.id)
}

// disconnect is the terminal step for a connection. Only the first call for a
// client has any effect.
func (h *Hub) disconnect(c *Client) {
	if !h.removeClient(c) {
		c.Close()
		return
	}

	if joined, ok := c.takeJoined(); ok {
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.OperationTimeout)
		h.leaveRoom(ctx, c, joined)
		cancel()
	}
	c.Close()
	c.logger.Debug("client disconnected")
}

func (h *Hub) sendMessage(ctx context.Context, c *Client, e event.SendMessage) error {
	if err := h.authorize(c, e.SenderID, e.SenderType); err != nil {
		return err
	}
	_, err := h.chat.SendMessage(ctx, service.SendMessageInput{
		ConversationID: e.ChatID,
		SenderID:       e.SenderID,
		SenderType:     e.SenderType,
		Content:        e.Content,
	})
	return err
}

func (h *Hub) markRead(ctx context.Context, c *Client, e event.MarkRead) error {
	if c.authed {
		if c.identity.Type != e.ReaderType {
			return apperror.Forbidden("identity does not match session")
		}
		conv, err := h.chat.GetConversation(ctx, e.ChatID)
		if err != nil {
			return err
		}
		if !conv.IsParticipant(c.identity.ID, e.ReaderType) {
			return apperror.Forbidden("not a participant of this conversation")
		}
	}
	_, err := h.chat.MarkRead(ctx, e.ChatID, e.ReaderType)
	return err
}

// typing is only relayed for the conversation and identity the client joined.
func (h *Hub) typing(ctx context.Context, c *Client, p event.Participant, active bool) error {
	if err := h.authorize(c, p.UserID, p.UserType); err != nil {
		return err
	}
	joined, ok := c.Joined()
	if !ok || joined.ChatID != p.ChatID || joined.UserID != p.UserID || joined.UserType != p.UserType {
		return apperror.Validation("not joined to this conversation")
	}
	return h.chat.Typing(ctx, service.TypingInput{
		ConversationID: p.ChatID,
		UserID:         p.UserID,
		UserType:       p.UserType,
	}, active, c.id)
}

// pong refreshes presence for the joined conversation. Unjoined clients only
// keep their socket alive.
func (h *Hub) pong(ctx context.Context, c *Client) {
	if joined, ok := c.Joined(); ok {
		h.presence.Heartbeat(ctx, joined.ChatID)
	}
}

func (h *Hub) presenceEvent(p event.Participant) event.Presence {
	return event.Presence{
		ChatID:    p.ChatID,
		UserID:    p.UserID,
		UserType:  p.UserType,
		Timestamp: h.presence.now().UTC(),
	}
}

// Clients returns the live connections, for monitoring.
func (h *Hub) Clients() []*Client {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) Rooms() *Rooms {
	return h.rooms
}
