package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jgirmay/livemesh/pkg/apperrors"
	"github.com/jgirmay/livemesh/pkg/events"
	"github.com/jgirmay/livemesh/pkg/models"
)

const (
	writeWait          = 10 * time.Second
	inboundCallTimeout = 5 * time.Second
)

// Client is one socket. eventID is owned by the hub loop after registration;
// current is the read pump's copy of it.
type Client struct {
	ID     string
	UserID string

	eventID string
	current string
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	log     *zap.Logger
}

// inbound is the envelope every client message is decoded into.
type inbound struct {
	Type     events.MessageType `json:"type"`
	EventID  string             `json:"eventId"`
	ToUserID string             `json:"toUserId"`
	Status   string             `json:"status"`
	Location *string            `json:"location"`
}

// ServeWS upgrades /ws?eventId=... and runs the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var userID string
	if h.identifier != nil {
		if id, ok := h.identifier.Identify(r); ok {
			userID = id
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		ID:      uuid.New().String(),
		UserID:  userID,
		eventID: strings.TrimSpace(r.URL.Query().Get("eventId")),
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, h.cfg.SendBuffer),
	}
	c.current = c.eventID
	c.log = h.log.With(zap.String("connection_id", c.ID), zap.String("user_id", userID))

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *Client) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

func (c *Client) reply(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Error("failed to encode reply", zap.Error(err))
		return
	}
	select {
	case c.hub.direct <- reply{client: c, data: data}:
	case <-c.hub.done:
	}
}

func (c *Client) fail(msg string) {
	c.reply(events.Error{Type: events.TypeError, Message: msg})
}

func (c *Client) readPump() {
	defer func() {
		c.leave()
		c.conn.Close()
	}()

	cfg := c.hub.cfg
	if cfg.ReadLimit > 0 {
		c.conn.SetReadLimit(cfg.ReadLimit)
	}
	if cfg.PongWait > 0 {
		c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		c.conn.SetPongHandler(func(string) error {
			c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
			return nil
		})
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		if cfg.PongWait > 0 {
			c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		}
		c.handle(data)
	}
}

func (c *Client) writePump() {
	var tick <-chan time.Time
	if c.hub.cfg.PingPeriod > 0 {
		ticker := time.NewTicker(c.hub.cfg.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer c.conn.Close()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-tick:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle processes one inbound frame. Errors are reported to the sender and
// never close the socket.
func (c *Client) handle(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn("malformed websocket message", zap.Error(err))
		c.fail("malformed message: expected a JSON object")
		return
	}

	switch msg.Type {
	case events.TypePing:
		c.reply(events.Pong{Type: events.TypePong})

	case events.TypeSubscribe:
		eventID := strings.TrimSpace(msg.EventID)
		if eventID == "" {
			c.fail("subscribe requires eventId")
			return
		}
		c.current = eventID
		select {
		case c.hub.subscribe <- subscription{client: c, eventID: eventID}:
		case <-c.hub.done:
		}

	case events.TypePresenceUpdate:
		c.updatePresence(msg)

	case events.TypeNewMessage:
		scope := c.scope()
		if msg.ToUserID != "" {
			scope = events.User(msg.ToUserID)
		}
		c.hub.Publish(scope, data, events.ExcludeConnection(c.ID))

	default:
		c.hub.Publish(c.scope(), data, events.ExcludeConnection(c.ID))
	}
}

func (c *Client) updatePresence(msg inbound) {
	if c.UserID == "" {
		c.fail("presence updates require an authenticated connection")
		return
	}
	if c.hub.presence == nil {
		c.fail("presence updates are not available")
		return
	}
	eventID := msg.EventID
	if eventID == "" {
		eventID = c.current
	}

	ctx, cancel := context.WithTimeout(context.Background(), inboundCallTimeout)
	defer cancel()
	if _, err := c.hub.presence.UpdatePresence(ctx, c.UserID, eventID, models.PresenceStatus(msg.Status), msg.Location); err != nil {
		c.log.Warn("websocket presence update failed", zap.Error(err))
		c.fail(apperrors.From(err).Public().Message)
	}
}

// scope is where relayed messages go: the client's event, or everyone when
// it never named one.
func (c *Client) scope() events.Scope {
	if id := c.current; id != "" {
		return events.Event(id)
	}
	return events.All()
}
