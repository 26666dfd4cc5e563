// Package websocket is the real-time fan-out for live events. A single actor
// goroutine owns the connection registry; everything else talks to it over
// channels.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jgirmay/livemesh/pkg/config"
	"github.com/jgirmay/livemesh/pkg/events"
	"github.com/jgirmay/livemesh/pkg/logger"
	"github.com/jgirmay/livemesh/pkg/metrics"
	"github.com/jgirmay/livemesh/pkg/models"
)

// PresenceUpdater persists presence sent over the socket.
type PresenceUpdater interface {
	UpdatePresence(ctx context.Context, userID, eventID string, status models.PresenceStatus, location *string) (*models.EventPresence, error)
}

// Identifier resolves the caller of an upgrade request. ok is false for
// anonymous sockets.
type Identifier interface {
	Identify(r *http.Request) (userID string, ok bool)
}

// Stats is a snapshot of the registry.
type Stats struct {
	Connections int `json:"connections"`
	Events      int `json:"events"`
	Users       int `json:"users"`
}

type publication struct {
	scope   events.Scope
	data    []byte
	exclude events.Exclude
}

type subscription struct {
	client  *Client
	eventID string
}

type reply struct {
	client *Client
	data   []byte
}

type clientSet map[*Client]struct{}

// Hub tracks connected clients by event and by user.
type Hub struct {
	cfg        config.WebSocketConfig
	presence   PresenceUpdater
	identifier Identifier
	metrics    *metrics.Metrics
	log        *zap.Logger
	upgrader   websocket.Upgrader

	// owned by run
	clients clientSet
	byEvent map[string]clientSet
	byUser  map[string]clientSet

	register   chan *Client // unbuffered: a client is indexed before its pumps run
	unregister chan *Client
	subscribe  chan subscription
	publish    chan publication
	direct     chan reply
	stats      chan chan Stats

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewHub(cfg config.WebSocketConfig, presence PresenceUpdater, identifier Identifier, m *metrics.Metrics, log *zap.Logger) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	return &Hub{
		cfg:        cfg,
		presence:   presence,
		identifier: identifier,
		metrics:    metrics.OrNew(m),
		log:        logger.OrNamed(log, "hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		clients:    make(clientSet),
		byEvent:    make(map[string]clientSet),
		byUser:     make(map[string]clientSet),
		register:   make(chan *Client),
		unregister: make(chan *Client, 256),
		subscribe:  make(chan subscription, 256),
		publish:    make(chan publication, 1024),
		direct:     make(chan reply, 256),
		stats:      make(chan chan Stats),
		done:       make(chan struct{}),
	}
}

// originChecker accepts requests without an Origin header, requests from
// the server's own host and the listed origins. "*" accepts everything.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimSuffix(o, "/"))] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		return set[strings.ToLower(origin)]
	}
}

// UsePresence sets the store behind inbound presence_update messages. It
// must be called before Start.
func (h *Hub) UsePresence(p PresenceUpdater) {
	h.presence = p
}

// Start begins the hub's event loop.
func (h *Hub) Start(ctx context.Context) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.run(ctx)
	}()
	h.log.Info("websocket hub started")
}

// Stop closes every client and waits for the loop to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
	h.wg.Wait()
}

// Publish implements events.Publisher. It never waits on client sockets.
func (h *Hub) Publish(scope events.Scope, msg any, exclude events.Exclude) {
	data, ok := msg.([]byte)
	if !ok {
		var err error
		if data, err = json.Marshal(msg); err != nil {
			h.log.Error("failed to encode broadcast", zap.Error(err))
			return
		}
	}
	select {
	case h.publish <- publication{scope: scope, data: data, exclude: exclude}:
	case <-h.done:
	}
}

// Stats returns the current registry size. A stopped hub reports zeros.
func (h *Hub) Stats() Stats {
	ch := make(chan Stats, 1)
	select {
	case h.stats <- ch:
	case <-h.done:
		return Stats{}
	}
	select {
	case s := <-ch:
		return s
	case <-h.done:
		return Stats{}
	}
}

func (h *Hub) run(ctx context.Context) {
	defer func() {
		h.stopOnce.Do(func() { close(h.done) })
		h.closeAll()
	}()

	for {
		select {
		case <-h.done:
			return
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.add(c)

		case c := <-h.unregister:
			h.remove(c)

		case s := <-h.subscribe:
			if _, ok := h.clients[s.client]; !ok {
				continue
			}
			h.index(h.byEvent, s.client.eventID, s.client, false)
			s.client.eventID = s.eventID
			h.index(h.byEvent, s.eventID, s.client, true)
			h.deliver(s.client, mustJSON(events.Subscribed{Type: events.TypeSubscribed, EventID: s.eventID}))

		case r := <-h.direct:
			if _, ok := h.clients[r.client]; ok {
				h.deliver(r.client, r.data)
			}

		case p := <-h.publish:
			h.fanOut(p)

		case ch := <-h.stats:
			ch <- Stats{Connections: len(h.clients), Events: len(h.byEvent), Users: len(h.byUser)}
		}
	}
}

func (h *Hub) add(c *Client) {
	h.clients[c] = struct{}{}
	h.index(h.byEvent, c.eventID, c, true)
	h.index(h.byUser, c.UserID, c, true)
	h.metrics.HubConnections.Set(float64(len(h.clients)))

	h.log.Debug("client registered",
		zap.String("connection_id", c.ID),
		zap.String("user_id", c.UserID),
		zap.String("event_id", c.eventID),
		zap.Int("total", len(h.clients)))

	h.deliver(c, mustJSON(events.Connected{
		Type:         events.TypeConnected,
		ConnectionID: c.ID,
		UserID:       c.UserID,
		EventID:      c.eventID,
	}))
}

func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.index(h.byEvent, c.eventID, c, false)
	h.index(h.byUser, c.UserID, c, false)
	close(c.send)
	h.metrics.HubConnections.Set(float64(len(h.clients)))

	h.log.Debug("client unregistered",
		zap.String("connection_id", c.ID),
		zap.String("user_id", c.UserID),
		zap.Int("total", len(h.clients)))
}

func (h *Hub) closeAll() {
	for c := range h.clients {
		close(c.send)
	}
	h.clients = make(clientSet)
	h.byEvent = make(map[string]clientSet)
	h.byUser = make(map[string]clientSet)
	h.metrics.HubConnections.Set(0)
	h.log.Info("websocket hub stopped")
}

// index adds or removes c under key. Empty keys are not indexed.
func (h *Hub) index(m map[string]clientSet, key string, c *Client, add bool) {
	if key == "" {
		return
	}
	set := m[key]
	if add {
		if set == nil {
			set = make(clientSet)
			m[key] = set
		}
		set[c] = struct{}{}
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(m, key)
	}
}

func (h *Hub) fanOut(p publication) {
	send := func(c *Client) {
		if p.exclude.ConnectionID != "" && c.ID == p.exclude.ConnectionID {
			return
		}
		if p.exclude.UserID != "" && c.UserID == p.exclude.UserID {
			return
		}
		h.deliver(c, p.data)
	}

	switch p.scope.Kind {
	case events.ScopeAll:
		for c := range h.clients {
			send(c)
		}
	case events.ScopeEvent:
		for c := range h.byEvent[p.scope.EventID] {
			send(c)
		}
	case events.ScopeUsers:
		seen := make(map[string]bool, len(p.scope.UserIDs))
		for _, id := range p.scope.UserIDs {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			for c := range h.byUser[id] {
				send(c)
			}
		}
	}
}

// deliver queues data for c, dropping it when the client is not keeping up.
func (h *Hub) deliver(c *Client, data []byte) {
	select {
	case c.send <- data:
		h.metrics.HubMessagesSent.Inc()
	default:
		h.metrics.HubMessagesDropped.Inc()
		h.log.Warn("dropping message for slow client",
			zap.String("connection_id", c.ID),
			zap.String("user_id", c.UserID))
	}
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
