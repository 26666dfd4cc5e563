package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/jgirmay/livemesh/pkg/config"
	"github.com/jgirmay/livemesh/pkg/events"
	"github.com/jgirmay/livemesh/pkg/metrics"
	"github.com/jgirmay/livemesh/pkg/models"
	"github.com/jgirmay/livemesh/pkg/repository"
	"github.com/jgirmay/livemesh/pkg/repository/repotest"
	"github.com/jgirmay/livemesh/pkg/services/interactions"
	"github.com/jgirmay/livemesh/pkg/services/presence"
)

type headerIdentifier struct{}

func (headerIdentifier) Identify(r *http.Request) (string, bool) {
	id := r.Header.Get("X-User-ID")
	return id, id != ""
}

type fixture struct {
	hub     *Hub
	server  *httptest.Server
	reg     *repository.Registry
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, cfg config.WebSocketConfig) *fixture {
	t.Helper()
	reg := repotest.NewRegistry(t)
	m := metrics.New()

	hub := NewHub(cfg, nil, headerIdentifier{}, m, zap.NewNop())
	hub.UsePresence(presence.NewService(reg.Presence, nil, hub, m, zap.NewNop()))
	hub.Start(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return &fixture{hub: hub, server: srv, reg: reg, metrics: m}
}

func defaultConfig() config.WebSocketConfig {
	return config.WebSocketConfig{SendBuffer: 16, PongWait: 5 * time.Second, ReadLimit: 64 << 10}
}

type testClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

// dial connects and consumes the connected greeting.
func (f *fixture) dial(t *testing.T, userID, eventID string) *testClient {
	t.Helper()
	u := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
	if eventID != "" {
		u += "?eventId=" + eventID
	}
	header := http.Header{}
	if userID != "" {
		header.Set("X-User-ID", userID)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(u, header)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	c := &testClient{t: t, conn: conn}
	hello := c.next()
	require.Equal(t, "connected", hello["type"])
	c.id, _ = hello["connectionId"].(string)
	require.NotEmpty(t, c.id)
	if userID != "" {
		assert.Equal(t, userID, hello["userId"])
	}
	return c
}

func (c *testClient) send(v any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(v))
}

func (c *testClient) next() map[string]any {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]any
	require.NoError(c.t, c.conn.ReadJSON(&msg))
	return msg
}

// expectQuiet proves nothing is queued for c by round-tripping a ping.
func (c *testClient) expectQuiet() {
	c.t.Helper()
	c.send(map[string]string{"type": "ping"})
	assert.Equal(c.t, "pong", c.next()["type"])
}

func TestHub_GreetsAndAnswersPing(t *testing.T) {
	f := newFixture(t, defaultConfig())
	c := f.dial(t, "U", "e1")
	c.expectQuiet()

	assert.Equal(t, Stats{Connections: 1, Events: 1, Users: 1}, f.hub.Stats())
}

func TestHub_PresenceUpdateSkipsSender(t *testing.T) {
	f := newFixture(t, defaultConfig())
	u := f.dial(t, "U", "e1")
	observer := f.dial(t, "V", "e1")
	elsewhere := f.dial(t, "W", "e2")

	u.send(map[string]any{"type": "presence_update", "eventId": "e1", "status": "available", "location": "Booth 4"})

	got := observer.next()
	assert.Equal(t, "presence_update", got["type"])
	assert.Equal(t, "U", got["userId"])
	assert.Equal(t, "available", got["status"])
	assert.Equal(t, "Booth 4", got["location"])

	observer.expectQuiet()
	u.expectQuiet()
	elsewhere.expectQuiet()

	live, err := f.reg.Presence.ListLive(context.Background(), "e1")
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "U", live[0].UserID)
}

func TestHub_AnonymousPresenceRejected(t *testing.T) {
	f := newFixture(t, defaultConfig())
	anon := f.dial(t, "", "e1")

	anon.send(map[string]any{"type": "presence_update", "eventId": "e1", "status": "available"})
	got := anon.next()
	assert.Equal(t, "error", got["type"])
	anon.expectQuiet()
}

func TestHub_InvalidPresenceStatusKeepsSocket(t *testing.T) {
	f := newFixture(t, defaultConfig())
	u := f.dial(t, "U", "e1")

	u.send(map[string]any{"type": "presence_update", "eventId": "e1", "status": "sleeping"})
	got := u.next()
	assert.Equal(t, "error", got["type"])
	assert.Equal(t, "invalid presence status", got["message"])
	u.expectQuiet()
}

func TestHub_MalformedMessageKeepsSocket(t *testing.T) {
	f := newFixture(t, defaultConfig())
	c := f.dial(t, "U", "e1")

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	got := c.next()
	assert.Equal(t, "error", got["type"])
	c.expectQuiet()
}

func TestHub_MatchAcceptedReachesBothUsersOnly(t *testing.T) {
	f := newFixture(t, defaultConfig())
	requester := f.dial(t, "U", "e1")
	counterpart := f.dial(t, "V", "e1")
	bystander := f.dial(t, "X", "e1")

	now := time.Now().UTC()
	req := &models.LiveMatchRequest{
		EventID: "e1", UserID: "U",
		MatchingCriteria: datatypes.NewJSONType(models.MatchingCriteria{}),
		Urgency:          models.UrgencyMedium, MaxMatches: 1, Status: models.RequestActive,
		ExpiresAt: now.Add(30 * time.Minute), CreatedAt: now,
	}
	sugg := []models.LiveMatchSuggestion{{
		EventID: "e1", UserID: "U", SuggestedUserID: "V", MatchScore: 80,
		SuggestedLocation: "Main networking area", SuggestedTime: now.Add(10 * time.Minute),
		Status: models.SuggestionPending, ExpiresAt: req.ExpiresAt, CreatedAt: now,
	}}
	require.NoError(t, f.reg.Matches.CreateRequest(context.Background(), req, sugg))

	svc := interactions.NewService(f.reg.Matches, f.hub, f.metrics, zap.NewNop())
	_, err := svc.RespondToSuggestion(context.Background(), sugg[0].ID, "U", interactions.Accept)
	require.NoError(t, err)

	for _, c := range []*testClient{requester, counterpart} {
		got := c.next()
		assert.Equal(t, "match_accepted", got["type"])
		assert.Equal(t, sugg[0].ID, got["matchId"])
		assert.Equal(t, "U", got["fromUserId"])
		assert.Equal(t, "V", got["toUserId"])
		c.expectQuiet()
	}
	bystander.expectQuiet()
}

func TestHub_UserScopeReachesEveryConnectionOnce(t *testing.T) {
	f := newFixture(t, defaultConfig())
	phone := f.dial(t, "U", "e1")
	laptop := f.dial(t, "U", "e2")

	f.hub.Publish(events.Users("U", "U"), events.Pong{Type: events.TypePong}, events.Exclude{})
	for _, c := range []*testClient{phone, laptop} {
		assert.Equal(t, "pong", c.next()["type"])
		c.expectQuiet()
	}
}

func TestHub_SubscribeSwitchesEvent(t *testing.T) {
	f := newFixture(t, defaultConfig())
	c := f.dial(t, "", "e1")

	c.send(map[string]string{"type": "subscribe", "eventId": "e2"})
	ack := c.next()
	assert.Equal(t, "subscribed", ack["type"])
	assert.Equal(t, "e2", ack["eventId"])

	f.hub.Publish(events.Event("e1"), []byte(`{"type":"room_joined","eventId":"e1"}`), events.Exclude{})
	f.hub.Publish(events.Event("e2"), []byte(`{"type":"room_joined","eventId":"e2"}`), events.Exclude{})

	got := c.next()
	assert.Equal(t, "e2", got["eventId"])
	c.expectQuiet()
}

func TestHub_RelaysVerbatimExcludingSender(t *testing.T) {
	f := newFixture(t, defaultConfig())
	a := f.dial(t, "A", "e1")
	b := f.dial(t, "B", "e1")
	other := f.dial(t, "C", "e2")

	raw := `{"kind":"wave","from":"A"}`
	require.NoError(t, a.conn.WriteMessage(websocket.TextMessage, []byte(raw)))

	require.NoError(t, b.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := b.conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(data))

	a.expectQuiet()
	other.expectQuiet()
}

func TestHub_NewMessageToUser(t *testing.T) {
	f := newFixture(t, defaultConfig())
	a := f.dial(t, "A", "e1")
	b := f.dial(t, "B", "e1")
	c := f.dial(t, "C", "e1")

	a.send(map[string]string{"type": "new_message", "toUserId": "C", "text": "coffee?"})
	got := c.next()
	assert.Equal(t, "new_message", got["type"])
	assert.Equal(t, "coffee?", got["text"])
	b.expectQuiet()
	a.expectQuiet()
}

func TestHub_DropsWhenClientBufferFull(t *testing.T) {
	m := metrics.New()
	hub := NewHub(config.WebSocketConfig{SendBuffer: 1}, nil, nil, m, zap.NewNop())
	hub.Start(context.Background())
	defer hub.Stop()

	slow := &Client{ID: "slow", eventID: "e1", hub: hub, send: make(chan []byte, 1)}
	hub.register <- slow

	// The greeting fills the buffer; both publishes are dropped.
	hub.Publish(events.Event("e1"), []byte(`{"type":"one"}`), events.Exclude{})
	hub.Publish(events.Event("e1"), []byte(`{"type":"two"}`), events.Exclude{})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.HubMessagesDropped) == 2
	}, time.Second, 5*time.Millisecond)

	var greeting events.Connected
	require.NoError(t, json.Unmarshal(<-slow.send, &greeting))
	assert.Equal(t, "slow", greeting.ConnectionID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HubConnections))
}

func TestHub_StopClosesSockets(t *testing.T) {
	f := newFixture(t, defaultConfig())
	c := f.dial(t, "U", "e1")

	f.hub.Stop()

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.conn.ReadMessage()
	require.Error(t, err)
	assert.Equal(t, Stats{}, f.hub.Stats())

	f.hub.Publish(events.All(), events.Pong{Type: events.TypePong}, events.Exclude{})
}

func TestHub_RejectsForeignOrigins(t *testing.T) {
	cfg := defaultConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	f := newFixture(t, cfg)
	u := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?eventId=e1"

	header := http.Header{}
	header.Set("X-User-ID", "U")
	header.Set("Origin", "https://evil.example.net")
	_, resp, err := websocket.DefaultDialer.Dial(u, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	for _, origin := range []string{"https://APP.example.com", f.server.URL} {
		header.Set("Origin", origin)
		conn, resp, err := websocket.DefaultDialer.Dial(u, header)
		require.NoError(t, err, origin)
		resp.Body.Close()
		conn.Close()
	}
}

func TestOriginChecker_Wildcard(t *testing.T) {
	check := originChecker([]string{"*"})
	r := httptest.NewRequest(http.MethodGet, "http://livemesh.local/ws", nil)
	r.Header.Set("Origin", "https://anywhere.example")
	assert.True(t, check(r))

	strict := originChecker(nil)
	assert.False(t, strict(r))
	r.Header.Del("Origin")
	assert.True(t, strict(r), "non-browser clients send no origin")
}
