// Package events defines the real-time messages pushed to clients and the
// addressing used to deliver them.
package events

import "github.com/jgirmay/livemesh/pkg/models"

// MessageType represents the type of WebSocket message
type MessageType string

const (
	// Client to Server messages
	TypePing      MessageType = "ping"
	TypeSubscribe MessageType = "subscribe"

	// Both directions
	TypePresenceUpdate MessageType = "presence_update"
	TypeNewMessage     MessageType = "new_message"

	// Server to Client messages
	TypeConnected          MessageType = "connected"
	TypeSubscribed         MessageType = "subscribed"
	TypePong               MessageType = "pong"
	TypeError              MessageType = "error"
	TypeMatchAccepted      MessageType = "match_accepted"
	TypeMatchmakingStarted MessageType = "matchmaking_started"
	TypeRoomJoined         MessageType = "room_joined"
	TypeRoomLeft           MessageType = "room_left"
	TypeConnectionRequest  MessageType = "connection_request"
	TypeConnectionResponse MessageType = "connection_response"
)

// ScopeKind selects which registry index a publish walks.
type ScopeKind int

const (
	ScopeAll ScopeKind = iota
	ScopeEvent
	ScopeUsers
)

// Scope addresses a publish.
type Scope struct {
	Kind    ScopeKind
	EventID string
	UserIDs []string
}

func All() Scope                 { return Scope{Kind: ScopeAll} }
func Event(eventID string) Scope { return Scope{Kind: ScopeEvent, EventID: eventID} }
func User(userID string) Scope   { return Scope{Kind: ScopeUsers, UserIDs: []string{userID}} }

// Users addresses every connection of each listed user. Duplicates are delivered once.
func Users(userIDs ...string) Scope {
	return Scope{Kind: ScopeUsers, UserIDs: userIDs}
}

// Exclude removes recipients from a publish. Zero value excludes nobody.
type Exclude struct {
	ConnectionID string
	UserID       string
}

func ExcludeConnection(id string) Exclude { return Exclude{ConnectionID: id} }
func ExcludeUser(id string) Exclude       { return Exclude{UserID: id} }

// Publisher fans a message out to connected clients. Delivery is best effort
// and Publish never blocks on slow clients. msg is encoded as JSON unless it
// is already []byte.
type Publisher interface {
	Publish(scope Scope, msg any, exclude Exclude)
}

type discard struct{}

func (discard) Publish(Scope, any, Exclude) {}

// Discard drops every message.
var Discard Publisher = discard{}

// ==================== Payloads ====================

type PresenceUpdate struct {
	Type     MessageType `json:"type"`
	EventID  string      `json:"eventId"`
	UserID   string      `json:"userId"`
	Status   string      `json:"status"`
	Location *string     `json:"location"`
}

func NewPresenceUpdate(p *models.EventPresence) PresenceUpdate {
	return PresenceUpdate{
		Type:     TypePresenceUpdate,
		EventID:  p.EventID,
		UserID:   p.UserID,
		Status:   string(p.Status),
		Location: p.Location,
	}
}

type MatchAccepted struct {
	Type       MessageType `json:"type"`
	EventID    string      `json:"eventId"`
	FromUserID string      `json:"fromUserId"`
	ToUserID   string      `json:"toUserId"`
	MatchID    string      `json:"matchId"`
}

func NewMatchAccepted(s *models.LiveMatchSuggestion) MatchAccepted {
	return MatchAccepted{
		Type:       TypeMatchAccepted,
		EventID:    s.EventID,
		FromUserID: s.UserID,
		ToUserID:   s.SuggestedUserID,
		MatchID:    s.ID,
	}
}

type MatchmakingStarted struct {
	Type            MessageType `json:"type"`
	EventID         string      `json:"eventId"`
	UserID          string      `json:"userId"`
	RequestID       string      `json:"requestId"`
	SuggestionCount int         `json:"suggestionCount"`
}

type RoomMembership struct {
	Type    MessageType `json:"type"`
	RoomID  string      `json:"roomId"`
	EventID string      `json:"eventId"`
	UserID  string      `json:"userId"`
}

type ConnectionRequested struct {
	Type       MessageType `json:"type"`
	RequestID  string      `json:"requestId"`
	EventID    string      `json:"eventId"`
	FromUserID string      `json:"fromUserId"`
	ToUserID   string      `json:"toUserId"`
}

type ConnectionResponded struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"requestId"`
	EventID   string      `json:"eventId"`
	Status    string      `json:"status"`
}

type Connected struct {
	Type         MessageType `json:"type"`
	ConnectionID string      `json:"connectionId"`
	UserID       string      `json:"userId,omitempty"`
	EventID      string      `json:"eventId,omitempty"`
}

type Subscribed struct {
	Type    MessageType `json:"type"`
	EventID string      `json:"eventId"`
}

type Pong struct {
	Type MessageType `json:"type"`
}

type Error struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}
