package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jgirmay/livemesh/pkg/models"
)

var (
	// ErrNotFound is returned when a row does not exist or fails an ownership filter.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a uniqueness rule rejects an insert.
	ErrDuplicate = errors.New("duplicate record")

	// ErrRoomFull is returned when joining would exceed a room's capacity.
	ErrRoomFull = errors.New("room is full")
)

// PresenceRepository defines operations for event presence rows
type PresenceRepository interface {
	// Upsert creates or replaces the row for (userID, eventID) and marks it live
	Upsert(ctx context.Context, userID, eventID string, status models.PresenceStatus, location *string, now time.Time) (*models.EventPresence, error)

	// Leave marks the row not live with status offline
	Leave(ctx context.Context, userID, eventID string, now time.Time) (*models.EventPresence, error)

	// Get retrieves the row for (userID, eventID)
	Get(ctx context.Context, userID, eventID string) (*models.EventPresence, error)

	// ListLive retrieves all live rows for an event
	ListLive(ctx context.Context, eventID string) ([]models.EventPresence, error)

	// MarkStale flips live rows last updated before cutoff and returns them
	MarkStale(ctx context.Context, cutoff, now time.Time) ([]models.EventPresence, error)
}

// RoomRepository defines operations for rooms and their participants
type RoomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	Get(ctx context.Context, id string) (*models.Room, error)
	ListByEvent(ctx context.Context, eventID string) ([]models.Room, error)

	// Join inserts or refreshes a participation row, enforcing capacity for newcomers
	Join(ctx context.Context, roomID, userID string, now time.Time) (*models.RoomParticipant, error)

	// Leave removes a participation row and reports whether one existed
	Leave(ctx context.Context, roomID, userID string) (bool, error)

	ListParticipants(ctx context.Context, roomID string) ([]models.RoomParticipant, error)
}

// MatchRepository defines operations for match requests, suggestions and interactions
type MatchRepository interface {
	// CreateRequest persists a request with all its suggestions atomically
	CreateRequest(ctx context.Context, req *models.LiveMatchRequest, suggestions []models.LiveMatchSuggestion) error

	GetRequest(ctx context.Context, id string) (*models.LiveMatchRequest, error)
	GetSuggestion(ctx context.Context, id string) (*models.LiveMatchSuggestion, error)

	// ListSuggestions returns suggestions where the user is either side, newest first
	ListSuggestions(ctx context.Context, eventID, userID string) ([]models.LiveMatchSuggestion, error)

	// TransitionSuggestion moves a pending, unexpired suggestion to next and
	// inserts interaction in the same transaction. It reports whether the row moved.
	TransitionSuggestion(ctx context.Context, id string, next models.SuggestionStatus, now time.Time, interaction *models.LiveInteraction) (bool, error)

	// ExpireSuggestion moves one pending suggestion past its deadline to expired
	ExpireSuggestion(ctx context.Context, id string, now time.Time) (bool, error)

	ExpirePendingSuggestions(ctx context.Context, now time.Time) (int64, error)
	ExpireRequests(ctx context.Context, now time.Time) (int64, error)

	ListInteractions(ctx context.Context, eventID, userID string) ([]models.LiveInteraction, error)
}

// ConnectionRepository defines operations for connection requests
type ConnectionRepository interface {
	// Create inserts a request; a second pending request for the same pair yields ErrDuplicate
	Create(ctx context.Context, req *models.ConnectionRequest) error

	Get(ctx context.Context, id string) (*models.ConnectionRequest, error)

	// Transition answers a pending request addressed to toUserID.
	// ErrNotFound covers missing, foreign, terminal and expired requests alike.
	Transition(ctx context.Context, id, toUserID string, next models.ConnectionStatus, responseMessage *string, now time.Time) (*models.ConnectionRequest, error)

	ListIncomingPending(ctx context.Context, eventID, userID string) ([]models.ConnectionRequest, error)
	ListOutgoing(ctx context.Context, eventID, userID string) ([]models.ConnectionRequest, error)

	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

// ProfileRepository defines operations for the scoring read model
type ProfileRepository interface {
	Upsert(ctx context.Context, profile *models.AttendeeProfile) error
	Get(ctx context.Context, userID string) (*models.AttendeeProfile, error)

	// GetMany returns profiles keyed by user id; unknown ids are absent
	GetMany(ctx context.Context, userIDs []string) (map[string]*models.AttendeeProfile, error)
}

// RewardRepository defines operations for the reward ledger
type RewardRepository interface {
	// Insert reports false without error when the entry was already recorded
	Insert(ctx context.Context, entry *models.RewardEntry) (bool, error)
	Balance(ctx context.Context, userID string) (int, error)
	List(ctx context.Context, userID string) ([]models.RewardEntry, error)
}
