// Package rooms manages breakout room membership.
package rooms

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jgirmay/livemesh/pkg/apperrors"
	"github.com/jgirmay/livemesh/pkg/events"
	"github.com/jgirmay/livemesh/pkg/logger"
	"github.com/jgirmay/livemesh/pkg/models"
	"github.com/jgirmay/livemesh/pkg/repository"
)

var (
	ErrRoomNotFound = apperrors.NotFound("room")
	ErrRoomFull     = apperrors.Conflict("room is full")
)

type Service struct {
	repo repository.RoomRepository
	pub  events.Publisher
	log  *zap.Logger
	now  func() time.Time
}

func NewService(repo repository.RoomRepository, pub events.Publisher, log *zap.Logger) *Service {
	if pub == nil {
		pub = events.Discard
	}
	return &Service{
		repo: repo,
		pub:  pub,
		log:  logger.OrNamed(log, "rooms"),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateRoom is used by operator seeding only.
func (s *Service) CreateRoom(ctx context.Context, eventID, name string, capacity *int) (*models.Room, error) {
	name = strings.TrimSpace(name)
	if eventID == "" || name == "" {
		return nil, apperrors.Validation("eventId and name are required", "")
	}
	if capacity != nil && *capacity < 1 {
		return nil, apperrors.Validation("capacity must be positive", "")
	}

	room := &models.Room{EventID: eventID, Name: name, Capacity: capacity, CreatedAt: s.now()}
	if err := s.repo.Create(ctx, room); err != nil {
		return nil, apperrors.Storage("failed to create room", err)
	}
	s.log.Info("room created", zap.String("room_id", room.ID), zap.String("event_id", eventID))
	return room, nil
}

// JoinRoom inserts or refreshes the caller's participation. Rejoining never duplicates.
func (s *Service) JoinRoom(ctx context.Context, roomID, userID string) (*models.RoomParticipant, error) {
	room, err := s.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.Join(ctx, roomID, userID, s.now())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrRoomNotFound
	case errors.Is(err, repository.ErrRoomFull):
		return nil, ErrRoomFull
	case err != nil:
		s.log.Error("room join failed", zap.String("room_id", roomID), zap.String("user_id", userID), zap.Error(err))
		return nil, apperrors.Storage("failed to join room", err)
	}

	s.pub.Publish(events.Event(room.EventID), events.RoomMembership{
		Type: events.TypeRoomJoined, RoomID: roomID, EventID: room.EventID, UserID: userID,
	}, events.Exclude{})
	return p, nil
}

// LeaveRoom removes the caller's participation. Leaving a room one is not in succeeds.
func (s *Service) LeaveRoom(ctx context.Context, roomID, userID string) error {
	removed, err := s.repo.Leave(ctx, roomID, userID)
	if err != nil {
		s.log.Error("room leave failed", zap.String("room_id", roomID), zap.String("user_id", userID), zap.Error(err))
		return apperrors.Storage("failed to leave room", err)
	}
	if !removed {
		return nil
	}

	room, err := s.repo.Get(ctx, roomID)
	if err != nil {
		// The row is gone either way; only the notification is lost.
		s.log.Warn("room lookup after leave failed", zap.String("room_id", roomID), zap.Error(err))
		return nil
	}
	s.pub.Publish(events.Event(room.EventID), events.RoomMembership{
		Type: events.TypeRoomLeft, RoomID: roomID, EventID: room.EventID, UserID: userID,
	}, events.Exclude{})
	return nil
}

func (s *Service) ListRooms(ctx context.Context, eventID string) ([]models.Room, error) {
	rooms, err := s.repo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, apperrors.Storage("failed to list rooms", err)
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	return rooms, nil
}

func (s *Service) ListParticipants(ctx context.Context, roomID string) ([]models.RoomParticipant, error) {
	if _, err := s.getRoom(ctx, roomID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, apperrors.Storage("failed to list participants", err)
	}
	if rows == nil {
		rows = []models.RoomParticipant{}
	}
	return rows, nil
}

// Room returns a single room.
func (s *Service) Room(ctx context.Context, roomID string) (*models.Room, error) {
	return s.getRoom(ctx, roomID)
}

// ParticipantIDs returns the user ids currently in a room.
func (s *Service) ParticipantIDs(ctx context.Context, roomID string) (map[string]bool, error) {
	rows, err := s.repo.ListParticipants(ctx, roomID)
	if err != nil {
		return nil, apperrors.Storage("failed to list participants", err)
	}
	ids := make(map[string]bool, len(rows))
	for _, r := range rows {
		ids[r.UserID] = true
	}
	return ids, nil
}

func (s *Service) getRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := s.repo.Get(ctx, roomID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, apperrors.Storage("failed to load room", err)
	}
	return room, nil
}
