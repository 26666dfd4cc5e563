// Package matchmaking turns the live roster into ranked, expiring match suggestions.
package matchmaking

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/jgirmay/livemesh/pkg/apperrors"
	"github.com/jgirmay/livemesh/pkg/config"
	"github.com/jgirmay/livemesh/pkg/events"
	"github.com/jgirmay/livemesh/pkg/logger"
	"github.com/jgirmay/livemesh/pkg/metrics"
	"github.com/jgirmay/livemesh/pkg/models"
	"github.com/jgirmay/livemesh/pkg/repository"
	"github.com/jgirmay/livemesh/pkg/validation"
)

const DefaultLocation = "Main networking area"

var ErrRoomNotFound = apperrors.NotFound("room")

// RosterSource lists the live attendees of an event.
type RosterSource interface {
	ListLiveAttendees(ctx context.Context, eventID string) ([]models.EventPresence, error)
}

// RoomDirectory resolves rooms and their occupants.
type RoomDirectory interface {
	Room(ctx context.Context, roomID string) (*models.Room, error)
	ParticipantIDs(ctx context.Context, roomID string) (map[string]bool, error)
}

// StartParams are the caller-supplied knobs of a matchmaking request.
// A nil MaxMatches takes the configured default; an explicit zero asks for
// no suggestions.
type StartParams struct {
	Urgency          models.Urgency `validate:"omitempty,oneof=low medium high"`
	MaxMatches       *int           `validate:"omitempty,min=0"`
	MatchingCriteria models.MatchingCriteria
	RoomID           *string
}

type Service struct {
	matches  repository.MatchRepository
	profiles repository.ProfileRepository
	roster   RosterSource
	rooms    RoomDirectory
	pub      events.Publisher
	metrics  *metrics.Metrics
	log      *zap.Logger
	cfg      config.MatchingConfig
	weights  Weights
	now      func() time.Time
}

func NewService(
	matches repository.MatchRepository,
	profiles repository.ProfileRepository,
	roster RosterSource,
	rooms RoomDirectory,
	pub events.Publisher,
	cfg config.MatchingConfig,
	m *metrics.Metrics,
	log *zap.Logger,
) *Service {
	if pub == nil {
		pub = events.Discard
	}
	return &Service{
		matches:  matches,
		profiles: profiles,
		roster:   roster,
		rooms:    rooms,
		pub:      pub,
		metrics:  metrics.OrNew(m),
		log:      logger.OrNamed(log, "matchmaking"),
		cfg:      cfg,
		weights:  WeightsFromConfig(cfg),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartMatchmaking records a request and its top suggestions in one
// transaction. An empty roster still creates the request.
func (s *Service) StartMatchmaking(ctx context.Context, eventID, userID string, params StartParams) (*models.LiveMatchRequest, error) {
	if eventID == "" {
		return nil, apperrors.Validation("eventId is required", "")
	}
	if err := validation.Struct(params); err != nil {
		return nil, err
	}
	if params.Urgency == "" {
		params.Urgency = models.UrgencyMedium
	}
	limit := s.cfg.DefaultMaxMatches
	if params.MaxMatches != nil {
		limit = *params.MaxMatches
	}
	if limit > s.cfg.MaxMaxMatches {
		return nil, apperrors.Validation("maxMatches too large", fmt.Sprintf("maxMatches must be at most %d", s.cfg.MaxMaxMatches))
	}

	var room *models.Room
	if params.RoomID != nil && *params.RoomID != "" {
		r, err := s.rooms.Room(ctx, *params.RoomID)
		if err != nil {
			if apperrors.HasStatus(err, http.StatusNotFound) {
				return nil, ErrRoomNotFound
			}
			return nil, err
		}
		if r.EventID != eventID {
			return nil, ErrRoomNotFound
		}
		room = r
	} else {
		params.RoomID = nil
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	requester, candidates, err := s.candidates(ctx, eventID, userID, params, room)
	if err != nil {
		return nil, err
	}

	ranked := Rank(s.weights, requester, candidates, params.MatchingCriteria)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	req := &models.LiveMatchRequest{
		EventID:          eventID,
		UserID:           userID,
		RoomID:           params.RoomID,
		MatchingCriteria: datatypes.NewJSONType(params.MatchingCriteria),
		Urgency:          params.Urgency,
		MaxMatches:       limit,
		Status:           models.RequestActive,
		ExpiresAt:        now.Add(s.cfg.RequestTTL),
		CreatedAt:        now,
	}

	locations := make(map[string]*string, len(candidates))
	for _, c := range candidates {
		locations[c.UserID] = c.Location
	}
	suggestions := make([]models.LiveMatchSuggestion, 0, len(ranked))
	for _, r := range ranked {
		suggestions = append(suggestions, models.LiveMatchSuggestion{
			EventID:           eventID,
			UserID:            userID,
			SuggestedUserID:   r.UserID,
			RoomID:            params.RoomID,
			MatchScore:        r.Score,
			MatchReasons:      datatypes.JSONSlice[string](r.Reasons),
			SuggestedLocation: suggestedLocation(locations[r.UserID], room),
			SuggestedTime:     now.Add(s.cfg.SuggestionLead),
			Status:            models.SuggestionPending,
			ExpiresAt:         req.ExpiresAt,
			CreatedAt:         now,
		})
	}

	if err := s.matches.CreateRequest(ctx, req, suggestions); err != nil {
		s.log.Error("matchmaking persist failed", zap.String("event_id", eventID), zap.String("user_id", userID), zap.Error(err))
		return nil, apperrors.Storage("failed to start matchmaking", err)
	}

	s.metrics.MatchRequests.Inc()
	s.metrics.SuggestionsCreated.Add(float64(len(suggestions)))
	s.log.Debug("matchmaking started",
		zap.String("request_id", req.ID),
		zap.Int("candidates", len(candidates)),
		zap.Int("suggestions", len(suggestions)))

	s.pub.Publish(events.User(userID), events.MatchmakingStarted{
		Type:            events.TypeMatchmakingStarted,
		EventID:         eventID,
		UserID:          userID,
		RequestID:       req.ID,
		SuggestionCount: len(suggestions),
	}, events.Exclude{})
	return req, nil
}

// ListLiveMatches returns suggestions the caller made or was named in, newest first.
func (s *Service) ListLiveMatches(ctx context.Context, eventID, userID string) ([]models.LiveMatchSuggestion, error) {
	rows, err := s.matches.ListSuggestions(ctx, eventID, userID)
	if err != nil {
		return nil, apperrors.Storage("failed to list live matches", err)
	}
	if rows == nil {
		rows = []models.LiveMatchSuggestion{}
	}
	return rows, nil
}

// GetRequest returns a request visible only to its owner.
func (s *Service) GetRequest(ctx context.Context, requestID, userID string) (*models.LiveMatchRequest, error) {
	req, err := s.matches.GetRequest(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && req.UserID != userID) {
		return nil, apperrors.NotFound("match request")
	}
	if err != nil {
		return nil, apperrors.Storage("failed to load match request", err)
	}
	return req, nil
}

func (s *Service) candidates(ctx context.Context, eventID, userID string, params StartParams, room *models.Room) (Candidate, []Candidate, error) {
	live, err := s.roster.ListLiveAttendees(ctx, eventID)
	if err != nil {
		return Candidate{}, nil, err
	}

	var inRoom map[string]bool
	if room != nil && params.MatchingCriteria.SameRoomOnly {
		if inRoom, err = s.rooms.ParticipantIDs(ctx, room.ID); err != nil {
			return Candidate{}, nil, err
		}
	}

	requester := Candidate{UserID: userID}
	ids := []string{userID}
	var out []Candidate
	seen := map[string]bool{userID: true}
	for _, p := range live {
		if p.UserID == userID {
			requester.Location = p.Location
			continue
		}
		if seen[p.UserID] || (inRoom != nil && !inRoom[p.UserID]) {
			continue
		}
		seen[p.UserID] = true
		out = append(out, Candidate{UserID: p.UserID, Location: p.Location})
		ids = append(ids, p.UserID)
	}

	profiles, err := s.profiles.GetMany(ctx, ids)
	if err != nil {
		return Candidate{}, nil, apperrors.Storage("failed to load profiles", err)
	}
	requester.Profile = profiles[userID]
	for i := range out {
		out[i].Profile = profiles[out[i].UserID]
	}
	return requester, out, nil
}

func suggestedLocation(candidateLocation *string, room *models.Room) string {
	if candidateLocation != nil && *candidateLocation != "" {
		return *candidateLocation
	}
	if room != nil && room.Name != "" {
		return room.Name
	}
	return DefaultLocation
}
