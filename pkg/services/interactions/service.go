// Package interactions records accept/decline outcomes of match suggestions.
package interactions

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/jgirmay/livemesh/pkg/apperrors"
	"github.com/jgirmay/livemesh/pkg/events"
	"github.com/jgirmay/livemesh/pkg/logger"
	"github.com/jgirmay/livemesh/pkg/metrics"
	"github.com/jgirmay/livemesh/pkg/models"
	"github.com/jgirmay/livemesh/pkg/repository"
)

// Response is the caller's answer to a suggestion.
type Response string

const (
	Accept  Response = "accept"
	Decline Response = "decline"
)

var (
	ErrSuggestionNotFound = apperrors.NotFound("match suggestion")
	ErrInvalidResponse    = apperrors.Validation("invalid response", `response must be "accept" or "decline"`)
)

type Service struct {
	repo    repository.MatchRepository
	pub     events.Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewService(repo repository.MatchRepository, pub events.Publisher, m *metrics.Metrics, log *zap.Logger) *Service {
	if pub == nil {
		pub = events.Discard
	}
	return &Service{
		repo:    repo,
		pub:     pub,
		metrics: metrics.OrNew(m),
		log:     logger.OrNamed(log, "interactions"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RespondToSuggestion moves a pending suggestion owned by callerID to
// accepted or declined. Answering a suggestion that is already terminal
// returns it unchanged and creates nothing.
func (s *Service) RespondToSuggestion(ctx context.Context, suggestionID, callerID string, response Response) (*models.LiveMatchSuggestion, error) {
	var next models.SuggestionStatus
	switch response {
	case Accept:
		next = models.SuggestionAccepted
	case Decline:
		next = models.SuggestionDeclined
	default:
		return nil, ErrInvalidResponse
	}

	sugg, err := s.load(ctx, suggestionID)
	if err != nil {
		return nil, err
	}
	if sugg.UserID != callerID {
		return nil, ErrSuggestionNotFound
	}
	if sugg.Status.Terminal() {
		s.metrics.Transitions.WithLabelValues("suggestion", "noop").Inc()
		return sugg, nil
	}

	var interaction *models.LiveInteraction
	if next == models.SuggestionAccepted {
		sid := sugg.ID
		interaction = &models.LiveInteraction{
			EventID:         sugg.EventID,
			InitiatorID:     sugg.UserID,
			RecipientID:     sugg.SuggestedUserID,
			RoomID:          sugg.RoomID,
			InteractionType: models.InteractionMeetingRequest,
			Metadata:        datatypes.JSONMap{"suggestionId": sugg.ID},
			SuggestionID:    &sid,
		}
	}

	now := s.now()
	moved, err := s.repo.TransitionSuggestion(ctx, sugg.ID, next, now, interaction)
	if err != nil {
		s.log.Error("suggestion transition failed", zap.String("suggestion_id", sugg.ID), zap.Error(err))
		return nil, apperrors.Storage("failed to record response", err)
	}

	if !moved {
		// Lost a race or the deadline passed. Expire it if it is still pending.
		if _, err := s.repo.ExpireSuggestion(ctx, sugg.ID, now); err != nil {
			s.log.Warn("suggestion expire failed", zap.String("suggestion_id", sugg.ID), zap.Error(err))
		}
		s.metrics.Transitions.WithLabelValues("suggestion", "noop").Inc()
		return s.load(ctx, sugg.ID)
	}

	s.metrics.Transitions.WithLabelValues("suggestion", string(next)).Inc()
	out, err := s.load(ctx, sugg.ID)
	if err != nil {
		return nil, err
	}
	if next == models.SuggestionAccepted {
		s.pub.Publish(events.Users(out.UserID, out.SuggestedUserID), events.NewMatchAccepted(out), events.Exclude{})
	}
	return out, nil
}

// ListInteractions returns interactions the user took part in, newest first.
func (s *Service) ListInteractions(ctx context.Context, eventID, userID string) ([]models.LiveInteraction, error) {
	rows, err := s.repo.ListInteractions(ctx, eventID, userID)
	if err != nil {
		return nil, apperrors.Storage("failed to list interactions", err)
	}
	if rows == nil {
		rows = []models.LiveInteraction{}
	}
	return rows, nil
}

func (s *Service) load(ctx context.Context, id string) (*models.LiveMatchSuggestion, error) {
	sugg, err := s.repo.GetSuggestion(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSuggestionNotFound
	}
	if err != nil {
		return nil, apperrors.Storage("failed to load suggestion", err)
	}
	return sugg, nil
}
