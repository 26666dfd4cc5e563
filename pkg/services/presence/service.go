// Package presence tracks which attendees are live at an event.
package presence

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jgirmay/livemesh/pkg/apperrors"
	"github.com/jgirmay/livemesh/pkg/cache"
	"github.com/jgirmay/livemesh/pkg/events"
	"github.com/jgirmay/livemesh/pkg/logger"
	"github.com/jgirmay/livemesh/pkg/metrics"
	"github.com/jgirmay/livemesh/pkg/models"
	"github.com/jgirmay/livemesh/pkg/repository"
)

var (
	ErrPresenceNotFound = apperrors.NotFound("presence")
	ErrInvalidStatus    = apperrors.Validation("invalid presence status", "status must be one of available, busy, in_meeting, away, offline")
	ErrMissingEvent     = apperrors.Validation("eventId is required", "")
)

// Service is the Presence Store.
type Service struct {
	repo    repository.PresenceRepository
	roster  cache.Roster
	pub     events.Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewService(repo repository.PresenceRepository, roster cache.Roster, pub events.Publisher, m *metrics.Metrics, log *zap.Logger) *Service {
	if roster == nil {
		roster = cache.Noop{}
	}
	if pub == nil {
		pub = events.Discard
	}
	return &Service{
		repo:    repo,
		roster:  roster,
		pub:     pub,
		metrics: metrics.OrNew(m),
		log:     logger.OrNamed(log, "presence"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// UpdatePresence upserts the caller's row, marks it live and tells the rest
// of the event. An empty status means available.
func (s *Service) UpdatePresence(ctx context.Context, userID, eventID string, status models.PresenceStatus, location *string) (*models.EventPresence, error) {
	if eventID == "" {
		return nil, ErrMissingEvent
	}
	if status == "" {
		status = models.PresenceAvailable
	}
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if location != nil {
		trimmed := strings.TrimSpace(*location)
		if trimmed == "" {
			location = nil
		} else {
			location = &trimmed
		}
	}

	p, err := s.repo.Upsert(ctx, userID, eventID, status, location, s.now())
	if err != nil {
		s.log.Error("presence upsert failed", zap.String("user_id", userID), zap.String("event_id", eventID), zap.Error(err))
		return nil, apperrors.Storage("failed to update presence", err)
	}

	s.metrics.PresenceUpdates.Inc()
	s.invalidate(ctx, eventID)
	s.pub.Publish(events.Event(eventID), events.NewPresenceUpdate(p), events.ExcludeUser(userID))
	return p, nil
}

// LeavePresence marks the caller not live and broadcasts them as offline.
func (s *Service) LeavePresence(ctx context.Context, userID, eventID string) (*models.EventPresence, error) {
	p, err := s.repo.Leave(ctx, userID, eventID, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPresenceNotFound
	}
	if err != nil {
		s.log.Error("presence leave failed", zap.String("user_id", userID), zap.String("event_id", eventID), zap.Error(err))
		return nil, apperrors.Storage("failed to leave event", err)
	}

	s.invalidate(ctx, eventID)
	s.pub.Publish(events.Event(eventID), events.NewPresenceUpdate(p), events.ExcludeUser(userID))
	return p, nil
}

// ListLiveAttendees returns every live row for the event in no particular order.
func (s *Service) ListLiveAttendees(ctx context.Context, eventID string) ([]models.EventPresence, error) {
	rows, hit, err := s.roster.Get(ctx, eventID)
	if err != nil {
		s.log.Warn("roster cache read failed", zap.String("event_id", eventID), zap.Error(err))
	}
	if hit {
		return rows, nil
	}

	// The generation is read before the rows so an update committed during
	// the query keeps this result out of the cache.
	gen, genErr := s.roster.Generation(ctx, eventID)
	if genErr != nil {
		s.log.Warn("roster cache generation read failed", zap.String("event_id", eventID), zap.Error(genErr))
	}

	rows, err = s.repo.ListLive(ctx, eventID)
	if err != nil {
		return nil, apperrors.Storage("failed to list live attendees", err)
	}
	if genErr == nil {
		if err := s.roster.Set(ctx, eventID, gen, rows); err != nil {
			s.log.Warn("roster cache write failed", zap.String("event_id", eventID), zap.Error(err))
		}
	}
	if rows == nil {
		rows = []models.EventPresence{}
	}
	return rows, nil
}

// Lookup returns the caller's row whether or not it is live.
func (s *Service) Lookup(ctx context.Context, userID, eventID string) (*models.EventPresence, error) {
	p, err := s.repo.Get(ctx, userID, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPresenceNotFound
	}
	if err != nil {
		return nil, apperrors.Storage("failed to load presence", err)
	}
	return p, nil
}

// MarkStale takes every live row not updated since cutoff offline and
// broadcasts each one. It returns how many rows changed.
func (s *Service) MarkStale(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.repo.MarkStale(ctx, cutoff, s.now())
	if err != nil {
		return 0, apperrors.Storage("failed to mark stale presence", err)
	}

	seen := make(map[string]bool)
	for i := range stale {
		p := &stale[i]
		if !seen[p.EventID] {
			seen[p.EventID] = true
			s.invalidate(ctx, p.EventID)
		}
		s.pub.Publish(events.Event(p.EventID), events.NewPresenceUpdate(p), events.ExcludeUser(p.UserID))
	}
	return len(stale), nil
}

func (s *Service) invalidate(ctx context.Context, eventID string) {
	if err := s.roster.Invalidate(ctx, eventID); err != nil {
		s.log.Warn("roster cache invalidate failed", zap.String("event_id", eventID), zap.Error(err))
	}
}
