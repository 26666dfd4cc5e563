// Package connections implements the person-to-person connection request workflow.
package connections

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/jgirmay/livemesh/pkg/apperrors"
	"github.com/jgirmay/livemesh/pkg/config"
	"github.com/jgirmay/livemesh/pkg/events"
	"github.com/jgirmay/livemesh/pkg/logger"
	"github.com/jgirmay/livemesh/pkg/metrics"
	"github.com/jgirmay/livemesh/pkg/models"
	"github.com/jgirmay/livemesh/pkg/repository"
	"github.com/jgirmay/livemesh/pkg/services/rewards"
	"github.com/jgirmay/livemesh/pkg/validation"
)

var (
	ErrNotFoundOrForbidden = apperrors.NotFound("connection request")
	ErrSelfConnection      = apperrors.Validation("cannot send a connection request to yourself", "")
	ErrDuplicatePending    = apperrors.Conflict("a pending connection request already exists")
	ErrInvalidStatus       = apperrors.Validation("invalid status", `status must be "accepted" or "declined"`)
)

// CreateParams describe a new request.
type CreateParams struct {
	EventID    string `validate:"required"`
	FromUserID string `validate:"required"`
	ToUserID   string `validate:"required"`
	Message    string
	MatchScore *int `validate:"omitempty,min=0,max=100"`
	Reason     *string
}

// Listing is the caller's view of requests at an event.
type Listing struct {
	Incoming      []models.ConnectionRequest `json:"incoming"`
	Outgoing      []models.ConnectionRequest `json:"outgoing"`
	IncomingCount int                        `json:"incomingCount"`
	OutgoingCount int                        `json:"outgoingCount"`
}

type Service struct {
	repo    repository.ConnectionRepository
	awarder rewards.Awarder
	pub     events.Publisher
	metrics *metrics.Metrics
	log     *zap.Logger
	cfg     config.ConnectionsConfig
	points  config.RewardsConfig
	now     func() time.Time
}

func NewService(
	repo repository.ConnectionRepository,
	awarder rewards.Awarder,
	pub events.Publisher,
	cfg config.ConnectionsConfig,
	points config.RewardsConfig,
	m *metrics.Metrics,
	log *zap.Logger,
) *Service {
	if pub == nil {
		pub = events.Discard
	}
	return &Service{
		repo:    repo,
		awarder: awarder,
		pub:     pub,
		metrics: metrics.OrNew(m),
		log:     logger.OrNamed(log, "connections"),
		cfg:     cfg,
		points:  points,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Create(ctx context.Context, p CreateParams) (*models.ConnectionRequest, error) {
	if err := validation.Struct(p); err != nil {
		return nil, err
	}
	if p.FromUserID == p.ToUserID {
		return nil, ErrSelfConnection
	}
	p.Message = strings.TrimSpace(p.Message)
	if s.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(p.Message) > s.cfg.MaxMessageLength {
		return nil, apperrors.Validation("message too long", fmt.Sprintf("message must be at most %d characters", s.cfg.MaxMessageLength))
	}

	now := s.now().Truncate(time.Microsecond)
	req := &models.ConnectionRequest{
		EventID:                p.EventID,
		FromUserID:             p.FromUserID,
		ToUserID:               p.ToUserID,
		Message:                p.Message,
		MatchScore:             p.MatchScore,
		AIRecommendationReason: p.Reason,
		Status:                 models.ConnectionPending,
		CreatedAt:              now,
		ExpiresAt:              now.Add(s.cfg.TTL),
	}
	err := s.repo.Create(ctx, req)
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, ErrDuplicatePending
	}
	if err != nil {
		s.log.Error("connection request create failed", zap.String("from", p.FromUserID), zap.String("to", p.ToUserID), zap.Error(err))
		return nil, apperrors.Storage("failed to create connection request", err)
	}

	s.pub.Publish(events.User(req.ToUserID), events.ConnectionRequested{
		Type:       events.TypeConnectionRequest,
		RequestID:  req.ID,
		EventID:    req.EventID,
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
	}, events.Exclude{})
	return req, nil
}

// Respond answers a pending request addressed to toUserID. Foreign, terminal,
// expired and missing requests all yield ErrNotFoundOrForbidden.
func (s *Service) Respond(ctx context.Context, requestID, toUserID string, status models.ConnectionStatus, responseMessage *string) (*models.ConnectionRequest, error) {
	if status != models.ConnectionAccepted && status != models.ConnectionDeclined {
		return nil, ErrInvalidStatus
	}
	if responseMessage != nil {
		trimmed := strings.TrimSpace(*responseMessage)
		if s.cfg.MaxMessageLength > 0 && utf8.RuneCountInString(trimmed) > s.cfg.MaxMessageLength {
			return nil, apperrors.Validation("response message too long", fmt.Sprintf("responseMessage must be at most %d characters", s.cfg.MaxMessageLength))
		}
		responseMessage = &trimmed
	}

	req, err := s.repo.Transition(ctx, requestID, toUserID, status, responseMessage, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		s.metrics.Transitions.WithLabelValues("connection", "rejected").Inc()
		return nil, ErrNotFoundOrForbidden
	}
	if err != nil {
		s.log.Error("connection request respond failed", zap.String("request_id", requestID), zap.Error(err))
		return nil, apperrors.Storage("failed to respond to connection request", err)
	}
	s.metrics.Transitions.WithLabelValues("connection", string(status)).Inc()

	s.grantRewards(ctx, req)
	s.pub.Publish(events.User(req.FromUserID), events.ConnectionResponded{
		Type:      events.TypeConnectionResponse,
		RequestID: req.ID,
		EventID:   req.EventID,
		Status:    string(req.Status),
	}, events.Exclude{})
	return req, nil
}

// List returns pending incoming and all outgoing requests, newest first.
func (s *Service) List(ctx context.Context, eventID, userID string) (*Listing, error) {
	incoming, err := s.repo.ListIncomingPending(ctx, eventID, userID)
	if err != nil {
		return nil, apperrors.Storage("failed to list connection requests", err)
	}
	outgoing, err := s.repo.ListOutgoing(ctx, eventID, userID)
	if err != nil {
		return nil, apperrors.Storage("failed to list connection requests", err)
	}
	if incoming == nil {
		incoming = []models.ConnectionRequest{}
	}
	if outgoing == nil {
		outgoing = []models.ConnectionRequest{}
	}
	return &Listing{
		Incoming:      incoming,
		Outgoing:      outgoing,
		IncomingCount: len(incoming),
		OutgoingCount: len(outgoing),
	}, nil
}

// grantRewards is best effort; the transition has already committed.
func (s *Service) grantRewards(ctx context.Context, req *models.ConnectionRequest) {
	if s.awarder == nil {
		return
	}
	var grants []rewards.Grant
	switch req.Status {
	case models.ConnectionAccepted:
		for _, uid := range []string{req.FromUserID, req.ToUserID} {
			grants = append(grants, rewards.Grant{
				UserID: uid, EventID: req.EventID, Reason: models.RewardConnectionAccepted,
				Points: s.points.AcceptPoints, SourceID: req.ID,
			})
		}
	case models.ConnectionDeclined:
		grants = append(grants, rewards.Grant{
			UserID: req.ToUserID, EventID: req.EventID, Reason: models.RewardConnectionDeclined,
			Points: s.points.DeclinePoints, SourceID: req.ID,
		})
	}
	for _, g := range grants {
		if err := s.awarder.Award(ctx, g); err != nil {
			s.log.Warn("reward grant failed", zap.String("request_id", req.ID), zap.String("user_id", g.UserID), zap.Error(err))
		}
	}
}
