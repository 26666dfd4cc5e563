// Package rewards books the points granted when connection requests are answered.
package rewards

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jgirmay/livemesh/pkg/apperrors"
	"github.com/jgirmay/livemesh/pkg/logger"
	"github.com/jgirmay/livemesh/pkg/metrics"
	"github.com/jgirmay/livemesh/pkg/models"
	"github.com/jgirmay/livemesh/pkg/repository"
)

// Grant is one reward for one user caused by one source row.
type Grant struct {
	UserID   string `json:"userId"`
	EventID  string `json:"eventId"`
	Reason   string `json:"reason"`
	Points   int    `json:"points"`
	SourceID string `json:"sourceId"`
}

// Key identifies a grant for deduplication.
func (g Grant) Key() string {
	return fmt.Sprintf("%s:%s:%s", g.Reason, g.SourceID, g.UserID)
}

// Awarder records grants. Implementations must tolerate the same grant twice.
type Awarder interface {
	Award(ctx context.Context, g Grant) error
}

// Ledger writes grants straight to the reward table.
type Ledger struct {
	repo    repository.RewardRepository
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewLedger(repo repository.RewardRepository, m *metrics.Metrics, log *zap.Logger) *Ledger {
	return &Ledger{repo: repo, metrics: metrics.OrNew(m), log: logger.OrNamed(log, "rewards")}
}

var _ Awarder = (*Ledger)(nil)

func (l *Ledger) Award(ctx context.Context, g Grant) error {
	if g.UserID == "" || g.SourceID == "" || g.Points <= 0 {
		return fmt.Errorf("invalid grant %q", g.Key())
	}
	inserted, err := l.repo.Insert(ctx, &models.RewardEntry{
		UserID:   g.UserID,
		EventID:  g.EventID,
		Reason:   g.Reason,
		Points:   g.Points,
		SourceID: g.SourceID,
	})
	if err != nil {
		return fmt.Errorf("record grant %s: %w", g.Key(), err)
	}
	if !inserted {
		l.log.Debug("grant already recorded", zap.String("key", g.Key()))
		return nil
	}
	l.metrics.RewardsGranted.WithLabelValues(g.Reason).Inc()
	return nil
}

// Balance sums every point granted to userID.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	total, err := l.repo.Balance(ctx, userID)
	if err != nil {
		return 0, apperrors.Storage("failed to load reward balance", err)
	}
	return total, nil
}
