package repository

import (
	"context"
	"time"

	"github.com/jgirmay/livemesh/pkg/models"
	"gorm.io/gorm"
)

// MatchRepositoryImpl implements MatchRepository
type MatchRepositoryImpl struct {
	db *gorm.DB
}

// NewMatchRepository creates a new match repository
func NewMatchRepository(db *gorm.DB) MatchRepository {
	return &MatchRepositoryImpl{db: db}
}

func (r *MatchRepositoryImpl) CreateRequest(ctx context.Context, req *models.LiveMatchRequest, suggestions []models.LiveMatchSuggestion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return err
		}
		if len(suggestions) == 0 {
			return nil
		}
		for i := range suggestions {
			suggestions[i].RequestID = req.ID
		}
		return tx.Create(&suggestions).Error
	})
}

func (r *MatchRepositoryImpl) GetRequest(ctx context.Context, id string) (*models.LiveMatchRequest, error) {
	var req models.LiveMatchRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&req).Error; err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

func (r *MatchRepositoryImpl) GetSuggestion(ctx context.Context, id string) (*models.LiveMatchSuggestion, error) {
	var s models.LiveMatchSuggestion
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *MatchRepositoryImpl) ListSuggestions(ctx context.Context, eventID, userID string) ([]models.LiveMatchSuggestion, error) {
	var rows []models.LiveMatchSuggestion
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Where(r.db.Where("user_id = ?", userID).Or("suggested_user_id = ?", userID)).
		Order("created_at DESC, match_score DESC, suggested_user_id").
		Find(&rows).Error
	return rows, err
}

func (r *MatchRepositoryImpl) TransitionSuggestion(ctx context.Context, id string, next models.SuggestionStatus, now time.Time, interaction *models.LiveInteraction) (bool, error) {
	moved := false
	now = stamp(now)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.LiveMatchSuggestion{}).
			Where("id = ? AND status = ? AND expires_at > ?", id, models.SuggestionPending, now).
			Updates(map[string]interface{}{
				"status":       next,
				"responded_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		moved = true

		if interaction == nil {
			return nil
		}
		interaction.CreatedAt = now
		return tx.Create(interaction).Error
	})
	if err != nil {
		return false, err
	}
	return moved, nil
}

func (r *MatchRepositoryImpl) ExpireSuggestion(ctx context.Context, id string, now time.Time) (bool, error) {
	now = stamp(now)
	result := r.db.WithContext(ctx).Model(&models.LiveMatchSuggestion{}).
		Where("id = ? AND status = ? AND expires_at <= ?", id, models.SuggestionPending, now).
		Updates(map[string]interface{}{
			"status":       models.SuggestionExpired,
			"responded_at": now,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *MatchRepositoryImpl) ExpirePendingSuggestions(ctx context.Context, now time.Time) (int64, error) {
	now = stamp(now)
	result := r.db.WithContext(ctx).Model(&models.LiveMatchSuggestion{}).
		Where("status = ? AND expires_at <= ?", models.SuggestionPending, now).
		Updates(map[string]interface{}{
			"status":       models.SuggestionExpired,
			"responded_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *MatchRepositoryImpl) ExpireRequests(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.LiveMatchRequest{}).
		Where("status = ? AND expires_at <= ?", models.RequestActive, stamp(now)).
		Update("status", models.RequestExpired)
	return result.RowsAffected, result.Error
}

func (r *MatchRepositoryImpl) ListInteractions(ctx context.Context, eventID, userID string) ([]models.LiveInteraction, error) {
	var rows []models.LiveInteraction
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Where(r.db.Where("initiator_id = ?", userID).Or("recipient_id = ?", userID)).
		Order("created_at DESC, id").
		Find(&rows).Error
	return rows, err
}
