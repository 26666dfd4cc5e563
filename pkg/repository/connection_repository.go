package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jgirmay/livemesh/pkg/models"
	"gorm.io/gorm"
)

// ConnectionRepositoryImpl implements ConnectionRepository
type ConnectionRepositoryImpl struct {
	db *gorm.DB
}

// NewConnectionRepository creates a new connection request repository
func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &ConnectionRepositoryImpl{db: db}
}

func (r *ConnectionRepositoryImpl) Create(ctx context.Context, req *models.ConnectionRequest) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pending int64
		err := tx.Model(&models.ConnectionRequest{}).
			Where("event_id = ? AND from_user_id = ? AND to_user_id = ? AND status = ?",
				req.EventID, req.FromUserID, req.ToUserID, models.ConnectionPending).
			Count(&pending).Error
		if err != nil {
			return err
		}
		if pending > 0 {
			return ErrDuplicate
		}
		return tx.Create(req).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

func (r *ConnectionRepositoryImpl) Get(ctx context.Context, id string) (*models.ConnectionRequest, error) {
	var req models.ConnectionRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&req).Error; err != nil {
		return nil, notFound(err)
	}
	return &req, nil
}

func (r *ConnectionRepositoryImpl) Transition(ctx context.Context, id, toUserID string, next models.ConnectionStatus, responseMessage *string, now time.Time) (*models.ConnectionRequest, error) {
	var out models.ConnectionRequest
	now = stamp(now)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ConnectionRequest{}).
			Where("id = ? AND to_user_id = ? AND status = ? AND expires_at > ?",
				id, toUserID, models.ConnectionPending, now).
			Updates(map[string]interface{}{
				"status":           next,
				"responded_at":     now,
				"response_message": responseMessage,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("id = ?", id).Take(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ConnectionRepositoryImpl) ListIncomingPending(ctx context.Context, eventID, userID string) ([]models.ConnectionRequest, error) {
	var rows []models.ConnectionRequest
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND to_user_id = ? AND status = ?", eventID, userID, models.ConnectionPending).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

func (r *ConnectionRepositoryImpl) ListOutgoing(ctx context.Context, eventID, userID string) ([]models.ConnectionRequest, error) {
	var rows []models.ConnectionRequest
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND from_user_id = ?", eventID, userID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

func (r *ConnectionRepositoryImpl) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	now = stamp(now)
	result := r.db.WithContext(ctx).Model(&models.ConnectionRequest{}).
		Where("status = ? AND expires_at <= ?", models.ConnectionPending, now).
		Updates(map[string]interface{}{
			"status":       models.ConnectionExpired,
			"responded_at": now,
		})
	return result.RowsAffected, result.Error
}
