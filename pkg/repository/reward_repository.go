package repository

import (
	"context"
	"errors"

	"github.com/jgirmay/livemesh/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RewardRepositoryImpl implements RewardRepository
type RewardRepositoryImpl struct {
	db *gorm.DB
}

// NewRewardRepository creates a new reward ledger repository
func NewRewardRepository(db *gorm.DB) RewardRepository {
	return &RewardRepositoryImpl{db: db}
}

func (r *RewardRepositoryImpl) Insert(ctx context.Context, entry *models.RewardEntry) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(entry)
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *RewardRepositoryImpl) Balance(ctx context.Context, userID string) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.RewardEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&total).Error
	return int(total), err
}

func (r *RewardRepositoryImpl) List(ctx context.Context, userID string) ([]models.RewardEntry, error) {
	var rows []models.RewardEntry
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id").Find(&rows).Error
	return rows, err
}
