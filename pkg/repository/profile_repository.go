package repository

import (
	"context"

	"github.com/jgirmay/livemesh/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepositoryImpl implements ProfileRepository
type ProfileRepositoryImpl struct {
	db *gorm.DB
}

// NewProfileRepository creates a new attendee profile repository
func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &ProfileRepositoryImpl{db: db}
}

func (r *ProfileRepositoryImpl) Upsert(ctx context.Context, profile *models.AttendeeProfile) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(profile).Error
}

func (r *ProfileRepositoryImpl) Get(ctx context.Context, userID string) (*models.AttendeeProfile, error) {
	var p models.AttendeeProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&p).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *ProfileRepositoryImpl) GetMany(ctx context.Context, userIDs []string) (map[string]*models.AttendeeProfile, error) {
	out := make(map[string]*models.AttendeeProfile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var rows []models.AttendeeProfile
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].UserID] = &rows[i]
	}
	return out, nil
}
