package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jgirmay/livemesh/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PresenceRepositoryImpl implements PresenceRepository
type PresenceRepositoryImpl struct {
	db *gorm.DB
}

// NewPresenceRepository creates a new presence repository
func NewPresenceRepository(db *gorm.DB) PresenceRepository {
	return &PresenceRepositoryImpl{db: db}
}

// nextUpdatedAt keeps updated_at strictly increasing even when the clock
// stalls or steps backwards.
func nextUpdatedAt(prev, now time.Time) time.Time {
	now = stamp(now)
	if !prev.IsZero() && !now.After(prev) {
		return stamp(prev).Add(time.Microsecond)
	}
	return now
}

func (r *PresenceRepositoryImpl) Upsert(ctx context.Context, userID, eventID string, status models.PresenceStatus, location *string, now time.Time) (*models.EventPresence, error) {
	var out models.EventPresence
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := lockPresence(tx, userID, eventID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}

		row := models.EventPresence{
			UserID:    userID,
			EventID:   eventID,
			Status:    status,
			Location:  location,
			IsLive:    true,
			UpdatedAt: nextUpdatedAt(prev.UpdatedAt, now),
			CreatedAt: stamp(now),
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "event_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "location", "is_live", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		return tx.Where("user_id = ? AND event_id = ?", userID, eventID).Take(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *PresenceRepositoryImpl) Leave(ctx context.Context, userID, eventID string, now time.Time) (*models.EventPresence, error) {
	var out models.EventPresence
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prev, err := lockPresence(tx, userID, eventID)
		if err != nil {
			return err
		}
		err = tx.Model(&models.EventPresence{}).Where("id = ?", prev.ID).
			Updates(map[string]interface{}{
				"status":     models.PresenceOffline,
				"is_live":    false,
				"updated_at": nextUpdatedAt(prev.UpdatedAt, now),
			}).Error
		if err != nil {
			return err
		}
		return tx.Where("id = ?", prev.ID).Take(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *PresenceRepositoryImpl) Get(ctx context.Context, userID, eventID string) (*models.EventPresence, error) {
	var p models.EventPresence
	err := r.db.WithContext(ctx).Where("user_id = ? AND event_id = ?", userID, eventID).Take(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *PresenceRepositoryImpl) ListLive(ctx context.Context, eventID string) ([]models.EventPresence, error) {
	var rows []models.EventPresence
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND is_live = ?", eventID, true).
		Order("user_id").
		Find(&rows).Error
	return rows, err
}

func (r *PresenceRepositoryImpl) MarkStale(ctx context.Context, cutoff, now time.Time) ([]models.EventPresence, error) {
	var stale []models.EventPresence
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("is_live = ? AND updated_at < ?", true, stamp(cutoff)).
			Find(&stale).Error
		if err != nil || len(stale) == 0 {
			return err
		}

		for i := range stale {
			ts := nextUpdatedAt(stale[i].UpdatedAt, now)
			err := tx.Model(&models.EventPresence{}).
				Where("id = ? AND is_live = ?", stale[i].ID, true).
				Updates(map[string]interface{}{
					"status":     models.PresenceOffline,
					"is_live":    false,
					"updated_at": ts,
				}).Error
			if err != nil {
				return err
			}
			stale[i].Status = models.PresenceOffline
			stale[i].IsLive = false
			stale[i].UpdatedAt = ts
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stale, nil
}

func lockPresence(tx *gorm.DB, userID, eventID string) (models.EventPresence, error) {
	var p models.EventPresence
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND event_id = ?", userID, eventID).
		Take(&p).Error
	return p, notFound(err)
}
