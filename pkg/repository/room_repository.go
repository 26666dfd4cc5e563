package repository

import (
	"context"
	"time"

	"github.com/jgirmay/livemesh/pkg/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoomRepositoryImpl implements RoomRepository
type RoomRepositoryImpl struct {
	db *gorm.DB
}

// NewRoomRepository creates a new room repository
func NewRoomRepository(db *gorm.DB) RoomRepository {
	return &RoomRepositoryImpl{db: db}
}

func (r *RoomRepositoryImpl) Create(ctx context.Context, room *models.Room) error {
	return r.db.WithContext(ctx).Create(room).Error
}

func (r *RoomRepositoryImpl) Get(ctx context.Context, id string) (*models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&room).Error; err != nil {
		return nil, notFound(err)
	}
	return &room, nil
}

func (r *RoomRepositoryImpl) ListByEvent(ctx context.Context, eventID string) ([]models.Room, error) {
	var rooms []models.Room
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Order("name, id").Find(&rooms).Error
	return rooms, err
}

// Join locks the room row so capacity checks and inserts serialize per room.
func (r *RoomRepositoryImpl) Join(ctx context.Context, roomID, userID string, now time.Time) (*models.RoomParticipant, error) {
	var out models.RoomParticipant
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", roomID).Take(&room).Error
		if err != nil {
			return notFound(err)
		}

		if room.Capacity != nil {
			var existing int64
			err := tx.Model(&models.RoomParticipant{}).
				Where("room_id = ? AND user_id = ?", roomID, userID).
				Count(&existing).Error
			if err != nil {
				return err
			}
			if existing == 0 {
				var occupied int64
				if err := tx.Model(&models.RoomParticipant{}).Where("room_id = ?", roomID).Count(&occupied).Error; err != nil {
					return err
				}
				if occupied >= int64(*room.Capacity) {
					return ErrRoomFull
				}
			}
		}

		row := models.RoomParticipant{RoomID: roomID, UserID: userID, JoinedAt: stamp(now)}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"joined_at"}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		return tx.Where("room_id = ? AND user_id = ?", roomID, userID).Take(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *RoomRepositoryImpl) Leave(ctx context.Context, roomID, userID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Where("user_id = ?", userID).
		Delete(&models.RoomParticipant{})

	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

func (r *RoomRepositoryImpl) ListParticipants(ctx context.Context, roomID string) ([]models.RoomParticipant, error) {
	var rows []models.RoomParticipant
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("joined_at, user_id").Find(&rows).Error
	return rows, err
}
