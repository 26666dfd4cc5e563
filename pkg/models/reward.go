package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RewardConnectionAccepted = "connection_accepted"
	RewardConnectionDeclined = "connection_declined"
)

// RewardEntry is one ledger line. (UserID, Reason, SourceID) is unique so
// a replayed grant is absorbed.
type RewardEntry struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID    string    `json:"userId" gorm:"type:varchar(36);uniqueIndex:idx_reward_once"`
	EventID   string    `json:"eventId" gorm:"type:varchar(36);index"`
	Reason    string    `json:"reason" gorm:"type:varchar(50);uniqueIndex:idx_reward_once"`
	Points    int       `json:"points"`
	SourceID  string    `json:"sourceId" gorm:"type:varchar(36);uniqueIndex:idx_reward_once"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name for GORM
func (RewardEntry) TableName() string {
	return "reward_entries"
}

func (r *RewardEntry) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
