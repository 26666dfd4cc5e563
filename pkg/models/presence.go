package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PresenceStatus is the self-reported availability of an attendee.
type PresenceStatus string

const (
	PresenceAvailable PresenceStatus = "available"
	PresenceBusy      PresenceStatus = "busy"
	PresenceInMeeting PresenceStatus = "in_meeting"
	PresenceAway      PresenceStatus = "away"
	PresenceOffline   PresenceStatus = "offline"
)

// Valid reports whether s is a known presence status.
func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceAvailable, PresenceBusy, PresenceInMeeting, PresenceAway, PresenceOffline:
		return true
	}
	return false
}

// EventPresence is the single row tracking a user at an event.
// UpdatedAt is written by the repository so that it strictly increases per row.
type EventPresence struct {
	ID        string         `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID    string         `json:"userId" gorm:"type:varchar(36);uniqueIndex:idx_presence_user_event"`
	EventID   string         `json:"eventId" gorm:"type:varchar(36);uniqueIndex:idx_presence_user_event;index"`
	Status    PresenceStatus `json:"status" gorm:"type:varchar(20)"`
	Location  *string        `json:"location"`
	IsLive    bool           `json:"isLive" gorm:"index"`
	UpdatedAt time.Time      `json:"updatedAt" gorm:"autoUpdateTime:false;index"`
	CreatedAt time.Time      `json:"createdAt"`
}

// TableName specifies the table name for GORM
func (EventPresence) TableName() string {
	return "event_presences"
}

func (p *EventPresence) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
