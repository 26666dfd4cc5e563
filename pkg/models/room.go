package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Room is a breakout space inside an event.
type Room struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	EventID   string    `json:"eventId" gorm:"type:varchar(36);index"`
	Name      string    `json:"name" gorm:"type:varchar(255)"`
	Capacity  *int      `json:"capacity"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName specifies the table name for GORM
func (Room) TableName() string {
	return "rooms"
}

func (r *Room) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// RoomParticipant records that a user currently occupies a room.
type RoomParticipant struct {
	ID       string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	RoomID   string    `json:"roomId" gorm:"type:varchar(36);uniqueIndex:idx_room_user"`
	UserID   string    `json:"userId" gorm:"type:varchar(36);uniqueIndex:idx_room_user;index"`
	JoinedAt time.Time `json:"joinedAt"`
}

// TableName specifies the table name for GORM
func (RoomParticipant) TableName() string {
	return "room_participants"
}

func (p *RoomParticipant) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}
