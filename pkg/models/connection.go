package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
	ConnectionDeclined ConnectionStatus = "declined"
	ConnectionExpired  ConnectionStatus = "expired"
)

// ConnectionRequest is a person-to-person request outside live matchmaking.
// RespondedAt is nil exactly while Status is pending.
type ConnectionRequest struct {
	ID                     string           `json:"id" gorm:"type:varchar(36);primaryKey"`
	EventID                string           `json:"eventId" gorm:"type:varchar(36);uniqueIndex:idx_conn_pending_pair,where:status = 'pending';index"`
	FromUserID             string           `json:"fromUserId" gorm:"type:varchar(36);uniqueIndex:idx_conn_pending_pair;index"`
	ToUserID               string           `json:"toUserId" gorm:"type:varchar(36);uniqueIndex:idx_conn_pending_pair;index"`
	Message                string           `json:"message" gorm:"type:text"`
	MatchScore             *int             `json:"matchScore"`
	AIRecommendationReason *string          `json:"aiRecommendationReason" gorm:"type:text"`
	Status                 ConnectionStatus `json:"status" gorm:"type:varchar(10);index;default:'pending'"`
	CreatedAt              time.Time        `json:"createdAt" gorm:"index"`
	ExpiresAt              time.Time        `json:"expiresAt" gorm:"index"`
	RespondedAt            *time.Time       `json:"respondedAt"`
	ResponseMessage        *string          `json:"responseMessage" gorm:"type:text"`
}

// TableName specifies the table name for GORM
func (ConnectionRequest) TableName() string {
	return "connection_requests"
}

func (c *ConnectionRequest) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
