package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

type RequestStatus string

const (
	RequestActive  RequestStatus = "active"
	RequestExpired RequestStatus = "expired"
)

// SuggestionStatus moves from pending to exactly one terminal value.
type SuggestionStatus string

const (
	SuggestionPending  SuggestionStatus = "pending"
	SuggestionAccepted SuggestionStatus = "accepted"
	SuggestionDeclined SuggestionStatus = "declined"
	SuggestionExpired  SuggestionStatus = "expired"
)

func (s SuggestionStatus) Terminal() bool {
	return s != SuggestionPending
}

// MatchingCriteria narrows and weights the candidate roster.
type MatchingCriteria struct {
	Industries    []string `json:"industries,omitempty"`
	Goals         []string `json:"goals,omitempty"`
	Interests     []string `json:"interests,omitempty"`
	MaxDistanceKm *float64 `json:"maxDistanceKm,omitempty"`
	SameRoomOnly  bool     `json:"sameRoomOnly,omitempty"`
}

// LiveMatchRequest is immutable after creation apart from the sweeper
// moving Status to expired.
type LiveMatchRequest struct {
	ID               string                               `json:"id" gorm:"type:varchar(36);primaryKey"`
	EventID          string                               `json:"eventId" gorm:"type:varchar(36);index"`
	UserID           string                               `json:"userId" gorm:"type:varchar(36);index"`
	RoomID           *string                              `json:"roomId" gorm:"type:varchar(36)"`
	MatchingCriteria datatypes.JSONType[MatchingCriteria] `json:"matchingCriteria"`
	Urgency          Urgency                              `json:"urgency" gorm:"type:varchar(10);default:'medium'"`
	MaxMatches       int                                  `json:"maxMatches" gorm:"default:5"`
	Status           RequestStatus                        `json:"status" gorm:"type:varchar(10);index;default:'active'"`
	ExpiresAt        time.Time                            `json:"expiresAt" gorm:"index"`
	CreatedAt        time.Time                            `json:"createdAt"`
}

// TableName specifies the table name for GORM
func (LiveMatchRequest) TableName() string {
	return "live_match_requests"
}

func (r *LiveMatchRequest) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

type LiveMatchSuggestion struct {
	ID                string                      `json:"id" gorm:"type:varchar(36);primaryKey"`
	RequestID         string                      `json:"requestId" gorm:"type:varchar(36);index"`
	EventID           string                      `json:"eventId" gorm:"type:varchar(36);index"`
	UserID            string                      `json:"userId" gorm:"type:varchar(36);index"`
	SuggestedUserID   string                      `json:"suggestedUserId" gorm:"type:varchar(36);index"`
	RoomID            *string                     `json:"roomId" gorm:"type:varchar(36)"`
	MatchScore        int                         `json:"matchScore"`
	MatchReasons      datatypes.JSONSlice[string] `json:"matchReasons"`
	SuggestedLocation string                      `json:"suggestedLocation" gorm:"type:varchar(255)"`
	SuggestedTime     time.Time                   `json:"suggestedTime"`
	Status            SuggestionStatus            `json:"status" gorm:"type:varchar(10);index;default:'pending'"`
	ExpiresAt         time.Time                   `json:"expiresAt" gorm:"index"`
	RespondedAt       *time.Time                  `json:"respondedAt"`
	CreatedAt         time.Time                   `json:"createdAt"`
}

// TableName specifies the table name for GORM
func (LiveMatchSuggestion) TableName() string {
	return "live_match_suggestions"
}

func (s *LiveMatchSuggestion) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

const InteractionMeetingRequest = "meeting_request"

// LiveInteraction is written once, when a suggestion is accepted.
// SuggestionID is unique so a suggestion can never yield two interactions.
type LiveInteraction struct {
	ID              string            `json:"id" gorm:"type:varchar(36);primaryKey"`
	EventID         string            `json:"eventId" gorm:"type:varchar(36);index"`
	InitiatorID     string            `json:"initiatorId" gorm:"type:varchar(36);index"`
	RecipientID     string            `json:"recipientId" gorm:"type:varchar(36);index"`
	RoomID          *string           `json:"roomId" gorm:"type:varchar(36)"`
	InteractionType string            `json:"interactionType" gorm:"type:varchar(50)"`
	Metadata        datatypes.JSONMap `json:"metadata"`
	SuggestionID    *string           `json:"suggestionId,omitempty" gorm:"type:varchar(36);uniqueIndex"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// TableName specifies the table name for GORM
func (LiveInteraction) TableName() string {
	return "live_interactions"
}

func (i *LiveInteraction) BeforeCreate(*gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}
