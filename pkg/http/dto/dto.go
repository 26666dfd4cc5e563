// Package dto holds the JSON request and response bodies of the REST API.
package dto

import (
	"time"

	"github.com/jgirmay/livemesh/pkg/models"
)

// UpdatePresenceRequest is the body of POST /api/events/{eventId}/presence
type UpdatePresenceRequest struct {
	Status   string  `json:"status" binding:"omitempty,oneof=available busy in_meeting away offline"`
	Location *string `json:"location" binding:"omitempty,max=200"`
}

// StartMatchmakingRequest is the body of POST /api/events/{eventId}/start-matchmaking
type StartMatchmakingRequest struct {
	Urgency          string                  `json:"urgency" binding:"omitempty,oneof=low medium high"`
	MaxMatches       *int                    `json:"maxMatches" binding:"omitempty,min=0"`
	MatchingCriteria models.MatchingCriteria `json:"matchingCriteria"`
	RoomID           *string                 `json:"roomId"`
}

type StartMatchmakingResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"requestId"`
}

// RespondSuggestionRequest is the body of POST /api/live-matches/{matchId}/respond
type RespondSuggestionRequest struct {
	Response string `json:"response" binding:"required,oneof=accept decline"`
}

// CreateConnectionRequest is the body of POST /api/events/{eventId}/connection-requests
type CreateConnectionRequest struct {
	ToUserID               string  `json:"toUserId" binding:"required"`
	Message                string  `json:"message"`
	MatchScore             *int    `json:"matchScore" binding:"omitempty,min=0,max=100"`
	AIRecommendationReason *string `json:"aiRecommendationReason"`
}

// RespondConnectionRequest is the body of POST /api/connection-requests/{requestId}/respond
type RespondConnectionRequest struct {
	Status          string  `json:"status" binding:"required,oneof=accepted declined"`
	ResponseMessage *string `json:"responseMessage"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type BalanceResponse struct {
	UserID string `json:"userId"`
	Points int    `json:"points"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
