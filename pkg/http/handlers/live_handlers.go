package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jgirmay/livemesh/pkg/http/dto"
	"github.com/jgirmay/livemesh/pkg/http/middleware"
	"github.com/jgirmay/livemesh/pkg/logger"
	"github.com/jgirmay/livemesh/pkg/models"
	"github.com/jgirmay/livemesh/pkg/services/connections"
	"github.com/jgirmay/livemesh/pkg/services/interactions"
	"github.com/jgirmay/livemesh/pkg/services/matchmaking"
	"github.com/jgirmay/livemesh/pkg/services/presence"
	"github.com/jgirmay/livemesh/pkg/services/rooms"
)

// BalanceReader reports a user's reward total.
type BalanceReader interface {
	Balance(ctx context.Context, userID string) (int, error)
}

// Services are the collaborators behind the live-event routes.
type Services struct {
	Presence     *presence.Service
	Rooms        *rooms.Service
	Matchmaking  *matchmaking.Service
	Interactions *interactions.Service
	Connections  *connections.Service
	Rewards      BalanceReader
}

// LiveHandlers serves presence, rooms, matchmaking and connection requests.
type LiveHandlers struct {
	svc Services
	log *zap.Logger
}

func NewLiveHandlers(svc Services, log *zap.Logger) *LiveHandlers {
	return &LiveHandlers{svc: svc, log: logger.OrNamed(log, "http")}
}

func (h *LiveHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.log, err)
}

// ==================== Presence ====================

// UpdatePresence handles POST /api/events/{eventId}/presence
func (h *LiveHandlers) UpdatePresence(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdatePresenceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	p, err := h.svc.Presence.UpdatePresence(r.Context(),
		middleware.UserID(r.Context()), chi.URLParam(r, "eventId"),
		models.PresenceStatus(req.Status), req.Location)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// LeavePresence handles DELETE /api/events/{eventId}/presence
func (h *LiveHandlers) LeavePresence(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Presence.LeavePresence(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListLiveAttendees handles GET /api/events/{eventId}/live-attendees
func (h *LiveHandlers) ListLiveAttendees(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Presence.ListLiveAttendees(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

// ==================== Rooms ====================

// ListRooms handles GET /api/events/{eventId}/rooms
func (h *LiveHandlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Rooms.ListRooms(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

// JoinRoom handles POST /api/rooms/{roomId}/join
func (h *LiveHandlers) JoinRoom(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Rooms.JoinRoom(r.Context(), chi.URLParam(r, "roomId"), middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// LeaveRoom handles DELETE /api/rooms/{roomId}/join
func (h *LiveHandlers) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Rooms.LeaveRoom(r.Context(), chi.URLParam(r, "roomId"), middleware.UserID(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SuccessResponse{Success: true})
}

// ListParticipants handles GET /api/rooms/{roomId}/participants
func (h *LiveHandlers) ListParticipants(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Rooms.ListParticipants(r.Context(), chi.URLParam(r, "roomId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

// ==================== Matchmaking ====================

// StartMatchmaking handles POST /api/events/{eventId}/start-matchmaking
func (h *LiveHandlers) StartMatchmaking(w http.ResponseWriter, r *http.Request) {
	var req dto.StartMatchmakingRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	created, err := h.svc.Matchmaking.StartMatchmaking(r.Context(),
		chi.URLParam(r, "eventId"), middleware.UserID(r.Context()),
		matchmaking.StartParams{
			Urgency:          models.Urgency(req.Urgency),
			MaxMatches:       req.MaxMatches,
			MatchingCriteria: req.MatchingCriteria,
			RoomID:           req.RoomID,
		})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.StartMatchmakingResponse{Success: true, RequestID: created.ID})
}

// ListLiveMatches handles GET /api/events/{eventId}/live-matches
func (h *LiveHandlers) ListLiveMatches(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Matchmaking.ListLiveMatches(r.Context(), chi.URLParam(r, "eventId"), middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

// RespondToMatch handles POST /api/live-matches/{matchId}/respond
func (h *LiveHandlers) RespondToMatch(w http.ResponseWriter, r *http.Request) {
	var req dto.RespondSuggestionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	s, err := h.svc.Interactions.RespondToSuggestion(r.Context(),
		chi.URLParam(r, "matchId"), middleware.UserID(r.Context()), interactions.Response(req.Response))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ListInteractions handles GET /api/events/{eventId}/interactions
func (h *LiveHandlers) ListInteractions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.Interactions.ListInteractions(r.Context(), chi.URLParam(r, "eventId"), middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

// ==================== Connection requests ====================

// ListConnectionRequests handles GET /api/events/{eventId}/connection-requests
func (h *LiveHandlers) ListConnectionRequests(w http.ResponseWriter, r *http.Request) {
	listing, err := h.svc.Connections.List(r.Context(), chi.URLParam(r, "eventId"), middleware.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// CreateConnectionRequest handles POST /api/events/{eventId}/connection-requests
func (h *LiveHandlers) CreateConnectionRequest(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateConnectionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	created, err := h.svc.Connections.Create(r.Context(), connections.CreateParams{
		EventID:    chi.URLParam(r, "eventId"),
		FromUserID: middleware.UserID(r.Context()),
		ToUserID:   req.ToUserID,
		Message:    req.Message,
		MatchScore: req.MatchScore,
		Reason:     req.AIRecommendationReason,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// RespondToConnectionRequest handles POST /api/connection-requests/{requestId}/respond
func (h *LiveHandlers) RespondToConnectionRequest(w http.ResponseWriter, r *http.Request) {
	var req dto.RespondConnectionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	updated, err := h.svc.Connections.Respond(r.Context(),
		chi.URLParam(r, "requestId"), middleware.UserID(r.Context()),
		models.ConnectionStatus(req.Status), req.ResponseMessage)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// ==================== Rewards ====================

// GetBalance handles GET /api/rewards/balance
func (h *LiveHandlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	points, err := h.svc.Rewards.Balance(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{UserID: userID, Points: points})
}

// orEmpty keeps empty lists as [] rather than null on the wire.
func orEmpty[T any](rows []T) []T {
	if rows == nil {
		return []T{}
	}
	return rows
}
