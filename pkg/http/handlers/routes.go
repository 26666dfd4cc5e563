package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/jgirmay/livemesh/pkg/http/middleware"
)

// RegisterLiveRoutes mounts the authenticated /api routes.
func RegisterLiveRoutes(router chi.Router, h *LiveHandlers, auth middleware.Authenticator) {
	router.Route("/api", func(r chi.Router) {
		r.Use(middleware.RequireUser(auth))

		r.Route("/events/{eventId}", func(r chi.Router) {
			r.Post("/presence", h.UpdatePresence)
			r.Delete("/presence", h.LeavePresence)
			r.Get("/live-attendees", h.ListLiveAttendees)
			r.Get("/rooms", h.ListRooms)

			r.Post("/start-matchmaking", h.StartMatchmaking)
			r.Get("/live-matches", h.ListLiveMatches)
			r.Get("/interactions", h.ListInteractions)

			r.Get("/connection-requests", h.ListConnectionRequests)
			r.Post("/connection-requests", h.CreateConnectionRequest)
		})

		r.Route("/rooms/{roomId}", func(r chi.Router) {
			r.Post("/join", h.JoinRoom)
			r.Delete("/join", h.LeaveRoom)
			r.Get("/participants", h.ListParticipants)
		})

		r.Post("/live-matches/{matchId}/respond", h.RespondToMatch)
		r.Post("/connection-requests/{requestId}/respond", h.RespondToConnectionRequest)
		r.Get("/rewards/balance", h.GetBalance)
	})
}
