// Package models holds the gorm entities persisted by livemesh.
package models

// All lists every entity for auto-migration.
func All() []any {
	return []any{
		&EventPresence{},
		&Room{},
		&RoomParticipant{},
		&LiveMatchRequest{},
		&LiveMatchSuggestion{},
		&LiveInteraction{},
		&ConnectionRequest{},
		&AttendeeProfile{},
		&RewardEntry{},
	}
}
