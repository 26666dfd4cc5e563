// Package repository provides data access layer abstractions and registry
package repository

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// Registry provides centralized access to all repositories
type Registry struct {
	Presence    PresenceRepository
	Rooms       RoomRepository
	Matches     MatchRepository
	Connections ConnectionRepository
	Profiles    ProfileRepository
	Rewards     RewardRepository

	// Database connection
	db *gorm.DB

	// Sync
	mu sync.RWMutex
}

// NewRegistry creates a new repository registry
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{
		db: db,
	}
}

// Initialize initializes all repositories
func (r *Registry) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db == nil {
		return errors.New("repository registry requires a database")
	}

	r.Presence = NewPresenceRepository(r.db)
	r.Rooms = NewRoomRepository(r.db)
	r.Matches = NewMatchRepository(r.db)
	r.Connections = NewConnectionRepository(r.db)
	r.Profiles = NewProfileRepository(r.db)
	r.Rewards = NewRewardRepository(r.db)

	return nil
}

// GetDB returns the database connection
func (r *Registry) GetDB() *gorm.DB {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db
}

// Close closes the registry and all resources
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.db != nil {
		sqlDB, err := r.db.DB()
		if err != nil {
			return fmt.Errorf("failed to get database connection: %w", err)
		}
		if err := sqlDB.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// notFound maps gorm's sentinel onto the repository one.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// stamp normalizes a timestamp to the precision every supported database keeps.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
