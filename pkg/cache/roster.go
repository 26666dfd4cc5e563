// Package cache keeps short-lived copies of each event's live roster so
// matchmaking bursts do not all hit the database.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jgirmay/livemesh/pkg/models"
)

// Roster caches the live attendees of an event.
//
// Every Invalidate bumps the event's generation. A reader takes the
// generation before loading rows from the database and hands it to Set,
// which stores nothing if an invalidation happened in between.
type Roster interface {
	// Get returns the cached roster and whether it was present.
	Get(ctx context.Context, eventID string) ([]models.EventPresence, bool, error)
	Generation(ctx context.Context, eventID string) (uint64, error)
	Set(ctx context.Context, eventID string, gen uint64, rows []models.EventPresence) error
	Invalidate(ctx context.Context, eventID string) error
}

type rosterEntry struct {
	rows    []models.EventPresence
	expires time.Time
}

// MemoryRoster is a process-local Roster.
type MemoryRoster struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]rosterEntry
	gens    map[string]uint64
}

func NewMemoryRoster(ttl time.Duration) *MemoryRoster {
	return &MemoryRoster{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]rosterEntry),
		gens:    make(map[string]uint64),
	}
}

var _ Roster = (*MemoryRoster)(nil)

func (m *MemoryRoster) Get(_ context.Context, eventID string) ([]models.EventPresence, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[eventID]
	m.mu.RUnlock()

	if !ok || !m.now().Before(e.expires) {
		return nil, false, nil
	}
	return append([]models.EventPresence(nil), e.rows...), true, nil
}

func (m *MemoryRoster) Generation(_ context.Context, eventID string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gens[eventID], nil
}

func (m *MemoryRoster) Set(_ context.Context, eventID string, gen uint64, rows []models.EventPresence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gens[eventID] != gen {
		return nil
	}
	m.entries[eventID] = rosterEntry{
		rows:    append([]models.EventPresence(nil), rows...),
		expires: m.now().Add(m.ttl),
	}
	return nil
}

func (m *MemoryRoster) Invalidate(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gens[eventID]++
	delete(m.entries, eventID)
	return nil
}

// Noop never caches.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]models.EventPresence, bool, error)  { return nil, false, nil }
func (Noop) Generation(context.Context, string) (uint64, error)                { return 0, nil }
func (Noop) Set(context.Context, string, uint64, []models.EventPresence) error { return nil }
func (Noop) Invalidate(context.Context, string) error                          { return nil }
