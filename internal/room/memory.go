package room

import (
	"context"
	"sync"
	"time"

	"github.com/duelgrid/duelgrid/internal/models"
)

// MemoryStore is a map-backed Store for single-node runs and tests.
// State is lost when the process exits.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*models.Room
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*models.Room)}
}

func (m *MemoryStore) Create(ctx context.Context, room *models.Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rooms[room.ID]; exists {
		return ErrRoomCodeTaken
	}

	cp := room.Clone()
	now := time.Now().UTC()
	cp.Version = 1
	cp.CreatedAt = now
	cp.UpdatedAt = now
	cp.LastActivity = now
	m.rooms[cp.ID] = cp

	*room = *cp.Clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, roomID string) (*models.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryStore) Update(ctx context.Context, roomID string, mutate func(*models.Room) error) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	next.Version = current.Version + 1
	next.UpdatedAt = now
	next.LastActivity = now
	m.rooms[roomID] = next

	return next.Clone(), nil
}

func (m *MemoryStore) DeleteStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for id, r := range m.rooms {
		if r.LastActivity.Before(cutoff) {
			delete(m.rooms, id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}
