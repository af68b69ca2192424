package room

import (
	"context"
	"math/rand"
	"time"

	"github.com/duelgrid/duelgrid/internal/models"
)

// Store is the persistence port for room documents. Implementations must
// make Update an atomic read-modify-write: the mutate callback sees the
// current document, and the stored Version is bumped on every successful
// mutation so subscribers can order snapshots.
type Store interface {
	// Create persists a new room. The room's Version starts at 1.
	Create(ctx context.Context, room *models.Room) error

	// Get retrieves a room by ID.
	Get(ctx context.Context, roomID string) (*models.Room, error)

	// Update applies mutate to the current document atomically. A mutate
	// error aborts the write and is returned unchanged. On success the
	// room's Version, LastActivity and UpdatedAt have been advanced.
	Update(ctx context.Context, roomID string, mutate func(*models.Room) error) (*models.Room, error)

	// DeleteStale removes rooms whose LastActivity predates cutoff and
	// returns their IDs. Advisory housekeeping only.
	DeleteStale(ctx context.Context, cutoff time.Time) ([]string, error)
}

const roomCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NewRoomCode returns a short join code. The alphabet drops lookalike
// characters (I/L/O/0/1) since codes are read aloud and typed.
func NewRoomCode() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = roomCodeAlphabet[rand.Intn(len(roomCodeAlphabet))]
	}
	return string(b)
}
