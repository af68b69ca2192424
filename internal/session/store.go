// Package session is the client-side durable cache: a stable player
// identity, the active room pointer, a per-room board snapshot and the
// authoritative timing window. It lets a reloaded client resume a match
// without refetching anything remote.
//
// Entries live as JSON files under one base directory. Corrupted or
// oversized entries are dropped and reported as cache misses, never as
// fatal errors.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/duelgrid/duelgrid/internal/puzzle"
)

const (
	// SessionRetention is how long the active-session pointer and room
	// snapshots survive before lazy purge.
	SessionRetention = 24 * time.Hour

	// maxEntryBytes caps a cached entry; anything larger is treated as
	// corrupt.
	maxEntryBytes = 1 << 20
)

// Identity is the stable per-device player identity.
type Identity struct {
	PlayerID  string    `json:"player_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Session points at the room a device is currently part of.
type Session struct {
	RoomID   string            `json:"room_id"`
	PlayerID string            `json:"player_id"`
	Extra    map[string]string `json:"extra,omitempty"`
	StoredAt time.Time         `json:"stored_at"`
}

// Move is one history entry in a snapshot.
type Move struct {
	Row     int       `json:"row"`
	Col     int       `json:"col"`
	Value   uint8     `json:"value"`
	Correct bool      `json:"correct"`
	MovedAt time.Time `json:"moved_at"`
}

// Snapshot is a full point-in-time copy of one match's local state,
// written after every move so a rejoin can resume exactly where the
// player left off.
type Snapshot struct {
	RoomID    string          `json:"room_id"`
	PlayerID  string          `json:"player_id"`
	Grid      puzzle.Grid     `json:"grid"`
	Clues     puzzle.Grid     `json:"clues"`
	Solution  puzzle.Grid     `json:"solution"`
	Notes     map[int][]uint8 `json:"notes,omitempty"`
	History   []Move          `json:"history,omitempty"`
	UndoCount int             `json:"undo_count"`
	Hearts    int             `json:"hearts"`
	TimerSec  int             `json:"timer_sec"`
	SavedAt   time.Time       `json:"saved_at"`
}

// TimingWindow is the authoritative play window for one room.
type TimingWindow struct {
	RoomID string    `json:"room_id"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// Store is the file-backed cache.
type Store struct {
	dir   string
	clock clockwork.Clock
}

// NewStore opens a cache rooted at dir, creating it if needed.
func NewStore(dir string, clock clockwork.Clock) (*Store, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if err := os.MkdirAll(filepath.Join(dir, "rooms"), 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Store{dir: dir, clock: clock}, nil
}

func (s *Store) identityPath() string { return filepath.Join(s.dir, "identity.json") }
func (s *Store) sessionPath() string  { return filepath.Join(s.dir, "session.json") }
func (s *Store) snapshotPath(roomID string) string {
	return filepath.Join(s.dir, "rooms", roomID+".snapshot.json")
}
func (s *Store) windowPath(roomID string) string {
	return filepath.Join(s.dir, "rooms", roomID+".window.json")
}

// GetOrCreateIdentity returns this device's player identity, creating and
// persisting one on first use. The identity has no expiry.
func (s *Store) GetOrCreateIdentity() (Identity, error) {
	var id Identity
	if ok := s.read(s.identityPath(), &id); ok && id.PlayerID != "" {
		return id, nil
	}
	id = Identity{PlayerID: uuid.New().String(), CreatedAt: s.clock.Now().UTC()}
	if err := s.write(s.identityPath(), id); err != nil {
		return Identity{}, fmt.Errorf("store identity: %w", err)
	}
	return id, nil
}

// StoreSession records the room a device is part of.
func (s *Store) StoreSession(roomID, playerID string, extra map[string]string) error {
	return s.write(s.sessionPath(), Session{
		RoomID:   roomID,
		PlayerID: playerID,
		Extra:    extra,
		StoredAt: s.clock.Now().UTC(),
	})
}

// GetSession returns the active session pointer, or nil on miss. Expired
// entries are purged on read.
func (s *Store) GetSession() *Session {
	var sess Session
	if ok := s.read(s.sessionPath(), &sess); !ok {
		return nil
	}
	if s.clock.Now().Sub(sess.StoredAt) > SessionRetention {
		log.Debug().Str("room_id", sess.RoomID).Msg("session expired, purging")
		_ = os.Remove(s.sessionPath())
		return nil
	}
	return &sess
}

// ClearSession drops the active-session pointer. Idempotent.
func (s *Store) ClearSession() {
	_ = os.Remove(s.sessionPath())
}

// StoreCompleteSnapshot persists the full local state for a room.
func (s *Store) StoreCompleteSnapshot(roomID string, snap *Snapshot) error {
	if snap == nil || roomID == "" {
		return errors.New("invalid snapshot")
	}
	snap.RoomID = roomID
	snap.SavedAt = s.clock.Now().UTC()
	return s.write(s.snapshotPath(roomID), snap)
}

// GetCompleteSnapshot returns the cached snapshot for a room, or nil on
// miss, corruption or expiry.
func (s *Store) GetCompleteSnapshot(roomID string) *Snapshot {
	var snap Snapshot
	if ok := s.read(s.snapshotPath(roomID), &snap); !ok {
		return nil
	}
	if s.clock.Now().Sub(snap.SavedAt) > SessionRetention {
		_ = os.Remove(s.snapshotPath(roomID))
		return nil
	}
	return &snap
}

// StoreTimingWindow records the authoritative play window for a room.
func (s *Store) StoreTimingWindow(roomID string, start, end time.Time) error {
	return s.write(s.windowPath(roomID), TimingWindow{RoomID: roomID, Start: start, End: end})
}

// GetTimingWindow returns the cached window, or nil on miss.
func (s *Store) GetTimingWindow(roomID string) *TimingWindow {
	var w TimingWindow
	if ok := s.read(s.windowPath(roomID), &w); !ok {
		return nil
	}
	return &w
}

// IsGameStillValid reports whether the cached window says the match is
// still in play, without contacting the remote store. Unknown rooms are
// not valid.
func (s *Store) IsGameStillValid(roomID string) bool {
	w := s.GetTimingWindow(roomID)
	if w == nil {
		return false
	}
	return !s.clock.Now().After(w.End)
}

// ClearForRoom drops every cached entry for a room, including the active
// session if it points there. Idempotent; a room that was never cached is
// a no-op.
func (s *Store) ClearForRoom(roomID string) {
	_ = os.Remove(s.snapshotPath(roomID))
	_ = os.Remove(s.windowPath(roomID))
	if sess := s.GetSession(); sess != nil && sess.RoomID == roomID {
		s.ClearSession()
	}
}

// read loads and decodes one entry. Any failure degrades to a cache miss;
// unreadable files are dropped so they cannot wedge future reads.
func (s *Store) read(path string, out interface{}) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.Size() > maxEntryBytes {
		log.Warn().Str("path", path).Int64("size", info.Size()).Msg("cached entry oversized, dropping")
		_ = os.Remove(path)
		return false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("cached entry unreadable, dropping")
		_ = os.Remove(path)
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("cached entry corrupt, dropping")
		_ = os.Remove(path)
		return false
	}
	return true
}

func (s *Store) write(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit cache entry: %w", err)
	}
	return nil
}
