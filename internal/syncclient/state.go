package syncclient

import (
	"sync"

	"github.com/duelgrid/duelgrid/internal/models"
	"github.com/duelgrid/duelgrid/internal/puzzle"
	"github.com/duelgrid/duelgrid/internal/session"
)

// OpponentView is what the local player sees of the other participant.
type OpponentView struct {
	ID              string
	Name            string
	ProgressPercent int
	Hearts          int
	Completed       bool
	HeartLost       bool
	LastMove        *models.LastMove
	Present         bool
}

// LocalState holds the client's view of one match. Board edits are
// optimistic; server snapshots reconcile into it under the merge rules.
type LocalState struct {
	mu sync.Mutex

	RoomID   string
	PlayerID string

	Grid     puzzle.Grid
	Clues    puzzle.Grid
	Solution puzzle.Grid
	Notes    map[int][]uint8
	History  []session.Move

	Hearts          int
	HeartLost       bool
	ProgressPercent int
	Completed       bool
	TotalEmpty      int

	Status     models.RoomStatus
	WinnerID   string
	EndReason  models.EndReason
	NextRoomID string

	Opponent OpponentView

	// lastVersion gates snapshot application: older snapshots are ignored.
	lastVersion int64
}

// NewLocalState seeds the board for a fresh match.
func NewLocalState(roomID, playerID string, clues, solution puzzle.Grid, totalEmpty int) *LocalState {
	return &LocalState{
		RoomID:     roomID,
		PlayerID:   playerID,
		Grid:       clues,
		Clues:      clues,
		Solution:   solution,
		Notes:      make(map[int][]uint8),
		Hearts:     models.StartingHearts,
		TotalEmpty: totalEmpty,
		Status:     models.RoomStatusWaiting,
	}
}

// ApplySnapshot reconciles a server room snapshot into local state.
// Returns false when the snapshot is stale (version not newer than the
// last applied one).
func (s *LocalState) ApplySnapshot(r *models.Room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Version <= s.lastVersion {
		return false
	}
	s.lastVersion = r.Version

	s.Status = r.Status
	if r.WinnerID != nil {
		s.WinnerID = *r.WinnerID
	}
	if r.EndReason != nil {
		s.EndReason = *r.EndReason
	}
	if r.NextRoomID != nil {
		s.NextRoomID = *r.NextRoomID
	}

	if self := r.FindPlayer(s.PlayerID); self != nil {
		// Hearts only ever go down. A server value above the local one is
		// a stale echo of a push still in flight; keep the local count.
		if self.Hearts < s.Hearts {
			s.Hearts = self.Hearts
		}
		if self.Completed {
			s.Completed = true
		}
	}

	if opp := r.Opponent(s.PlayerID); opp != nil {
		// Opponent values are authoritative as-is.
		s.Opponent = OpponentView{
			ID:              opp.ID,
			Name:            opp.Name,
			ProgressPercent: opp.ProgressPercent,
			Hearts:          opp.Hearts,
			Completed:       opp.Completed,
			HeartLost:       opp.HeartLost,
			LastMove:        opp.LastMove,
			Present:         true,
		}
	} else {
		s.Opponent = OpponentView{}
	}
	return true
}

// ClearHeartLost drops the pulse flag after the flash timer.
func (s *LocalState) ClearHeartLost() {
	s.mu.Lock()
	s.HeartLost = false
	s.mu.Unlock()
}

// HeartLostActive reports whether the heart-lost pulse is up.
func (s *LocalState) HeartLostActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.HeartLost
}

// Eliminated reports whether the local player is out of the match.
func (s *LocalState) Eliminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Hearts < 0
}

// CurrentStatus returns the last reconciled room status.
func (s *LocalState) CurrentStatus() models.RoomStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status
}

// HeartCount returns the merged local heart count.
func (s *LocalState) HeartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Hearts
}

// OpponentState returns a copy of the reconciled opponent view.
func (s *LocalState) OpponentState() OpponentView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Opponent
}

// Restore rehydrates board state from a saved snapshot, used when a
// rejoin finds an unfinished match on disk.
func (s *LocalState) Restore(snap *session.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Grid = snap.Grid
	s.Clues = snap.Clues
	s.Solution = snap.Solution
	s.Hearts = snap.Hearts
	s.History = append([]session.Move(nil), snap.History...)
	if snap.Notes != nil {
		s.Notes = make(map[int][]uint8, len(snap.Notes))
		for k, v := range snap.Notes {
			s.Notes[k] = append([]uint8(nil), v...)
		}
	}
	s.ProgressPercent = s.progressLocked()
}
