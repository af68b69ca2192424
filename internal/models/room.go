package models

import (
	"fmt"
	"time"

	"github.com/duelgrid/duelgrid/internal/puzzle"
)

// RoomStatus defines the lifecycle state of a match room.
type RoomStatus string

const (
	RoomStatusWaiting          RoomStatus = "WAITING"
	RoomStatusCountdown        RoomStatus = "COUNTDOWN"
	RoomStatusPlaying          RoomStatus = "PLAYING"
	RoomStatusCompletedBySolve RoomStatus = "COMPLETED_BY_SOLVE"
	RoomStatusEliminated       RoomStatus = "ELIMINATED"
	RoomStatusTimeUpProgress   RoomStatus = "TIME_UP_PROGRESS"
	RoomStatusTimeUpDraw       RoomStatus = "TIME_UP_DRAW"
)

// Terminal reports whether the status is an end state. Terminal statuses
// never regress.
func (s RoomStatus) Terminal() bool {
	switch s {
	case RoomStatusCompletedBySolve, RoomStatusEliminated, RoomStatusTimeUpProgress, RoomStatusTimeUpDraw:
		return true
	}
	return false
}

// EndReason records why a match ended.
type EndReason string

const (
	EndReasonCompletion         EndReason = "COMPLETION"
	EndReasonOpponentEliminated EndReason = "OPPONENT_ELIMINATED"
	EndReasonAllEliminated      EndReason = "ALL_ELIMINATED"
	EndReasonTimeUpProgress     EndReason = "TIME_UP_PROGRESS"
	EndReasonTimeUpDraw         EndReason = "TIME_UP_DRAW"
)

// TerminalStatus maps an end reason to the room status it produces.
func (r EndReason) TerminalStatus() RoomStatus {
	switch r {
	case EndReasonCompletion:
		return RoomStatusCompletedBySolve
	case EndReasonOpponentEliminated, EndReasonAllEliminated:
		return RoomStatusEliminated
	case EndReasonTimeUpProgress:
		return RoomStatusTimeUpProgress
	default:
		return RoomStatusTimeUpDraw
	}
}

const (
	// MaxPlayers is the hard cap on room membership.
	MaxPlayers = 2
	// StartingHearts is the heart count each player begins with.
	StartingHearts = 3
	// MatchDuration is the fixed play window stamped at the
	// countdown -> playing transition.
	MatchDuration = 600 * time.Second
	// CountdownDuration is the fixed pre-game countdown length. Each
	// client computes its elapse locally from CountdownStartedAt.
	CountdownDuration = 3 * time.Second
)

// LastMove is the advisory record of a player's most recent move.
// Last write wins; it decorates the opponent view and is never used for
// correctness decisions.
type LastMove struct {
	Row     int       `json:"row"`
	Col     int       `json:"col"`
	Value   uint8     `json:"value"`
	Correct bool      `json:"correct"`
	MovedAt time.Time `json:"moved_at"`
}

// Player is a participant embedded in a Room. The ID is client-generated
// and stable across reconnects.
type Player struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	ProgressPercent int        `json:"progress_percent"`
	Hearts          int        `json:"hearts"`
	Completed       bool       `json:"completed"`
	Winner          bool       `json:"winner"`
	HeartLost       bool       `json:"heart_lost,omitempty"`
	LastMove        *LastMove  `json:"last_move,omitempty"`
	JoinedAt        time.Time  `json:"joined_at"`
}

// Eliminated reports whether the player has dropped below the elimination
// threshold. Hearts may go negative: a player at 0 hearts is still alive
// and is eliminated by the next wrong move.
func (p Player) Eliminated() bool {
	return p.Hearts < 0
}

// Room is the authoritative shared record of one match.
type Room struct {
	ID                 string        `json:"id"`
	Players            []Player      `json:"players"`
	Status             RoomStatus    `json:"status"`
	PuzzleSetID        string        `json:"puzzle_set_id"`
	PuzzleIndex        int           `json:"puzzle_index"`
	ExtraRevealCells   []puzzle.Cell `json:"extra_reveal_cells"`
	TotalEmptyCells    int           `json:"total_empty_cells"`
	MatchDurationSec   int           `json:"match_duration_sec"`
	CountdownStartedAt *time.Time    `json:"countdown_started_at,omitempty"`
	GameStartTime      *time.Time    `json:"game_start_time,omitempty"`
	GameEndTime        *time.Time    `json:"game_end_time,omitempty"`
	WinnerID           *string       `json:"winner_id,omitempty"`
	EndReason          *EndReason    `json:"end_reason,omitempty"`
	NextRoomID         *string       `json:"next_room_id,omitempty"`
	LastActivity       time.Time     `json:"last_activity"`
	Version            int64         `json:"version"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// HostID returns the ID of the first joiner, who owns the start command.
func (r *Room) HostID() string {
	if len(r.Players) == 0 {
		return ""
	}
	return r.Players[0].ID
}

// FindPlayer returns a pointer into r.Players for the given ID, or nil.
func (r *Room) FindPlayer(playerID string) *Player {
	for i := range r.Players {
		if r.Players[i].ID == playerID {
			return &r.Players[i]
		}
	}
	return nil
}

// Opponent returns the other participant, or nil for a solo room.
func (r *Room) Opponent(playerID string) *Player {
	for i := range r.Players {
		if r.Players[i].ID != playerID {
			return &r.Players[i]
		}
	}
	return nil
}

// Validate fails closed on structurally broken rooms so that a malformed
// document never propagates past the store boundary.
func (r *Room) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("room missing id")
	}
	if len(r.Players) == 0 || len(r.Players) > MaxPlayers {
		return fmt.Errorf("room %s has %d players, want 1-%d", r.ID, len(r.Players), MaxPlayers)
	}
	for _, p := range r.Players {
		if p.ID == "" || p.Name == "" {
			return fmt.Errorf("room %s has player with missing id or name", r.ID)
		}
	}
	switch r.Status {
	case RoomStatusWaiting, RoomStatusCountdown, RoomStatusPlaying,
		RoomStatusCompletedBySolve, RoomStatusEliminated,
		RoomStatusTimeUpProgress, RoomStatusTimeUpDraw:
	default:
		return fmt.Errorf("room %s has unknown status %q", r.ID, r.Status)
	}
	if r.PuzzleSetID == "" {
		return fmt.Errorf("room %s missing puzzle set", r.ID)
	}
	return nil
}

// Clone returns a deep copy so stores can hand out snapshots without
// aliasing their internal state.
func (r *Room) Clone() *Room {
	cp := *r
	cp.Players = make([]Player, len(r.Players))
	copy(cp.Players, r.Players)
	for i := range cp.Players {
		if lm := r.Players[i].LastMove; lm != nil {
			lmCopy := *lm
			cp.Players[i].LastMove = &lmCopy
		}
	}
	cp.ExtraRevealCells = append([]puzzle.Cell(nil), r.ExtraRevealCells...)
	if r.CountdownStartedAt != nil {
		t := *r.CountdownStartedAt
		cp.CountdownStartedAt = &t
	}
	if r.GameStartTime != nil {
		t := *r.GameStartTime
		cp.GameStartTime = &t
	}
	if r.GameEndTime != nil {
		t := *r.GameEndTime
		cp.GameEndTime = &t
	}
	if r.WinnerID != nil {
		id := *r.WinnerID
		cp.WinnerID = &id
	}
	if r.EndReason != nil {
		er := *r.EndReason
		cp.EndReason = &er
	}
	if r.NextRoomID != nil {
		id := *r.NextRoomID
		cp.NextRoomID = &id
	}
	return &cp
}
