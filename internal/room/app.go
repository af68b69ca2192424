package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/duelgrid/duelgrid/internal/events"
	"github.com/duelgrid/duelgrid/internal/models"
	"github.com/duelgrid/duelgrid/internal/puzzle"
)

// defaultExtraReveals is how many most-constrained cells get opened for
// both players at match start.
const defaultExtraReveals = 5

// Publisher fans a room event out to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, event *events.Envelope) error
}

// DeadlineArmer schedules the match-deadline arbitration for a room.
type DeadlineArmer interface {
	Arm(roomID string, deadline time.Time)
	Disarm(roomID string)
}

// errAlreadyTerminal aborts a mutation against an ended room; the caller
// treats it as a successful no-op so racing arbiters converge.
var errAlreadyTerminal = errors.New("room already terminal")

// App owns the room lifecycle: provisioning, membership, state
// transitions, per-field merge writes and arbitration.
type App struct {
	store     Store
	publisher Publisher
	deadlines DeadlineArmer
	clock     clockwork.Clock
}

// NewApp creates a room App. publisher and deadlines may be nil in tests.
func NewApp(store Store, publisher Publisher, deadlines DeadlineArmer, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		store:     store,
		publisher: publisher,
		deadlines: deadlines,
		clock:     clock,
	}
}

// CreateRoom provisions a puzzle and persists a fresh room with the
// caller as host. An unknown puzzle set falls back to the default set
// rather than failing the creation.
func (a *App) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	if req.PlayerID == "" || req.PlayerName == "" {
		return nil, fmt.Errorf("create room: player id and name are required")
	}

	setID := req.PuzzleSetID
	if setID == "" {
		setID = puzzle.DefaultSetID
	}
	index, err := puzzle.SelectPuzzle(setID)
	if err != nil {
		var dataErr *puzzle.DataError
		if !errors.As(err, &dataErr) {
			return nil, fmt.Errorf("select puzzle: %w", err)
		}
		log.Warn().Str("puzzle_set", setID).Msg("unknown puzzle set, falling back to default")
		setID = puzzle.DefaultSetID
		if index, err = puzzle.SelectPuzzle(setID); err != nil {
			return nil, fmt.Errorf("select puzzle from default set: %w", err)
		}
	}

	reveals, err := puzzle.SelectExtraReveals(setID, index, defaultExtraReveals)
	if err != nil {
		return nil, fmt.Errorf("select extra reveals: %w", err)
	}
	clues, _, err := puzzle.Materialize(setID, index, reveals)
	if err != nil {
		return nil, fmt.Errorf("materialize puzzle: %w", err)
	}

	now := a.clock.Now().UTC()
	r := &models.Room{
		ID:               NewRoomCode(),
		Status:           models.RoomStatusWaiting,
		PuzzleSetID:      setID,
		PuzzleIndex:      index,
		ExtraRevealCells: reveals,
		TotalEmptyCells:  puzzle.CountEmpty(&clues),
		MatchDurationSec: int(models.MatchDuration.Seconds()),
		Players: []models.Player{{
			ID:       req.PlayerID,
			Name:     req.PlayerName,
			Hearts:   models.StartingHearts,
			JoinedAt: now,
		}},
	}

	// Short codes can collide; retry with a fresh code a few times.
	for attempt := 0; ; attempt++ {
		if err = a.store.Create(ctx, r); err == nil {
			break
		}
		if attempt >= 4 {
			return nil, fmt.Errorf("create room: %w", err)
		}
		r.ID = NewRoomCode()
	}

	log.Info().
		Str("room_id", r.ID).
		Str("host_id", req.PlayerID).
		Str("puzzle_set", setID).
		Int("puzzle_index", index).
		Int("empty_cells", r.TotalEmptyCells).
		Msg("room created")

	a.publish(ctx, events.TypePlayerJoined, r)
	return r, nil
}

// JoinRoom adds a second player to a waiting room. A caller whose ID is
// already in the player list is rejoining and always succeeds regardless
// of fullness or state.
func (a *App) JoinRoom(ctx context.Context, roomID string, req JoinRoomRequest) (*models.Room, error) {
	rejoin := false
	r, err := a.store.Update(ctx, roomID, func(r *models.Room) error {
		if p := r.FindPlayer(req.PlayerID); p != nil {
			rejoin = true
			return nil
		}
		if r.Status != models.RoomStatusWaiting {
			return ErrGameAlreadyStarted
		}
		if len(r.Players) >= models.MaxPlayers {
			return ErrRoomFull
		}
		r.Players = append(r.Players, models.Player{
			ID:       req.PlayerID,
			Name:     req.PlayerName,
			Hearts:   models.StartingHearts,
			JoinedAt: a.clock.Now().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("room_id", roomID).
		Str("player_id", req.PlayerID).
		Bool("rejoin", rejoin).
		Msg("player joined room")

	if !rejoin {
		a.publish(ctx, events.TypePlayerJoined, r)
	}
	return r, nil
}

// GetRoom fetches the current document.
func (a *App) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return a.store.Get(ctx, roomID)
}

// StartMatch moves a waiting room into countdown. Host only; needs a full
// room unless the solo override is set.
func (a *App) StartMatch(ctx context.Context, roomID string, req StartMatchRequest) (*models.Room, error) {
	r, err := a.store.Update(ctx, roomID, func(r *models.Room) error {
		if r.HostID() != req.PlayerID {
			return ErrNotHost
		}
		if r.Status != models.RoomStatusWaiting {
			return ErrInvalidTransition
		}
		if len(r.Players) < models.MaxPlayers && !req.Solo {
			return ErrNotEnoughPlayers
		}
		now := a.clock.Now().UTC()
		r.Status = models.RoomStatusCountdown
		r.CountdownStartedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("room_id", roomID).Bool("solo", req.Solo).Msg("countdown started")
	a.publish(ctx, events.TypeCountdownStarted, r)
	return r, nil
}

// TransitionToPlaying enters play once a participant observes the
// countdown elapsed. Idempotent: either client may issue it, and a second
// call against a playing room is a no-op.
func (a *App) TransitionToPlaying(ctx context.Context, roomID, playerID string) (*models.Room, error) {
	already := false
	r, err := a.store.Update(ctx, roomID, func(r *models.Room) error {
		if r.FindPlayer(playerID) == nil {
			return ErrNotParticipant
		}
		if r.Status == models.RoomStatusPlaying {
			already = true
			return errAlreadyTerminal
		}
		if r.Status != models.RoomStatusCountdown {
			return ErrInvalidTransition
		}
		start := a.clock.Now().UTC()
		end := start.Add(models.MatchDuration)
		r.Status = models.RoomStatusPlaying
		r.GameStartTime = &start
		r.GameEndTime = &end
		return nil
	})
	if already {
		return a.store.Get(ctx, roomID)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("room_id", roomID).
		Time("game_end", *r.GameEndTime).
		Msg("match playing")

	if a.deadlines != nil {
		a.deadlines.Arm(roomID, *r.GameEndTime)
	}
	a.publish(ctx, events.TypePlayingStarted, r)
	return r, nil
}

// UpdateProgress records a player's derived completion state and runs the
// arbiter on the result in the same atomic write.
func (a *App) UpdateProgress(ctx context.Context, roomID string, req UpdateProgressRequest) (*models.Room, error) {
	var verdict Verdict
	r, err := a.store.Update(ctx, roomID, func(r *models.Room) error {
		if r.Status.Terminal() {
			return errAlreadyTerminal
		}
		p := r.FindPlayer(req.PlayerID)
		if p == nil {
			return ErrNotParticipant
		}
		p.ProgressPercent = clampPercent(req.Percent)
		p.Completed = req.Completed
		p.HeartLost = false

		verdict = EvaluateEndConditions(r.Players)
		if verdict.Ended {
			a.applyVerdict(r, verdict)
		}
		return nil
	})
	if errors.Is(err, errAlreadyTerminal) {
		return a.store.Get(ctx, roomID)
	}
	if err != nil {
		return nil, err
	}

	if verdict.Ended {
		a.finishRoom(ctx, r, verdict)
	} else {
		a.publish(ctx, events.TypeProgressUpdated, r)
	}
	return r, nil
}

// UpdateHearts records a heart loss. The stored value only ever moves
// down: a stale push can never resurrect a heart the room already took.
func (a *App) UpdateHearts(ctx context.Context, roomID string, req UpdateHeartsRequest) (*models.Room, error) {
	var verdict Verdict
	r, err := a.store.Update(ctx, roomID, func(r *models.Room) error {
		if r.Status.Terminal() {
			return errAlreadyTerminal
		}
		p := r.FindPlayer(req.PlayerID)
		if p == nil {
			return ErrNotParticipant
		}
		if req.Hearts < p.Hearts {
			p.Hearts = req.Hearts
			p.HeartLost = true
		}

		verdict = EvaluateEndConditions(r.Players)
		if verdict.Ended {
			a.applyVerdict(r, verdict)
		}
		return nil
	})
	if errors.Is(err, errAlreadyTerminal) {
		return a.store.Get(ctx, roomID)
	}
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("room_id", roomID).
		Str("player_id", req.PlayerID).
		Int("hearts", req.Hearts).
		Int("previous_hearts", req.PreviousHearts).
		Msg("hearts updated")

	if verdict.Ended {
		a.finishRoom(ctx, r, verdict)
	} else {
		a.publish(ctx, events.TypeHeartsUpdated, r)
	}
	return r, nil
}

// UpdateLastMove stores the advisory last-move decoration. Last write
// wins; never consulted for correctness.
func (a *App) UpdateLastMove(ctx context.Context, roomID string, req UpdateLastMoveRequest) (*models.Room, error) {
	r, err := a.store.Update(ctx, roomID, func(r *models.Room) error {
		if r.Status.Terminal() {
			return errAlreadyTerminal
		}
		p := r.FindPlayer(req.PlayerID)
		if p == nil {
			return ErrNotParticipant
		}
		p.LastMove = &models.LastMove{
			Row:     req.Row,
			Col:     req.Col,
			Value:   req.Value,
			Correct: req.Correct,
			MovedAt: a.clock.Now().UTC(),
		}
		return nil
	})
	if errors.Is(err, errAlreadyTerminal) {
		return a.store.Get(ctx, roomID)
	}
	if err != nil {
		return nil, err
	}

	a.publish(ctx, events.TypeLastMoveUpdated, r)
	return r, nil
}

// EndWithWinner writes the terminal verdict for a decided match. A room
// that is already terminal is left untouched.
func (a *App) EndWithWinner(ctx context.Context, roomID, winnerID string, reason models.EndReason) (*models.Room, error) {
	return a.end(ctx, roomID, Verdict{Ended: true, WinnerID: winnerID, Reason: reason})
}

// EndWithDraw writes a terminal draw.
func (a *App) EndWithDraw(ctx context.Context, roomID string, reason models.EndReason) (*models.Room, error) {
	return a.end(ctx, roomID, Verdict{Ended: true, Reason: reason})
}

// ExpireDeadline is the timeout arbitration path, invoked by the deadline
// scheduler or by a client whose local deadline timer fired. A room no
// longer playing is left untouched.
func (a *App) ExpireDeadline(ctx context.Context, roomID string) (*models.Room, error) {
	var verdict Verdict
	r, err := a.store.Update(ctx, roomID, func(r *models.Room) error {
		if r.Status != models.RoomStatusPlaying {
			return errAlreadyTerminal
		}
		verdict = EvaluateDeadline(r.Players)
		a.applyVerdict(r, verdict)
		return nil
	})
	if errors.Is(err, errAlreadyTerminal) {
		return a.store.Get(ctx, roomID)
	}
	if err != nil {
		return nil, err
	}

	a.finishRoom(ctx, r, verdict)
	return r, nil
}

// AttachNextRoom links a finished room to its rematch. Idempotent; a
// conflicting existing link is refused.
func (a *App) AttachNextRoom(ctx context.Context, roomID string, req AttachNextRoomRequest) (*models.Room, error) {
	linked := false
	r, err := a.store.Update(ctx, roomID, func(r *models.Room) error {
		if r.FindPlayer(req.PlayerID) == nil {
			return ErrNotParticipant
		}
		if r.NextRoomID != nil {
			if *r.NextRoomID == req.NextRoomID {
				return nil
			}
			return ErrRematchConflict
		}
		next := req.NextRoomID
		r.NextRoomID = &next
		linked = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if linked {
		log.Info().
			Str("room_id", roomID).
			Str("next_room_id", req.NextRoomID).
			Msg("rematch linked")
		a.publish(ctx, events.TypeRematchLinked, r)
	}
	return r, nil
}

// SweepStale drops rooms idle past the retention cutoff and returns the
// removed ids so callers can tear down any remaining subscriptions.
func (a *App) SweepStale(ctx context.Context, retention time.Duration) ([]string, error) {
	removed, err := a.store.DeleteStale(ctx, a.clock.Now().UTC().Add(-retention))
	if err != nil {
		return nil, fmt.Errorf("sweep stale rooms: %w", err)
	}
	for _, id := range removed {
		if a.deadlines != nil {
			a.deadlines.Disarm(id)
		}
	}
	return removed, nil
}

func (a *App) end(ctx context.Context, roomID string, verdict Verdict) (*models.Room, error) {
	r, err := a.store.Update(ctx, roomID, func(r *models.Room) error {
		if r.Status.Terminal() {
			return errAlreadyTerminal
		}
		if verdict.WinnerID != "" && r.FindPlayer(verdict.WinnerID) == nil {
			return ErrNotParticipant
		}
		a.applyVerdict(r, verdict)
		return nil
	})
	if errors.Is(err, errAlreadyTerminal) {
		return a.store.Get(ctx, roomID)
	}
	if err != nil {
		return nil, err
	}

	a.finishRoom(ctx, r, verdict)
	return r, nil
}

// applyVerdict stamps terminal state inside a mutation. Exactly one
// winner/reason pair is ever written because every caller checks
// Terminal() first in the same atomic update.
func (a *App) applyVerdict(r *models.Room, verdict Verdict) {
	r.Status = verdict.Reason.TerminalStatus()
	reason := verdict.Reason
	r.EndReason = &reason
	if verdict.WinnerID != "" {
		winner := verdict.WinnerID
		r.WinnerID = &winner
		if p := r.FindPlayer(winner); p != nil {
			p.Winner = true
		}
	}
	if r.GameEndTime == nil {
		now := a.clock.Now().UTC()
		r.GameEndTime = &now
	}
}

func (a *App) finishRoom(ctx context.Context, r *models.Room, verdict Verdict) {
	log.Info().
		Str("room_id", r.ID).
		Str("winner_id", verdict.WinnerID).
		Str("end_reason", string(verdict.Reason)).
		Msg("match ended")

	if a.deadlines != nil {
		a.deadlines.Disarm(r.ID)
	}
	a.publish(ctx, events.TypeRoomEnded, r)
}

// publish is best effort: a fanout failure never fails the mutation, the
// document is already authoritative.
func (a *App) publish(ctx context.Context, eventType events.Type, r *models.Room) {
	if a.publisher == nil {
		return
	}
	event, err := events.NewRoomEvent(eventType, r)
	if err != nil {
		log.Error().Err(err).Str("room_id", r.ID).Msg("failed to build room event")
		return
	}
	if err := a.publisher.Publish(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("room_id", r.ID).
			Str("event_type", string(eventType)).
			Msg("failed to publish room event")
	}
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
