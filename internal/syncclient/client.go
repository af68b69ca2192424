package syncclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/duelgrid/duelgrid/internal/events"
	"github.com/duelgrid/duelgrid/internal/models"
	"github.com/duelgrid/duelgrid/internal/puzzle"
	"github.com/duelgrid/duelgrid/internal/room"
	"github.com/duelgrid/duelgrid/internal/session"
)

// ErrConnectionLost marks the terminal state after the reconnect budget
// is exhausted. Local play keeps working; pushes stop.
var ErrConnectionLost = errors.New("live connection lost")

// ErrNoSession is returned by Resume when no stored session exists.
var ErrNoSession = errors.New("no stored session")

const (
	// reconnect backoff shape: base doubling up to the cap, then give up
	// after maxReconnectAttempts consecutive failures.
	reconnectBase        = 500 * time.Millisecond
	reconnectCap         = 15 * time.Second
	maxReconnectAttempts = 8

	// heartFlashDuration is how long the heart-lost pulse stays up.
	heartFlashDuration = 2 * time.Second

	// pushBudget / pushWindow bound the write rate to the server.
	pushBudget = 10
	pushWindow = time.Second
)

// Config tunes a Client.
type Config struct {
	// FeedURL is the websocket base, e.g. ws://host:port. Empty disables
	// the live feed; snapshots must then be fed in directly.
	FeedURL string
	Clock   clockwork.Clock
}

// Client is one participant's synchronization engine: it owns the local
// board state, the live room subscription, the push rate limiter, and
// the durable session cache.
type Client struct {
	svc      RoomService
	sessions *session.Store
	limiter  *WriteLimiter
	clock    clockwork.Clock
	feedURL  string
	dialer   *websocket.Dialer

	mu          sync.Mutex
	state       *LocalState
	cancelFeed  context.CancelFunc
	feedDone    chan struct{}
	autoStarted bool
	lost        bool

	countdownTimer clockwork.Timer
	countdownFor   string
	deadlineTimer  clockwork.Timer
	flashTimer     clockwork.Timer
	flashStop      chan struct{}
	deadlineFor    time.Time
}

// NewClient wires a client over a room service and a session store.
func NewClient(svc RoomService, sessions *session.Store, cfg Config) *Client {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Client{
		svc:      svc,
		sessions: sessions,
		limiter:  NewWriteLimiter(clock, pushBudget, pushWindow),
		clock:    clock,
		feedURL:  cfg.FeedURL,
		dialer:   websocket.DefaultDialer,
	}
}

// State returns the local match state, nil before hosting or joining.
func (c *Client) State() *LocalState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionLost reports whether the reconnect budget ran out.
func (c *Client) ConnectionLost() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lost
}

// Host creates a room with this device's stored identity as host and
// subscribes to its feed.
func (c *Client) Host(ctx context.Context, playerName, puzzleSetID string) (*models.Room, error) {
	id, err := c.sessions.GetOrCreateIdentity()
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	r, err := c.svc.CreateRoom(ctx, room.CreateRoomRequest{
		PlayerID:    id.PlayerID,
		PlayerName:  playerName,
		PuzzleSetID: puzzleSetID,
	})
	if err != nil {
		return nil, err
	}
	return r, c.enterRoom(ctx, r, id.PlayerID)
}

// Join enters an existing room and subscribes to its feed.
func (c *Client) Join(ctx context.Context, roomID, playerName string) (*models.Room, error) {
	id, err := c.sessions.GetOrCreateIdentity()
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}

	r, err := c.svc.JoinRoom(ctx, roomID, room.JoinRoomRequest{
		PlayerID:   id.PlayerID,
		PlayerName: playerName,
	})
	if err != nil {
		return nil, err
	}
	return r, c.enterRoom(ctx, r, id.PlayerID)
}

// Resume rejoins the room recorded in the stored session and rehydrates
// the board from the last saved snapshot. Fails with ErrNoSession when
// nothing usable is on disk.
func (c *Client) Resume(ctx context.Context, playerName string) (*models.Room, error) {
	sess := c.sessions.GetSession()
	if sess == nil {
		return nil, ErrNoSession
	}
	// A cached timing window that has already closed means the match is
	// over; drop the stale state locally without a server round trip.
	if w := c.sessions.GetTimingWindow(sess.RoomID); w != nil && !c.sessions.IsGameStillValid(sess.RoomID) {
		c.sessions.ClearForRoom(sess.RoomID)
		c.sessions.ClearSession()
		return nil, ErrNoSession
	}

	r, err := c.svc.JoinRoom(ctx, sess.RoomID, room.JoinRoomRequest{
		PlayerID:   sess.PlayerID,
		PlayerName: playerName,
	})
	if err != nil {
		// A vanished or no-longer-joinable room means the stored session
		// points at a dead match; drop it so the next launch starts clean.
		if errors.Is(err, room.ErrRoomNotFound) || errors.Is(err, room.ErrRoomFull) || errors.Is(err, room.ErrGameAlreadyStarted) {
			c.sessions.ClearForRoom(sess.RoomID)
			c.sessions.ClearSession()
		}
		return nil, err
	}
	if err := c.enterRoom(ctx, r, sess.PlayerID); err != nil {
		return nil, err
	}

	if snap := c.sessions.GetCompleteSnapshot(r.ID); snap != nil {
		c.State().Restore(snap)
	}
	return r, nil
}

// enterRoom materializes the puzzle, seeds local state, persists the
// session, and opens the live subscription.
func (c *Client) enterRoom(ctx context.Context, r *models.Room, playerID string) error {
	clues, solution, err := puzzle.Materialize(r.PuzzleSetID, r.PuzzleIndex, r.ExtraRevealCells)
	if err != nil {
		return fmt.Errorf("materialize puzzle: %w", err)
	}

	st := NewLocalState(r.ID, playerID, clues, solution, r.TotalEmptyCells)
	st.ApplySnapshot(r)

	// Timers from a previous room must not outlive it; a stale countdown
	// would block arming the new room's.
	c.stopTimers()

	c.mu.Lock()
	c.state = st
	c.autoStarted = false
	c.lost = false
	c.mu.Unlock()

	if err := c.sessions.StoreSession(r.ID, playerID, nil); err != nil {
		log.Warn().Err(err).Str("room_id", r.ID).Msg("failed to persist session")
	}

	c.Subscribe(ctx, r.ID, playerID)
	c.react(ctx, r)
	return nil
}

// Subscribe opens the live feed for a room. An existing subscription is
// torn down first; there is never more than one.
func (c *Client) Subscribe(ctx context.Context, roomID, playerID string) {
	c.Unsubscribe()

	if c.feedURL == "" {
		return
	}

	feedCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.cancelFeed = cancel
	c.feedDone = done
	c.mu.Unlock()

	go c.runFeed(feedCtx, done, roomID, playerID)
}

// Unsubscribe tears down the current live feed, if any.
func (c *Client) Unsubscribe() {
	c.mu.Lock()
	cancel, done := c.cancelFeed, c.feedDone
	c.cancelFeed, c.feedDone = nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// runFeed dials and reads the event feed, reconnecting with bounded
// exponential backoff. After maxReconnectAttempts consecutive failures
// the client enters the terminal connection-lost state.
func (c *Client) runFeed(ctx context.Context, done chan struct{}, roomID, playerID string) {
	defer close(done)

	url := fmt.Sprintf("%s/ws/rooms?room_id=%s&player_id=%s", c.feedURL, roomID, playerID)
	attempts := 0

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := c.dialer.DialContext(ctx, url, nil)
		if err != nil {
			attempts++
			if attempts >= maxReconnectAttempts {
				log.Error().Err(err).Str("room_id", roomID).Msg("reconnect budget exhausted, going offline")
				c.mu.Lock()
				c.lost = true
				c.mu.Unlock()
				return
			}
			backoff := reconnectBase << (attempts - 1)
			if backoff > reconnectCap {
				backoff = reconnectCap
			}
			log.Warn().Err(err).Str("room_id", roomID).Dur("backoff", backoff).Msg("feed dial failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-c.clock.After(backoff):
			}
			continue
		}

		attempts = 0
		c.readFeed(ctx, conn, roomID)
		conn.Close()
	}
}

// readFeed consumes envelopes until the connection breaks or ctx ends.
func (c *Client) readFeed(ctx context.Context, conn *websocket.Conn, roomID string) {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var env events.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("room_id", roomID).Msg("feed read failed")
			}
			return
		}
		snap, err := env.RoomSnapshot()
		if err != nil {
			log.Warn().Err(err).Str("event_id", env.EventID).Msg("undecodable snapshot, skipping")
			continue
		}
		c.HandleSnapshot(ctx, snap)
	}
}

// HandleSnapshot reconciles one server snapshot and runs the reactions
// it triggers (auto-start, timers, terminal cleanup). It is the single
// entry point for both the live feed and direct injection in tests.
func (c *Client) HandleSnapshot(ctx context.Context, r *models.Room) {
	st := c.State()
	if st == nil || r.ID != st.RoomID {
		return
	}
	if !st.ApplySnapshot(r) {
		return
	}
	c.react(ctx, r)
}

// react inspects a freshly applied snapshot and fires the side effects
// the new state calls for.
func (c *Client) react(ctx context.Context, r *models.Room) {
	st := c.State()
	if st == nil {
		return
	}

	switch r.Status {
	case models.RoomStatusWaiting:
		// Host starts the match exactly once when the room fills.
		if len(r.Players) == models.MaxPlayers && r.HostID() == st.PlayerID && c.markAutoStarted() {
			if _, err := c.svc.StartMatch(ctx, r.ID, room.StartMatchRequest{PlayerID: st.PlayerID}); err != nil {
				log.Warn().Err(err).Str("room_id", r.ID).Msg("auto-start failed")
			}
		}

	case models.RoomStatusCountdown:
		if r.CountdownStartedAt != nil {
			c.armCountdown(ctx, r.ID, st.PlayerID, r.CountdownStartedAt.Add(models.CountdownDuration))
		}

	case models.RoomStatusPlaying:
		if r.GameStartTime != nil && r.GameEndTime != nil {
			if err := c.sessions.StoreTimingWindow(r.ID, *r.GameStartTime, *r.GameEndTime); err != nil {
				log.Warn().Err(err).Str("room_id", r.ID).Msg("failed to persist timing window")
			}
			c.armDeadline(ctx, r.ID, *r.GameEndTime)
		}

	default:
		if r.Status.Terminal() {
			c.stopTimers()
			c.sessions.ClearForRoom(r.ID)
			c.sessions.ClearSession()
		}
	}
}

// markAutoStarted flips the one-shot auto-start latch. Returns true only
// for the first caller.
func (c *Client) markAutoStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.autoStarted {
		return false
	}
	c.autoStarted = true
	return true
}

// Move plays one board entry and pushes its effects to the server:
// last-move always, then progress or hearts depending on correctness.
// The full local snapshot is persisted after every accepted move.
func (c *Client) Move(ctx context.Context, row, col int, value uint8) (MoveResult, error) {
	st := c.State()
	if st == nil {
		return MoveResult{}, fmt.Errorf("no active match")
	}

	res := st.ApplyMove(row, col, value)
	if !res.Accepted {
		return res, nil
	}

	if !res.Correct {
		c.armHeartFlash(st)
	}
	c.saveSnapshot(st)

	if c.ConnectionLost() {
		return res, ErrConnectionLost
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return res, err
	}
	if _, err := c.svc.UpdateLastMove(ctx, st.RoomID, room.UpdateLastMoveRequest{
		PlayerID: st.PlayerID, Row: row, Col: col, Value: value, Correct: res.Correct,
	}); err != nil {
		log.Warn().Err(err).Str("room_id", st.RoomID).Msg("last-move push failed")
	}

	if res.Correct {
		_, err := c.svc.UpdateProgress(ctx, st.RoomID, room.UpdateProgressRequest{
			PlayerID: st.PlayerID, Percent: res.ProgressPercent, Completed: res.Completed,
		})
		return res, err
	}
	_, err := c.svc.UpdateHearts(ctx, st.RoomID, room.UpdateHeartsRequest{
		PlayerID: st.PlayerID, Hearts: res.Hearts, PreviousHearts: res.Hearts + 1,
	})
	return res, err
}

// Rematch links a finished room to a fresh one and moves this client
// into it.
func (c *Client) Rematch(ctx context.Context, finishedRoomID, playerName string) (*models.Room, error) {
	st := c.State()
	if st == nil {
		return nil, fmt.Errorf("no active match")
	}

	next, err := c.svc.CreateRoom(ctx, room.CreateRoomRequest{
		PlayerID:   st.PlayerID,
		PlayerName: playerName,
	})
	if err != nil {
		return nil, err
	}
	if _, err := c.svc.AttachNextRoom(ctx, finishedRoomID, room.AttachNextRoomRequest{
		PlayerID:   st.PlayerID,
		NextRoomID: next.ID,
	}); err != nil {
		return nil, err
	}
	return next, c.enterRoom(ctx, next, st.PlayerID)
}

// saveSnapshot persists the full board so a rejoin resumes exactly here.
func (c *Client) saveSnapshot(st *LocalState) {
	st.mu.Lock()
	snap := &session.Snapshot{
		RoomID:   st.RoomID,
		PlayerID: st.PlayerID,
		Grid:     st.Grid,
		Clues:    st.Clues,
		Solution: st.Solution,
		Hearts:   st.Hearts,
		History:  append([]session.Move(nil), st.History...),
	}
	if len(st.Notes) > 0 {
		snap.Notes = make(map[int][]uint8, len(st.Notes))
		for k, v := range st.Notes {
			snap.Notes[k] = append([]uint8(nil), v...)
		}
	}
	st.mu.Unlock()

	if err := c.sessions.StoreCompleteSnapshot(snap.RoomID, snap); err != nil {
		log.Warn().Err(err).Str("room_id", snap.RoomID).Msg("failed to persist snapshot")
	}
}

// Close tears down the feed and timers.
func (c *Client) Close() {
	c.Unsubscribe()
	c.stopTimers()
}
