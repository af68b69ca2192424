package syncclient

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/duelgrid/duelgrid/internal/models"
	"github.com/duelgrid/duelgrid/internal/puzzle"
	"github.com/duelgrid/duelgrid/internal/room"
	"github.com/duelgrid/duelgrid/internal/session"
)

// countingService wraps a RoomService and counts StartMatch calls.
type countingService struct {
	RoomService
	startCalls atomic.Int32
}

func (c *countingService) StartMatch(ctx context.Context, roomID string, req room.StartMatchRequest) (*models.Room, error) {
	c.startCalls.Add(1)
	return c.RoomService.StartMatch(ctx, roomID, req)
}

type fixture struct {
	app      *room.App
	svc      *countingService
	sessions *session.Store
	clock    *clockwork.FakeClock
	client   *Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := clockwork.NewFakeClock()
	app := room.NewApp(room.NewMemoryStore(), nil, nil, clock)
	sessions, err := session.NewStore(t.TempDir(), clock)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}

	svc := &countingService{RoomService: app}
	client := NewClient(svc, sessions, Config{Clock: clock})
	t.Cleanup(client.Close)

	return &fixture{app: app, svc: svc, sessions: sessions, clock: clock, client: client}
}

// push re-reads the room and injects it as a snapshot, the way the live
// feed would.
func (f *fixture) push(t *testing.T, roomID string) {
	t.Helper()
	r, err := f.app.GetRoom(context.Background(), roomID)
	if err != nil {
		t.Fatalf("get room: %v", err)
	}
	f.client.HandleSnapshot(context.Background(), r)
}

// waitStatus polls until the stored room reaches the wanted status.
func (f *fixture) waitStatus(t *testing.T, roomID string, want models.RoomStatus) *models.Room {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		r, err := f.app.GetRoom(context.Background(), roomID)
		if err != nil {
			t.Fatalf("get room: %v", err)
		}
		if r.Status == want {
			return r
		}
		if time.Now().After(deadline) {
			t.Fatalf("room never reached %s, stuck at %s", want, r.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// solveCell returns an originally-empty cell and its solution value.
func solveCell(t *testing.T, st *LocalState, skip int) (int, int, uint8) {
	t.Helper()
	for r := 0; r < 9; r++ {
		for c := 0; c < 9; c++ {
			if st.Clues[r][c] == 0 && st.Grid[r][c] == 0 {
				if skip == 0 {
					return r, c, st.Solution[r][c]
				}
				skip--
			}
		}
	}
	t.Fatal("no empty cell left")
	return 0, 0, 0
}

// wrongValue returns a value that is not the solution for the cell.
func wrongValue(st *LocalState, r, c int) uint8 {
	if st.Solution[r][c] == 1 {
		return 2
	}
	return 1
}

func TestHostSeedsStateAndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.client.Host(ctx, "Ada", "")
	if err != nil {
		t.Fatalf("host: %v", err)
	}

	st := f.client.State()
	if st == nil {
		t.Fatal("expected state after hosting")
	}
	if st.RoomID != r.ID {
		t.Fatalf("state bound to %s, want %s", st.RoomID, r.ID)
	}
	if st.HeartCount() != models.StartingHearts {
		t.Fatalf("expected %d hearts, got %d", models.StartingHearts, st.HeartCount())
	}
	if got := puzzle.CountEmpty(&st.Clues); got != r.TotalEmptyCells {
		t.Fatalf("clue grid has %d empties, room says %d", got, r.TotalEmptyCells)
	}

	sess := f.sessions.GetSession()
	if sess == nil || sess.RoomID != r.ID {
		t.Fatal("expected persisted session pointing at the room")
	}
}

func TestAutoStartFiresExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.client.Host(ctx, "Ada", "")
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	if _, err := f.app.JoinRoom(ctx, r.ID, room.JoinRoomRequest{PlayerID: "p2", PlayerName: "Bo"}); err != nil {
		t.Fatalf("join: %v", err)
	}

	// The host sees the filled room twice; only the first sighting starts.
	f.push(t, r.ID)
	full, _ := f.app.GetRoom(ctx, r.ID)
	if full.Status != models.RoomStatusCountdown {
		t.Fatalf("expected COUNTDOWN after auto-start, got %s", full.Status)
	}
	f.client.HandleSnapshot(ctx, full)

	if got := f.svc.startCalls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 StartMatch call, got %d", got)
	}
}

func TestCountdownTimerTransitionsToPlaying(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.client.Host(ctx, "Ada", "")
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	if _, err := f.app.JoinRoom(ctx, r.ID, room.JoinRoomRequest{PlayerID: "p2", PlayerName: "Bo"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	f.push(t, r.ID) // auto-start -> countdown
	f.push(t, r.ID) // countdown snapshot arms the timer

	f.clock.BlockUntil(1)
	f.clock.Advance(models.CountdownDuration)

	playing := f.waitStatus(t, r.ID, models.RoomStatusPlaying)
	if playing.GameStartTime == nil || playing.GameEndTime == nil {
		t.Fatal("expected game window stamped")
	}
}

func TestDeadlineTimerExpiresMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.client.Host(ctx, "Ada", "")
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	if _, err := f.app.JoinRoom(ctx, r.ID, room.JoinRoomRequest{PlayerID: "p2", PlayerName: "Bo"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	f.push(t, r.ID)
	f.push(t, r.ID)
	f.clock.BlockUntil(1)
	f.clock.Advance(models.CountdownDuration)
	f.waitStatus(t, r.ID, models.RoomStatusPlaying)
	f.push(t, r.ID) // playing snapshot arms the deadline

	// One player ahead on progress when time runs out.
	if _, err := f.app.UpdateProgress(ctx, r.ID, room.UpdateProgressRequest{PlayerID: "p2", Percent: 40}); err != nil {
		t.Fatalf("progress: %v", err)
	}

	f.clock.BlockUntil(1)
	f.clock.Advance(models.MatchDuration)

	ended := f.waitStatus(t, r.ID, models.RoomStatusTimeUpProgress)
	if ended.WinnerID == nil || *ended.WinnerID != "p2" {
		t.Fatal("expected the leader to win on timeout")
	}
}

func TestMovePushesProgressAndHearts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.client.Host(ctx, "Ada", "")
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	hostID := f.client.State().PlayerID
	if _, err := f.app.JoinRoom(ctx, r.ID, room.JoinRoomRequest{PlayerID: "p2", PlayerName: "Bo"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	f.push(t, r.ID)
	f.push(t, r.ID)
	f.clock.BlockUntil(1)
	f.clock.Advance(models.CountdownDuration)
	f.waitStatus(t, r.ID, models.RoomStatusPlaying)

	st := f.client.State()
	row, col, v := solveCell(t, st, 0)
	res, err := f.client.Move(ctx, row, col, v)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if !res.Accepted || !res.Correct {
		t.Fatal("expected correct move accepted")
	}

	after, _ := f.app.GetRoom(ctx, r.ID)
	self := after.FindPlayer(hostID)
	if self.ProgressPercent != res.ProgressPercent || self.ProgressPercent == 0 {
		t.Fatalf("server progress %d, local %d", self.ProgressPercent, res.ProgressPercent)
	}
	if self.LastMove == nil || self.LastMove.Row != row || self.LastMove.Col != col {
		t.Fatal("expected last move recorded on the server")
	}

	wr, wc, _ := solveCell(t, st, 0)
	res, err = f.client.Move(ctx, wr, wc, wrongValue(st, wr, wc))
	if err != nil {
		t.Fatalf("wrong move: %v", err)
	}
	if res.Correct || res.Hearts != models.StartingHearts-1 {
		t.Fatalf("expected heart lost, got %+v", res)
	}

	after, _ = f.app.GetRoom(ctx, r.ID)
	if after.FindPlayer(hostID).Hearts != models.StartingHearts-1 {
		t.Fatal("expected server heart count to drop")
	}
	if !f.client.State().HeartLostActive() {
		t.Fatal("expected heart-lost pulse raised")
	}

	f.clock.BlockUntil(1)
	f.clock.Advance(heartFlashDuration)
	deadline := time.Now().Add(time.Second)
	for f.client.State().HeartLostActive() {
		if time.Now().After(deadline) {
			t.Fatal("heart-lost pulse never cleared")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMoveRejectsClueCell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.client.Host(ctx, "Ada", ""); err != nil {
		t.Fatalf("host: %v", err)
	}
	st := f.client.State()

	var cr, cc int
	found := false
	for r := 0; r < 9 && !found; r++ {
		for c := 0; c < 9 && !found; c++ {
			if st.Clues[r][c] != 0 {
				cr, cc = r, c
				found = true
			}
		}
	}
	if !found {
		t.Fatal("puzzle has no clues")
	}

	res := st.ApplyMove(cr, cc, 5)
	if res.Accepted {
		t.Fatal("clue cells must be immutable")
	}
	if st.HeartCount() != models.StartingHearts {
		t.Fatal("rejected move must not cost a heart")
	}
}

func TestHeartMergeAcceptsOnlyDecreases(t *testing.T) {
	st := NewLocalState("R1", "p1", puzzle.Grid{}, puzzle.Grid{}, 10)

	snap := &models.Room{
		ID:      "R1",
		Version: 1,
		Status:  models.RoomStatusPlaying,
		Players: []models.Player{
			{ID: "p1", Name: "Ada", Hearts: 1},
			{ID: "p2", Name: "Bo", Hearts: 2},
		},
	}
	if !st.ApplySnapshot(snap) {
		t.Fatal("expected snapshot applied")
	}
	if st.HeartCount() != 1 {
		t.Fatalf("expected decrease accepted, got %d", st.HeartCount())
	}

	// A stale echo with more hearts must not bump the count back up.
	snap2 := &models.Room{
		ID:      "R1",
		Version: 2,
		Status:  models.RoomStatusPlaying,
		Players: []models.Player{
			{ID: "p1", Name: "Ada", Hearts: 3},
			{ID: "p2", Name: "Bo", Hearts: 5},
		},
	}
	if !st.ApplySnapshot(snap2) {
		t.Fatal("expected snapshot applied")
	}
	if st.HeartCount() != 1 {
		t.Fatalf("stale heart increase leaked through: %d", st.HeartCount())
	}
	// Opponent values are taken as-is, increases included.
	if st.OpponentState().Hearts != 5 {
		t.Fatalf("opponent hearts should follow the server, got %d", st.OpponentState().Hearts)
	}
}

func TestApplySnapshotIgnoresStaleVersions(t *testing.T) {
	st := NewLocalState("R1", "p1", puzzle.Grid{}, puzzle.Grid{}, 10)

	fresh := &models.Room{
		ID: "R1", Version: 5, Status: models.RoomStatusPlaying,
		Players: []models.Player{{ID: "p1", Name: "Ada", Hearts: 2}},
	}
	if !st.ApplySnapshot(fresh) {
		t.Fatal("expected fresh snapshot applied")
	}

	stale := &models.Room{
		ID: "R1", Version: 4, Status: models.RoomStatusWaiting,
		Players: []models.Player{{ID: "p1", Name: "Ada", Hearts: 0}},
	}
	if st.ApplySnapshot(stale) {
		t.Fatal("stale snapshot must be dropped")
	}
	if st.CurrentStatus() != models.RoomStatusPlaying || st.HeartCount() != 2 {
		t.Fatal("stale snapshot mutated state")
	}
}

func TestResumeRestoresBoardFromDisk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.client.Host(ctx, "Ada", "")
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	if _, err := f.app.JoinRoom(ctx, r.ID, room.JoinRoomRequest{PlayerID: "p2", PlayerName: "Bo"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	f.push(t, r.ID)
	f.push(t, r.ID)
	f.clock.BlockUntil(1)
	f.clock.Advance(models.CountdownDuration)
	f.waitStatus(t, r.ID, models.RoomStatusPlaying)
	f.push(t, r.ID)

	st := f.client.State()
	row, col, v := solveCell(t, st, 0)
	if _, err := f.client.Move(ctx, row, col, v); err != nil {
		t.Fatalf("move: %v", err)
	}
	wr, wc, _ := solveCell(t, st, 0)
	if _, err := f.client.Move(ctx, wr, wc, wrongValue(st, wr, wc)); err != nil {
		t.Fatalf("wrong move: %v", err)
	}
	f.client.Close()

	// Fresh client over the same session directory, as after a reload.
	resumed := NewClient(f.app, f.sessions, Config{Clock: f.clock})
	t.Cleanup(resumed.Close)

	got, err := resumed.Resume(ctx, "Ada")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if got.ID != r.ID {
		t.Fatalf("resumed into %s, want %s", got.ID, r.ID)
	}

	rst := resumed.State()
	if rst.Grid[row][col] != v {
		t.Fatal("expected solved cell restored")
	}
	if rst.HeartCount() != models.StartingHearts-1 {
		t.Fatalf("expected %d hearts after restore, got %d", models.StartingHearts-1, rst.HeartCount())
	}
	if len(rst.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(rst.History))
	}
}

func TestResumeWithoutSessionFails(t *testing.T) {
	f := newFixture(t)

	if _, err := f.client.Resume(context.Background(), "Ada"); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestResumeClearsSessionWhenRoomIsGone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.sessions.StoreSession("GONE42", "p1", nil); err != nil {
		t.Fatalf("store session: %v", err)
	}

	_, err := f.client.Resume(ctx, "Ada")
	if !errors.Is(err, room.ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	if f.sessions.GetSession() != nil {
		t.Fatal("dead-room session left on disk")
	}

	// The next launch lands on the room-choice screen, not a retry loop.
	if _, err := f.client.Resume(ctx, "Ada"); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession on second resume, got %v", err)
	}
}

func TestHostingNewRoomReplacesOldCountdownTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.client.Host(ctx, "Ada", "")
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	if _, err := f.app.JoinRoom(ctx, first.ID, room.JoinRoomRequest{PlayerID: "p2", PlayerName: "Bo"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	f.push(t, first.ID)
	f.push(t, first.ID)
	f.clock.BlockUntil(1)

	// Abandon the first room mid-countdown and host a fresh one.
	second, err := f.client.Host(ctx, "Ada", "")
	if err != nil {
		t.Fatalf("host second: %v", err)
	}
	if _, err := f.app.JoinRoom(ctx, second.ID, room.JoinRoomRequest{PlayerID: "p3", PlayerName: "Cy"}); err != nil {
		t.Fatalf("join second: %v", err)
	}
	f.push(t, second.ID)
	f.push(t, second.ID)

	f.clock.BlockUntil(1)
	f.clock.Advance(models.CountdownDuration)

	f.waitStatus(t, second.ID, models.RoomStatusPlaying)

	abandoned, err := f.app.GetRoom(ctx, first.ID)
	if err != nil {
		t.Fatalf("get first room: %v", err)
	}
	if abandoned.Status != models.RoomStatusCountdown {
		t.Fatalf("abandoned room advanced to %s", abandoned.Status)
	}
}

func TestTerminalSnapshotClearsCachedState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.client.Host(ctx, "Ada", "")
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	if _, err := f.app.JoinRoom(ctx, r.ID, room.JoinRoomRequest{PlayerID: "p2", PlayerName: "Bo"}); err != nil {
		t.Fatalf("join: %v", err)
	}
	f.push(t, r.ID)
	f.push(t, r.ID)
	f.clock.BlockUntil(1)
	f.clock.Advance(models.CountdownDuration)
	f.waitStatus(t, r.ID, models.RoomStatusPlaying)
	f.push(t, r.ID)

	if _, err := f.app.UpdateProgress(ctx, r.ID, room.UpdateProgressRequest{
		PlayerID: "p2", Percent: 100, Completed: true,
	}); err != nil {
		t.Fatalf("progress: %v", err)
	}
	f.push(t, r.ID)

	if !f.client.State().CurrentStatus().Terminal() {
		t.Fatal("expected terminal status reconciled")
	}
	if f.sessions.GetSession() != nil {
		t.Fatal("expected session cleared after game end")
	}
	if f.sessions.GetCompleteSnapshot(r.ID) != nil {
		t.Fatal("expected snapshot cleared after game end")
	}
}
