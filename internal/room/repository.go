package room

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/duelgrid/duelgrid/internal/models"
	"github.com/duelgrid/duelgrid/internal/puzzle"
)

// Repository is the Postgres-backed Store. Updates run as
// SELECT ... FOR UPDATE read-modify-write transactions so concurrent
// pushes from both clients serialize on the row.
type Repository struct {
	db *sql.DB
}

// NewRepository wraps an open database handle.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// outcome is the nullable terminal verdict column.
type outcome struct {
	WinnerID  *string          `json:"winner_id,omitempty"`
	EndReason models.EndReason `json:"end_reason"`
}

const createRoomSQL = `
INSERT INTO rooms (
	id, status, puzzle_set_id, puzzle_index, extra_reveal_cells,
	total_empty_cells, match_duration_sec, players, countdown_started_at,
	game_start_time, game_end_time, outcome, next_room_id,
	last_activity, version, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`

func (r *Repository) Create(ctx context.Context, room *models.Room) error {
	if err := room.Validate(); err != nil {
		return fmt.Errorf("invalid room: %w", err)
	}

	now := time.Now().UTC()
	room.Version = 1
	room.CreatedAt = now
	room.UpdatedAt = now
	room.LastActivity = now

	args, err := roomToArgs(room)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, createRoomSQL, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrRoomCodeTaken
		}
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

const getRoomSQL = `
SELECT id, status, puzzle_set_id, puzzle_index, extra_reveal_cells,
	total_empty_cells, match_duration_sec, players, countdown_started_at,
	game_start_time, game_end_time, outcome, next_room_id,
	last_activity, version, created_at, updated_at
FROM rooms WHERE id = $1`

func (r *Repository) Get(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := scanRoom(r.db.QueryRowContext(ctx, getRoomSQL, roomID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

const updateRoomSQL = `
UPDATE rooms SET
	status = $2, players = $3, countdown_started_at = $4,
	game_start_time = $5, game_end_time = $6, outcome = $7,
	next_room_id = $8, last_activity = $9, version = $10, updated_at = $11
WHERE id = $1`

func (r *Repository) Update(ctx context.Context, roomID string, mutate func(*models.Room) error) (*models.Room, error) {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = txn.Rollback()
	}()

	room, err := scanRoom(txn.QueryRowContext(ctx, getRoomSQL+" FOR UPDATE", roomID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to lock room: %w", err)
	}

	if err := mutate(room); err != nil {
		return nil, err
	}
	if err := room.Validate(); err != nil {
		return nil, fmt.Errorf("invalid room after mutation: %w", err)
	}

	now := time.Now().UTC()
	room.Version++
	room.UpdatedAt = now
	room.LastActivity = now

	playersJSON, err := json.Marshal(room.Players)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal players: %w", err)
	}
	outcomeValue, err := outcomeToNullRaw(room)
	if err != nil {
		return nil, err
	}

	if _, err := txn.ExecContext(ctx, updateRoomSQL,
		room.ID,
		string(room.Status),
		playersJSON,
		nullTime(room.CountdownStartedAt),
		nullTime(room.GameStartTime),
		nullTime(room.GameEndTime),
		outcomeValue,
		nullString(room.NextRoomID),
		room.LastActivity,
		room.Version,
		room.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to update room: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit room update: %w", err)
	}
	return room, nil
}

const deleteStaleSQL = `DELETE FROM rooms WHERE last_activity < $1 RETURNING id`

func (r *Repository) DeleteStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, deleteStaleSQL, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete stale rooms: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan deleted room id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func roomToArgs(room *models.Room) ([]interface{}, error) {
	playersJSON, err := json.Marshal(room.Players)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal players: %w", err)
	}
	revealsJSON, err := json.Marshal(room.ExtraRevealCells)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extra reveals: %w", err)
	}
	outcomeValue, err := outcomeToNullRaw(room)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		room.ID,
		string(room.Status),
		room.PuzzleSetID,
		room.PuzzleIndex,
		revealsJSON,
		room.TotalEmptyCells,
		room.MatchDurationSec,
		playersJSON,
		nullTime(room.CountdownStartedAt),
		nullTime(room.GameStartTime),
		nullTime(room.GameEndTime),
		outcomeValue,
		nullString(room.NextRoomID),
		room.LastActivity,
		room.Version,
		room.CreatedAt,
		room.UpdatedAt,
	}, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRoom(row rowScanner) (*models.Room, error) {
	var (
		room               models.Room
		status             string
		playersJSON        []byte
		revealsJSON        []byte
		countdownStartedAt sql.NullTime
		gameStartTime      sql.NullTime
		gameEndTime        sql.NullTime
		outcomeRaw         pqtype.NullRawMessage
		nextRoomID         sql.NullString
	)
	if err := row.Scan(
		&room.ID,
		&status,
		&room.PuzzleSetID,
		&room.PuzzleIndex,
		&revealsJSON,
		&room.TotalEmptyCells,
		&room.MatchDurationSec,
		&playersJSON,
		&countdownStartedAt,
		&gameStartTime,
		&gameEndTime,
		&outcomeRaw,
		&nextRoomID,
		&room.LastActivity,
		&room.Version,
		&room.CreatedAt,
		&room.UpdatedAt,
	); err != nil {
		return nil, err
	}

	room.Status = models.RoomStatus(status)
	if err := json.Unmarshal(playersJSON, &room.Players); err != nil {
		return nil, fmt.Errorf("failed to unmarshal players: %w", err)
	}
	if err := json.Unmarshal(revealsJSON, &room.ExtraRevealCells); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extra reveals: %w", err)
	}
	if room.ExtraRevealCells == nil {
		room.ExtraRevealCells = []puzzle.Cell{}
	}
	if countdownStartedAt.Valid {
		room.CountdownStartedAt = &countdownStartedAt.Time
	}
	if gameStartTime.Valid {
		room.GameStartTime = &gameStartTime.Time
	}
	if gameEndTime.Valid {
		room.GameEndTime = &gameEndTime.Time
	}
	if outcomeRaw.Valid {
		var o outcome
		if err := json.Unmarshal(outcomeRaw.RawMessage, &o); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outcome: %w", err)
		}
		room.WinnerID = o.WinnerID
		reason := o.EndReason
		room.EndReason = &reason
	}
	if nextRoomID.Valid {
		room.NextRoomID = &nextRoomID.String
	}

	if err := room.Validate(); err != nil {
		return nil, fmt.Errorf("stored room failed validation: %w", err)
	}
	return &room, nil
}

func outcomeToNullRaw(room *models.Room) (pqtype.NullRawMessage, error) {
	if room.EndReason == nil {
		return pqtype.NullRawMessage{}, nil
	}
	raw, err := json.Marshal(outcome{WinnerID: room.WinnerID, EndReason: *room.EndReason})
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("failed to marshal outcome: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
