// Package events defines the envelope carried from room mutations to live
// subscribers. Every event embeds a full room snapshot plus the document
// version, so consumers can mirror state without replaying history and can
// drop out-of-order deliveries.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/duelgrid/duelgrid/internal/models"
)

// Type classifies what mutation produced the event.
type Type string

const (
	TypePlayerJoined     Type = "PlayerJoined"
	TypeCountdownStarted Type = "CountdownStarted"
	TypePlayingStarted   Type = "PlayingStarted"
	TypeProgressUpdated  Type = "ProgressUpdated"
	TypeHeartsUpdated    Type = "HeartsUpdated"
	TypeLastMoveUpdated  Type = "LastMoveUpdated"
	TypeRoomEnded        Type = "RoomEnded"
	TypeRematchLinked    Type = "RematchLinked"
)

// Envelope is the wire format for one room event.
type Envelope struct {
	EventID   string          `json:"event_id"`
	RoomID    string          `json:"room_id"`
	Type      Type            `json:"type"`
	Version   int64           `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// RoomSnapshotPayload carries the authoritative document state.
type RoomSnapshotPayload struct {
	Room models.Room `json:"room"`
}

// NewRoomEvent wraps the room's current state in an envelope.
func NewRoomEvent(eventType Type, room *models.Room) (*Envelope, error) {
	payload, err := json.Marshal(RoomSnapshotPayload{Room: *room})
	if err != nil {
		return nil, fmt.Errorf("marshal room snapshot: %w", err)
	}
	return &Envelope{
		EventID:   uuid.New().String(),
		RoomID:    room.ID,
		Type:      eventType,
		Version:   room.Version,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}, nil
}

// RoomSnapshot decodes the embedded room state.
func (e *Envelope) RoomSnapshot() (*models.Room, error) {
	var payload RoomSnapshotPayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal room snapshot: %w", err)
	}
	return &payload.Room, nil
}
