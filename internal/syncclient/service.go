package syncclient

import (
	"context"

	"github.com/duelgrid/duelgrid/internal/models"
	"github.com/duelgrid/duelgrid/internal/room"
)

// RoomService is the slice of room operations the client pushes through.
// *room.App satisfies it directly for in-process use; HTTPService speaks
// to a remote gateway.
type RoomService interface {
	CreateRoom(ctx context.Context, req room.CreateRoomRequest) (*models.Room, error)
	JoinRoom(ctx context.Context, roomID string, req room.JoinRoomRequest) (*models.Room, error)
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	StartMatch(ctx context.Context, roomID string, req room.StartMatchRequest) (*models.Room, error)
	TransitionToPlaying(ctx context.Context, roomID, playerID string) (*models.Room, error)
	UpdateProgress(ctx context.Context, roomID string, req room.UpdateProgressRequest) (*models.Room, error)
	UpdateHearts(ctx context.Context, roomID string, req room.UpdateHeartsRequest) (*models.Room, error)
	UpdateLastMove(ctx context.Context, roomID string, req room.UpdateLastMoveRequest) (*models.Room, error)
	ExpireDeadline(ctx context.Context, roomID string) (*models.Room, error)
	AttachNextRoom(ctx context.Context, roomID string, req room.AttachNextRoomRequest) (*models.Room, error)
}
