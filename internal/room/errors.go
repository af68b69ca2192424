package room

import "errors"

var (
	// ErrRoomNotFound is returned when the referenced room does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomCodeTaken is returned by Create when the generated room code
	// collides with a live room. Callers retry with a fresh code.
	ErrRoomCodeTaken = errors.New("room code already taken")

	// ErrRoomFull is returned when a non-rejoining caller tries to enter a
	// room that already has two players.
	ErrRoomFull = errors.New("room is full")

	// ErrGameAlreadyStarted is returned when a non-rejoining caller tries
	// to enter a room that has left the waiting state.
	ErrGameAlreadyStarted = errors.New("game already started")

	// ErrNotHost is returned when a non-host issues a host-only command.
	ErrNotHost = errors.New("only the host may start the match")

	// ErrNotEnoughPlayers is returned when start is issued without a full
	// room and without the solo override.
	ErrNotEnoughPlayers = errors.New("room needs two players to start")

	// ErrInvalidTransition is returned for lifecycle commands issued in
	// the wrong state.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")

	// ErrNotParticipant is returned when the caller is not in the room.
	ErrNotParticipant = errors.New("player is not in this room")

	// ErrRematchConflict is returned when a rematch link would overwrite
	// an existing different link.
	ErrRematchConflict = errors.New("room already links to a different rematch")
)
