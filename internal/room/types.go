package room

// CreateRoomRequest asks for a fresh room with the caller as host.
type CreateRoomRequest struct {
	PlayerID    string `json:"player_id"`
	PlayerName  string `json:"player_name"`
	PuzzleSetID string `json:"puzzle_set_id,omitempty"`
}

// JoinRoomRequest enters an existing room. A PlayerID already present in
// the room marks the call as a rejoin, which always succeeds.
type JoinRoomRequest struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
}

// StartMatchRequest moves a waiting room into countdown. Host only.
type StartMatchRequest struct {
	PlayerID string `json:"player_id"`
	// Solo allows the host to start without an opponent.
	Solo bool `json:"solo,omitempty"`
}

// UpdateProgressRequest pushes a player's derived completion state.
type UpdateProgressRequest struct {
	PlayerID  string `json:"player_id"`
	Percent   int    `json:"percent"`
	Completed bool   `json:"completed"`
}

// UpdateHeartsRequest pushes a player's heart count after a wrong move.
type UpdateHeartsRequest struct {
	PlayerID       string `json:"player_id"`
	Hearts         int    `json:"hearts"`
	PreviousHearts int    `json:"previous_hearts"`
}

// UpdateLastMoveRequest pushes the advisory last-move decoration.
type UpdateLastMoveRequest struct {
	PlayerID string `json:"player_id"`
	Row      int    `json:"row"`
	Col      int    `json:"col"`
	Value    uint8  `json:"value"`
	Correct  bool   `json:"correct"`
}

// AttachNextRoomRequest links a finished room to its rematch.
type AttachNextRoomRequest struct {
	PlayerID   string `json:"player_id"`
	NextRoomID string `json:"next_room_id"`
}
