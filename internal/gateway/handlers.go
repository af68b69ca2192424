package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/duelgrid/duelgrid/internal/models"
	"github.com/duelgrid/duelgrid/internal/room"
)

// Handlers exposes the room operations over HTTP. The live feed rides the
// websocket endpoint; everything else is small JSON commands.
type Handlers struct {
	app *room.App
	cm  *ConnectionManager
	// baseURL is embedded in join QR codes; empty disables the endpoint.
	baseURL string
}

// NewHandlers creates the HTTP layer over the room app.
func NewHandlers(app *room.App, cm *ConnectionManager, baseURL string) *Handlers {
	return &Handlers{app: app, cm: cm, baseURL: baseURL}
}

// Register mounts all routes on the router.
func (h *Handlers) Register(router *httprouter.Router) {
	router.POST("/api/rooms", h.createRoom)
	router.GET("/api/rooms/:id", h.getRoom)
	router.POST("/api/rooms/:id/join", h.joinRoom)
	router.POST("/api/rooms/:id/start", h.startMatch)
	router.POST("/api/rooms/:id/playing", h.transitionToPlaying)
	router.POST("/api/rooms/:id/end", h.endMatch)
	router.POST("/api/rooms/:id/progress", h.updateProgress)
	router.POST("/api/rooms/:id/hearts", h.updateHearts)
	router.POST("/api/rooms/:id/move", h.updateLastMove)
	router.POST("/api/rooms/:id/rematch", h.attachNextRoom)
	router.GET("/rooms/:id/qr", h.joinQR)
	router.GET("/ws/rooms", h.subscribe)
	router.GET("/ws/stats", h.stats)
	router.GET("/health", h.health)
}

type roomResponse struct {
	RoomID string       `json:"room_id"`
	Room   *models.Room `json:"room"`
}

func (h *Handlers) createRoom(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req room.CreateRoomRequest
	if !decode(w, r, &req) {
		return
	}
	created, err := h.app.CreateRoom(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, roomResponse{RoomID: created.ID, Room: created})
}

func (h *Handlers) getRoom(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	got, err := h.app.GetRoom(r.Context(), ps.ByName("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{RoomID: got.ID, Room: got})
}

func (h *Handlers) joinRoom(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req room.JoinRoomRequest
	if !decode(w, r, &req) {
		return
	}
	joined, err := h.app.JoinRoom(r.Context(), ps.ByName("id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{RoomID: joined.ID, Room: joined})
}

func (h *Handlers) startMatch(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req room.StartMatchRequest
	if !decode(w, r, &req) {
		return
	}
	updated, err := h.app.StartMatch(r.Context(), ps.ByName("id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{RoomID: updated.ID, Room: updated})
}

func (h *Handlers) transitionToPlaying(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		PlayerID string `json:"player_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	updated, err := h.app.TransitionToPlaying(r.Context(), ps.ByName("id"), req.PlayerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{RoomID: updated.ID, Room: updated})
}

func (h *Handlers) endMatch(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		PlayerID string           `json:"player_id"`
		WinnerID string           `json:"winner_id,omitempty"`
		Reason   models.EndReason `json:"reason"`
		Deadline bool             `json:"deadline,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}

	var (
		updated *models.Room
		err     error
	)
	switch {
	case req.Deadline:
		// Client-side deadline timer fired; run the timeout arbitration.
		updated, err = h.app.ExpireDeadline(r.Context(), ps.ByName("id"))
	case req.WinnerID != "":
		updated, err = h.app.EndWithWinner(r.Context(), ps.ByName("id"), req.WinnerID, req.Reason)
	default:
		updated, err = h.app.EndWithDraw(r.Context(), ps.ByName("id"), req.Reason)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{RoomID: updated.ID, Room: updated})
}

func (h *Handlers) updateProgress(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req room.UpdateProgressRequest
	if !decode(w, r, &req) {
		return
	}
	updated, err := h.app.UpdateProgress(r.Context(), ps.ByName("id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{RoomID: updated.ID, Room: updated})
}

func (h *Handlers) updateHearts(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req room.UpdateHeartsRequest
	if !decode(w, r, &req) {
		return
	}
	updated, err := h.app.UpdateHearts(r.Context(), ps.ByName("id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{RoomID: updated.ID, Room: updated})
}

func (h *Handlers) updateLastMove(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req room.UpdateLastMoveRequest
	if !decode(w, r, &req) {
		return
	}
	updated, err := h.app.UpdateLastMove(r.Context(), ps.ByName("id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{RoomID: updated.ID, Room: updated})
}

func (h *Handlers) attachNextRoom(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req room.AttachNextRoomRequest
	if !decode(w, r, &req) {
		return
	}
	updated, err := h.app.AttachNextRoom(r.Context(), ps.ByName("id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roomResponse{RoomID: updated.ID, Room: updated})
}

// joinQR renders the room join link as a QR code so the second player can
// hop in from a phone.
func (h *Handlers) joinQR(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomID := ps.ByName("id")
	if _, err := h.app.GetRoom(r.Context(), roomID); err != nil {
		writeError(w, err)
		return
	}
	png, err := qrcode.Encode(fmt.Sprintf("%s/join/%s", h.baseURL, roomID), qrcode.Medium, 256)
	if err != nil {
		writeError(w, fmt.Errorf("encode qr: %w", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (h *Handlers) subscribe(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		playerID = "spectator"
	}

	if _, err := h.app.GetRoom(r.Context(), roomID); err != nil {
		writeError(w, err)
		return
	}
	if err := h.cm.Open(w, r, playerID, roomID); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to open subscription")
	}
}

func (h *Handlers) stats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	total, rooms := h.cm.Stats()
	writeJSON(w, http.StatusOK, map[string]int{
		"total_connections": total,
		"active_rooms":      rooms,
	})
}

func (h *Handlers) health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError maps domain errors onto HTTP statuses and stable codes the
// client switches on.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal"

	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		status, code = http.StatusNotFound, "room_not_found"
	case errors.Is(err, room.ErrRoomFull):
		status, code = http.StatusConflict, "room_full"
	case errors.Is(err, room.ErrGameAlreadyStarted):
		status, code = http.StatusConflict, "game_already_started"
	case errors.Is(err, room.ErrNotHost):
		status, code = http.StatusForbidden, "not_host"
	case errors.Is(err, room.ErrNotEnoughPlayers):
		status, code = http.StatusConflict, "not_enough_players"
	case errors.Is(err, room.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, room.ErrNotParticipant):
		status, code = http.StatusForbidden, "not_participant"
	case errors.Is(err, room.ErrRematchConflict):
		status, code = http.StatusConflict, "rematch_conflict"
	}

	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}
