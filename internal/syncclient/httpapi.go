package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/duelgrid/duelgrid/internal/models"
	"github.com/duelgrid/duelgrid/internal/room"
)

const (
	httpRetryAttempts = 3
	httpRetryBackoff  = 250 * time.Millisecond
)

// HTTPService is the RoomService implementation that talks to a remote
// gateway. Transient failures (network errors, 5xx) are retried a fixed
// number of times with linear backoff; 4xx responses map straight back
// to the domain sentinels.
type HTTPService struct {
	baseURL string
	client  *http.Client
	clock   clockwork.Clock
}

// NewHTTPService creates a client for the gateway at baseURL
// (e.g. http://host:port).
func NewHTTPService(baseURL string, clock clockwork.Clock) *HTTPService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HTTPService{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		clock:   clock,
	}
}

var _ RoomService = (*HTTPService)(nil)

type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type apiRoomResponse struct {
	RoomID string       `json:"room_id"`
	Room   *models.Room `json:"room"`
}

func (s *HTTPService) CreateRoom(ctx context.Context, req room.CreateRoomRequest) (*models.Room, error) {
	return s.roundTrip(ctx, http.MethodPost, "/api/rooms", req)
}

func (s *HTTPService) JoinRoom(ctx context.Context, roomID string, req room.JoinRoomRequest) (*models.Room, error) {
	return s.roundTrip(ctx, http.MethodPost, "/api/rooms/"+roomID+"/join", req)
}

func (s *HTTPService) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return s.roundTrip(ctx, http.MethodGet, "/api/rooms/"+roomID, nil)
}

func (s *HTTPService) StartMatch(ctx context.Context, roomID string, req room.StartMatchRequest) (*models.Room, error) {
	return s.roundTrip(ctx, http.MethodPost, "/api/rooms/"+roomID+"/start", req)
}

func (s *HTTPService) TransitionToPlaying(ctx context.Context, roomID, playerID string) (*models.Room, error) {
	body := map[string]string{"player_id": playerID}
	return s.roundTrip(ctx, http.MethodPost, "/api/rooms/"+roomID+"/playing", body)
}

func (s *HTTPService) UpdateProgress(ctx context.Context, roomID string, req room.UpdateProgressRequest) (*models.Room, error) {
	return s.roundTrip(ctx, http.MethodPost, "/api/rooms/"+roomID+"/progress", req)
}

func (s *HTTPService) UpdateHearts(ctx context.Context, roomID string, req room.UpdateHeartsRequest) (*models.Room, error) {
	return s.roundTrip(ctx, http.MethodPost, "/api/rooms/"+roomID+"/hearts", req)
}

func (s *HTTPService) UpdateLastMove(ctx context.Context, roomID string, req room.UpdateLastMoveRequest) (*models.Room, error) {
	return s.roundTrip(ctx, http.MethodPost, "/api/rooms/"+roomID+"/move", req)
}

func (s *HTTPService) ExpireDeadline(ctx context.Context, roomID string) (*models.Room, error) {
	body := map[string]bool{"deadline": true}
	return s.roundTrip(ctx, http.MethodPost, "/api/rooms/"+roomID+"/end", body)
}

func (s *HTTPService) AttachNextRoom(ctx context.Context, roomID string, req room.AttachNextRoomRequest) (*models.Room, error) {
	return s.roundTrip(ctx, http.MethodPost, "/api/rooms/"+roomID+"/rematch", req)
}

// roundTrip sends one request with bounded retry on transient failures.
func (s *HTTPService) roundTrip(ctx context.Context, method, path string, body interface{}) (*models.Room, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= httpRetryAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-s.clock.After(httpRetryBackoff * time.Duration(attempt-1)):
			}
		}

		r, retryable, err := s.send(ctx, method, path, payload)
		if err == nil {
			return r, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		log.Warn().Err(err).Str("path", path).Int("attempt", attempt).Msg("request failed, retrying")
	}
	return nil, fmt.Errorf("%s %s: %w", method, path, lastErr)
}

func (s *HTTPService) send(ctx context.Context, method, path string, payload []byte) (*models.Room, bool, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, false, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("server error: %s", resp.Status)
	}
	if resp.StatusCode >= 400 {
		var ae apiError
		if err := json.NewDecoder(resp.Body).Decode(&ae); err != nil {
			return nil, false, fmt.Errorf("request failed: %s", resp.Status)
		}
		return nil, false, codeToError(ae)
	}

	var rr apiRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	return rr.Room, false, nil
}

// codeToError maps the gateway's stable error codes back onto the domain
// sentinels so callers can errors.Is on either side of the wire.
func codeToError(ae apiError) error {
	switch ae.Code {
	case "room_not_found":
		return room.ErrRoomNotFound
	case "room_full":
		return room.ErrRoomFull
	case "game_already_started":
		return room.ErrGameAlreadyStarted
	case "not_host":
		return room.ErrNotHost
	case "not_enough_players":
		return room.ErrNotEnoughPlayers
	case "invalid_transition":
		return room.ErrInvalidTransition
	case "not_participant":
		return room.ErrNotParticipant
	case "rematch_conflict":
		return room.ErrRematchConflict
	default:
		return fmt.Errorf("%s", ae.Error)
	}
}
