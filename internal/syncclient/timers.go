package syncclient

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/duelgrid/duelgrid/internal/room"
)

// armCountdown schedules the countdown -> playing transition. The server
// call is idempotent, so every participant arms it and racing fires are
// harmless. Re-arming for the same room is a no-op; a timer left over
// from another room is replaced.
func (c *Client) armCountdown(ctx context.Context, roomID, playerID string, fireAt time.Time) {
	c.mu.Lock()
	if c.countdownTimer != nil && c.countdownFor == roomID {
		c.mu.Unlock()
		return
	}
	if c.countdownTimer != nil {
		stopAndDrainTimer(c.countdownTimer)
	}
	delay := fireAt.Sub(c.clock.Now())
	if delay < 0 {
		delay = 0
	}
	timer := c.clock.NewTimer(delay)
	c.countdownTimer = timer
	c.countdownFor = roomID
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			stopAndDrainTimer(timer)
		case <-timer.Chan():
			if _, err := c.svc.TransitionToPlaying(ctx, roomID, playerID); err != nil {
				log.Warn().Err(err).Str("room_id", roomID).Msg("countdown transition failed")
			}
		}
	}()
}

// armDeadline schedules the match-deadline timeout call. Re-arming for
// the same end time is a no-op; a changed end time replaces the timer.
func (c *Client) armDeadline(ctx context.Context, roomID string, end time.Time) {
	c.mu.Lock()
	if c.deadlineTimer != nil && c.deadlineFor.Equal(end) {
		c.mu.Unlock()
		return
	}
	if c.deadlineTimer != nil {
		stopAndDrainTimer(c.deadlineTimer)
	}
	delay := end.Sub(c.clock.Now())
	if delay < 0 {
		delay = 0
	}
	timer := c.clock.NewTimer(delay)
	c.deadlineTimer = timer
	c.deadlineFor = end
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			stopAndDrainTimer(timer)
		case <-timer.Chan():
			if _, err := c.svc.ExpireDeadline(ctx, roomID); err != nil && err != room.ErrRoomNotFound {
				log.Warn().Err(err).Str("room_id", roomID).Msg("deadline expiry failed")
			}
		}
	}()
}

// armHeartFlash raises the heart-lost pulse and schedules its clear.
// A fresh wrong move restarts the flash window.
func (c *Client) armHeartFlash(st *LocalState) {
	c.mu.Lock()
	if c.flashStop != nil {
		close(c.flashStop)
	}
	stop := make(chan struct{})
	timer := c.clock.NewTimer(heartFlashDuration)
	c.flashTimer = timer
	c.flashStop = stop
	c.mu.Unlock()

	go func() {
		select {
		case <-stop:
			stopAndDrainTimer(timer)
		case <-timer.Chan():
			st.ClearHeartLost()
		}
	}()
}

// stopTimers cancels all pending timers, e.g. when the room goes
// terminal.
func (c *Client) stopTimers() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.countdownTimer != nil {
		stopAndDrainTimer(c.countdownTimer)
		c.countdownTimer = nil
		c.countdownFor = ""
	}
	if c.deadlineTimer != nil {
		stopAndDrainTimer(c.deadlineTimer)
		c.deadlineTimer = nil
		c.deadlineFor = time.Time{}
	}
	if c.flashStop != nil {
		close(c.flashStop)
		c.flashStop = nil
		c.flashTimer = nil
	}
}

func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
