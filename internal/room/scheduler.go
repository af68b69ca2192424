package room

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DeadlineScheduler arms one one-shot timer per playing room and invokes
// the timeout arbitration when it fires. The server-side timer backs up
// the clients' local deadline timers; both paths converge on the same
// guarded terminal write.
type DeadlineScheduler struct {
	clock  clockwork.Clock
	expire func(ctx context.Context, roomID string) error

	mu           sync.Mutex
	activeTimers map[string]clockwork.Timer
	armedFor     map[string]time.Time

	ctx context.Context
}

// NewDeadlineScheduler creates a scheduler bound to ctx; cancelling ctx
// stops all pending timers.
func NewDeadlineScheduler(ctx context.Context, clock clockwork.Clock, expire func(ctx context.Context, roomID string) error) *DeadlineScheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &DeadlineScheduler{
		clock:        clock,
		expire:       expire,
		activeTimers: make(map[string]clockwork.Timer),
		armedFor:     make(map[string]time.Time),
		ctx:          ctx,
	}
}

// Arm schedules (or reschedules) the deadline for a room. Arming twice
// for the same instant is a no-op, so both clients racing through the
// playing transition produce one timer.
func (s *DeadlineScheduler) Arm(roomID string, deadline time.Time) {
	s.mu.Lock()
	if armed, ok := s.armedFor[roomID]; ok && armed.Equal(deadline) {
		s.mu.Unlock()
		log.Debug().Str("room_id", roomID).Time("deadline", deadline).Msg("deadline already armed")
		return
	}
	s.armedFor[roomID] = deadline

	duration := deadline.Sub(s.clock.Now())
	if duration < 0 {
		duration = 0
	}
	timer := s.clock.NewTimer(duration)
	if existing, ok := s.activeTimers[roomID]; ok {
		stopAndDrainTimer(existing)
	}
	s.activeTimers[roomID] = timer
	s.mu.Unlock()

	go s.wait(roomID, timer)

	log.Debug().
		Str("room_id", roomID).
		Time("deadline", deadline).
		Dur("duration", duration).
		Msg("deadline armed")
}

// Disarm cancels any pending deadline for a room.
func (s *DeadlineScheduler) Disarm(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.activeTimers[roomID]; ok {
		stopAndDrainTimer(timer)
		delete(s.activeTimers, roomID)
		delete(s.armedFor, roomID)
		log.Debug().Str("room_id", roomID).Msg("deadline disarmed")
	}
}

func (s *DeadlineScheduler) wait(roomID string, timer clockwork.Timer) {
	select {
	case <-timer.Chan():
		s.mu.Lock()
		// A Disarm or re-Arm may have replaced this timer; only the
		// current one gets to fire.
		if s.activeTimers[roomID] == timer {
			delete(s.activeTimers, roomID)
			delete(s.armedFor, roomID)
			s.mu.Unlock()
		} else {
			s.mu.Unlock()
			return
		}

		log.Info().Str("room_id", roomID).Msg("match deadline fired")
		if err := s.expire(s.ctx, roomID); err != nil {
			log.Error().Err(err).Str("room_id", roomID).Msg("deadline arbitration failed")
		}
	case <-s.ctx.Done():
		stopAndDrainTimer(timer)
		s.mu.Lock()
		if s.activeTimers[roomID] == timer {
			delete(s.activeTimers, roomID)
			delete(s.armedFor, roomID)
		}
		s.mu.Unlock()
	}
}

// stopAndDrainTimer stops a timer and drains its channel so the waiting
// goroutine cannot leak, per the time.Timer.Stop contract.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
