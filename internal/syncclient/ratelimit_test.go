package syncclient

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestWriteLimiterAllowsBudgetImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewWriteLimiter(clock, 3, time.Second)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
}

func TestWriteLimiterQueuesOverBudget(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewWriteLimiter(clock, 1, time.Second)

	ctx := context.Background()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	released := make(chan error, 1)
	go func() { released <- l.Wait(ctx) }()

	select {
	case err := <-released:
		t.Fatalf("second wait returned %v before the window rolled", err)
	case <-time.After(20 * time.Millisecond):
	}

	clock.BlockUntil(1)
	clock.Advance(time.Second)

	select {
	case err := <-released:
		if err != nil {
			t.Fatalf("queued wait: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued wait never released")
	}
}

func TestWriteLimiterRespectsContext(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewWriteLimiter(clock, 1, time.Second)

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	released := make(chan error, 1)
	go func() { released <- l.Wait(ctx) }()

	clock.BlockUntil(1)
	cancel()

	select {
	case err := <-released:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled wait never released")
	}
}
