package gateway

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/duelgrid/duelgrid/internal/events"
)

// Stubs embed the jetstream interfaces so only the methods the consumer
// touches need real bodies.

type stubConsumer struct {
	jetstream.Consumer
	consumeCtx *stubConsumeContext
}

func (s *stubConsumer) Consume(handler jetstream.MessageHandler, opts ...jetstream.PullConsumeOpt) (jetstream.ConsumeContext, error) {
	return s.consumeCtx, nil
}

type stubConsumeContext struct {
	jetstream.ConsumeContext
	stopped chan struct{}
}

func (s *stubConsumeContext) Stop() { close(s.stopped) }

type stubMsg struct {
	jetstream.Msg
	data  []byte
	acked bool
	naked bool
}

func (m *stubMsg) Data() []byte    { return m.data }
func (m *stubMsg) Subject() string { return "rooms.events.TEST42" }
func (m *stubMsg) Ack() error      { m.acked = true; return nil }
func (m *stubMsg) Nak() error      { m.naked = true; return nil }

func TestConsumerStartReturnsBeforeShutdown(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	consumeCtx := &stubConsumeContext{stopped: make(chan struct{})}
	consumer := &JetStreamConsumer{
		cm:       cm,
		consumer: &stubConsumer{consumeCtx: consumeCtx},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- consumer.Start(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start blocked instead of returning after consumption began")
	}

	cancel()
	select {
	case <-consumeCtx.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("consume loop not stopped on shutdown")
	}
}

func TestConsumerHandlerBroadcastsAndAcks(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	consumer := &JetStreamConsumer{cm: cm}

	env := events.Envelope{EventID: "e1", RoomID: "TEST42", Type: events.TypePlayerJoined, Version: 1}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	msg := &stubMsg{data: data}
	consumer.handleMsg(msg)
	if !msg.acked {
		t.Fatal("decodable event not acked")
	}
	select {
	case got := <-cm.broadcastCh:
		if got.RoomID != "TEST42" || got.Version != 1 {
			t.Fatalf("broadcast carries wrong event: %+v", got)
		}
	default:
		t.Fatal("event never reached the broadcast queue")
	}

	bad := &stubMsg{data: []byte("{")}
	consumer.handleMsg(bad)
	if !bad.naked {
		t.Fatal("undecodable event not naked")
	}
	if bad.acked {
		t.Fatal("undecodable event must not be acked")
	}
}
