package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/duelgrid/duelgrid/internal/events"
)

// JetStreamConfig holds the NATS wiring for multi-node fanout: every node
// publishes room events to one stream and every node's gateway consumes
// them, so a subscriber reaches the room no matter which node it hit.
type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	ConsumerName  string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration
}

// DefaultJetStreamConfig returns the default stream configuration.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "ROOM_EVENTS",
		SubjectPrefix: "rooms.events",
		ConsumerName:  "room-gateway",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		MaxAge:        time.Hour,
	}
}

func connect(cfg JetStreamConfig) (*nats.Conn, jetstream.JetStream, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create JetStream context: %w", err)
	}
	return nc, js, nil
}

// JetStreamPublisher implements room.Publisher over a JetStream stream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

// NewJetStreamPublisher connects and ensures the room event stream.
func NewJetStreamPublisher(cfg JetStreamConfig) (*JetStreamPublisher, error) {
	nc, js, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	p := &JetStreamPublisher{nc: nc, js: js, config: cfg}
	if err := p.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Room snapshot event stream",
		Subjects:    []string{fmt.Sprintf("%s.>", p.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      p.config.MaxAge,
		Storage:     jetstream.FileStorage,
	}

	if _, err := p.js.Stream(ctx, p.config.StreamName); err != nil {
		if _, err = p.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", p.config.StreamName).Msg("created JetStream stream")
	}
	return nil
}

// Publish sends one room event; the event ID doubles as the dedupe key.
func (p *JetStreamPublisher) Publish(ctx context.Context, event *events.Envelope) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, event.RoomID)
	_, err = p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(event.Type)},
			"Room-ID":    []string{event.RoomID},
		},
	}, jetstream.WithMsgID(event.EventID))
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// JetStreamConsumer feeds stream events into the connection manager.
type JetStreamConsumer struct {
	cm       *ConnectionManager
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	config   JetStreamConfig
}

// NewJetStreamConsumer connects and ensures the durable consumer.
func NewJetStreamConsumer(cm *ConnectionManager, cfg JetStreamConfig) (*JetStreamConsumer, error) {
	nc, js, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	c := &JetStreamConsumer{cm: cm, nc: nc, js: js, config: cfg}
	if err := c.ensureConsumer(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return c, nil
}

func (c *JetStreamConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := c.js.Stream(ctx, c.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          c.config.ConsumerName,
		Durable:       c.config.ConsumerName,
		Description:   "Room gateway websocket consumer",
		FilterSubject: fmt.Sprintf("%s.>", c.config.SubjectPrefix),
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    c.config.MaxDeliver,
		AckWait:       c.config.AckWait,
		MaxAckPending: c.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, c.config.ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().
			Str("consumer", c.config.ConsumerName).
			Str("stream", c.config.StreamName).
			Msg("created JetStream consumer")
	}
	c.consumer = consumer
	return nil
}

// Start begins delivering stream events into the connection manager.
// It returns once consumption is running; the consume loop stops in the
// background when ctx is cancelled.
func (c *JetStreamConsumer) Start(ctx context.Context) error {
	consumeCtx, err := c.consumer.Consume(c.handleMsg)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	go func() {
		<-ctx.Done()
		consumeCtx.Stop()
		log.Info().Msg("room event consumer shutting down")
	}()
	return nil
}

func (c *JetStreamConsumer) handleMsg(msg jetstream.Msg) {
	var event events.Envelope
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to decode room event")
		msg.Nak()
		return
	}
	c.cm.Broadcast(&event)
	if err := msg.Ack(); err != nil {
		log.Error().Err(err).Msg("failed to ACK room event")
	}
}

// Close shuts down the NATS connection.
func (c *JetStreamConsumer) Close() error {
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}
