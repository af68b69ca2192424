package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/duelgrid/duelgrid/internal/gateway"
	"github.com/duelgrid/duelgrid/internal/room"
)

// Services holds the wired dependency chain:
// store -> app -> gateway, with the event bus and deadline scheduler
// threaded through.
type Services struct {
	Store    room.Store
	App      *room.App
	Manager  *gateway.ConnectionManager
	Handlers *gateway.Handlers

	publisher *gateway.JetStreamPublisher
	consumer  *gateway.JetStreamConsumer
}

func setupServices(ctx context.Context, config *Config) (*Services, error) {
	store, err := setupStore()
	if err != nil {
		return nil, err
	}

	manager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	go manager.Start(ctx)

	services := &Services{Store: store, Manager: manager}

	// Events fan out through JetStream when NATS is configured, so that
	// subscribers on any node see every room's feed. A single node runs
	// on the in-process bus.
	var publisher room.Publisher
	natsURL := getEnv("NATS_URL", config.NATS.URL)
	if natsURL != "" {
		jsCfg := gateway.DefaultJetStreamConfig()
		jsCfg.URL = natsURL

		jsPub, err := gateway.NewJetStreamPublisher(jsCfg)
		if err != nil {
			return nil, err
		}
		consumer, err := gateway.NewJetStreamConsumer(manager, jsCfg)
		if err != nil {
			jsPub.Close()
			return nil, err
		}
		if err := consumer.Start(ctx); err != nil {
			jsPub.Close()
			consumer.Close()
			return nil, err
		}
		services.publisher = jsPub
		services.consumer = consumer
		publisher = jsPub
		log.Info().Str("url", natsURL).Msg("event fanout via jetstream")
	} else {
		publisher = gateway.NewLocalBus(manager)
		log.Info().Msg("event fanout via in-process bus")
	}

	// The scheduler needs the app for expiry and the app needs the
	// scheduler for arming; the closure breaks the cycle.
	var app *room.App
	scheduler := room.NewDeadlineScheduler(ctx, nil, func(ctx context.Context, roomID string) error {
		_, err := app.ExpireDeadline(ctx, roomID)
		return err
	})
	app = room.NewApp(store, publisher, scheduler, nil)

	services.App = app
	services.Handlers = gateway.NewHandlers(app, manager, baseURL(config))
	return services, nil
}

func setupStore() (room.Store, error) {
	if getEnv("STORE", "postgres") == "memory" {
		log.Warn().Msg("using in-memory room store, rooms will not survive restarts")
		return room.NewMemoryStore(), nil
	}
	db, err := setupDatabase()
	if err != nil {
		return nil, err
	}
	return room.NewRepository(db), nil
}

func baseURL(config *Config) string {
	if url := getEnv("BASE_URL", config.Server.BaseURL); url != "" {
		return url
	}
	return "http://localhost:" + getEnv("PORT", "8080")
}

func (s *Services) Close() {
	if s.consumer != nil {
		s.consumer.Close()
	}
	if s.publisher != nil {
		s.publisher.Close()
	}
}
