package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func runServe() error {
	config, err := loadConfig(flagConfigPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := setupServices(ctx, config)
	if err != nil {
		return err
	}
	defer services.Close()

	server := setupServer(config, services)
	go runSweeper(ctx, config, services)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func setupServer(config *Config, services *Services) *http.Server {
	router := httprouter.New()
	services.Handlers.Register(router)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	handler := c.Handler(router)

	addr := flagAddr
	if addr == "" {
		addr = config.Server.Addr
	}
	if addr == "" {
		addr = fmt.Sprintf(":%s", getEnv("PORT", "8080"))
	}

	return &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

// runSweeper drops rooms with no activity inside the retention window.
func runSweeper(ctx context.Context, config *Config, services *Services) {
	ticker := time.NewTicker(time.Duration(config.Rooms.SweepInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := services.App.SweepStale(ctx, time.Duration(config.Rooms.StaleRetention))
			if err != nil {
				log.Error().Err(err).Msg("stale room sweep failed")
				continue
			}
			for _, id := range removed {
				services.Manager.Close(id)
			}
			if len(removed) > 0 {
				log.Info().Int("removed", len(removed)).Msg("swept stale rooms")
			}
		}
	}
}
