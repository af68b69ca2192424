package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagConfigPath string
	flagAddr       string
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}
	setupLogging()

	root := &cobra.Command{
		Use:   "duelgrid",
		Short: "Two-player competitive sudoku server",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the room server and websocket gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
	serve.Flags().StringVar(&flagConfigPath, "config", "", "path to optional yaml config")
	serve.Flags().StringVar(&flagAddr, "addr", "", "listen address, overrides PORT")

	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func setupLogging() {
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if getEnv("LOG_FORMAT", "console") == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
