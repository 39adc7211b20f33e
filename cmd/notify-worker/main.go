package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medreg/medreg/internal/config"
	"github.com/medreg/medreg/internal/events"
	"github.com/medreg/medreg/internal/notify"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "notify-worker",
		Short: "Registration event consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().
		Str("service", "notify-worker").Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().
			Str("service", "notify-worker").Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	nc, err := events.Connect(cfg.NATSURL, "notify-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}
	defer nc.Close()

	js, err := events.EnsureStream(nc, cfg.EventStream)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure event stream")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := notify.NewSender(logger)
	sub := events.NewSubscriber(js, "notify-worker", sender.Handle, logger)
	if err := sub.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start subscriber")
	}
	logger.Info().Str("stream", cfg.EventStream).Msg("consuming registration events")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := sub.Stop(); err != nil {
		logger.Error().Err(err).Msg("drain failed")
	}
	logger.Info().Msg("worker stopped")
	return nil
}
