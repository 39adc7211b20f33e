package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medreg/medreg/internal/billing"
	"github.com/medreg/medreg/internal/config"
	"github.com/medreg/medreg/internal/events"
	"github.com/medreg/medreg/internal/platform/db"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "billing-server",
		Short: "Billing account provisioning service",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the provisioning RPC server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	})
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	cmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().
		Str("service", "billing-server").Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().
			Str("service", "billing-server").Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	nc, err := events.Connect(cfg.NATSURL, "billing-server")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}
	defer nc.Close()

	svc := billing.NewService(billing.NewAccountRepo(pool), logger)
	server := billing.NewServer(nc, cfg.ProvisionSubject, svc, logger)
	if err := server.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start provisioning server")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := server.Stop(); err != nil {
		logger.Error().Err(err).Msg("drain failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
