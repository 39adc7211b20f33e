package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medreg/medreg/internal/billing"
	"github.com/medreg/medreg/internal/config"
	"github.com/medreg/medreg/internal/domain/identity"
	"github.com/medreg/medreg/internal/domain/patient"
	"github.com/medreg/medreg/internal/events"
	"github.com/medreg/medreg/internal/platform/auth"
	"github.com/medreg/medreg/internal/platform/db"
	"github.com/medreg/medreg/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "registration-server",
		Short: "Patient registration API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the registration API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
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

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage API users",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API user",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			role, _ := cmd.Flags().GetString("role")
			if email == "" || password == "" {
				return fmt.Errorf("--email and --password are required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			hash, err := identity.HashPassword(password)
			if err != nil {
				return err
			}
			_, err = pool.Exec(ctx, `
				INSERT INTO app_user (email, password_hash, role)
				VALUES ($1, $2, $3)`, email, hash, role)
			if err != nil {
				return err
			}
			fmt.Printf("Created user %s with role %s\n", email, role)
			return nil
		},
	}
	createCmd.Flags().String("email", "", "Login email")
	createCmd.Flags().String("password", "", "Login password")
	createCmd.Flags().String("role", "registrar", "User role")
	cmd.AddCommand(createCmd)
	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Messaging
	nc, err := events.Connect(cfg.NATSURL, "registration-server")
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}
	defer nc.Close()
	js, err := events.EnsureStream(nc, cfg.EventStream)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure event stream")
	}
	logger.Info().Str("stream", cfg.EventStream).Msg("connected to nats")

	// Token issuer + verifier share the process signing key.
	signingKey := []byte(cfg.TokenSigningKey)
	signer := auth.NewSigner(signingKey, cfg.TokenTTL)
	verifier := auth.NewVerifier(signingKey, cfg.TokenClockSkew)

	// Domain services
	userSvc := identity.NewService(identity.NewRepo(pool))

	provisioner := billing.NewClient(nc, cfg.ProvisionSubject,
		cfg.ProvisionTimeout, cfg.ProvisionMaxRetries, cfg.ProvisionRetryBackoff,
		logger.With().Str("component", "billing-client").Logger())
	publisher := events.NewPublisher(js,
		cfg.PublishMaxRetries, cfg.PublishRetryBackoff,
		logger.With().Str("component", "publisher").Logger())

	patientSvc := patient.NewService(patient.NewRepo(pool), provisioner, publisher,
		logger.With().Str("component", "registration").Logger())

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware; the auth middleware is the gateway filter gating
	// everything that is not a public path.
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(auth.Middleware(verifier, auth.Skipper))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Public login endpoint
	identity.NewHandler(userSvc, signer).RegisterRoutes(e)

	// Authenticated API
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)

	// Serve with graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()
	logger.Info().Str("port", cfg.Port).Msg("registration server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
