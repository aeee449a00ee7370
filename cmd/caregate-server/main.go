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

	"github.com/caregate/caregate/internal/config"
	"github.com/caregate/caregate/internal/domain/accesscode"
	"github.com/caregate/caregate/internal/domain/audit"
	"github.com/caregate/caregate/internal/domain/consultation"
	"github.com/caregate/caregate/internal/domain/permission"
	"github.com/caregate/caregate/internal/platform/auth"
	"github.com/caregate/caregate/internal/platform/db"
	"github.com/caregate/caregate/internal/platform/events"
	"github.com/caregate/caregate/internal/platform/middleware"
	"github.com/caregate/caregate/internal/platform/notification"
	"github.com/caregate/caregate/internal/platform/payment"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "caregate-server",
		Short: "Patient-mediated data access and consultation API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

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

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

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

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

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

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware. Codes carried in request bodies are the clinical
	// credential; JWT bearer tokens only identify administrators.
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware([]byte(cfg.AdminJWTSecret)))
	}

	// API groups
	apiV1 := e.Group("/api/v1")
	adminV1 := e.Group("/api/v1", auth.RequireRole("admin"))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Platform services
	eventStore := events.NewStorePG(pool)
	var sinks []events.Sink
	if len(cfg.WebhookURLs) > 0 {
		sinks = append(sinks, events.NewWebhookSink(cfg.WebhookURLs, cfg.WebhookSecret, logger))
	}
	publisher := events.NewPublisher(eventStore, logger, sinks...)

	notifier := notification.NewNotifier(notification.LogSender{Logger: logger}, logger)

	processor := payment.NewBreakerProcessor(payment.NewSimulator(), logger)

	// Domain services
	codeSvc := accesscode.NewService(
		accesscode.NewPatientCodeRepoPG(pool),
		accesscode.NewProfessionalCodeRepoPG(pool),
	)

	heuristics := audit.DefaultHeuristics()
	heuristics.BusinessHourStart = cfg.BusinessHourStart
	heuristics.BusinessHourEnd = cfg.BusinessHourEnd
	heuristics.MinAccessSeconds = cfg.MinAccessSeconds
	heuristics.OffHoursAlertCount = cfg.OffHoursAlertCount
	heuristics.HourlyAlertCount = cfg.HourlyAlertCount
	auditSvc := audit.NewService(
		audit.NewEntryRepoPG(pool),
		audit.NewAlertRepoPG(pool),
		publisher,
		notifier,
		heuristics,
		logger,
	)

	permSvc := permission.NewService(
		permission.NewRepoPG(pool),
		codeSvc,
		publisher,
		notifier,
		logger,
	)

	consultSvc := consultation.NewService(
		consultation.NewSessionRepoPG(pool),
		consultation.NewEarningsRepoPG(pool),
		permSvc,
		processor,
		publisher,
		auditSvc,
		logger,
		cfg.ConsultationFee,
		cfg.PlatformFeePct,
	)

	// Routes
	accesscode.NewHandler(codeSvc).RegisterRoutes(apiV1)
	permission.NewHandler(permSvc).RegisterRoutes(apiV1)

	consultHandler := consultation.NewHandler(consultSvc)
	consultHandler.RegisterRoutes(apiV1)
	consultHandler.RegisterAdminRoutes(adminV1)

	auditHandler := audit.NewHandler(auditSvc)
	auditHandler.RegisterRoutes(apiV1)
	auditHandler.RegisterAdminRoutes(adminV1)

	events.NewHandler(eventStore).RegisterRoutes(apiV1)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
