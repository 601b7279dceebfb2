package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ruralcare/telemed/internal/config"
	"github.com/ruralcare/telemed/internal/domain/appointment"
	"github.com/ruralcare/telemed/internal/domain/identity"
	"github.com/ruralcare/telemed/internal/domain/pharmacy"
	"github.com/ruralcare/telemed/internal/domain/records"
	"github.com/ruralcare/telemed/internal/domain/symptom"
	"github.com/ruralcare/telemed/internal/platform/apperr"
	"github.com/ruralcare/telemed/internal/platform/auth"
	"github.com/ruralcare/telemed/internal/platform/blobstore"
	"github.com/ruralcare/telemed/internal/platform/db"
	"github.com/ruralcare/telemed/internal/platform/events"
	"github.com/ruralcare/telemed/internal/platform/metrics"
	"github.com/ruralcare/telemed/internal/platform/middleware"
	"github.com/ruralcare/telemed/internal/platform/websocket"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "telemed-server",
		Short: "Rural telemedicine API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(clientCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and signaling relay",
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
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
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
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = cfg.MigrationsDir
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
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
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			role, _ := cmd.Flags().GetString("role")
			name, _ := cmd.Flags().GetString("name")
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			switch role {
			case auth.RolePatient, auth.RoleDoctor, auth.RolePharmacy:
			default:
				return fmt.Errorf("--role must be patient, doctor or pharmacy")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := auth.NewTokenIssuer(cfg.Secret(), cfg.TokenTTL).Issue(auth.Identity{UserID: userID, Role: role, Name: name})
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().String("user", "", "User id (token subject)")
	cmd.Flags().String("role", auth.RolePatient, "Role: patient, doctor or pharmacy")
	cmd.Flags().String("name", "", "Display name")
	return cmd
}

func pharmacyConfig(cfg *config.Config) (pharmacy.Config, error) {
	policy, err := pharmacy.ParseStatusPolicy(cfg.OrderStatusPolicy)
	if err != nil {
		return pharmacy.Config{}, err
	}
	return pharmacy.Config{
		Fees: pharmacy.FeePolicy{
			DeliveryFee:           decimal.NewFromFloat(cfg.DeliveryFee),
			FreeDeliveryThreshold: decimal.NewFromFloat(cfg.FreeDeliveryThreshold),
		},
		StatusPolicy: policy,
	}, nil
}

// recordArchive returns the S3 store for exported health records, or nil
// when no bucket is configured and exports are not kept.
func recordArchive(cfg *config.Config, awsCfg *aws.Config) blobstore.BlobStore {
	if cfg.S3Bucket == "" || awsCfg == nil {
		return nil
	}
	client := s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})
	return blobstore.NewS3BlobStore(client, cfg.S3Bucket, "health-records/")
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Money renders as JSON numbers on the wire.
	decimal.MarshalJSONWithoutQuotes = true

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	m := metrics.New()

	// Realtime relay and event fan-out
	hub := websocket.NewHub(websocket.HubConfig{
		RoomCapacity: cfg.RoomCapacity,
		Logger:       logger.With().Str("component", "hub").Logger(),
		Metrics:      m,
	})
	fanout := events.NewFanout(logger, m, events.Sink{Name: "hub", Publisher: hub})

	if len(cfg.KafkaBrokers) > 0 {
		kafka := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafka.Close()
		fanout.Add(events.Sink{Name: "kafka", Publisher: kafka})
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("kafka event sink enabled")
	}

	var awsCfg *aws.Config
	if cfg.SQSQueueURL != "" || cfg.S3Bucket != "" {
		loaded, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load aws config")
		}
		awsCfg = &loaded
	}
	if cfg.SQSQueueURL != "" {
		fanout.Add(events.Sink{Name: "sqs", Publisher: events.NewSQSPublisher(sqs.NewFromConfig(*awsCfg), cfg.SQSQueueURL)})
		logger.Info().Str("queue", cfg.SQSQueueURL).Msg("sqs event sink enabled")
	}

	archive := recordArchive(cfg, awsCfg)
	if archive != nil {
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("s3 record archive enabled")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	secCfg := middleware.DefaultSecurityConfig()
	if !cfg.IsDev() {
		secCfg.HSTSMaxAge = 31536000
	}
	e.Use(middleware.SecurityHeaders(secCfg))
	e.Use(m.Middleware())
	e.Use(echomw.BodyLimit("2M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	issuer := auth.NewTokenIssuer(cfg.Secret(), cfg.TokenTTL)
	e.Use(auth.JWTMiddleware(issuer, auth.Skipper))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, db.StatsFrom(pool)))
	e.GET("/metrics", m.Handler())

	wsHandler := websocket.NewWebSocketHandler(hub, issuer, websocket.HandlerConfig{
		AllowedOrigins: cfg.CORSOrigins,
		Logger:         logger.With().Str("component", "ws").Logger(),
	})
	wsHandler.RegisterRoutes(e.Group(""))

	api := e.Group("/api")
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	// Identity
	userRepo := identity.NewUserRepoPG(pool)
	identitySvc := identity.NewService(userRepo, issuer, logger)
	identity.NewHandler(identitySvc).RegisterRoutes(api)

	// Pharmacy
	pcfg, err := pharmacyConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid order policy")
	}
	pharmacySvc := pharmacy.NewService(
		pharmacy.NewPharmacyRepoPG(pool),
		pharmacy.NewMedicineRepoPG(pool),
		pharmacy.NewCartRepoPG(pool),
		pharmacy.NewOrderRepoPG(pool),
		db.NewTxRunner(pool),
		fanout,
		pcfg,
		logger,
	)
	pharmacySvc.SetMetrics(m)
	pharmacy.NewHandler(pharmacySvc).RegisterRoutes(api)

	// Appointments
	apptRepo := appointment.NewRepoPG(pool)
	apptSvc := appointment.NewService(apptRepo, appointment.NewUserDirectory(userRepo), fanout, logger)
	apptSvc.SetMetrics(m)
	appointment.NewHandler(apptSvc).RegisterRoutes(api)

	// Health records
	recordsSvc := records.NewService(records.NewRepoPG(pool), apptRepo, userRepo, archive, logger)
	records.NewHandler(recordsSvc).RegisterRoutes(api)

	// Symptom advisory
	var advisor symptom.Advisor
	if cfg.GeminiAPIKey != "" {
		advisor = symptom.NewGeminiClient(cfg.GeminiAPIKey, symptom.WithModel(cfg.GeminiModel))
		logger.Info().Str("model", cfg.GeminiModel).Msg("symptom advisor enabled")
	}
	symptom.NewHandler(symptom.NewService(symptom.DefaultRules, advisor, logger)).RegisterRoutes(api)

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
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
