package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	config "github.com/anterny/tokrelay/configs"
	"github.com/anterny/tokrelay/internal/api/handlers"
	"github.com/anterny/tokrelay/internal/api/middleware"
	job "github.com/anterny/tokrelay/internal/jobs"
	"github.com/anterny/tokrelay/internal/media"
	"github.com/anterny/tokrelay/internal/queue"
	"github.com/anterny/tokrelay/internal/repository"
	"github.com/anterny/tokrelay/internal/service"
	"github.com/anterny/tokrelay/internal/telegram"
	"github.com/anterny/tokrelay/internal/tiktok"
	"github.com/anterny/tokrelay/pkg/ratelimit"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file loaded")
	}

	cfg := config.LoadConfig()
	setupLogging(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("configuration is invalid")
	}

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("database is unreachable")
	}
	if err := repository.Migrate(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("schema migration failed")
	}

	if err := os.MkdirAll(cfg.MediaStoragePath, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create media storage directory")
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	asynqClient := asynq.NewClient(redisConn)
	defer asynqClient.Close()

	// repositories
	accountRepo := repository.NewAccountRepository(db)
	bufferRepo := repository.NewGroupBufferRepository(db)
	itemRepo := repository.NewContentItemRepository(db)
	deliveryRepo := repository.NewDeliveryRepository(db)

	// tiktok client and services
	ttClient := tiktok.NewClient(cfg.TiktokClientKey, cfg.TiktokClientSecret, cfg.TiktokRedirectURI)
	accountService := service.NewAccountService(ttClient, accountRepo, cfg.SecretKey)

	enqueuer := queue.NewClient(asynqClient, cfg.MaxAttempts)
	dispatchService := service.NewDispatchService(accountRepo, deliveryRepo, enqueuer, cfg.ChatAccountMapping)
	aggregatorService := service.NewAggregatorService(bufferRepo, itemRepo, dispatchService,
		time.Duration(cfg.MediaGroupFlushSeconds)*time.Second, cfg.MediaGroupWindowPolicy)

	source, err := telegram.NewSource(telegram.Config{
		Token:          cfg.TgBotToken,
		PollTimeout:    time.Duration(cfg.TgPollTimeoutSec) * time.Second,
		UseWebhook:     cfg.UseTgWebhook,
		AllowedChatIDs: cfg.AllowedChatIDs,
	}, aggregatorService)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start telegram bot")
	}

	fetcher := service.NewMediaFetcher(source, itemRepo, cfg.MediaStoragePath)
	renderer := media.NewFFmpegRenderer(cfg.MediaStoragePath, cfg.SlideSeconds, cfg.SlideshowFPS)

	publisher := tiktok.NewPublisher(ttClient, renderer, tiktok.DefaultClassifier{})
	publisher.EnablePhotoAPI = cfg.EnablePhotoAPI
	publisher.FallbackToDraft = cfg.FallbackToDraft

	limiter := ratelimit.NewPerLabel(cfg.RateLimitPerMinute)

	worker := queue.NewWorker(deliveryRepo, itemRepo, accountRepo, accountService, fetcher,
		publisher, limiter, enqueuer, tiktok.DefaultClassifier{},
		queue.CaptionConfig{
			Template:  cfg.CaptionTemplate,
			Hashtags:  cfg.AppendHashtags,
			MaxLength: cfg.CaptionMaxLength,
		}, cfg.PostingMode)
	worker.Archive = service.NewArchiveService(cfg.R2)

	// http surface
	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, X-Admin-Token",
		MaxAge:       3600,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	webhook := handlers.NewWebhookHandler(source, cfg.TgWebhookSecret)
	app.Post("/tg/webhook/:secret", webhook.HandleUpdate)

	auth := handlers.NewAuthHandler(cfg, accountService)
	app.Get("/tiktok/auth/start", auth.StartAuth)
	app.Get("/tiktok/auth/callback", auth.Callback)

	admin := app.Group("/admin")
	admin.Use(middleware.AdminOnly(cfg.AdminToken))
	admin.Get("/accounts", auth.ListAccounts)

	// cron jobs
	flushJob := job.NewFlushJob(aggregatorService)
	recoveryJob := job.NewRecoveryJob(deliveryRepo, enqueuer)
	refreshTokenJob := job.NewTokenRefreshJob(accountRepo, accountService)

	// Catch up on anything left behind by a previous run before accepting
	// new input.
	flushJob.FlushGroups()
	recoveryJob.RecoverStale()

	c := cron.New()
	c.AddFunc("@every 00h00m01s", flushJob.FlushGroups)
	c.AddFunc("@every 00h01m00s", recoveryJob.RecoverStale)
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.Start()

	go func() {
		server := asynq.NewServer(redisConn, asynq.Config{
			Concurrency: cfg.QueueConcurrency,
		})

		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeDelivery, worker.HandleDeliveryTask)

		log.Info().Msg("starting the asynq server")
		if err := server.Run(mux); err != nil {
			log.Fatal().Err(err).Msg("could not start asynq server")
		}
	}()

	if !cfg.UseTgWebhook {
		go source.Start()
	}

	go func() {
		if err := app.Listen(cfg.ListenAddr); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Str("addr", cfg.ListenAddr).Msg("server is running")

	gracefulShutdown(app, db, source, cfg.UseTgWebhook)
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}

func closeDB(db *sql.DB) {
	log.Info().Msg("closing database connection")
	if err := db.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close database")
	}
}

func gracefulShutdown(app *fiber.App, db *sql.DB, source *telegram.Source, usingWebhook bool) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Info().Msg("shutting down server")

	if !usingWebhook {
		source.Stop()
	}

	if err := app.Shutdown(); err != nil {
		log.Fatal().Err(err).Msg("failed to shut down server")
	}

	closeDB(db)
	log.Info().Msg("server shutdown complete")
}
