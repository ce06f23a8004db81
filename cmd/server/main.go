package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	"github.com/maheshrc27/postflow/internal/generator"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/ratelimit"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	"github.com/maheshrc27/postflow/internal/telemetry"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	appLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(appLogger)

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}
	dbx := sqlx.NewDb(db, "postgres")

	redisOpts, err := redis.ParseURL(cfg.RedisURI)
	if err != nil {
		log.Fatalf("Invalid REDIS_URI: %v", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	redisConn, err := asynq.ParseRedisURI(cfg.RedisURI)
	if err != nil {
		log.Fatalf("Invalid REDIS_URI: %v", err)
	}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	codec, err := repository.NewEncryptedCodec(cfg.SecretKey)
	if err != nil {
		log.Fatalf("Invalid SECRET_KEY: %v", err)
	}

	sink, err := telemetry.NewOtelSink(otel.Meter("github.com/maheshrc27/postflow"), appLogger)
	if err != nil {
		log.Fatalf("Failed to create metric instruments: %v", err)
	}

	accountRepo := repository.NewAccountRepository(db, codec)
	socialPostRepo := repository.NewSocialPostRepository(db)
	queueRepo := repository.NewQueueRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(dbx)
	historyRepo := repository.NewPostingHistoryRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	apiKeyRepo := repository.NewApiKeyRepository(db)
	transactor := repository.NewTransactor(db)

	deps := platform.Deps{
		HTTPClient:   &http.Client{Timeout: cfg.HTTP.Timeout},
		UploadClient: &http.Client{Timeout: cfg.HTTP.UploadTimeout},
		Sink:         sink,
		Logger:       appLogger,
		Poller: platform.Poller{
			Attempts: cfg.HTTP.PollAttempts,
			Interval: cfg.HTTP.PollInterval,
			Sleep:    platform.SleepContext,
		},
		App: cfg.AppCredentials(),
	}

	limiter := ratelimit.NewRateLimiter(ratelimit.NewRedisStore(rdb), platform.DefaultRateLimits, appLogger)
	clients := service.NewClientResolver(accountRepo, platform.NewClient, deps, appLogger)
	publisher := service.NewPublisher(clients, limiter, appLogger)
	waker := queue.NewWaker(client, appLogger)

	var media service.MediaStore
	if cfg.R2.BucketName != "" {
		s3Client, err := service.NewR2Client(context.Background(), cfg.R2)
		if err != nil {
			log.Fatalf("Failed to configure R2: %v", err)
		}
		media = service.NewR2Service(s3Client, cfg.R2.BucketName, cfg.R2.PublicURL)
	}

	gen, err := generator.New(cfg.LLM)
	if err != nil {
		log.Fatalf("Failed to configure content generator: %v", err)
	}

	schedulerService := service.NewSchedulerService(transactor, socialPostRepo, queueRepo, accountRepo, historyRepo,
		publisher, waker, service.SchedulerConfig{
			BatchSize:    cfg.Queue.BatchSize,
			MaxRetries:   cfg.Queue.MaxRetries,
			EntryTimeout: cfg.Queue.EntryTimeout,
		}, appLogger)
	settingsService := service.NewSettingsService(settingsRepo, cfg.AutoShare)
	managerService := service.NewManagerService(accountRepo, socialPostRepo, historyRepo, publisher, schedulerService,
		clients, media, gen, settingsService, appLogger)
	analyticsService := service.NewAnalyticsService(socialPostRepo, accountRepo, analyticsRepo, clients,
		cfg.Queue.AnalyticsDelay, appLogger)
	accountService := service.NewAccountService(accountRepo, clients, appLogger)
	apiKeyService := service.NewApiKeyService(apiKeyRepo, cfg.AdminAPIKey)
	authService := service.NewAuthService(apiKeyService, cfg.SecretKey, cfg.TokenTTL)

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-API-Key",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	auth := handlers.NewAuthHandler(authService, cfg.CookieName, cfg.TokenTTL)
	app.Post("/auth/token", auth.Token)
	app.Post("/auth/logout", auth.Logout)
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	authMiddleware := middleware.NewAuthMiddleware(apiKeyService, authService, cfg.CookieName)
	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	handlers.RegisterRoutes(api, handlers.Handlers{
		Posts:     handlers.NewPostHandler(managerService, schedulerService, historyRepo),
		Accounts:  handlers.NewAccountHandler(accountService, managerService),
		Platforms: handlers.NewPlatformHandler(limiter),
		Analytics: handlers.NewAnalyticsHandler(analyticsService),
		Content:   handlers.NewContentHandler(managerService),
		Settings:  handlers.NewSettingsHandler(settingsService),
		Keys:      handlers.NewApiKeyHandler(apiKeyService),
	})

	// cron jobs
	jobs := job.NewRunner(schedulerService, analyticsService, accountService, cfg.Queue, cfg.Cron, appLogger)
	if err := jobs.Start(); err != nil {
		log.Fatalf("Invalid cron schedule: %v", err)
	}

	//queue
	queueW := queue.NewQueue(schedulerService, appLogger)
	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: 10,
	})
	go func() {
		log.Println("Starting the Asynq server...")
		if err := server.Run(queueW.Mux()); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on http://localhost:%s", cfg.Port)

	gracefulShutdown(app, server, jobs, db)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, server *asynq.Server, jobs *job.Runner, db *sql.DB) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	jobs.Stop()
	server.Shutdown()
	if err := app.Shutdown(); err != nil {
		log.Fatalf("Failed to shut down server: %v", err)
	}

	closeDB(db)
	log.Println("Server shutdown complete.")
}
