package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/certeval-api/internal/config"
	"github.com/noah-isme/certeval-api/internal/database"
	"github.com/noah-isme/certeval-api/internal/handler"
	"github.com/noah-isme/certeval-api/internal/lock"
	"github.com/noah-isme/certeval-api/internal/middleware"
	"github.com/noah-isme/certeval-api/internal/repository"
	"github.com/noah-isme/certeval-api/internal/router"
	"github.com/noah-isme/certeval-api/internal/scoring"
	"github.com/noah-isme/certeval-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "production" {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis disabled; evaluation cache and redis events are off")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	var locker lock.Locker = lock.NewKeyedMutex()
	if cfg.LockBackend == config.LockBackendRedis {
		locker = lock.NewRedisLocker(redisClient, "certeval:lock:", cfg.LockTTL, logger)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	catalogRepo := repository.NewCatalogRepository(db)
	evaluationRepo := repository.NewEvaluationRepository(db)
	userRepo := repository.NewUserRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)

	feed := service.NewEvaluationFeed(logger)
	events := service.EventPublisher(feed)
	if redisClient != nil || natsConn != nil {
		events = service.CombinePublishers(feed, service.NewEventPublisher(redisClient, natsConn, cfg.EventsChannel, logger))
	}

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	if err := feed.Relay(relayCtx, redisClient, natsConn, cfg.EventsChannel); err != nil {
		logger.Warn().Err(err).Msg("evaluation events from other instances will not reach live streams")
	}

	evaluationService := service.NewEvaluationService(service.EvaluationServiceDeps{
		Evaluations: evaluationRepo,
		Users:       userRepo,
		Templates:   service.NewTemplateResolver(catalogRepo, logger),
		Locker:      locker,
		Activity:    activityService,
		Events:      events,
		Cache:       redisClient,
		CacheTTL:    cfg.EvaluationCacheTTL,
		LockWait:    cfg.LockWait,
		Policy:      scoring.Policy{PassThreshold: cfg.PassThreshold},
		Validator:   validate,
	}, logger)

	seedService, err := service.NewSeedService(catalogRepo, cfg.SeedEnabled, cfg.SeedToken, logger)
	if err != nil {
		log.Fatalf("failed to build seed service: %v", err)
	}

	probes := map[string]database.Probe{"database": database.SQLProbe(db)}
	if redisClient != nil {
		probes["redis"] = database.RedisProbe(redisClient)
	}
	if natsConn != nil {
		probes["nats"] = database.NATSProbe(natsConn)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    4 * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		EvaluationHandler: handler.NewEvaluationHandler(evaluationService, cfg.SubmitRateLimit, cfg.SubmitRateWindow, logger),
		StreamHandler:     handler.NewEvaluationStreamHandler(feed, logger, cfg.StreamKeepalive),
		ActivityHandler:   handler.NewActivityHandler(activityService, logger),
		SeedHandler:       handler.NewSeedHandler(seedService, logger),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
		HealthProbes:      probes,
		Logger:            logger,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
