package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"configurator-service/config"
	"configurator-service/internal/api"
	"configurator-service/internal/broker"
	"configurator-service/internal/redisclient"
	"configurator-service/internal/service"
	"configurator-service/internal/store"
	"configurator-service/internal/util"
	"configurator-service/internal/worker"
	"configurator-service/migrations"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting configurator service")

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.AutoMigrate {
		migrateCtx, migrateCancel := context.WithTimeout(context.Background(), time.Minute)
		err := db.Migrate(migrateCtx, migrations.FS)
		migrateCancel()
		if err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	readiness := map[string]api.Pinger{"postgres": db}

	// Redis only backs the catalog cache and idempotency keys
	var (
		catalogCache service.CatalogCache
		idempotency  service.IdempotencyStore
	)
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, running without catalog cache and idempotency keys", zap.Error(err))
	} else {
		defer redisClient.Close()
		logger.Info("Redis connected")
		catalogCache = redisClient
		idempotency = redisClient
		readiness["redis"] = redisClient
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicShop)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

	eventPublisher := broker.NewEventPublisher(producer)

	catalogService := service.NewCatalogService(db, catalogCache, cfg.Business.CatalogCacheTTL)
	ledger := service.NewInventoryLedger(db, catalogService, cfg.Business)
	orderAssembler := service.NewOrderAssembler(db)
	checkoutService := service.NewCheckoutService(
		db,
		catalogService,
		ledger,
		orderAssembler,
		idempotency,
		cfg.Business.IdempotencyTTL,
		eventPublisher,
	)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	sessionConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicShop, cfg.Kafka.ConsumerGroup)
	sessionWorker := worker.NewSessionWorker(sessionConsumer, orderAssembler)
	go func() {
		if err := sessionWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Session worker error", zap.Error(err))
		}
	}()

	sweeper := worker.NewReservationSweeper(ledger, cfg.Business.SweepInterval, cfg.Business.SweepGracePeriod)
	go func() {
		if err := sweeper.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Reservation sweeper error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(api.CORS(cfg.Server.AllowedOrigins))
	handler := api.NewHandler(catalogService, ledger, orderAssembler, checkoutService, eventPublisher, readiness)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := sessionWorker.Stop(); err != nil {
		logger.Warn("Error stopping session worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
