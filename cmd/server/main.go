package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pos-checkout/config"
	"pos-checkout/internal/api"
	"pos-checkout/internal/broker"
	"pos-checkout/internal/redisclient"
	"pos-checkout/internal/service"
	"pos-checkout/internal/store"
	"pos-checkout/internal/util"
	"pos-checkout/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting POS checkout service",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.Bool("atomic_commit", cfg.Business.AtomicCommit))

	tp, err := util.InitTracer("pos-checkout", cfg.Server.Env, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	if cfg.Database.MigrationsEnabled {
		if err := db.RunMigrations(); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		logger.Info("Migrations applied")
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicSaleEvents)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

	eventPublisher := broker.NewEventPublisher(producer, broker.DefaultBreakerSettings())

	dataService := service.NewDataService(db, redisClient, cfg.Redis.CatalogTTL)
	guard := service.NewIdempotencyGuard(redisClient, cfg.Redis.IdempotencyTTL)
	loyaltyService := service.NewLoyaltyService(db)
	staff := service.NewStaffDirectory(db)

	ctx := context.Background()
	if _, err := dataService.FetchProducts(ctx); err != nil {
		logger.Warn("Failed to warm catalog cache", zap.Error(err))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	loyaltyConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicSaleEvents, cfg.Kafka.ConsumerGroup)
	loyaltyWorker := worker.NewLoyaltyWorker(loyaltyConsumer, loyaltyService)
	go func() {
		if err := loyaltyWorker.Start(workerCtx); err != nil {
			logger.Error("Loyalty worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Deps{
		Backend: dataService,
		Catalog: dataService,
		Staff:   staff,
		Guard:   guard,
		Events:  eventPublisher,
		Config:  cfg.Checkout(),
		Checks: map[string]func(context.Context) error{
			"postgres": db.Ping,
			"redis":    redisClient.Ping,
		},
	})
	handler.SetupRoutes(router)

	go handler.SweepSessions(workerCtx, time.Minute, cfg.Server.SessionIdleTTL)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	if err := loyaltyWorker.Stop(); err != nil {
		logger.Error("Failed to stop loyalty worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
