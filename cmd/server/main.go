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

	"enkaji-payments/config"
	"enkaji-payments/internal/api"
	"enkaji-payments/internal/audit"
	"enkaji-payments/internal/auth"
	"enkaji-payments/internal/broker"
	"enkaji-payments/internal/pesapal"
	"enkaji-payments/internal/redisclient"
	"enkaji-payments/internal/service"
	"enkaji-payments/internal/store"
	"enkaji-payments/internal/util"
	"enkaji-payments/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting payment service", zap.String("env", cfg.Server.Env))

	if cfg.Auth.JWTSecret == "" {
		logger.Fatal("AUTH_JWT_SECRET must be set")
	}

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint, cfg.Server.Env)
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

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		migrateCancel()
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}
	migrateCancel()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicPayment))

	eventPublisher := broker.NewEventPublisher(producer)
	sink := audit.Multi{
		audit.NewZapSink(logger),
		audit.NewKafkaSink(eventPublisher, logger),
	}

	if cfg.Pesapal.NotificationID == "" {
		logger.Warn("PESAPAL_IPN_ID is not set; register the callback with pesapalctl register-ipn")
	}
	pesapalClient := pesapal.NewClient(cfg.Pesapal.BaseURL, cfg.Pesapal.ConsumerKey, cfg.Pesapal.ConsumerSecret, cfg.Pesapal.Timeout)

	reconciler := service.NewReconciler(db, eventPublisher, sink)
	paymentService := service.NewPaymentService(db, pesapalClient, redisClient, eventPublisher, service.PaymentConfig{
		CallbackURL:      cfg.Pesapal.CallbackURL,
		NotificationID:   cfg.Pesapal.NotificationID,
		DefaultCurrency:  cfg.Business.DefaultCurrency,
		ProcessorTimeout: cfg.Pesapal.Timeout,
		SubmitLockTTL:    cfg.Business.SubmitLockTTL,
	})
	ipnService := service.NewIPNService(db, reconciler, redisClient, eventPublisher, sink, cfg.Business.IdempotencyTTL)
	statusVerifier := service.NewStatusVerifier(pesapalClient, reconciler)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	verifierConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPayment, cfg.Kafka.ConsumerGroup)
	verifierWorker := worker.NewStatusVerifierWorker(verifierConsumer, statusVerifier)
	go func() {
		if err := verifierWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Status verifier worker error", zap.Error(err))
		}
	}()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(
		paymentService,
		ipnService,
		auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		sink,
		cfg.Server.FrontendURL,
		map[string]api.Pinger{"postgres": db, "redis": redisClient},
	)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
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

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := verifierWorker.Stop(); err != nil {
		logger.Warn("Error stopping status verifier worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
