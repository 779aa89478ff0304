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

	"pos-ledger/config"
	"pos-ledger/internal/api"
	"pos-ledger/internal/broker"
	"pos-ledger/internal/redisclient"
	"pos-ledger/internal/service"
	"pos-ledger/internal/store"
	"pos-ledger/internal/store/memory"
	"pos-ledger/internal/store/postgres"
	"pos-ledger/internal/util"
	"pos-ledger/internal/worker"

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
	logger.Info("Starting POS ledger")

	if cfg.Observ.JaegerEndpoint != "" {
		shutdownTracer, err := util.InitTracer(util.TracerConfig{
			Endpoint:    cfg.Observ.JaegerEndpoint,
			Environment: cfg.Server.Env,
			SampleRatio: cfg.Observ.TraceSampleRatio,
		})
		if err != nil {
			log.Fatalf("Failed to initialize tracer: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	st, err := openStore(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()
	logger.Info("Store ready", zap.String("driver", cfg.Database.Driver))

	var (
		idempotency service.IdempotencyStore = service.NoopIdempotencyStore{}
		productCache service.ProductCache    = service.NoopProductCache{}
	)
	if cfg.Redis.Addr != "" {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		idempotency = redisClient
		productCache = redisClient
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	var (
		events     service.EventPublisher = service.NoopEventPublisher{}
		dispatcher service.Dispatcher     = service.NewLogDispatcher()
		notifyWork *worker.NotificationWorker
	)
	if cfg.Kafka.Enabled {
		purchaseProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPurchase)
		defer purchaseProducer.Close()
		notificationProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
		defer notificationProducer.Close()
		logger.Info("Kafka producers initialized", zap.Strings("brokers", cfg.Kafka.Brokers))

		publisher := broker.NewEventPublisher(purchaseProducer, notificationProducer)
		events = publisher
		dispatcher = publisher

		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications, cfg.Kafka.ConsumerGroup)
		notifyWork = worker.NewNotificationWorker(consumer, worker.NewLogSender())
		go func() {
			if err := notifyWork.Start(workerCtx); err != nil {
				logger.Error("Notification worker error", zap.Error(err))
			}
		}()
	}

	runner := service.NewTxRunner(st, cfg.Business.TxMaxAttempts, cfg.Business.TxRetryBaseDelay)
	audit := service.NewAuditTrail(st)
	cashbox := service.NewCashboxService(st, runner, audit)
	notifier := service.NewNotifier(dispatcher, cfg.Business.PhoneRegion)

	purchaseCfg := service.DefaultPurchaseConfig()
	purchaseCfg.RequireCashboxSession = cfg.Business.RequireCashboxSession
	if len(cfg.Business.PaymentSources) > 0 {
		purchaseCfg.PaymentSources = cfg.Business.PaymentSources
	}
	purchaseCfg.IdempotencyTTL = cfg.Business.IdempotencyTTL
	if cfg.Business.InFlightTTL > 0 {
		purchaseCfg.InFlightTTL = cfg.Business.InFlightTTL
	}
	purchaseCfg.ProductCacheTTL = cfg.Business.ProductCacheTTL
	purchaseCfg.RecentLimit = cfg.Business.RecentPurchasesLimit

	purchases := service.NewPurchaseService(st, runner, cashbox, audit, notifier, events, idempotency, productCache, purchaseCfg)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(api.CORS(cfg.Server.Env, cfg.Server.AllowedOrigins))
	handler := api.NewHandler(purchases, cashbox, audit, st.Ping)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
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
	if notifyWork != nil {
		notifyWork.Stop()
	}

	logger.Info("Server exited")
}

func openStore(cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		if cfg.SeedDemo {
			return memory.NewSeeded(), nil
		}
		return memory.New(), nil
	case "postgres":
		pg, err := postgres.NewStore(cfg.URL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
