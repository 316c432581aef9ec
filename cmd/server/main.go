package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/application"
	"github.com/SARVESHVARADKAR123/RealChat/internal/cache"
	"github.com/SARVESHVARADKAR123/RealChat/internal/config"
	"github.com/SARVESHVARADKAR123/RealChat/internal/fanout"
	"github.com/SARVESHVARADKAR123/RealChat/internal/handlers"
	"github.com/SARVESHVARADKAR123/RealChat/internal/kafka"
	"github.com/SARVESHVARADKAR123/RealChat/internal/notify"
	"github.com/SARVESHVARADKAR123/RealChat/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/internal/outbox"
	"github.com/SARVESHVARADKAR123/RealChat/internal/repository"
	"github.com/SARVESHVARADKAR123/RealChat/internal/repository/memory"
	"github.com/SARVESHVARADKAR123/RealChat/internal/repository/postgres"
	"github.com/SARVESHVARADKAR123/RealChat/internal/router"
	grpc_transport "github.com/SARVESHVARADKAR123/RealChat/internal/transport/grpc"
	"github.com/SARVESHVARADKAR123/RealChat/internal/tx"
	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const fanoutChannel = "fanout:events"

func main() {
	cfg := config.Load()

	// Observability
	observability.InitLogger(cfg.ServiceName, cfg.LogLevel)
	log := observability.Log
	defer observability.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	if cfg.TracingEnabled {
		tp, err := observability.InitTracer(cfg.ServiceName, cfg.JaegerURL)
		if err != nil {
			log.Fatal("failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Error("failed to shutdown tracer provider", zap.Error(err))
			}
		}()
	}

	// Cancellable context for background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}

	// Storage
	var (
		repo       repository.Repository
		transactor tx.Transactor
		db         *sql.DB
		ready      observability.Pinger
	)
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatal("db open failed", zap.Error(err))
		}
		defer db.Close()

		if cfg.DBAutoMigrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				log.Fatal("db migration failed", zap.Error(err))
			}
		}

		var convCache *cache.Cache
		if redisClient != nil {
			convCache = cache.New(redisClient)
		}
		repo = postgres.New(db, convCache)
		transactor = &tx.Manager{DB: db}
		ready = db
	default:
		store := memory.New()
		repo, transactor = store, store
		log.Warn("using in-memory storage; data is lost on restart")
	}

	// Fan-out
	var broker fanout.Broker
	if redisClient != nil {
		broker = fanout.NewRedisBroker(redisClient, fanoutChannel, log)
	} else {
		broker = fanout.NewLocalBroker()
	}
	hub := fanout.NewHub(cfg.InstanceID, broker, log)
	if err := hub.Start(ctx); err != nil {
		log.Fatal("fanout broker subscribe failed", zap.Error(err))
	}

	// Offline notifications
	var (
		notifier    notify.Notifier = notify.NewLogNotifier(log)
		asynqClient *asynq.Client
		asynqServer *asynq.Server
	)
	if cfg.NotifyRedisAddr != "" {
		redisOpt := asynq.RedisClientOpt{Addr: cfg.NotifyRedisAddr}
		asynqClient = asynq.NewClient(redisOpt)
		notifier = notify.NewAsynqNotifier(asynqClient, cfg.NotifyQueue)

		asynqServer = asynq.NewServer(redisOpt, asynq.Config{
			Concurrency: 10,
			Queues:      map[string]int{cfg.NotifyQueue: 1},
		})
		mux := asynq.NewServeMux()
		notify.NewProcessor(notify.NewLogSink(log), log).Register(mux)
		if err := asynqServer.Start(mux); err != nil {
			log.Fatal("notification worker failed to start", zap.Error(err))
		}
	}

	svc := application.New(repo, transactor, hub, notifier, log, application.Options{
		OutboxEnabled:  cfg.OutboxEnabled,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})

	// Outbox Worker
	var producer *kafka.Producer
	if cfg.OutboxEnabled {
		producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		worker := &outbox.Worker{
			Source:    &outbox.PostgresSource{DB: db},
			Producer:  producer,
			Topic:     cfg.KafkaTopic,
			BatchSize: 100,
			PollDelay: 2 * time.Second,
		}
		go worker.Start(ctx)
	}

	go svc.RunIdempotencySweeper(ctx, cfg.IdempotencySweepInterval)

	// HTTP Server
	handler := router.NewRouter(router.Handlers{
		Conversations: handlers.NewConversationHandler(svc),
		Messages:      handlers.NewMessageHandler(svc),
		Realtime:      handlers.NewRealtimeHandler(svc, cfg.AllowedOrigins),
	}, ready, cfg)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("HTTP server started", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// gRPC Server
	grpcServer := grpc_transport.New(cfg.ServiceName)
	go func() {
		if err := grpcServer.Start(cfg.GRPCAddr); err != nil {
			log.Error("gRPC server failed", zap.Error(err))
		}
	}()

	// Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down...")
	grpcServer.SetServing(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", zap.Error(err))
	}

	if err := hub.Close(); err != nil {
		log.Error("fanout shutdown failed", zap.Error(err))
	}
	cancel()

	// Pending offline notifications are enqueued before the queue goes away.
	svc.Wait()
	if asynqServer != nil {
		asynqServer.Shutdown()
	}
	if asynqClient != nil {
		_ = asynqClient.Close()
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Error("kafka producer close failed", zap.Error(err))
		}
	}
	grpcServer.Stop()

	log.Info("shutdown complete")
}
