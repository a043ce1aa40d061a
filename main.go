package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	intconfig "shuttle/internal/config"
	intdb "shuttle/internal/db"
	api "shuttle/internal/http"
	"shuttle/internal/http/handlers"
	"shuttle/internal/locks"
	"shuttle/internal/notify"
	"shuttle/internal/repositories"
	"shuttle/internal/services"
	"shuttle/internal/utils"
	"shuttle/internal/worker"
)

func main() {
	cfg := intconfig.Load()
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	log := utils.InitLogger(utils.LoggerOptions{
		Production: cfg.IsProduction(),
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
	})
	defer func() { _ = log.Sync() }()

	db, err := intconfig.ConnectDB(cfg)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer intconfig.CloseDB()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := intdb.EnsureSchema(ctx, db); err != nil {
		log.Fatal("schema setup failed", zap.Error(err))
	}

	var locker locks.TripLocker = locks.NewKeyedMutex()
	if cfg.TripLockBackend == "redis" {
		client, err := intconfig.ConnectRedis(cfg)
		if err != nil {
			log.Fatal("redis connection failed", zap.Error(err))
		}
		defer client.Close()
		locker = locks.NewRedisLocker(client, cfg.TripLockTTL)
		log.Info("using redis trip lock", zap.String("addr", cfg.RedisAddr))
	}

	var publisher notify.Publisher = notify.LogPublisher{}
	if cfg.AMQPURL != "" {
		p, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Error("amqp unavailable, logging events instead", zap.Error(err))
		} else {
			defer p.Close()
			publisher = p
		}
	}

	calendar, err := services.BuildCalendarChain(cfg.CalendarProviderNames(), repositories.CalendarRepository{DB: db})
	if err != nil {
		log.Fatal("calendar setup failed", zap.Error(err))
	}

	store := repositories.NewSQLStore(db)
	events := &services.Dispatcher{Publisher: publisher, Calendar: calendar, MaxRetry: cfg.TaskMaxRetry, Timeout: 10 * time.Second}
	pricing := services.PricingService{Store: store, DefaultFlatRate: cfg.DefaultFlatRate}
	ledger := services.LedgerService{Store: store}
	refunds := services.RefundService{Store: store, Pricing: pricing, Ledger: ledger, Locker: locker, Events: events}

	a := &handlers.API{
		DB:      db,
		Pricing: pricing,
		Ledger:  ledger,
		Refunds: refunds,
		Bookings: services.BookingService{
			Store:   store,
			Pricing: pricing,
			Ledger:  ledger,
			Refunds: refunds,
			Locker:  locker,
			Events:  events,
		},
		Trips:      services.TripService{Store: store, Pricing: pricing, Calendar: calendar, Events: events},
		Statements: services.StatementService{Store: store},
	}

	if cfg.TaskQueue == "asynq" {
		redisOpt := intconfig.QueueRedisOpt(cfg)
		client := asynq.NewClient(redisOpt)
		defer client.Close()
		events.Queue = client

		h := worker.Handlers{Publisher: publisher, Calendar: calendar, Trips: store, Ledger: ledger}
		opts := worker.Options{
			Concurrency:    cfg.WorkerConcurrency,
			ReconcileEvery: cfg.ReconcileInterval,
			Repair:         cfg.ReconcileRepair,
		}
		go func() {
			if err := worker.Run(ctx, redisOpt, opts, h); err != nil {
				log.Error("task worker stopped", zap.Error(err))
			}
		}()
		log.Info("using asynq task queue", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisQueueDB))
	} else {
		go services.ReconcileWorker{Ledger: ledger, Interval: cfg.ReconcileInterval, Repair: cfg.ReconcileRepair}.Run(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           api.NewRouter(cfg, a),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("addr", cfg.AppAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
		return
	}
	log.Info("server stopped")
}
