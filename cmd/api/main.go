package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-rental-storefront/internal/calendar"
	"github.com/ariefcatur/go-rental-storefront/internal/cart"
	"github.com/ariefcatur/go-rental-storefront/internal/config"
	"github.com/ariefcatur/go-rental-storefront/internal/httpx"
	kafkax "github.com/ariefcatur/go-rental-storefront/internal/kafka"
	"github.com/ariefcatur/go-rental-storefront/internal/ledger"
	"github.com/ariefcatur/go-rental-storefront/internal/lifecycle"
	"github.com/ariefcatur/go-rental-storefront/internal/logx"
	"github.com/ariefcatur/go-rental-storefront/internal/orders"
	"github.com/ariefcatur/go-rental-storefront/internal/postgres"
	"github.com/ariefcatur/go-rental-storefront/internal/redisx"
	"github.com/ariefcatur/go-rental-storefront/internal/reservation"
	"github.com/ariefcatur/go-rental-storefront/internal/scheduler"
	"github.com/ariefcatur/go-rental-storefront/internal/telemetry"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// store is what the coordinator needs from the record store.
type store interface {
	reservation.Catalog
	reservation.Records
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logx.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("service stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	// Record store: Postgres, atau in-memory kalau DSN kosong (dev)
	var records store
	if cfg.PostgresDSN != "" {
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, int32(cfg.PostgresMaxConns))
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return fmt.Errorf("db migrate: %w", err)
		}
		records = &orders.Repo{DB: db}
	} else {
		logger.Warn("POSTGRES_DSN empty, using in-memory record store")
		records = orders.NewMemoryRepo()
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	var cartStore cart.Store = cart.NewRedisStore(rdb, cfg.CartTTL)
	if cfg.CartBackend == "memory" {
		cartStore = cart.NewMemoryStore()
	}
	stock := ledger.New(cfg.LockWait)
	carts := cart.NewAggregator(cartStore).WithStock(stock)

	// Kafka producers, satu per topic. Context sendiri supaya event terakhir
	// tetap ter-flush setelah signal.
	bus := kafkax.NewBus(cfg.KafkaBrokers, []string{
		orders.TopicOrderPlaced,
		orders.TopicRentalBooked,
		orders.TopicRentalConfirmed,
		orders.TopicRentalCancelled,
		orders.TopicRentalActivated,
		orders.TopicRentalCompleted,
	}, 1024, logger)
	bus.Start(context.Background())
	defer bus.Close()

	engine := reservation.New(reservation.Deps{
		Ledger:   stock,
		Calendar: calendar.New(cfg.LockWait),
		Cart:     carts,
		Catalog:  records,
		Records:  records,
		Events:   bus,
		Logger:   logger,
	}, reservation.Options{
		Service:  cfg.ServiceName,
		LockWait: cfg.LockWait,
		Retry: reservation.RetryOptions{
			Attempts:  cfg.RetryAttempts,
			BaseDelay: cfg.RetryBaseDelay,
			MaxDelay:  cfg.RetryMaxDelay,
		},
		Lease:           cfg.IntentLease,
		PruneCompleted:  cfg.PruneCompleted,
		RejectPastStart: cfg.RejectPastStart,
	})
	if err := engine.Recover(ctx); err != nil {
		return fmt.Errorf("recover: %w", err)
	}

	jobs, err := scheduler.New(cfg.ReclaimSchedule, engine, cfg.IntentLease, logger)
	if err != nil {
		return err
	}
	jobs.Start()
	defer jobs.Stop()

	router := httpx.NewRouter(logger)
	(&httpx.OrdersHandler{
		Engine:   engine,
		Catalog:  records,
		Cart:     carts,
		Redis:    rdb,
		Log:      logger,
		ClaimTTL: time.Duration(cfg.RetryAttempts) * (cfg.IntentLease + cfg.RetryMaxDelay),
	}).Register(router)
	(&httpx.RentalsHandler{Engine: engine, Log: logger}).Register(router)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	svc := &lifecycle.Service{
		Rentals:     engine,
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-lifecycle",
		Log:         logger.Named("lifecycle"),
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.LifecycleGroup, orders.TopicRentalLifecycle, cfg.LifecycleWorkers, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("lifecycle consumer started",
			zap.String("group", cfg.LifecycleGroup), zap.String("topic", orders.TopicRentalLifecycle),
			zap.Int("workers", cfg.LifecycleWorkers))
		if err := cons.Start(gctx, svc.HandleLifecycle); err != nil {
			return fmt.Errorf("lifecycle consumer: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
