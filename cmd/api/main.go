package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/clock"
	"github.com/ariefcatur/go-bloodbank/internal/config"
	"github.com/ariefcatur/go-bloodbank/internal/directory"
	"github.com/ariefcatur/go-bloodbank/internal/donation"
	"github.com/ariefcatur/go-bloodbank/internal/httpx"
	"github.com/ariefcatur/go-bloodbank/internal/inventory"
	kafkax "github.com/ariefcatur/go-bloodbank/internal/kafka"
	"github.com/ariefcatur/go-bloodbank/internal/notify"
	"github.com/ariefcatur/go-bloodbank/internal/observability"
	"github.com/ariefcatur/go-bloodbank/internal/redisx"
	"github.com/ariefcatur/go-bloodbank/internal/requests"
	"github.com/ariefcatur/go-bloodbank/internal/sweep"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Env, cfg.ServiceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OtelEndpoint, cfg.ServiceName)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	// Storage
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Redis, optional
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		client := redisx.New(cfg.RedisAddr)
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Ping(pctx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, running without cache", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = client.Close()
		} else {
			rdb = client
			defer rdb.Close()
		}
	}

	// Notifications
	var (
		notifier  notify.Notifier
		texter    notify.Texter
		producers []*kafkax.Producer
	)
	if cfg.KafkaEnabled() {
		events := kafkax.NewProducer(cfg.KafkaBrokers, bloodbank.TopicNotifications, 1024, logger)
		events.Start(ctx)
		sms := kafkax.NewProducer(cfg.KafkaBrokers, bloodbank.TopicSMS, 256, logger)
		sms.Start(ctx)
		producers = append(producers, events, sms)

		notifier = notify.NewKafkaNotifier(events, cfg.ServiceName, logger)
		texter = notify.NewSMSTexter(sms, cfg.SMSRatePerSec, cfg.SMSBurst, cfg.DefaultCountryCode, logger)
	} else {
		ln := notify.NewLogNotifier(logger)
		notifier, texter = ln, ln
	}

	// Core
	clk := clock.NewSystem()
	var dir *directory.Directory
	reqOpts := []requests.Option{requests.WithTexter(texter)}
	if rdb != nil {
		dir = directory.New(store, rdb, logger)
		reqOpts = append(reqOpts,
			requests.WithStatusCache(redisx.NewRequestCache(rdb)),
			requests.WithAlertGate(redisx.NewAlertGate(rdb)))
	} else {
		dir = directory.New(store, nil, logger)
	}
	reqOpts = append(reqOpts, requests.WithContacts(dir))

	ledger := inventory.NewLedger(store, clk, logger,
		inventory.WithOrgNamer(dir),
		inventory.WithMaxRetries(cfg.DeductMaxRetries, cfg.DeductRetryWait))
	reqSvc := requests.NewService(store, ledger, notifier, clk, logger, reqOpts...)
	donSvc := donation.NewService(store, ledger, notifier, clk, logger)
	sweeper := sweep.New(store, notifier, clk, logger)

	sched, err := sweep.NewScheduler(sweeper, cfg.SweepSchedule, cfg.SweepOnStart, logger)
	if err != nil {
		return err
	}

	// HTTP
	router := httpx.NewRouter(logger)
	(&httpx.InventoryHandler{Ledger: ledger, Log: logger}).Register(router)
	(&httpx.RequestsHandler{Service: reqSvc, Log: logger}).Register(router)
	(&httpx.DonationHandler{Service: donSvc, Log: logger}).Register(router)
	(&httpx.RegistryHandler{Registry: store, Cache: dir, Log: logger}).Register(router)
	(&httpx.AdminHandler{Sweeper: sweeper, Log: logger}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("storage", cfg.Storage))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	err = g.Wait()
	for _, p := range producers {
		p.Close()
		p.WaitClosed()
	}
	return err
}
