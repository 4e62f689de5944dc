package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bloodbank/internal/bloodbank"
	"github.com/ariefcatur/go-bloodbank/internal/config"
	kafkax "github.com/ariefcatur/go-bloodbank/internal/kafka"
	"github.com/ariefcatur/go-bloodbank/internal/notify"
	"github.com/ariefcatur/go-bloodbank/internal/observability"
	"github.com/ariefcatur/go-bloodbank/internal/redisx"
)

// relay consumes notification envelopes and republishes them on the Redis
// channels the realtime gateway subscribes to.
func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Env, cfg.ServiceName+"-relay")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	err = rdb.Ping(pctx).Err()
	cancel()
	if err != nil {
		logger.Fatal("redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	relay := notify.NewRelay(rdb, cfg.ServiceName+"-relay", logger)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.RelayGroup, bloodbank.TopicNotifications, cfg.RelayWorkers, logger)

	logger.Info("relay started",
		zap.String("group", cfg.RelayGroup),
		zap.String("topic", bloodbank.TopicNotifications),
		zap.Int("workers", cfg.RelayWorkers))
	if err := cons.Start(ctx, relay.Handle); err != nil && ctx.Err() == nil {
		logger.Error("consumer exit", zap.Error(err))
	}
	logger.Info("relay stopped")
}
