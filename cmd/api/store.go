package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-bloodbank/internal/config"
	"github.com/ariefcatur/go-bloodbank/internal/directory"
	"github.com/ariefcatur/go-bloodbank/internal/donation"
	"github.com/ariefcatur/go-bloodbank/internal/httpx"
	"github.com/ariefcatur/go-bloodbank/internal/inventory"
	"github.com/ariefcatur/go-bloodbank/internal/memstore"
	"github.com/ariefcatur/go-bloodbank/internal/postgres"
	"github.com/ariefcatur/go-bloodbank/internal/requests"
	"github.com/ariefcatur/go-bloodbank/internal/sweep"
)

// store is everything the api needs from persistence. Both the Postgres
// store and the in-memory one satisfy it.
type store interface {
	inventory.Store
	requests.Store
	donation.Store
	sweep.Store
	directory.Source
	httpx.Registry
}

var (
	_ store = (*postgres.Store)(nil)
	_ store = (*memstore.Store)(nil)
)

func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store, func(), error) {
	if cfg.Storage == "memory" {
		logger.Warn("using in-memory storage, data is lost on exit")
		return memstore.New(), func() {}, nil
	}

	pool, err := postgres.Connect(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("db connect: %w", err)
	}
	applied, err := postgres.Migrate(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("migrations applied", zap.Strings("files", applied))
	}
	return postgres.NewStore(pool), pool.Close, nil
}
