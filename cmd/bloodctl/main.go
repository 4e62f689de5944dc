package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bloodbank/internal/config"
	"github.com/ariefcatur/go-bloodbank/internal/observability"
	"github.com/ariefcatur/go-bloodbank/internal/postgres"
)

var rootCmd = &cobra.Command{
	Use:           "bloodctl",
	Short:         "Operational commands for the blood bank service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env loads configuration and a console logger for one command run.
func env() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := observability.NewLogger("dev", "bloodctl")
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func openPostgres(ctx context.Context, cfg config.Config, logger *zap.Logger) (*postgres.Store, func(), error) {
	pool, err := postgres.Connect(ctx, cfg.PostgresDSN, logger)
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewStore(pool), pool.Close, nil
}
