package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/temportalflux/wishlist/internal/app"
	"github.com/temportalflux/wishlist/internal/config"
	"github.com/temportalflux/wishlist/internal/logging"
	"go.uber.org/zap"
)

func main() {
	flags := pflag.NewFlagSet("wishlistd", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "", "path to config.json")
	flags.String("db", "", "database directory")
	flags.String("remote", "", "remote host kind (github, memory)")
	flags.String("token", "", "remote API token")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Int("addr-port", 0, "port the API listens on")
	flags.String("workspace", "", "directory mirroring lists as files")
	flags.Parse(os.Args[1:])

	// Load configuration
	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", zap.Error(err))
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		logger.Error("daemon stopped", zap.Error(err))
	}
}
