package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ziggonext/internal/api"
	"ziggonext/internal/config"
	"ziggonext/internal/controller"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load environment variables before the logger so LOG_LEVEL applies
	envErr := godotenv.Load()

	level := zap.NewAtomicLevel()
	logger, err := newLogger(os.Getenv("LOG_LEVEL"), level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if envErr != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}

	cfg, err := config.NewLoader(configFile, logger).Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logger.Warn("Ignoring invalid log level", zap.String("log_level", cfg.LogLevel))
	}

	logger.Info("Starting Ziggo Next controller",
		zap.String("country", cfg.Country),
		zap.Int("http_port", cfg.HTTPPort))

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Controller stopped", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctrl := controller.New(cfg, logger)

	// Subscribe the event hub before boxes start reporting
	server := api.NewServer(ctrl, logger, cfg.HTTPPort)

	if err := ctrl.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer ctrl.Close()

	if err := ctrl.StartChannelRefresh(ctx, cfg.ChannelRefreshSchedule); err != nil {
		return err
	}

	if err := server.Start(); err != nil {
		return err
	}

	logger.Info("Application running. Press Ctrl+C to exit.")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ctrl.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return server.Stop()
	})

	err := g.Wait()
	if ctx.Err() != nil {
		logger.Info("Shutting down gracefully...")
		return err
	}
	if err == nil {
		err = errors.New("dispatch loop exited")
	}
	return err
}

func newLogger(env string, level zap.AtomicLevel) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if env == "debug" {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = level
	return cfg.Build()
}
