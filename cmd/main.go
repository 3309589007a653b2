package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/mskaar/renovasjon/internal/api"
	"github.com/mskaar/renovasjon/internal/commands"
	"github.com/mskaar/renovasjon/internal/config"
	"github.com/mskaar/renovasjon/internal/coordinator"
	"github.com/mskaar/renovasjon/internal/scheduler"
	"github.com/mskaar/renovasjon/internal/server"
)

// Command renovasjon polls the Renovasjonsportal waste-collection API for
// a configured address and serves the parsed schedule over HTTP.
//
// The service exposes:
//   - Per-fraction next collection date and day-of-collection readings
//   - A calendar feed (JSON and ICS subscription)
//   - A manual refresh action and coordinator diagnostics
//   - Prometheus metrics
//
// Usage:
//
//	renovasjon [flags]
//	renovasjon search-address [OPTIONS] QUERY
//
// The flags are:
//
//	-config string
//	      path to config file (default "config.yaml")
func main() {
	// Subcommands bypass the service entirely.
	if len(os.Args) > 1 && os.Args[1] == "search-address" {
		commands.SearchAddress(os.Args[2:])
		return
	}

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Optional .env for local development; ignored when absent.
	_ = godotenv.Load()

	appConfig, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(appConfig.Logging)
	logger.WithFields(logrus.Fields{
		"address":  appConfig.Address.Name,
		"interval": appConfig.Update.Interval().String(),
		"listen":   appConfig.Server.ListenAddr(),
	}).Info("Starting renovasjon")

	// Canceled on shutdown; aborts any in-flight fetch.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := api.NewClient(appConfig.API.BaseURL, logger)
	coord := coordinator.New(ctx, client, appConfig.Address, logger)
	sched := scheduler.New(ctx, coord, appConfig.Update.Interval(), logger)

	serverConfig := server.Config{
		ListenAddr:     appConfig.Server.ListenAddr(),
		CacheSize:      appConfig.Server.CacheSize,
		RateLimit:      appConfig.Server.RateLimit,
		RateLimitBurst: appConfig.Server.RateLimitBurst,
	}
	srv, err := server.Setup(serverConfig, coord, logger, prometheus.NewRegistry())
	if err != nil {
		logger.Fatalf("Failed to set up server: %v", err)
	}

	errChan := make(chan error, 1)

	// First fetch in the background; until it completes the API serves 503
	// for projections and the scheduler retries on its ticks.
	go func() {
		if _, err := coord.Refresh(ctx); err != nil {
			logger.WithError(err).Warn("Initial fetch failed, will retry on schedule")
		}
	}()

	if err := sched.Start(); err != nil {
		logger.Fatalf("Failed to start scheduler: %v", err)
	}

	go handleShutdown(ctx, cancel, sched, logger)

	go func() {
		if err := srv.Run(ctx); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
		close(errChan)
	}()

	if err := <-errChan; err != nil {
		logger.Fatalf("Service error: %v", err)
	}
	logger.Info("Shutdown complete")
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// handleShutdown turns SIGINT/SIGTERM into context cancellation so the
// server drains and any in-flight fetch is aborted.
func handleShutdown(ctx context.Context, cancel context.CancelFunc, sched *scheduler.Scheduler, logger *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		logger.Info("Context canceled, initiating shutdown")
	case sig := <-sigChan:
		logger.Infof("Received signal %v, initiating shutdown", sig)
	}

	sched.Stop()
	cancel()
}
