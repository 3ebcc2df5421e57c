// Package main is the entry point of the LingoBridge daemon: a self-hosted
// translation relay that batch-translates text segments through AI providers,
// caches the results in two tiers, and streams incremental results to
// clients.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/lingobridge/lingobridge/internal/api"
	"github.com/lingobridge/lingobridge/internal/api/middleware"
	"github.com/lingobridge/lingobridge/internal/cache"
	"github.com/lingobridge/lingobridge/internal/config"
	"github.com/lingobridge/lingobridge/internal/logging"
	"github.com/lingobridge/lingobridge/internal/provider"
	"github.com/lingobridge/lingobridge/internal/translate"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string
	var port int
	flag.StringVar(&configPath, "config", "config.yaml", "path to the configuration file")
	flag.IntVar(&port, "port", 0, "override the configured listen port")
	flag.Parse()

	// .env is optional; missing files are not an error.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	logging.Setup(logging.Options{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	middleware.SetMetricsEnabled(cfg.Metrics.Enabled)
	log.Infof("LingoBridge %s (%s, built %s)", Version, Commit, BuildDate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	translationCache, err := cache.Open(cfg.Cache.DBPath)
	if err != nil {
		log.Fatalf("failed to open translation cache: %v", err)
	}
	defer func() { _ = translationCache.Close() }()

	if swept, errClean := translationCache.CleanExpired(); errClean != nil {
		log.Warnf("startup cache sweep failed: %v", errClean)
	} else if swept > 0 {
		log.Infof("startup cache sweep removed %d expired entries", swept)
	}
	if interval := cfg.Cache.EvictionInterval(); interval > 0 {
		translationCache.StartPeriodicEviction(ctx, interval)
	}

	registry := provider.NewRegistry(provider.NewHTTPClient())
	service := translate.NewService(registry, translationCache)

	store := config.NewStore(cfg)
	go func() {
		if errWatch := config.Watch(ctx, configPath, store, func(next *config.Config) {
			logging.SetLevel(next.Logging.Level)
			middleware.SetMetricsEnabled(next.Metrics.Enabled)
		}); errWatch != nil {
			log.Warnf("config watcher stopped: %v", errWatch)
		}
	}()

	server := api.NewServer(store, service, translationCache)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case errServe := <-errCh:
		if errServe != nil {
			log.Fatalf("server failed: %v", errServe)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errStop := server.Stop(shutdownCtx); errStop != nil {
		log.Errorf("graceful shutdown failed: %v", errStop)
	}
	log.Info("LingoBridge stopped")
}
