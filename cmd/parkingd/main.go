package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"parking-access-backend/config"
	"parking-access-backend/internal/api"
	"parking-access-backend/internal/db"
	"parking-access-backend/internal/ledger"
	"parking-access-backend/internal/logger"
	"parking-access-backend/internal/metrics"
	"parking-access-backend/internal/notification"
	"parking-access-backend/internal/registry"
	"parking-access-backend/internal/store"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	zl.Info("configuration loaded", zap.String("path", configPath))

	metrics.Register()

	gormDB, err := db.Init(&cfg.Database, cfg.Log, zl)
	if err != nil {
		zl.Fatal("failed to initialize database", zap.Error(err))
	}
	appStore := store.NewGormStore(gormDB)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go registry.NewSyncer(cfg.Registry.Sync, appStore, zl).Run(ctx)

	opts := []ledger.Option{ledger.WithHistorySize(cfg.Ledger.StatusHistorySize)}
	if cfg.Ledger.RequireKnownVehicle {
		opts = append(opts, ledger.WithRegistry(registry.New(appStore, cfg.Registry.CacheTTL)))
	}

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, appStore, webpushOptions, zl)
		pool.Start(ctx)
		opts = append(opts, ledger.WithNotifier(pool))
	} else {
		zl.Warn("VAPID keys are not configured, push notifications are disabled")
	}

	handler := api.NewHandler(ledger.New(appStore, opts...), appStore, webpushOptions, cfg.Ledger.Location)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(handler, cfg.Server, zl),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zl.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutdown signal received, stopping services")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Error("HTTP server Shutdown", zap.Error(err))
	}
	zl.Info("server gracefully stopped")
}
