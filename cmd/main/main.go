package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/waitlist-ops/internal/api"
	"gitlab.com/timkado/api/waitlist-ops/internal/config"
	"gitlab.com/timkado/api/waitlist-ops/internal/healthcheck"
	"gitlab.com/timkado/api/waitlist-ops/internal/observer"
	"gitlab.com/timkado/api/waitlist-ops/internal/storage"
	"gitlab.com/timkado/api/waitlist-ops/internal/usecase"
	"gitlab.com/timkado/api/waitlist-ops/pkg/logger"
	"gitlab.com/timkado/api/waitlist-ops/pkg/utils"
)

const shutdownTimeout = 15 * time.Second

// closer is implemented by stores holding a connection.
type closer interface {
	Close() error
}

func main() {
	time.Local = time.UTC

	// A missing .env is normal outside local development
	_ = godotenv.Load()

	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogEncoding); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	observer.InitMetrics(cfg.Metrics.Enabled)

	logger.Log.Info("Starting waitlist ops service",
		zap.String("environment", cfg.Environment),
		zap.String("store_driver", cfg.Store.Driver),
		zap.Int("port", cfg.Server.Port),
	)
	if cfg.Ops.BasicUser == "" || cfg.Ops.BasicPass == "" {
		logger.Log.Warn("Ops credentials not set, all /api/ops requests will be refused")
	}

	store, err := initStore(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize waitlist store", zap.Error(err))
	}

	service := usecase.NewWaitlistService(store)

	router := api.NewRouter(service, api.Options{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		DefaultReturnTo: cfg.Server.DefaultReturnTo,
		OpsUser:         cfg.Ops.BasicUser,
		OpsPass:         cfg.Ops.BasicPass,
		OpsRealm:        cfg.Ops.Realm,
	})
	apiServer := api.NewServer(cfg.Server.Port, router, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, logger.Log)

	healthServer := healthcheck.NewServer(cfg.Metrics.Port, store, logger.Log)
	if cfg.Metrics.Enabled {
		healthServer.RegisterMetricsHandler(promhttp.Handler())
	} else {
		logger.Log.Info("Metrics endpoint disabled", zap.String("environment", cfg.Environment))
	}
	healthServer.Start()

	logger.Log.Info("Health check endpoints available",
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port)),
		zap.String("readiness", fmt.Sprintf("http://localhost:%d/ready", cfg.Metrics.Port)),
	)

	apiErrCh := apiServer.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigChan:
		logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))
	case err, ok := <-apiErrCh:
		if ok && err != nil {
			logger.Log.Error("API server stopped unexpectedly, shutting down", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", shutdownTimeout))

	var wg sync.WaitGroup
	wg.Add(2)

	onPanic := func(component string) utils.RecoverFn {
		return func(r interface{}, stack []byte) {
			logger.Log.Error("[shutdown] Panic while stopping "+component,
				zap.Any("panic", r),
				zap.ByteString("stack", stack),
			)
		}
	}

	// In-flight requests finish before the store goes away
	utils.SafeGo(func() {
		defer wg.Done()
		start := time.Now()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping API server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] API server stopped", zap.Duration("duration", time.Since(start)))
		}

		if c, ok := store.(closer); ok {
			if err := c.Close(); err != nil {
				logger.Log.Error("[shutdown] Failed to close store", zap.Error(err))
			} else {
				logger.Log.Info("[shutdown] Store closed")
			}
		}
	}, onPanic("API server"))

	utils.SafeGo(func() {
		defer wg.Done()
		start := time.Now()
		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping health check server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] Health check server stopped", zap.Duration("duration", time.Since(start)))
		}
	}, onPanic("health check server"))

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("Waitlist ops service shutdown complete")
}

// initStore builds the configured store backend.
func initStore(cfg *config.Config) (storage.Store, error) {
	policy := storage.LockPolicy{
		Timeout:       cfg.Store.Lock.Timeout,
		RetryInterval: cfg.Store.Lock.RetryInterval,
		OnTimeout:     storage.OnTimeout(cfg.Store.Lock.OnTimeout),
	}

	switch cfg.Store.Driver {
	case config.DriverPostgres:
		store, err := storage.NewPostgresStore(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate, policy)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		logger.Log.Info("Initialized PostgreSQL waitlist store")
		return store, nil
	default:
		store, err := storage.NewFileStore(cfg.Store.Path, cfg.Store.LockPath, policy)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file store: %w", err)
		}
		logger.Log.Info("Initialized file waitlist store", zap.String("path", store.Path()))
		return store, nil
	}
}
