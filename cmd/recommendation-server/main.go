// cmd/recommendation-server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"recommendation-backend/internal/api"
	"recommendation-backend/internal/common/config"
	"recommendation-backend/internal/common/logger"
	"recommendation-backend/internal/common/observability"
	"recommendation-backend/internal/common/validation"
	"recommendation-backend/internal/registry"
	"recommendation-backend/internal/warmup"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("starting recommendation server",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	reg := registry.New(cfg, log)
	defer reg.Shutdown()

	ctx := context.Background()
	err = retryWithBackoff(func() error {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return reg.Connect(connectCtx)
	}, 10, 2*time.Second, zapLog, "backing store connection")
	if err != nil {
		zapLog.Fatal("backing stores unreachable", zap.Error(err))
	}

	service, err := reg.Service()
	if err != nil {
		zapLog.Fatal("pipeline construction failed", zap.Error(err))
	}

	if cfg.Warmup.Enabled {
		cat, err := reg.Catalog()
		if err != nil {
			zapLog.Fatal("catalog construction failed", zap.Error(err))
		}
		warmCtx, cancel := context.WithTimeout(ctx, time.Minute)
		warmup.New(cat, cfg.Markets.Default, cfg.Warmup.Concurrency, cfg.Warmup.TopN, log).Run(warmCtx)
		cancel()
	}

	validator, err := validation.NewRequestValidator()
	if err != nil {
		zapLog.Fatal("request schema compilation failed", zap.Error(err))
	}

	mux := http.NewServeMux()
	api.NewHandler(service, validator, config.GetDuration(cfg.Server.RequestTimeout), log).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("http server failed", zap.Error(err))
		}
	}()

	// pprof on a separate port, not exposed through the main listener.
	go func() {
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			zapLog.Warn("pprof listener failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	zapLog.Info("shutting down", zap.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("graceful shutdown incomplete", zap.Error(err))
	}

	zapLog.Info("recommendation server stopped")
}
