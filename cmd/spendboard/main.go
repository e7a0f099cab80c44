package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"spendboard/internal/backend"
	"spendboard/internal/cache"
	"spendboard/internal/cli"
	"spendboard/internal/core"
	apphttp "spendboard/internal/http"
	applog "spendboard/internal/log"
	"spendboard/internal/middleware/ratelimit"
	"spendboard/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	opts, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).Create(context.Background(), opts)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, applog.FieldBackend, cfg.Backend)
		os.Exit(1)
	}

	// Month listings are cached briefly; the manager sweeps expired entries.
	cacheManager := cache.NewManager()
	monthCache := cache.NewLRUCache[[]core.Transaction](64, 2*time.Minute)
	cacheManager.Register(monthCache)
	cacheManager.StartCleanup(time.Minute)

	svc := services.NewDashboardService(res.Source, monthCache)

	rateLimit := ratelimit.DefaultConfig()
	rateLimit.RequestsPerMinute = cfg.RateLimitPerMinute

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		Ready:          res.Ready,
		RateLimit:      rateLimit,
		TrustedProxies: cfg.TrustedProxies,
		Logger:         logger.WithComponent(applog.ComponentHTTP),
		RequestTimeout: cfg.RequestTimeout,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cacheManager.Stop()
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.Info("Starting spendboard server",
		"port", cfg.Port,
		applog.FieldBackend, cfg.Backend,
		applog.FieldOperation, applog.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
