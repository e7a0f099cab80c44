package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/robfig/cron"

	"spendboard/internal/amqp"
	"spendboard/internal/cli"
	applog "spendboard/internal/log"
	gsheet "spendboard/internal/sheets/google"
	"spendboard/internal/source/api"
	"spendboard/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting spendboard-worker", applog.FieldOperation, applog.OpStartup)

	cfg := cli.LoadAndValidateConfig(logger)

	remote, err := api.New(cfg.APIURL, cfg.APITimeout)
	if err != nil {
		logger.Error("Failed to initialize transactions API client", applog.FieldError, err)
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// Sheets export is optional and needs a spreadsheet id.
	var exporter worker.SummaryExporter
	if cfg.ExportEnabled() {
		sheetsClient, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		exporter = sheetsClient
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	mirror := worker.NewMirrorWorker(remote, repo, exporter, cfg.WorkerPageSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Performing startup sync...")
	if err := mirror.StartupSync(ctx); err != nil {
		// The schedule retries; don't exit.
		logger.Error("Startup sync failed", applog.FieldError, err)
	}

	c := cron.New()
	if err := c.AddFunc(cfg.RefreshCron, func() {
		if err := mirror.RefreshRecentMonths(ctx); err != nil {
			logger.Error("Scheduled refresh failed", applog.FieldError, err, applog.FieldOperation, applog.OpRefresh)
		}
	}); err != nil {
		logger.Error("Invalid refresh schedule", applog.FieldError, err, "schedule", cfg.RefreshCron)
		os.Exit(1)
	}
	if exporter != nil {
		if err := c.AddFunc(cfg.ExportCron, func() {
			if err := mirror.ExportCurrentMonth(ctx); err != nil {
				logger.Error("Scheduled export failed", applog.FieldError, err, applog.FieldOperation, applog.OpExport)
			}
		}); err != nil {
			logger.Error("Invalid export schedule", applog.FieldError, err, "schedule", cfg.ExportCron)
			os.Exit(1)
		}
	}
	c.Start()
	logger.Info("Scheduler started", "refresh", cfg.RefreshCron, "export", cfg.ExportCron, "export_enabled", exporter != nil)

	// Refresh requests published by the dashboard are consumed only when
	// AMQP is configured.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		go func() {
			if err := amqpClient.ConsumeMonthRefresh(ctx, mirror.HandleRefreshMessage); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", applog.FieldError, err)
				cancel()
			}
		}()
	} else {
		logger.Info("Skipping AMQP message consumption - no AMQP_URL provided")
	}

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		logger.Info("Shutting down worker...")
		c.Stop()
		cancel()
		if amqpClient != nil {
			_ = amqpClient.Close()
		}
	})

	select {
	case <-shutdownCtx.Done():
		<-done
	case <-ctx.Done():
		logger.Info("Context cancelled")
		c.Stop()
	}
}
