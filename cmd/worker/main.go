package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/grading-assistant/internal/bootstrap"
	"github.com/kirillkom/grading-assistant/internal/config"
	"github.com/kirillkom/grading-assistant/internal/core/domain"
	"github.com/kirillkom/grading-assistant/internal/observability/logging"
	"github.com/kirillkom/grading-assistant/internal/observability/metrics"
)

const (
	serviceName    = "worker"
	processTimeout = 5 * time.Minute
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "grading-worker",
		Short: "Consumes student upload events and normalizes the submissions",
	}

	work := workCmd()
	root.AddCommand(work)
	root.RunE = work.RunE
	root.Flags().AddFlagSet(work.Flags())

	return root
}

func workCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "work",
		Short:        "Subscribe to upload events",
		SilenceUsage: true,
		RunE:         runWork,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runWork(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	logger := logging.NewLogger(serviceName, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	if cfg.NATSURL == "" {
		return errors.New("worker requires --nats-url")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, logger, workerMetrics)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeUploads(ctx, func(handlerCtx context.Context, event domain.UploadEvent) error {
		if !event.SubmittedAt.IsZero() {
			workerMetrics.ObserveQueueLag(time.Since(event.SubmittedAt))
		}
		workerMetrics.StartUpload()
		started := time.Now()

		processCtx, cancel := context.WithTimeout(handlerCtx, processTimeout)
		defer cancel()
		err := app.Uploads.Process(processCtx, event)
		workerMetrics.FinishUpload(time.Since(started), err)
		if err == nil {
			logger.Info("upload_processed", "batch", event.Batch, "file", event.FileName)
		}
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		return fmt.Errorf("subscribe uploads: %w", err)
	}
	logger.Info("worker_stopped")
	return nil
}
