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

	httpadapter "github.com/kirillkom/grading-assistant/internal/adapters/http"
	"github.com/kirillkom/grading-assistant/internal/bootstrap"
	"github.com/kirillkom/grading-assistant/internal/config"
	"github.com/kirillkom/grading-assistant/internal/observability/logging"
	"github.com/kirillkom/grading-assistant/internal/observability/metrics"
)

const serviceName = "api"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "grading-api",
		Short: "Mock exam grading assistant HTTP API",
	}

	serve := serveCmd()
	root.AddCommand(serve)

	// Bare `grading-api --api-port ...` behaves like serve.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve the operator and student HTTP endpoints",
		SilenceUsage: true,
		RunE:         runServe,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	logger := logging.NewLogger(serviceName, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, logger, httpMetrics)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	router := httpadapter.NewRouter(httpadapter.Deps{
		Pipeline: app.Pipeline,
		Settings: app.Settings,
		Sessions: app.Sessions,
		Uploads:  app.Uploads,
		Journal:  app.Pipeline,
		Blobs:    app.Blobs,
		Metrics:  httpMetrics,
		Logger:   logger,
	}, httpadapter.Options{
		Service:          serviceName,
		RateLimitRPS:     cfg.APIRateLimitRPS,
		RateLimitBurst:   cfg.APIRateLimitBurst,
		MaxInFlight:      cfg.APIMaxInFlight,
		BackpressureWait: cfg.APIBackpressureWait,
		MaxUploadBytes:   cfg.MaxUploadBytes,
	})

	// Grading a selection polls the backend per section, so writes get a long deadline.
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api_listening", "addr", server.Addr, "remote_queue", app.Remote)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			logger.Error("api_server_failed", "error", err)
			return fmt.Errorf("api server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_failed", "error", err)
	}
	logger.Info("api_stopped")
	return nil
}
