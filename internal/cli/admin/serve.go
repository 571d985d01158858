package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docpipe/internal/api/handlers"
	"github.com/cloo-solutions/docpipe/internal/config"
	"github.com/cloo-solutions/docpipe/internal/jobs"
	"github.com/cloo-solutions/docpipe/internal/server"
	"github.com/cloo-solutions/docpipe/internal/service"
	"github.com/cloo-solutions/docpipe/internal/telemetry"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and ingestion worker",
		Long:  "Start the docpipe API server and the background worker that drains the ingestion queue",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides DOCPIPE_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-worker", false, "Serve the API without processing the ingestion queue")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg)

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate(),
		Debug:            cfg.Debug,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry init failed, continuing without tracing")
	} else {
		defer shutdownTelemetry()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	a, err := newApp(ctx, cfg, logger, !noMigrate)
	if err != nil {
		return err
	}
	defer a.Close()

	var worker *jobs.Worker
	if noWorker, _ := cmd.Flags().GetBool("no-worker"); !noWorker {
		processor := jobs.NewIngestionWorker(a.jobs, a.ingestionService(), jobs.IngestionWorkerConfig{
			BatchSize:  cfg.WorkerBatchSize,
			MaxRetries: cfg.WorkerMaxRetries,
			StaleAfter: cfg.StaleRunAfter,
		}, logger)
		worker = jobs.NewWorker(processor, cfg.WorkerPollInterval, logger)
		go worker.Start(ctx)
	}

	documentSvc := service.NewDocumentService(a.documents, a.txRunner, a.orchestrator, service.DocumentServiceConfig{
		DefaultExtractFacts: cfg.ExtractFacts,
		StaleRunAfter:       cfg.StaleRunAfter,
	})
	statusSvc := service.NewStatusService(a.statuses, a.chunks, a.documents)

	routerCfg := server.RouterConfig{
		DocumentHandler: handlers.NewDocumentHandler(documentSvc, statusSvc),
		Logger:          logger,
	}
	if a.blobs != nil {
		uploadSvc := service.NewUploadService(a.blobs, a.blobs.UploadURLExpiry())
		routerCfg.UploadHandler = handlers.NewUploadHandler(uploadSvc)
	}
	router := server.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if worker != nil {
		worker.Stop()
	}

	logger.Info().Msg("server exited")
	return nil
}
