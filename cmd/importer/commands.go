package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/stanstork/catalog-importer/internal/config"
	"github.com/stanstork/catalog-importer/internal/handlers"
	"github.com/stanstork/catalog-importer/internal/middleware"
	"github.com/stanstork/catalog-importer/internal/migration"
	"github.com/stanstork/catalog-importer/internal/orchestrator"
	"github.com/stanstork/catalog-importer/internal/progress"
	"github.com/stanstork/catalog-importer/internal/routes"
	"github.com/stanstork/catalog-importer/internal/temporal"
	"github.com/stanstork/catalog-importer/internal/worker"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

func serveAction(ctx context.Context, cmd *cli.Command) error {
	app, err := newApplication(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.close()
	logger := app.logger

	if !cmd.Bool("skip-migrations") {
		if err := migration.Up(ctx, app.db, logger); err != nil {
			return err
		}
	}

	// Executor: inline goroutines or Temporal workflows.
	var (
		executor orchestrator.Executor
		inline   *orchestrator.InlineExecutor
	)
	switch app.config.Import.Executor {
	case config.ExecutorTemporal:
		temporalClient, err := app.dialTemporal()
		if err != nil {
			return err
		}
		defer temporalClient.Close()
		executor = temporal.NewExecutor(temporalClient, app.config.Temporal.TaskQueue, logger)
	default:
		inline = orchestrator.NewInlineExecutor(app.runner, logger)
		executor = inline
	}
	imports := orchestrator.NewService(app.jobs, app.files, executor, logger)

	// Progress reads, optionally woken by Postgres notifications.
	var readerOpts []progress.Option
	if app.config.Progress.Listen {
		broker := progress.NewBroker(logger)
		go func() {
			if err := broker.Listen(ctx, app.config.DatabaseURL); err != nil {
				logger.Error().Err(err).Msg("progress listener stopped")
			}
		}()
		readerOpts = append(readerOpts, progress.WithWaker(broker))
	}
	reader := progress.NewReader(app.jobs, app.config.Progress.PollInterval, logger, readerOpts...)

	router := routes.NewRouter(
		handlers.HealthCheck(app.db),
		handlers.NewJobHandler(imports, reader, app.config.CORS.AllowedOrigins, logger),
		handlers.NewProductHandler(app.products, logger),
		handlers.NewWebhookHandler(app.webhooks, app.dispatcher, logger),
	)
	loggedRouter := middleware.LoggingMiddleware(logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins(app.config.CORS.AllowedOrigins),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(loggedRouter)

	server := &http.Server{
		Addr:              ":" + app.config.ServerPort,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown requested")
	case serveErr = <-serverErrCh:
		logger.Error().Err(serveErr).Msg("Server error occurred")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}

	if inline != nil {
		logger.Info().Msg("Waiting for running imports...")
		inline.Wait()
	}
	return serveErr
}

func workerAction(ctx context.Context, cmd *cli.Command) error {
	app, err := newApplication(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.close()

	temporalClient, err := app.dialTemporal()
	if err != nil {
		return err
	}
	defer temporalClient.Close()

	w, err := worker.NewWorker(worker.WorkerConfig{
		Client:               temporalClient,
		TaskQueue:            app.config.Temporal.TaskQueue,
		Runner:               app.runner,
		MaxConcurrentImports: app.config.Temporal.MaxConcurrentImports,
	}, app.logger)
	if err != nil {
		return err
	}
	return w.Start(ctx)
}

func migrateUpAction(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return migration.RunMigrations(ctx, cfg.DatabaseURL, logger)
}

func migrateStatusAction(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	return migration.Status(ctx, db, logger)
}

// importAction runs one import in-process and prints the final job as JSON.
func importAction(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return errors.New("a CSV file path is required")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	app, err := newApplication(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.close()

	if err := migration.Up(ctx, app.db, app.logger); err != nil {
		return err
	}

	inline := orchestrator.NewInlineExecutor(app.runner, app.logger)
	job, err := orchestrator.NewService(app.jobs, app.files, inline, app.logger).Submit(ctx, cmd.String("job-id"), f)
	if err != nil {
		return err
	}
	inline.Wait()

	job, err = app.jobs.Get(ctx, job.ID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(job); err != nil {
		return err
	}
	if job.ErrorMessage != nil {
		return fmt.Errorf("import %s failed: %s", job.ID, *job.ErrorMessage)
	}
	return nil
}
