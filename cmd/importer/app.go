package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"
	"github.com/stanstork/catalog-importer/internal/config"
	"github.com/stanstork/catalog-importer/internal/importer"
	"github.com/stanstork/catalog-importer/internal/notification"
	"github.com/stanstork/catalog-importer/internal/orchestrator"
	"github.com/stanstork/catalog-importer/internal/repository"
	"github.com/stanstork/catalog-importer/internal/storage"
	"github.com/stanstork/catalog-importer/internal/temporal"
	"github.com/urfave/cli/v3"
	tc "go.temporal.io/sdk/client"
)

type application struct {
	config     *config.Config
	logger     zerolog.Logger
	db         *sql.DB
	pool       *pgxpool.Pool
	jobs       repository.JobRepository
	products   repository.ProductRepository
	webhooks   repository.WebhookRepository
	files      *storage.FileStore
	dispatcher *notification.Dispatcher
	runner     *orchestrator.Orchestrator
}

// loadConfig reads configuration and builds the process logger from it.
func loadConfig(cmd *cli.Command) (*config.Config, zerolog.Logger, error) {
	var paths []string
	if dir := cmd.String("config"); dir != "" {
		paths = append(paths, dir)
	}
	cfg, err := config.Load(bootstrapLogger(), paths...)
	if err != nil {
		return nil, zerolog.Logger{}, err
	}
	return cfg, newLogger(cfg.Log), nil
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if strings.EqualFold(cfg.Format, "json") {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
		logger = zerolog.New(consoleWriter).With().Timestamp().Logger()
	}

	log.SetFlags(0)
	log.SetOutput(logger)
	return logger
}

func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// newApplication connects to Postgres and wires the import pipeline.
func newApplication(ctx context.Context, cmd *cli.Command) (*application, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	db, err := openDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	files, err := storage.NewFileStore(cfg.Storage.Dir)
	if err != nil {
		pool.Close()
		db.Close()
		return nil, err
	}

	app := &application{
		config:   cfg,
		logger:   logger,
		db:       db,
		pool:     pool,
		jobs:     repository.NewJobRepository(db),
		products: repository.NewProductRepository(db),
		webhooks: repository.NewWebhookRepository(db),
		files:    files,
	}

	notifier := notification.NewHTTPNotifier(cfg.Webhook.Timeout, cfg.Webhook.SigningKey)
	app.dispatcher = notification.NewDispatcher(app.webhooks, notifier, logger)

	engine := importer.NewEngine(repository.NewProductBulkRepository(pool), importer.Config{
		KeyColumn: cfg.Import.KeyColumn,
		BatchSize: cfg.Import.BatchSize,
	}, logger)
	app.runner = orchestrator.New(app.jobs, files, engine, app.dispatcher, logger)

	logger.Info().
		Str("storage_dir", files.Dir()).
		Str("key_column", engine.KeyColumn()).
		Int("batch_size", engine.BatchSize()).
		Str("webhook_notifier", notifier.String()).
		Msg("import pipeline ready")

	return app, nil
}

func (app *application) dialTemporal() (tc.Client, error) {
	c, err := tc.Dial(tc.Options{
		HostPort:  app.config.Temporal.HostPort,
		Namespace: app.config.Temporal.Namespace,
		Logger:    temporal.NewLogAdapter(app.logger),
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal: %w", err)
	}
	return c, nil
}

func (app *application) close() {
	app.pool.Close()
	if err := app.db.Close(); err != nil {
		app.logger.Warn().Err(err).Msg("failed to close database")
	}
}
