package migration

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

// Embed SQL files from the local migrations folder
//
//go:embed migrations/*.sql
var embeddedMigrations embed.FS

const versionTable = "catalog_goose_db_version"

// RunMigrations applies every pending migration to the database at dbURL.
func RunMigrations(ctx context.Context, dbURL string, logger zerolog.Logger) error {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	return Up(ctx, db, logger)
}

// Up applies pending migrations on an existing connection.
func Up(ctx context.Context, db *sql.DB, logger zerolog.Logger) error {
	goose.SetBaseFS(embeddedMigrations)
	goose.SetTableName(versionTable)
	goose.SetLogger(NewGooseAdapter(logger))

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	logger.Info().Msg("Migrations completed successfully")
	return nil
}

// Status logs the applied state of every migration.
func Status(ctx context.Context, db *sql.DB, logger zerolog.Logger) error {
	goose.SetBaseFS(embeddedMigrations)
	goose.SetTableName(versionTable)
	goose.SetLogger(NewGooseAdapter(logger))

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.StatusContext(ctx, db, "migrations")
}

// GooseAdapter routes goose output into zerolog.
type GooseAdapter struct {
	logger zerolog.Logger
}

func NewGooseAdapter(logger zerolog.Logger) *GooseAdapter {
	return &GooseAdapter{logger: logger.With().Str("component", "goose").Logger()}
}

func (g *GooseAdapter) Fatalf(format string, v ...interface{}) {
	g.logger.Fatal().Msgf(format, v...)
}

func (g *GooseAdapter) Printf(format string, v ...interface{}) {
	g.logger.Info().Msgf(format, v...)
}
