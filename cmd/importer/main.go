package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configFlag := &cli.StringFlag{
		Name:  "config",
		Usage: "directory containing config.yaml",
	}

	app := &cli.Command{
		Name:  "catalog-importer",
		Usage: "CSV product catalog import service",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start the HTTP API",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "skip-migrations",
						Usage: "do not apply pending migrations on startup",
					},
				},
				Action: serveAction,
			},
			{
				Name:   "worker",
				Usage:  "run a Temporal worker that executes queued imports",
				Action: workerAction,
			},
			{
				Name:  "migrate",
				Usage: "database schema management",
				Commands: []*cli.Command{
					{
						Name:   "up",
						Usage:  "apply pending migrations",
						Action: migrateUpAction,
					},
					{
						Name:   "status",
						Usage:  "show applied migrations",
						Action: migrateStatusAction,
					},
				},
			},
			{
				Name:      "import",
				Usage:     "import a local CSV file and wait for it to finish",
				ArgsUsage: "<file.csv>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "job-id",
						Usage: "job id to use (generated when empty)",
					},
				},
				Action: importAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		logger := bootstrapLogger()
		logger.Fatal().Err(err).Msg("command failed")
	}
}

func bootstrapLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}
