package main

import (
	"context"
	"os"

	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/shishobooks/comicseed/pkg/config"
	"github.com/shishobooks/comicseed/pkg/database"
	"github.com/shishobooks/comicseed/pkg/migrations"
	"github.com/shishobooks/comicseed/pkg/version"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(log.WithContext(context.Background()))
	defer cancel()

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID != 0 {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	// The first signal cancels the run; in-flight items finish and the run is
	// recorded as failed.
	graceful := signals.Setup()
	go func() {
		<-graceful
		log.Info("received shutdown signal, cancelling run")
		cancel()
	}()

	s := &seedCommand{cfg: cfg, db: db}
	app := &cli.App{
		Name:    "seed",
		Usage:   "bulk ingest scraped comic and chapter records",
		Version: version.Version,
		Commands: []*cli.Command{
			{
				Name:   "comics",
				Usage:  "seed comics from a JSON file",
				Flags:  s.flags(false),
				Action: s.seedComics,
			},
			{
				Name:   "chapters",
				Usage:  "seed chapters from a JSON file",
				Flags:  s.flags(true),
				Action: s.seedChapters,
			},
			{
				Name:  "runs",
				Usage: "list recent ingest runs, or show one run's logs",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "number of runs to list"},
					&cli.StringFlag{Name: "uuid", Usage: "show warn and error logs for this run"},
				},
				Action: s.listRuns,
			},
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Err(err).Error("seed failed")
		db.Close()
		os.Exit(1)
	}
}
