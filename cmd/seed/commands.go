package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/comicseed/pkg/comics"
	"github.com/shishobooks/comicseed/pkg/config"
	"github.com/shishobooks/comicseed/pkg/images"
	"github.com/shishobooks/comicseed/pkg/metadatacache"
	"github.com/shishobooks/comicseed/pkg/models"
	"github.com/shishobooks/comicseed/pkg/references"
	"github.com/shishobooks/comicseed/pkg/runlogs"
	"github.com/shishobooks/comicseed/pkg/runs"
	"github.com/shishobooks/comicseed/pkg/seeder"
	"github.com/uptrace/bun"
	"github.com/urfave/cli/v2"
)

const reasonInvalidRecord = "invalid record"

type seedCommand struct {
	cfg *config.Config
	db  *bun.DB
}

func (s *seedCommand) flags(withAtomic bool) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true, Usage: "path to the JSON input file"},
		&cli.IntFlag{Name: "batch-size", Value: s.cfg.BatchSize, Usage: "records per batch (1-1000)"},
		&cli.IntFlag{Name: "concurrency", Value: s.cfg.Concurrency, Usage: "records processed at once within a batch"},
		&cli.BoolFlag{Name: "no-images", Usage: "store image URLs without downloading them"},
	}
	if withAtomic {
		flags = append(flags, &cli.BoolFlag{Name: "atomic", Usage: "write each batch in a transaction and stop at the first failure"})
	}
	return flags
}

func (s *seedCommand) options(c *cli.Context) seeder.Options {
	return seeder.Options{
		BatchSize:      c.Int("batch-size"),
		Concurrency:    c.Int("concurrency"),
		DownloadImages: s.cfg.DownloadImages && !c.Bool("no-images"),
	}
}

func (s *seedCommand) seedComics(c *cli.Context) error {
	ctx := c.Context
	file := c.String("file")

	records, invalid, err := seeder.NewLoader().LoadComicFile(ctx, file)
	if err != nil {
		return err
	}

	tracker, err := s.start(ctx, models.RunTypeComics, file, len(records)+len(invalid), invalid)
	if err != nil {
		return err
	}

	opts := s.options(c)
	opts.Tracker = tracker
	seed := seeder.NewComicSeeder(
		comics.NewService(s.db),
		metadatacache.New(references.NewService(s.db).WithMaxRetries(s.cfg.DatabaseMaxRetries)),
		images.NewService(s.cfg),
		s.cfg.PlaceholderCover,
		opts,
	)

	_, err = seed.Seed(ctx, records)
	return s.finish(tracker, err)
}

func (s *seedCommand) seedChapters(c *cli.Context) error {
	ctx := c.Context
	file := c.String("file")

	records, invalid, err := seeder.NewLoader().LoadChapterFile(ctx, file)
	if err != nil {
		return err
	}

	tracker, err := s.start(ctx, models.RunTypeChapters, file, len(records)+len(invalid), invalid)
	if err != nil {
		return err
	}

	opts := s.options(c)
	opts.Tracker = tracker
	seed := seeder.NewChapterSeeder(s.db, images.NewService(s.cfg), opts)

	if c.Bool("atomic") {
		_, err = seed.SeedAtomic(ctx, records)
	} else {
		_, err = seed.Seed(ctx, records)
	}
	return s.finish(tracker, err)
}

// start creates the run and reports records rejected by the loader as
// skipped.
func (s *seedCommand) start(ctx context.Context, runType, file string, total int, invalid []seeder.Invalid) (*runs.Tracker, error) {
	tracker, err := runs.NewService(s.db).Start(ctx, runType, file, total, runlogs.NewService(s.db))
	if err != nil {
		return nil, err
	}
	tracker.Logger().Info("run started", logger.Data{"total": total, "invalid": len(invalid)})

	for _, inv := range invalid {
		tracker.Logger().Warn("rejected input record", logger.Data{
			"index":  inv.Index,
			"label":  inv.Label,
			"reason": inv.Reason,
		})
		tracker.IncrementSkipped(reasonInvalidRecord)
	}
	return tracker, nil
}

// finish marks the run failed when seeding stopped early and prints the
// summary either way.
func (s *seedCommand) finish(tracker *runs.Tracker, err error) error {
	if err != nil {
		tracker.Fail(err)
	}

	out, merr := json.MarshalIndent(map[string]interface{}{
		"run":     tracker.Run().UUID,
		"summary": tracker.Summary(),
	}, "", "  ")
	if merr == nil {
		fmt.Fprintln(os.Stdout, string(out))
	}
	return err
}

func (s *seedCommand) listRuns(c *cli.Context) error {
	ctx := c.Context
	svc := runs.NewService(s.db)

	if id := c.String("uuid"); id != "" {
		run, err := svc.RetrieveRun(ctx, runs.RetrieveRunOptions{UUID: &id})
		if err != nil {
			return err
		}
		logs, err := runlogs.NewService(s.db).ListRunLogs(ctx, runlogs.ListRunLogsOptions{RunID: run.ID})
		if err != nil {
			return err
		}
		return printJSON(map[string]interface{}{"run": run, "logs": logs})
	}

	limit := c.Int("limit")
	list, err := svc.ListRuns(ctx, runs.ListRunsOptions{Limit: &limit})
	if err != nil {
		return err
	}
	return printJSON(list)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.WithStack(err)
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
