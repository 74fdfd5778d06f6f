package seeder

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/comicseed/pkg/batch"
)

// Options configures a seeding run.
type Options struct {
	BatchSize      int
	Concurrency    int
	DownloadImages bool
	Tracker        Tracker
}

type labeled interface {
	Label() string
}

// seedAll runs seedItem over records in best-effort mode. Item errors and
// panics become Errored outcomes; only cancellation stops the run, in which
// case the tracker is left for the caller to finish.
func seedAll[T labeled](ctx context.Context, opts Options, records []T, seedItem func(context.Context, T) (Outcome, error)) (*Summary, error) {
	rep := newReporter(opts.Tracker, len(records))
	log := logger.FromContext(ctx)

	processor, err := batch.NewProcessor[T, Outcome](batch.Options[T]{
		BatchSize:   opts.BatchSize,
		Concurrency: opts.Concurrency,
		OnError: func(err error, item T) {
			log.Err(err).Warn("record failed", logger.Data{"label": item.Label()})
			rep.report(Errored(item.Label(), err.Error()))
		},
		OnProgress: rep.progress,
	})
	if err != nil {
		return nil, err
	}

	_, err = processor.Process(ctx, records, func(ctx context.Context, item T) (Outcome, error) {
		out, err := seedItem(ctx, item)
		if err != nil {
			return out, err
		}
		rep.report(out)
		return out, nil
	})
	if err != nil {
		return rep.result(), errors.WithStack(err)
	}

	rep.tracker.Complete()
	return rep.result(), nil
}
