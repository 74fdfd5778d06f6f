package runs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/shishobooks/comicseed/pkg/models"
	"github.com/shishobooks/comicseed/pkg/runlogs"
)

// Summary is a snapshot of a run's outcome counts.
type Summary struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Errored   int `json:"errored"`
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// Tracker counts outcomes for one run and persists them to ingest_runs.
// Increment methods are safe for concurrent use.
type Tracker struct {
	ctx     context.Context
	service *Service
	log     *runlogs.RunLogger

	mu  sync.Mutex // guards run
	run *models.Run

	created   atomic.Int64
	updated   atomic.Int64
	skipped   atomic.Int64
	errored   atomic.Int64
	processed atomic.Int64
	done      atomic.Bool
}

// Start creates the run row and returns a tracker bound to it.
func (svc *Service) Start(ctx context.Context, runType, source string, total int, logs *runlogs.Service) (*Tracker, error) {
	run := &models.Run{
		Type:   runType,
		Status: models.RunStatusInProgress,
		Total:  total,
	}
	if source != "" {
		run.Source = &source
	}
	if err := svc.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	// Counts must still land after the run's context is cancelled.
	bg := context.WithoutCancel(ctx)
	log := logger.FromContext(ctx).Data(logger.Data{"run_uuid": run.UUID, "run_type": runType})
	return &Tracker{
		ctx:     bg,
		service: svc,
		log:     logs.NewRunLogger(bg, run.ID, log),
		run:     run,
	}, nil
}

func (t *Tracker) Run() *models.Run {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.run
}

func (t *Tracker) Logger() *runlogs.RunLogger {
	return t.log
}

func (t *Tracker) IncrementCreated(label string) {
	t.created.Add(1)
	t.log.Info("created", logger.Data{"label": label})
}

func (t *Tracker) IncrementUpdated(label string) {
	t.updated.Add(1)
	t.log.Info("updated", logger.Data{"label": label})
}

func (t *Tracker) IncrementSkipped(reason string) {
	t.skipped.Add(1)
	t.log.Warn("skipped", logger.Data{"reason": reason})
}

func (t *Tracker) IncrementError(reason string) {
	t.errored.Add(1)
	t.log.Error("errored", nil, logger.Data{"reason": reason})
}

// IncrementErrorFor is IncrementError with the failing record's label kept
// alongside the persisted log line.
func (t *Tracker) IncrementErrorFor(label, reason string) {
	t.errored.Add(1)
	t.log.Error("errored", nil, logger.Data{"reason": reason, "label": label})
}

// ReportProgress persists the processed count. The run total is fixed at
// Start.
func (t *Tracker) ReportProgress(processed, _ int) {
	t.processed.Store(int64(processed))

	t.mu.Lock()
	defer t.mu.Unlock()
	t.run.Processed = processed
	err := t.service.UpdateRun(t.ctx, t.run, UpdateRunOptions{Columns: []string{"processed"}})
	if err != nil {
		t.log.Error("failed to persist run progress", err, nil)
	}
}

func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	total := t.run.Total
	t.mu.Unlock()
	return Summary{
		Created:   int(t.created.Load()),
		Updated:   int(t.updated.Load()),
		Skipped:   int(t.skipped.Load()),
		Errored:   int(t.errored.Load()),
		Processed: int(t.processed.Load()),
		Total:     total,
	}
}

// Complete persists final counts and marks the run completed. Calls after the
// run has finished are no-ops.
func (t *Tracker) Complete() {
	t.finish(models.RunStatusCompleted, nil)
}

// Fail persists final counts and marks the run failed with err.
func (t *Tracker) Fail(err error) {
	t.finish(models.RunStatusFailed, err)
}

func (t *Tracker) finish(status string, cause error) {
	if !t.done.CompareAndSwap(false, true) {
		return
	}
	s := t.Summary()
	s.Processed = s.Created + s.Updated + s.Skipped + s.Errored
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.run.Status = status
	t.run.Created = s.Created
	t.run.Updated = s.Updated
	t.run.Skipped = s.Skipped
	t.run.Errored = s.Errored
	t.run.Processed = s.Processed
	t.run.FinishedAt = &now
	columns := []string{"status", "created", "updated", "skipped", "errored", "processed", "finished_at"}
	if cause != nil {
		msg := cause.Error()
		t.run.Error = &msg
		columns = append(columns, "error")
	}

	if err := t.service.UpdateRun(t.ctx, t.run, UpdateRunOptions{Columns: columns}); err != nil {
		t.log.Error("failed to persist run result", err, nil)
		return
	}

	t.log.Info("run finished", logger.Data{
		"status":    status,
		"created":   s.Created,
		"updated":   s.Updated,
		"skipped":   s.Skipped,
		"errored":   s.Errored,
		"processed": s.Processed,
	})
}
