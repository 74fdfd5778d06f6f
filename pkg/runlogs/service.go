package runlogs

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/comicseed/pkg/models"
	"github.com/uptrace/bun"
)

type ListRunLogsOptions struct {
	RunID   int
	AfterID *int
	Levels  []string
}

type Service struct {
	db bun.IDB
}

func NewService(db bun.IDB) *Service {
	return &Service{db}
}

func (svc *Service) CreateRunLog(ctx context.Context, log *models.RunLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	_, err := svc.db.
		NewInsert().
		Model(log).
		Returning("*").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) ListRunLogs(ctx context.Context, opts ListRunLogsOptions) ([]*models.RunLog, error) {
	logs := []*models.RunLog{}

	q := svc.db.
		NewSelect().
		Model(&logs).
		Where("rl.run_id = ?", opts.RunID).
		Order("rl.id ASC")

	if opts.AfterID != nil {
		q = q.Where("rl.id > ?", *opts.AfterID)
	}
	if len(opts.Levels) > 0 {
		q = q.Where("rl.level IN (?)", bun.In(opts.Levels))
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return logs, nil
}
