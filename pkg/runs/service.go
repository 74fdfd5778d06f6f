package runs

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shishobooks/comicseed/pkg/errcodes"
	"github.com/shishobooks/comicseed/pkg/models"
	"github.com/uptrace/bun"
)

type RetrieveRunOptions struct {
	ID   *int
	UUID *string
}

type ListRunsOptions struct {
	Limit    *int
	Offset   *int
	Type     *string
	Statuses []string

	includeTotal bool
}

type UpdateRunOptions struct {
	Columns []string
}

type Service struct {
	db bun.IDB
}

func NewService(db bun.IDB) *Service {
	return &Service{db}
}

func (svc *Service) CreateRun(ctx context.Context, run *models.Run) error {
	now := time.Now()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = run.CreatedAt
	if run.UUID == "" {
		run.UUID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.RunStatusInProgress
	}

	_, err := svc.db.
		NewInsert().
		Model(run).
		Returning("*").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) RetrieveRun(ctx context.Context, opts RetrieveRunOptions) (*models.Run, error) {
	run := &models.Run{}

	q := svc.db.
		NewSelect().
		Model(run)

	if opts.ID != nil {
		q = q.Where("r.id = ?", *opts.ID)
	}
	if opts.UUID != nil {
		q = q.Where("r.uuid = ?", *opts.UUID)
	}

	err := q.Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Run")
		}
		return nil, errors.WithStack(err)
	}

	return run, nil
}

func (svc *Service) ListRuns(ctx context.Context, opts ListRunsOptions) ([]*models.Run, error) {
	r, _, err := svc.listRunsWithTotal(ctx, opts)
	return r, errors.WithStack(err)
}

func (svc *Service) ListRunsWithTotal(ctx context.Context, opts ListRunsOptions) ([]*models.Run, int, error) {
	opts.includeTotal = true
	return svc.listRunsWithTotal(ctx, opts)
}

func (svc *Service) listRunsWithTotal(ctx context.Context, opts ListRunsOptions) ([]*models.Run, int, error) {
	runs := []*models.Run{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&runs).
		Order("r.id DESC")

	if opts.Type != nil {
		q = q.Where("r.type = ?", *opts.Type)
	}
	if len(opts.Statuses) > 0 {
		q = q.Where("r.status IN (?)", bun.In(opts.Statuses))
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return runs, total, nil
}

func (svc *Service) UpdateRun(ctx context.Context, run *models.Run, opts UpdateRunOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	run.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(run).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}
