package chapters

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/comicseed/pkg/errcodes"
	"github.com/shishobooks/comicseed/pkg/models"
	"github.com/uptrace/bun"
)

type RetrieveChapterOptions struct {
	ID      *int
	ComicID *int
	Number  *float64
}

type ListChaptersOptions struct {
	ComicID *int
	Limit   *int
	Offset  *int
}

type UpdateChapterOptions struct {
	Columns []string
}

type Service struct {
	db bun.IDB
}

func NewService(db bun.IDB) *Service {
	return &Service{db: db}
}

func (svc *Service) CreateChapter(ctx context.Context, chapter *models.Chapter) error {
	now := time.Now()
	if chapter.CreatedAt.IsZero() {
		chapter.CreatedAt = now
	}
	chapter.UpdatedAt = chapter.CreatedAt
	chapter.PageCount = len(chapter.Pages)
	if chapter.Pages == nil {
		chapter.Pages = []string{}
	}

	_, err := svc.db.
		NewInsert().
		Model(chapter).
		Returning("*").
		Exec(ctx)
	return errors.WithStack(err)
}

// RetrieveChapter looks a chapter up by id, or by its natural key of comic id
// and chapter number.
func (svc *Service) RetrieveChapter(ctx context.Context, opts RetrieveChapterOptions) (*models.Chapter, error) {
	chapter := &models.Chapter{}

	q := svc.db.
		NewSelect().
		Model(chapter)

	switch {
	case opts.ID != nil:
		q = q.Where("ch.id = ?", *opts.ID)
	case opts.ComicID != nil && opts.Number != nil:
		q = q.Where("ch.comic_id = ? AND ch.number = ?", *opts.ComicID, *opts.Number)
	default:
		return nil, errors.New("retrieve chapter requires an id, or a comic id and number")
	}

	err := q.Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Chapter")
		}
		return nil, errors.WithStack(err)
	}

	return chapter, nil
}

func (svc *Service) ListChapters(ctx context.Context, opts ListChaptersOptions) ([]*models.Chapter, error) {
	chapters := []*models.Chapter{}

	q := svc.db.
		NewSelect().
		Model(&chapters).
		Order("ch.comic_id ASC", "ch.number ASC")

	if opts.ComicID != nil {
		q = q.Where("ch.comic_id = ?", *opts.ComicID)
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	err := q.Scan(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return chapters, nil
}

func (svc *Service) UpdateChapter(ctx context.Context, chapter *models.Chapter, opts UpdateChapterOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	chapter.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")
	for _, col := range opts.Columns {
		if col == "pages" {
			chapter.PageCount = len(chapter.Pages)
			columns = append(columns, "page_count")
			break
		}
	}

	_, err := svc.db.
		NewUpdate().
		Model(chapter).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}
