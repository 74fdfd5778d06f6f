package comics

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/comicseed/pkg/errcodes"
	"github.com/shishobooks/comicseed/pkg/models"
	"github.com/uptrace/bun"
)

type RetrieveComicOptions struct {
	ID    *int
	Title *string
	Slug  *string
}

type ListComicsOptions struct {
	Limit      *int
	Offset     *int
	CategoryID *int
	Status     *string

	includeTotal bool
}

type UpdateComicOptions struct {
	Columns []string
}

type Service struct {
	db bun.IDB
}

func NewService(db bun.IDB) *Service {
	return &Service{db}
}

func (svc *Service) CreateComic(ctx context.Context, comic *models.Comic) error {
	now := time.Now()
	if comic.CreatedAt.IsZero() {
		comic.CreatedAt = now
	}
	comic.UpdatedAt = comic.CreatedAt

	_, err := svc.db.
		NewInsert().
		Model(comic).
		Returning("*").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) RetrieveComic(ctx context.Context, opts RetrieveComicOptions) (*models.Comic, error) {
	comic := &models.Comic{}

	q := svc.db.
		NewSelect().
		Model(comic).
		Relation("Category")

	switch {
	case opts.ID != nil:
		q = q.Where("c.id = ?", *opts.ID)
	case opts.Title != nil:
		q = q.Where("c.title = ? COLLATE NOCASE", *opts.Title)
	case opts.Slug != nil:
		q = q.Where("c.slug = ?", *opts.Slug)
	default:
		return nil, errors.New("retrieve comic requires an id, title or slug")
	}

	err := q.Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Comic")
		}
		return nil, errors.WithStack(err)
	}

	return comic, nil
}

func (svc *Service) ListComics(ctx context.Context, opts ListComicsOptions) ([]*models.Comic, error) {
	c, _, err := svc.listComicsWithTotal(ctx, opts)
	return c, errors.WithStack(err)
}

func (svc *Service) ListComicsWithTotal(ctx context.Context, opts ListComicsOptions) ([]*models.Comic, int, error) {
	opts.includeTotal = true
	return svc.listComicsWithTotal(ctx, opts)
}

func (svc *Service) listComicsWithTotal(ctx context.Context, opts ListComicsOptions) ([]*models.Comic, int, error) {
	comics := []*models.Comic{}
	var total int
	var err error

	q := svc.db.
		NewSelect().
		Model(&comics).
		Relation("Category").
		Order("c.title ASC")

	if opts.CategoryID != nil {
		q = q.Where("c.category_id = ?", *opts.CategoryID)
	}
	if opts.Status != nil {
		q = q.Where("c.status = ?", *opts.Status)
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

	return comics, total, nil
}

func (svc *Service) UpdateComic(ctx context.Context, comic *models.Comic, opts UpdateComicOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	comic.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.
		NewUpdate().
		Model(comic).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}

// SlugExists reports whether any comic already uses slug.
func (svc *Service) SlugExists(ctx context.Context, slug string) (bool, error) {
	exists, err := svc.db.
		NewSelect().
		Model((*models.Comic)(nil)).
		Where("c.slug = ?", slug).
		Exists(ctx)
	return exists, errors.WithStack(err)
}

// AddCreators links creators to a comic. Links that already exist are left
// alone.
func (svc *Service) AddCreators(ctx context.Context, comicID int, creatorIDs []int) error {
	if len(creatorIDs) == 0 {
		return nil
	}
	rows := make([]*models.ComicCreator, 0, len(creatorIDs))
	for _, id := range uniqueInts(creatorIDs) {
		rows = append(rows, &models.ComicCreator{ComicID: comicID, CreatorID: id})
	}
	_, err := svc.db.
		NewInsert().
		Model(&rows).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return errors.WithStack(err)
}

// AddTags links tags to a comic. Links that already exist are left alone.
func (svc *Service) AddTags(ctx context.Context, comicID int, tagIDs []int) error {
	if len(tagIDs) == 0 {
		return nil
	}
	rows := make([]*models.ComicTag, 0, len(tagIDs))
	for _, id := range uniqueInts(tagIDs) {
		rows = append(rows, &models.ComicTag{ComicID: comicID, TagID: id})
	}
	_, err := svc.db.
		NewInsert().
		Model(&rows).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) ListCreatorIDs(ctx context.Context, comicID int) ([]int, error) {
	var ids []int
	err := svc.db.
		NewSelect().
		Model((*models.ComicCreator)(nil)).
		Column("creator_id").
		Where("comic_id = ?", comicID).
		Order("creator_id ASC").
		Scan(ctx, &ids)
	return ids, errors.WithStack(err)
}

func (svc *Service) ListTagIDs(ctx context.Context, comicID int) ([]int, error) {
	var ids []int
	err := svc.db.
		NewSelect().
		Model((*models.ComicTag)(nil)).
		Column("tag_id").
		Where("comic_id = ?", comicID).
		Order("tag_id ASC").
		Scan(ctx, &ids)
	return ids, errors.WithStack(err)
}

// TouchLastChapter moves last_chapter_at forward to at. Older timestamps
// never overwrite newer ones.
func (svc *Service) TouchLastChapter(ctx context.Context, comicID int, at time.Time) error {
	_, err := svc.db.
		NewUpdate().
		Model((*models.Comic)(nil)).
		Set("last_chapter_at = ?", at).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", comicID).
		Where("last_chapter_at IS NULL OR last_chapter_at < ?", at).
		Exec(ctx)
	return errors.WithStack(err)
}

func uniqueInts(in []int) []int {
	seen := make(map[int]struct{}, len(in))
	out := make([]int, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
