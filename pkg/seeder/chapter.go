package seeder

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/comicseed/pkg/batch"
	"github.com/shishobooks/comicseed/pkg/chapters"
	"github.com/shishobooks/comicseed/pkg/comics"
	"github.com/shishobooks/comicseed/pkg/database"
	"github.com/shishobooks/comicseed/pkg/errcodes"
	"github.com/shishobooks/comicseed/pkg/images"
	"github.com/shishobooks/comicseed/pkg/metadatacache"
	"github.com/shishobooks/comicseed/pkg/models"
	"github.com/uptrace/bun"
	"golang.org/x/sync/errgroup"
)

// chapterStores lets one seeding path run against the database or a
// transaction.
type chapterStores struct {
	comics   *comics.Service
	chapters *chapters.Service
}

// ChapterSeeder upserts chapters keyed by (comic, number).
type ChapterSeeder struct {
	db     *bun.DB
	stores chapterStores
	images images.Materializer
	opts   Options

	parents sync.Map // map[string]*models.Comic, keyed by lower-cased title or "slug:"+slug
}

func NewChapterSeeder(db *bun.DB, materializer images.Materializer, opts Options) *ChapterSeeder {
	return &ChapterSeeder{
		db: db,
		stores: chapterStores{
			comics:   comics.NewService(db),
			chapters: chapters.NewService(db),
		},
		images: materializer,
		opts:   opts,
	}
}

// Seed processes every record in best-effort mode.
func (s *ChapterSeeder) Seed(ctx context.Context, records []*ChapterRecord) (*Summary, error) {
	return seedAll(ctx, s.opts, records, s.SeedItem)
}

// SeedAtomic writes each batch in its own transaction. The first failing
// record rolls its batch back and stops the run; outcomes are only reported
// for committed batches and the failing record.
func (s *ChapterSeeder) SeedAtomic(ctx context.Context, records []*ChapterRecord) (*Summary, error) {
	rep := newReporter(s.opts.Tracker, len(records))

	processor, err := batch.NewProcessor[*ChapterRecord, []Outcome](batch.Options[*ChapterRecord]{
		BatchSize:  s.opts.BatchSize,
		OnProgress: rep.progress,
	})
	if err != nil {
		return nil, err
	}

	_, err = processor.ProcessInTransaction(ctx, records, func(ctx context.Context, recs []*ChapterRecord, _ int) ([]Outcome, error) {
		outcomes := make([]Outcome, 0, len(recs))
		var failed *ChapterRecord

		err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			stores := chapterStores{
				comics:   comics.NewService(tx),
				chapters: chapters.NewService(tx),
			}
			for _, rec := range recs {
				out, err := s.seedItem(ctx, stores, rec)
				if err != nil {
					failed = rec
					return errors.Wrapf(err, "chapter %s", rec.Label())
				}
				outcomes = append(outcomes, out)
			}
			return nil
		})
		if err != nil {
			if failed != nil {
				rep.report(Errored(failed.Label(), err.Error()))
			}
			return nil, err
		}

		for _, out := range outcomes {
			rep.report(out)
		}
		return outcomes, nil
	})
	if err != nil {
		return rep.result(), err
	}

	rep.tracker.Complete()
	return rep.result(), nil
}

func (s *ChapterSeeder) SeedItem(ctx context.Context, rec *ChapterRecord) (Outcome, error) {
	return s.seedItem(ctx, s.stores, rec)
}

func (s *ChapterSeeder) seedItem(ctx context.Context, stores chapterStores, rec *ChapterRecord) (Outcome, error) {
	if rec.Number == nil {
		return Skipped(rec.Label(), "missing chapter number"), nil
	}
	number := float64(*rec.Number)

	parent, err := s.parent(ctx, stores, rec)
	if err != nil {
		return Outcome{}, err
	}
	if parent == nil {
		return Skipped(rec.Label(), ReasonParentNotFound), nil
	}

	title := rec.Title
	if title == "" {
		title = "Chapter " + formatNumber(number)
	}
	publishedAt := firstTime(rec.Dates, publishedAliases)
	pages := s.pages(ctx, parent, number, rec)

	existing, err := stores.chapters.RetrieveChapter(ctx, chapters.RetrieveChapterOptions{ComicID: &parent.ID, Number: &number})
	if err != nil && !errors.Is(err, errcodes.NotFound("Chapter")) {
		return Outcome{}, err
	}

	var out Outcome
	if existing != nil {
		out, err = s.update(ctx, stores, existing, title, pages, rec, publishedAt)
	} else {
		chapter := &models.Chapter{
			ComicID:     parent.ID,
			Number:      number,
			Title:       title,
			Pages:       pages,
			SourceURL:   optionalString(rec.SourceURL),
			PublishedAt: publishedAt,
		}
		err = stores.chapters.CreateChapter(ctx, chapter)
		switch {
		case err == nil:
			out = Created(rec.Label(), chapter.ID)
		case database.IsUniqueViolation(err, "chapters."):
			// Lost a race with a concurrent record for the same chapter.
			existing, err = stores.chapters.RetrieveChapter(ctx, chapters.RetrieveChapterOptions{ComicID: &parent.ID, Number: &number})
			if err != nil {
				return Outcome{}, err
			}
			out, err = s.update(ctx, stores, existing, title, pages, rec, publishedAt)
		}
	}
	if err != nil {
		return Outcome{}, err
	}

	touchedAt := time.Now()
	if publishedAt != nil {
		touchedAt = *publishedAt
	}
	if err := stores.comics.TouchLastChapter(ctx, parent.ID, touchedAt); err != nil {
		return Outcome{}, err
	}
	return out, nil
}

func (s *ChapterSeeder) update(ctx context.Context, stores chapterStores, chapter *models.Chapter, title string, pages []string, rec *ChapterRecord, publishedAt *time.Time) (Outcome, error) {
	columns := []string{"title"}
	chapter.Title = title
	if len(pages) > 0 {
		chapter.Pages = pages
		columns = append(columns, "pages")
	}
	if src := optionalString(rec.SourceURL); src != nil {
		chapter.SourceURL = src
		columns = append(columns, "source_url")
	}
	if publishedAt != nil {
		chapter.PublishedAt = publishedAt
		columns = append(columns, "published_at")
	}

	if err := stores.chapters.UpdateChapter(ctx, chapter, chapters.UpdateChapterOptions{Columns: columns}); err != nil {
		return Outcome{}, err
	}
	return Updated(rec.Label(), chapter.ID), nil
}

type parentLookup struct {
	key  string
	opts comics.RetrieveComicOptions
}

// parent resolves the record's comic by title, falling back to slug. Found
// comics are remembered for the rest of the run.
func (s *ChapterSeeder) parent(ctx context.Context, stores chapterStores, rec *ChapterRecord) (*models.Comic, error) {
	var lookups []parentLookup
	if title := metadatacache.NormalizeName(rec.ComicTitle); title != "" {
		lookups = append(lookups, parentLookup{strings.ToLower(title), comics.RetrieveComicOptions{Title: &title}})
	}
	if rec.ComicSlug != "" {
		slug := rec.ComicSlug
		lookups = append(lookups, parentLookup{"slug:" + slug, comics.RetrieveComicOptions{Slug: &slug}})
	}

	for _, l := range lookups {
		if c, ok := s.parents.Load(l.key); ok {
			return c.(*models.Comic), nil
		}
		comic, err := stores.comics.RetrieveComic(ctx, l.opts)
		if err != nil {
			if errors.Is(err, errcodes.NotFound("Comic")) {
				continue
			}
			return nil, err
		}
		s.parents.Store(l.key, comic)
		return comic, nil
	}
	return nil, nil
}

// pages materializes page images when enabled. Pages that fail keep their
// source URL.
func (s *ChapterSeeder) pages(ctx context.Context, parent *models.Comic, number float64, rec *ChapterRecord) []string {
	sources := []string(rec.Pages)
	if len(sources) == 0 {
		sources = rec.ImageURLs
	}
	pages := make([]string, 0, len(sources))
	for _, src := range sources {
		if src = strings.TrimSpace(src); src != "" {
			pages = append(pages, src)
		}
	}
	if !s.opts.DownloadImages || s.images == nil || len(pages) == 0 {
		return pages
	}

	namespace := "chapters/" + parent.Slug + "/" + formatNumber(number)
	g := errgroup.Group{}
	g.SetLimit(max(s.opts.Concurrency, 1))
	for i, src := range pages {
		i, src := i, src
		g.Go(func() error {
			if path, ok := s.images.Materialize(ctx, src, namespace); ok {
				pages[i] = path
			}
			return nil
		})
	}
	_ = g.Wait()
	return pages
}
