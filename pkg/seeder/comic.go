package seeder

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/comicseed/pkg/comics"
	"github.com/shishobooks/comicseed/pkg/database"
	"github.com/shishobooks/comicseed/pkg/errcodes"
	"github.com/shishobooks/comicseed/pkg/images"
	"github.com/shishobooks/comicseed/pkg/metadatacache"
	"github.com/shishobooks/comicseed/pkg/models"
)

const (
	comicNamespace = "comics"
	maxSlugRetries = 3
)

// ComicSeeder upserts comics keyed by case-insensitive title.
type ComicSeeder struct {
	comics      *comics.Service
	resolver    *metadatacache.Cache
	images      images.Materializer
	placeholder string
	opts        Options
}

func NewComicSeeder(comicService *comics.Service, resolver *metadatacache.Cache, materializer images.Materializer, placeholder string, opts Options) *ComicSeeder {
	return &ComicSeeder{
		comics:      comicService,
		resolver:    resolver,
		images:      materializer,
		placeholder: placeholder,
		opts:        opts,
	}
}

// Seed processes every record in best-effort mode.
func (s *ComicSeeder) Seed(ctx context.Context, records []*ComicRecord) (*Summary, error) {
	return seedAll(ctx, s.opts, records, s.SeedItem)
}

// comicFields is a record after normalization and reference resolution.
type comicFields struct {
	title       string
	altTitles   *string
	description *string
	status      string
	categoryID  *int
	creatorIDs  []int
	tagIDs      []int
	imageSource string
	sourceURL   *string
	publishedAt *time.Time
	updatedAt   *time.Time
}

// SeedItem turns one record into one outcome. Unexpected store and resolver
// failures are returned as errors.
func (s *ComicSeeder) SeedItem(ctx context.Context, rec *ComicRecord) (Outcome, error) {
	title := metadatacache.NormalizeName(rec.Title)
	if title == "" {
		return Skipped(rec.Label(), "missing title"), nil
	}

	existing, err := s.retrieveByTitle(ctx, title)
	if err != nil {
		return Outcome{}, err
	}

	fields, err := s.resolve(ctx, rec, title)
	if err != nil {
		return Outcome{}, err
	}

	if existing != nil {
		return s.update(ctx, existing, fields)
	}
	return s.create(ctx, rec, fields)
}

func (s *ComicSeeder) retrieveByTitle(ctx context.Context, title string) (*models.Comic, error) {
	comic, err := s.comics.RetrieveComic(ctx, comics.RetrieveComicOptions{Title: &title})
	if err != nil {
		if errors.Is(err, errcodes.NotFound("Comic")) {
			return nil, nil
		}
		return nil, err
	}
	return comic, nil
}

func (s *ComicSeeder) resolve(ctx context.Context, rec *ComicRecord, title string) (*comicFields, error) {
	f := &comicFields{
		title:       title,
		description: NormalizeDescription(rec.Description),
		status:      NormalizeStatus(rec.Status),
		imageSource: firstNonEmpty(first(rec.ImageURLs), first(rec.Images), rec.Cover),
		sourceURL:   optionalString(rec.SourceURL),
		publishedAt: firstTime(rec.Dates, publishedAliases),
		updatedAt:   firstTime(rec.Dates, updatedAliases),
	}
	if alts := referenceNames(rec.AltTitles...); len(alts) > 0 {
		joined := strings.Join(alts, "; ")
		f.altTitles = &joined
	}

	if !IsSentinelName(rec.Category) {
		id, err := s.resolver.ResolveCategory(ctx, rec.Category)
		if err != nil {
			return nil, err
		}
		f.categoryID = &id
	}

	creators := append([]string{rec.Author, rec.Artist}, rec.Creators...)
	for _, name := range referenceNames(creators...) {
		id, err := s.resolver.ResolveCreator(ctx, name)
		if err != nil {
			return nil, err
		}
		f.creatorIDs = append(f.creatorIDs, id)
	}

	for _, name := range referenceNames(rec.Tags...) {
		id, err := s.resolver.ResolveTag(ctx, name)
		if err != nil {
			return nil, err
		}
		f.tagIDs = append(f.tagIDs, id)
	}

	return f, nil
}

// cover picks the stored cover path. A failed or missing image keeps
// fallback.
func (s *ComicSeeder) cover(ctx context.Context, source string, fallback *string) *string {
	if source == "" {
		return fallback
	}
	if !s.opts.DownloadImages || s.images == nil {
		return &source
	}
	if path, ok := s.images.Materialize(ctx, source, comicNamespace); ok {
		return &path
	}
	return fallback
}

func (s *ComicSeeder) create(ctx context.Context, rec *ComicRecord, f *comicFields) (Outcome, error) {
	var placeholder *string
	if s.placeholder != "" {
		placeholder = &s.placeholder
	}

	base := Slugify(firstNonEmpty(rec.Slug, f.title))

	comic := &models.Comic{
		Title:           f.title,
		AltTitles:       f.altTitles,
		Description:     f.description,
		Status:          f.status,
		CategoryID:      f.categoryID,
		CoverImagePath:  s.cover(ctx, f.imageSource, placeholder),
		SourceURL:       f.sourceURL,
		PublishedAt:     f.publishedAt,
		SourceUpdatedAt: f.updatedAt,
	}

	for attempt := 0; ; attempt++ {
		slug, err := s.uniqueSlug(ctx, base)
		if err != nil {
			return Outcome{}, err
		}
		comic.Slug = slug

		err = s.comics.CreateComic(ctx, comic)
		if err == nil {
			break
		}
		switch {
		case database.IsUniqueViolation(err, "comics.title"):
			// A concurrent record with the same title won the insert.
			existing, rerr := s.retrieveByTitle(ctx, f.title)
			if rerr != nil {
				return Outcome{}, rerr
			}
			if existing == nil {
				return Outcome{}, errors.Wrap(err, "comic vanished after title conflict")
			}
			return s.update(ctx, existing, f)
		case database.IsUniqueViolation(err, "comics.slug") && attempt < maxSlugRetries:
			continue
		default:
			return Outcome{}, err
		}
	}

	if err := s.link(ctx, comic.ID, f); err != nil {
		return Outcome{}, err
	}
	return Created(comic.Title, comic.ID), nil
}

func (s *ComicSeeder) update(ctx context.Context, comic *models.Comic, f *comicFields) (Outcome, error) {
	columns := []string{"title", "status", "cover_image_path"}
	comic.Title = f.title
	comic.Status = f.status
	comic.CoverImagePath = s.cover(ctx, f.imageSource, comic.CoverImagePath)

	if f.altTitles != nil {
		comic.AltTitles = f.altTitles
		columns = append(columns, "alt_titles")
	}
	if f.description != nil {
		comic.Description = f.description
		columns = append(columns, "description")
	}
	if f.categoryID != nil {
		comic.CategoryID = f.categoryID
		columns = append(columns, "category_id")
	}
	if f.sourceURL != nil {
		comic.SourceURL = f.sourceURL
		columns = append(columns, "source_url")
	}
	if f.publishedAt != nil {
		comic.PublishedAt = f.publishedAt
		columns = append(columns, "published_at")
	}
	if f.updatedAt != nil {
		comic.SourceUpdatedAt = f.updatedAt
		columns = append(columns, "source_updated_at")
	}

	if err := s.comics.UpdateComic(ctx, comic, comics.UpdateComicOptions{Columns: columns}); err != nil {
		return Outcome{}, err
	}
	if err := s.link(ctx, comic.ID, f); err != nil {
		return Outcome{}, err
	}
	return Updated(comic.Title, comic.ID), nil
}

// link merges creator and tag associations. Existing links are kept.
func (s *ComicSeeder) link(ctx context.Context, comicID int, f *comicFields) error {
	if err := s.comics.AddCreators(ctx, comicID, f.creatorIDs); err != nil {
		return err
	}
	return s.comics.AddTags(ctx, comicID, f.tagIDs)
}

// uniqueSlug appends -2, -3, ... to base until no comic uses it.
func (s *ComicSeeder) uniqueSlug(ctx context.Context, base string) (string, error) {
	candidate := base
	for n := 2; ; n++ {
		exists, err := s.comics.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = base + "-" + strconv.Itoa(n)
	}
}

func first(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
