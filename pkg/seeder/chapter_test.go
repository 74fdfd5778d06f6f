package seeder

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shishobooks/comicseed/pkg/chapters"
	"github.com/shishobooks/comicseed/pkg/comics"
	"github.com/shishobooks/comicseed/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func num(f float64) *Number {
	n := Number(f)
	return &n
}

func TestChapterSeeder_MissingParentIsSkipped(t *testing.T) {
	db := testutils.NewDB(t)
	tracker := &recordingTracker{}
	seeder := NewChapterSeeder(db, nil, Options{Tracker: tracker})

	summary, err := seeder.Seed(context.Background(), []*ChapterRecord{
		{ComicTitle: "Nobody Wrote This", Number: num(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Errored)
	assert.Equal(t, []string{ReasonParentNotFound}, tracker.skipped)
	assert.Empty(t, tracker.errored)
	assert.Equal(t, 0, testutils.CountRows(t, db, "chapters"))
}

func TestChapterSeeder_CreateThenUpdate(t *testing.T) {
	db := testutils.NewDB(t)
	ctx := context.Background()
	comic := testutils.CreateComic(t, db, "Jujutsu Kaisen", "jujutsu-kaisen")

	seeder := NewChapterSeeder(db, nil, Options{})
	summary, err := seeder.Seed(ctx, []*ChapterRecord{
		{
			ComicTitle: "jujutsu kaisen",
			Number:     num(12.5),
			Pages:      StringList{"https://cdn.example.com/1.jpg", "https://cdn.example.com/2.jpg"},
			Dates:      map[string]interface{}{"published_at": "2021-06-01"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)

	number := 12.5
	chapter, err := chapters.NewService(db).RetrieveChapter(ctx, chapters.RetrieveChapterOptions{ComicID: &comic.ID, Number: &number})
	require.NoError(t, err)
	assert.Equal(t, "Chapter 12.5", chapter.Title)
	assert.Equal(t, 2, chapter.PageCount)

	parent, err := comics.NewService(db).RetrieveComic(ctx, comics.RetrieveComicOptions{ID: &comic.ID})
	require.NoError(t, err)
	require.NotNil(t, parent.LastChapterAt)
	assert.True(t, parent.LastChapterAt.Equal(time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)))

	summary, err = NewChapterSeeder(db, nil, Options{}).Seed(ctx, []*ChapterRecord{
		{ComicSlug: "jujutsu-kaisen", Number: num(12.5), Title: "Extra", ImageURLs: StringList{"https://cdn.example.com/3.jpg"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, testutils.CountRows(t, db, "chapters"))

	chapter, err = chapters.NewService(db).RetrieveChapter(ctx, chapters.RetrieveChapterOptions{ID: &chapter.ID})
	require.NoError(t, err)
	assert.Equal(t, "Extra", chapter.Title)
	assert.Equal(t, []string{"https://cdn.example.com/3.jpg"}, chapter.Pages)
}

func TestChapterSeeder_MaterializesPages(t *testing.T) {
	db := testutils.NewDB(t)
	ctx := context.Background()
	comic := testutils.CreateComic(t, db, "Hunter x Hunter", "hunter-x-hunter")
	materializer := &fakeMaterializer{}

	seeder := NewChapterSeeder(db, materializer, Options{DownloadImages: true, Concurrency: 2})
	_, err := seeder.Seed(ctx, []*ChapterRecord{{
		ComicTitle: "Hunter x Hunter",
		Number:     num(390),
		Pages:      StringList{"https://cdn.example.com/a.jpg", "https://cdn.example.com/broken.jpg", "https://cdn.example.com/c.jpg"},
	}})
	require.NoError(t, err)

	list, err := chapters.NewService(db).ListChapters(ctx, chapters.ListChaptersOptions{ComicID: &comic.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{
		"/assets/chapters/hunter-x-hunter/390/a.jpg",
		"https://cdn.example.com/broken.jpg",
		"/assets/chapters/hunter-x-hunter/390/c.jpg",
	}, list[0].Pages)
}

func TestChapterSeeder_SeedAtomicRollsBackFailingBatch(t *testing.T) {
	db := testutils.NewDB(t)
	testutils.CreateComic(t, db, "Vinland Saga", "vinland-saga")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	materializer := &fakeMaterializer{onSource: func(source string) {
		// Simulates the store failing mid-batch.
		if strings.HasSuffix(source, "fail.jpg") {
			cancel()
		}
	}}
	tracker := &recordingTracker{}
	seeder := NewChapterSeeder(db, materializer, Options{BatchSize: 2, DownloadImages: true, Tracker: tracker})

	records := []*ChapterRecord{
		{ComicTitle: "Vinland Saga", Number: num(1)},
		{ComicTitle: "Vinland Saga", Number: num(2)},
		{ComicTitle: "Vinland Saga", Number: num(3), Pages: StringList{"https://cdn.example.com/fail.jpg"}},
		{ComicTitle: "Vinland Saga", Number: num(4)},
		{ComicTitle: "Vinland Saga", Number: num(5)},
	}

	summary, err := seeder.SeedAtomic(ctx, records)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 1 failed")

	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 1, summary.Errored)
	assert.Equal(t, 0, tracker.completed)
	require.Len(t, tracker.errored, 1)
	assert.Equal(t, 2, testutils.CountRows(t, db, "chapters"))
	assert.Equal(t, [][2]int{{2, 5}}, tracker.progress)
}

func TestChapterSeeder_SeedAtomicCommitsEveryBatch(t *testing.T) {
	db := testutils.NewDB(t)
	testutils.CreateComic(t, db, "Mob Psycho 100", "mob-psycho-100")
	tracker := &recordingTracker{}
	seeder := NewChapterSeeder(db, nil, Options{BatchSize: 2, Tracker: tracker})

	records := []*ChapterRecord{
		{ComicTitle: "Mob Psycho 100", Number: num(1)},
		{ComicTitle: "Mob Psycho 100", Number: num(2)},
		{ComicTitle: "Missing Comic", Number: num(1)},
	}

	summary, err := seeder.SeedAtomic(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, tracker.completed)
	assert.Equal(t, [][2]int{{2, 3}, {3, 3}}, tracker.progress)
	assert.Equal(t, 2, testutils.CountRows(t, db, "chapters"))
}
