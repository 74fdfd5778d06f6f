package comics

import (
	"context"
	"testing"
	"time"

	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/shishobooks/comicseed/pkg/errcodes"
	"github.com/shishobooks/comicseed/pkg/models"
	"github.com/shishobooks/comicseed/pkg/references"
	"github.com/shishobooks/comicseed/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrieveComic_ByTitleIgnoresCase(t *testing.T) {
	db := testutils.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()

	created := testutils.CreateComic(t, db, "Blue Lock", "blue-lock")

	found, err := svc.RetrieveComic(ctx, RetrieveComicOptions{Title: pointerutil.String("BLUE LOCK")})
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	found, err = svc.RetrieveComic(ctx, RetrieveComicOptions{Slug: pointerutil.String("blue-lock")})
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	found, err = svc.RetrieveComic(ctx, RetrieveComicOptions{ID: &created.ID})
	require.NoError(t, err)
	assert.Equal(t, "Blue Lock", found.Title)
}

func TestRetrieveComic_NotFound(t *testing.T) {
	db := testutils.NewDB(t)
	svc := NewService(db)

	_, err := svc.RetrieveComic(context.Background(), RetrieveComicOptions{Title: pointerutil.String("Nope")})
	assert.ErrorIs(t, err, errcodes.NotFound("Comic"))
}

func TestCreateAndUpdateComic(t *testing.T) {
	db := testutils.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()

	comic := &models.Comic{
		Title:  "Chainsaw Man",
		Slug:   "chainsaw-man",
		Status: models.ComicStatusOngoing,
	}
	require.NoError(t, svc.CreateComic(ctx, comic))
	assert.Positive(t, comic.ID)
	assert.False(t, comic.CreatedAt.IsZero())

	comic.Status = models.ComicStatusHiatus
	comic.Description = pointerutil.String("Denji")
	require.NoError(t, svc.UpdateComic(ctx, comic, UpdateComicOptions{Columns: []string{"status", "description"}}))

	found, err := svc.RetrieveComic(ctx, RetrieveComicOptions{ID: &comic.ID})
	require.NoError(t, err)
	assert.Equal(t, models.ComicStatusHiatus, found.Status)
	require.NotNil(t, found.Description)
	assert.Equal(t, "Denji", *found.Description)
}

func TestSlugExists(t *testing.T) {
	db := testutils.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()

	testutils.CreateComic(t, db, "Dandadan", "dandadan")

	exists, err := svc.SlugExists(ctx, "dandadan")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = svc.SlugExists(ctx, "dandadan-2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAddTags_IsIdempotent(t *testing.T) {
	db := testutils.NewDB(t)
	svc := NewService(db)
	refs := references.NewService(db)
	ctx := context.Background()

	comic := testutils.CreateComic(t, db, "Frieren", "frieren")
	action, err := refs.InsertIgnore(ctx, references.KindTag, "Fantasy")
	require.NoError(t, err)
	drama, err := refs.InsertIgnore(ctx, references.KindTag, "Drama")
	require.NoError(t, err)

	require.NoError(t, svc.AddTags(ctx, comic.ID, []int{action.ID, drama.ID, action.ID}))
	require.NoError(t, svc.AddTags(ctx, comic.ID, []int{drama.ID}))

	ids, err := svc.ListTagIDs(ctx, comic.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{action.ID, drama.ID}, ids)
	assert.Equal(t, 2, testutils.CountRows(t, db, "comic_tags"))
}

func TestAddCreators_IsIdempotent(t *testing.T) {
	db := testutils.NewDB(t)
	svc := NewService(db)
	refs := references.NewService(db)
	ctx := context.Background()

	comic := testutils.CreateComic(t, db, "Vagabond", "vagabond")
	creator, err := refs.InsertIgnore(ctx, references.KindCreator, "Inoue Takehiko")
	require.NoError(t, err)

	require.NoError(t, svc.AddCreators(ctx, comic.ID, []int{creator.ID}))
	require.NoError(t, svc.AddCreators(ctx, comic.ID, []int{creator.ID}))
	require.NoError(t, svc.AddCreators(ctx, comic.ID, nil))

	ids, err := svc.ListCreatorIDs(ctx, comic.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{creator.ID}, ids)
}

func TestTouchLastChapter_OnlyMovesForward(t *testing.T) {
	db := testutils.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()

	comic := testutils.CreateComic(t, db, "Kingdom", "kingdom")
	later := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-48 * time.Hour)

	require.NoError(t, svc.TouchLastChapter(ctx, comic.ID, later))
	require.NoError(t, svc.TouchLastChapter(ctx, comic.ID, earlier))

	found, err := svc.RetrieveComic(ctx, RetrieveComicOptions{ID: &comic.ID})
	require.NoError(t, err)
	require.NotNil(t, found.LastChapterAt)
	assert.True(t, found.LastChapterAt.Equal(later))
}

func TestListComicsWithTotal(t *testing.T) {
	db := testutils.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()

	testutils.CreateComic(t, db, "Berserk", "berserk")
	testutils.CreateComic(t, db, "Akira", "akira")
	testutils.CreateComic(t, db, "Claymore", "claymore")

	list, total, err := svc.ListComicsWithTotal(ctx, ListComicsOptions{Limit: pointerutil.Int(2)})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, list, 2)
	assert.Equal(t, "Akira", list[0].Title)
	assert.Equal(t, "Berserk", list[1].Title)
}
