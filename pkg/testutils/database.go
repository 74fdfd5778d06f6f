// Package testutils provides helpers shared by package tests: a migrated
// in-memory database and fixture builders.
package testutils

import (
	"context"
	"testing"
	"time"

	"github.com/shishobooks/comicseed/pkg/config"
	"github.com/shishobooks/comicseed/pkg/database"
	"github.com/shishobooks/comicseed/pkg/migrations"
	"github.com/shishobooks/comicseed/pkg/models"
	"github.com/uptrace/bun"
)

// NewDB opens an in-memory SQLite database and brings it up to date with the
// real migrations. The database is closed when the test finishes.
func NewDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := database.New(config.NewForTest())
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}

	_, err = migrations.BringUpToDate(context.Background(), db)
	if err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// CreateComic inserts a comic with the given title and a slug derived by the
// caller.
func CreateComic(t *testing.T, db bun.IDB, title, slug string) *models.Comic {
	t.Helper()

	now := time.Now()
	comic := &models.Comic{
		CreatedAt: now,
		UpdatedAt: now,
		Title:     title,
		Slug:      slug,
		Status:    models.ComicStatusOngoing,
	}
	_, err := db.NewInsert().Model(comic).Returning("*").Exec(context.Background())
	if err != nil {
		t.Fatalf("failed to create comic %q: %v", title, err)
	}
	return comic
}

// CountRows returns the number of rows in table.
func CountRows(t *testing.T, db bun.IDB, table string) int {
	t.Helper()

	count, err := db.NewSelect().Table(table).Count(context.Background())
	if err != nil {
		t.Fatalf("failed to count %s: %v", table, err)
	}
	return count
}
