package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		// Reference tables share one shape: a case-insensitive unique name.
		for _, table := range []string{"categories", "creators", "tags"} {
			_, err := db.Exec(`
				CREATE TABLE ? (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
					name TEXT NOT NULL
				)
`, bun.Ident(table))
			if err != nil {
				return errors.WithStack(err)
			}
			_, err = db.Exec(`CREATE UNIQUE INDEX ? ON ? (name COLLATE NOCASE)`, bun.Ident("ux_"+table+"_name"), bun.Ident(table))
			if err != nil {
				return errors.WithStack(err)
			}
		}

		_, err := db.Exec(`
			CREATE TABLE comics (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				title TEXT NOT NULL,
				slug TEXT NOT NULL,
				alt_titles TEXT,
				description TEXT,
				status TEXT NOT NULL,
				category_id INTEGER REFERENCES categories (id),
				cover_image_path TEXT,
				source_url TEXT,
				published_at TIMESTAMPTZ,
				source_updated_at TIMESTAMPTZ,
				last_chapter_at TIMESTAMPTZ
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_comics_title ON comics (title COLLATE NOCASE)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_comics_slug ON comics (slug)`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_comics_category_id ON comics (category_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE comic_creators (
				comic_id INTEGER REFERENCES comics (id) ON DELETE CASCADE NOT NULL,
				creator_id INTEGER REFERENCES creators (id) NOT NULL,
				PRIMARY KEY (comic_id, creator_id)
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`
			CREATE TABLE comic_tags (
				comic_id INTEGER REFERENCES comics (id) ON DELETE CASCADE NOT NULL,
				tag_id INTEGER REFERENCES tags (id) NOT NULL,
				PRIMARY KEY (comic_id, tag_id)
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_comic_tags_tag_id ON comic_tags (tag_id)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE chapters (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				comic_id INTEGER REFERENCES comics (id) ON DELETE CASCADE NOT NULL,
				number REAL NOT NULL,
				title TEXT NOT NULL,
				pages TEXT,
				page_count INTEGER NOT NULL DEFAULT 0,
				source_url TEXT,
				published_at TIMESTAMPTZ
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_chapters_comic_id_number ON chapters (comic_id, number)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE ingest_runs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				uuid TEXT NOT NULL,
				type TEXT NOT NULL,
				status TEXT NOT NULL,
				source TEXT,
				total INTEGER NOT NULL DEFAULT 0,
				processed INTEGER NOT NULL DEFAULT 0,
				created INTEGER NOT NULL DEFAULT 0,
				updated INTEGER NOT NULL DEFAULT 0,
				skipped INTEGER NOT NULL DEFAULT 0,
				errored INTEGER NOT NULL DEFAULT 0,
				error TEXT,
				finished_at TIMESTAMPTZ
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE UNIQUE INDEX ux_ingest_runs_uuid ON ingest_runs (uuid)`)
		if err != nil {
			return errors.WithStack(err)
		}

		_, err = db.Exec(`
			CREATE TABLE run_logs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				run_id INTEGER NOT NULL REFERENCES ingest_runs (id) ON DELETE CASCADE,
				level TEXT NOT NULL,
				message TEXT NOT NULL,
				label TEXT,
				data TEXT
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_run_logs_run_id ON run_logs (run_id)`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		for _, table := range []string{"run_logs", "ingest_runs", "chapters", "comic_tags", "comic_creators", "comics", "tags", "creators", "categories"} {
			_, err := db.Exec(`DROP TABLE IF EXISTS ?`, bun.Ident(table))
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
