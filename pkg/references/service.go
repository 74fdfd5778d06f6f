package references

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shishobooks/comicseed/pkg/database"
	"github.com/shishobooks/comicseed/pkg/errcodes"
	"github.com/uptrace/bun"
)

// Kind selects one of the reference tables. Every kind has the same shape
// (id, created_at, name) and a case-insensitive unique name.
type Kind string

const (
	KindCategory Kind = "category"
	KindCreator  Kind = "creator"
	KindTag      Kind = "tag"
)

var tables = map[Kind]string{
	KindCategory: "categories",
	KindCreator:  "creators",
	KindTag:      "tags",
}

// Reference is a resolved reference row.
type Reference struct {
	ID   int    `bun:"id" json:"id"`
	Name string `bun:"name" json:"name"`
}

type ListReferencesOptions struct {
	Limit  *int
	Offset *int
	Search *string
}

type Service struct {
	db         bun.IDB
	maxRetries int
}

func NewService(db bun.IDB) *Service {
	return &Service{db: db, maxRetries: 5}
}

// WithMaxRetries sets how many times a busy insert is retried.
func (svc *Service) WithMaxRetries(n int) *Service {
	svc.maxRetries = n
	return svc
}

func (k Kind) table() (string, error) {
	table, ok := tables[k]
	if !ok {
		return "", errors.Errorf("unknown reference kind %q", k)
	}
	return table, nil
}

func (k Kind) resource() string {
	s := string(k)
	return strings.ToUpper(s[:1]) + s[1:]
}

// FindByName returns the row whose name matches case-insensitively, or
// errcodes.NotFound.
func (svc *Service) FindByName(ctx context.Context, kind Kind, name string) (*Reference, error) {
	table, err := kind.table()
	if err != nil {
		return nil, err
	}

	ref := &Reference{}
	err = svc.db.NewSelect().
		Table(table).
		Column("id", "name").
		Where("name = ? COLLATE NOCASE", name).
		Limit(1).
		Scan(ctx, ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound(kind.resource())
		}
		return nil, errors.WithStack(err)
	}
	return ref, nil
}

// InsertIgnore inserts a row with the given name. When another writer already
// holds the name the insert is a no-op and (nil, nil) is returned.
func (svc *Service) InsertIgnore(ctx context.Context, kind Kind, name string) (*Reference, error) {
	table, err := kind.table()
	if err != nil {
		return nil, err
	}

	var ref *Reference
	err = database.Retry(ctx, svc.maxRetries, func() error {
		var id int
		row := svc.db.QueryRowContext(ctx,
			"INSERT INTO ? (name, created_at) VALUES (?, ?) ON CONFLICT DO NOTHING RETURNING id",
			bun.Ident(table), name, time.Now(),
		)
		if err := row.Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				ref = nil
				return nil
			}
			return err
		}
		ref = &Reference{ID: id, Name: name}
		return nil
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ref, nil
}

func (svc *Service) List(ctx context.Context, kind Kind, opts ListReferencesOptions) ([]*Reference, error) {
	table, err := kind.table()
	if err != nil {
		return nil, err
	}

	refs := []*Reference{}
	q := svc.db.NewSelect().
		Table(table).
		Column("id", "name").
		Order("name ASC")

	if opts.Search != nil && *opts.Search != "" {
		q = q.Where("name LIKE ?", "%"+*opts.Search+"%")
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}

	if err := q.Scan(ctx, &refs); err != nil {
		return nil, errors.WithStack(err)
	}
	return refs, nil
}

func (svc *Service) Count(ctx context.Context, kind Kind) (int, error) {
	table, err := kind.table()
	if err != nil {
		return 0, err
	}
	count, err := svc.db.NewSelect().Table(table).Count(ctx)
	return count, errors.WithStack(err)
}
