// Package metadatacache resolves reference names (categories, creators, tags)
// to row ids, creating rows on first sight. A Cache is scoped to one ingest
// run and is safe for concurrent use by the item processors of that run.
package metadatacache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/shishobooks/comicseed/pkg/errcodes"
	"github.com/shishobooks/comicseed/pkg/references"
	"golang.org/x/sync/singleflight"
)

// ErrInconsistentStore is returned when a conflict-ignore insert reported an
// existing row but the row cannot be read back.
var ErrInconsistentStore = errors.New("reference store is inconsistent")

// ErrEmptyName is returned when a name is blank after normalization.
var ErrEmptyName = errors.New("reference name is empty")

// Store is the persistence surface the cache needs.
type Store interface {
	FindByName(ctx context.Context, kind references.Kind, name string) (*references.Reference, error)
	InsertIgnore(ctx context.Context, kind references.Kind, name string) (*references.Reference, error)
}

// Stats is a snapshot of cache activity.
type Stats struct {
	Hits      int64
	Lookups   int64
	Inserts   int64
	LostRaces int64
}

type Cache struct {
	store Store

	ids    sync.Map // map[string]int, keyed by kind|lower(name)
	flight singleflight.Group

	hits      atomic.Int64
	lookups   atomic.Int64
	inserts   atomic.Int64
	lostRaces atomic.Int64
}

func New(store Store) *Cache {
	return &Cache{store: store}
}

func (c *Cache) ResolveCategory(ctx context.Context, name string) (int, error) {
	return c.resolveOrCreate(ctx, references.KindCategory, name)
}

func (c *Cache) ResolveCreator(ctx context.Context, name string) (int, error) {
	return c.resolveOrCreate(ctx, references.KindCreator, name)
}

func (c *Cache) ResolveTag(ctx context.Context, name string) (int, error) {
	return c.resolveOrCreate(ctx, references.KindTag, name)
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Lookups:   c.lookups.Load(),
		Inserts:   c.inserts.Load(),
		LostRaces: c.lostRaces.Load(),
	}
}

// NormalizeName trims the name and collapses inner whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

func cacheKey(kind references.Kind, name string) string {
	return string(kind) + "|" + strings.ToLower(name)
}

// resolveOrCreate returns the id for name, reading through the cache, then the
// store, then inserting. Concurrent callers for one key share a single walk.
func (c *Cache) resolveOrCreate(ctx context.Context, kind references.Kind, name string) (int, error) {
	name = NormalizeName(name)
	if name == "" {
		return 0, errors.Wrapf(ErrEmptyName, "resolve %s", kind)
	}
	key := cacheKey(kind, name)

	if id, ok := c.ids.Load(key); ok {
		c.hits.Add(1)
		return id.(int), nil
	}

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		// Another flight may have finished between the Load above and Do.
		if id, ok := c.ids.Load(key); ok {
			c.hits.Add(1)
			return id.(int), nil
		}

		id, err := c.lookupOrInsert(ctx, kind, name)
		if err != nil {
			return 0, err
		}
		c.ids.Store(key, id)
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (c *Cache) lookupOrInsert(ctx context.Context, kind references.Kind, name string) (int, error) {
	c.lookups.Add(1)
	id, found, err := c.find(ctx, kind, name)
	if err != nil || found {
		return id, err
	}

	ref, err := c.store.InsertIgnore(ctx, kind, name)
	if err != nil {
		return 0, errors.Wrapf(err, "insert %s %q", kind, name)
	}
	if ref != nil {
		c.inserts.Add(1)
		return ref.ID, nil
	}

	// Lost the race to a concurrent writer; its row must now be visible.
	c.lostRaces.Add(1)
	id, found, err = c.find(ctx, kind, name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, errors.Wrapf(ErrInconsistentStore, "%s %q", kind, name)
	}
	return id, nil
}

func (c *Cache) find(ctx context.Context, kind references.Kind, name string) (int, bool, error) {
	ref, err := c.store.FindByName(ctx, kind, name)
	if err != nil {
		if errcodes.Code(err) == errcodes.CodeNotFound {
			return 0, false, nil
		}
		return 0, false, errors.Wrapf(err, "find %s %q", kind, name)
	}
	return ref.ID, true, nil
}
