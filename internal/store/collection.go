package store

import (
	"fmt"
	"slices"

	"github.com/marcus/tally/internal/cache"
	"github.com/marcus/tally/internal/models"
)

// collection is one in-memory entity list. Rows are the exchange format with
// the queue, the cache and the remote service; items are kept typed.
type collection[T models.Entity] struct {
	table   models.Table
	items   []T
	compare func(a, b T) int
}

// collectionOps lets the reconciler treat the three collections uniformly.
type collectionOps interface {
	prepend(row models.Row) error
	merge(id string, patch models.Row) (bool, error)
	remove(id string) bool
	contains(id string) bool
	row(id string) (models.Row, bool)
	replace(rows []models.Row) error
	rewrite(rewrites map[string]string) (int, error)
	ids() []string
	size() int
	writeCache(c *cache.Cache)
	readCache(c *cache.Cache, owner string) bool
}

func (c *collection[T]) index(id string) int {
	return slices.IndexFunc(c.items, func(v T) bool { return v.EntityID() == id })
}

func (c *collection[T]) prepend(row models.Row) error {
	v, err := models.FromRow[T](row)
	if err != nil {
		return fmt.Errorf("%s: %w", c.table, err)
	}
	if i := c.index(v.EntityID()); i >= 0 {
		c.items = slices.Delete(c.items, i, i+1)
	}
	c.items = slices.Insert(c.items, 0, v)
	return nil
}

// merge overlays patch on the entity with id. A patch carrying a new id
// re-keys the entity in place.
func (c *collection[T]) merge(id string, patch models.Row) (bool, error) {
	i := c.index(id)
	if i < 0 {
		return false, nil
	}
	merged, err := models.Merge(c.items[i], patch)
	if err != nil {
		return true, fmt.Errorf("%s %s: %w", c.table, id, err)
	}
	c.items[i] = merged
	return true, nil
}

func (c *collection[T]) remove(id string) bool {
	i := c.index(id)
	if i < 0 {
		return false
	}
	c.items = slices.Delete(c.items, i, i+1)
	return true
}

func (c *collection[T]) contains(id string) bool {
	return c.index(id) >= 0
}

func (c *collection[T]) row(id string) (models.Row, bool) {
	i := c.index(id)
	if i < 0 {
		return nil, false
	}
	r, err := models.ToRow(c.items[i])
	if err != nil {
		return nil, false
	}
	return r, true
}

func (c *collection[T]) replace(rows []models.Row) error {
	items, err := models.FromRows[T](rows)
	if err != nil {
		return fmt.Errorf("%s: %w", c.table, err)
	}
	slices.SortStableFunc(items, c.compare)
	c.items = items
	return nil
}

// rewrite substitutes permanent ids for temporary ones in ids and in any
// string field holding one. It returns how many entities changed.
func (c *collection[T]) rewrite(rewrites map[string]string) (int, error) {
	if len(rewrites) == 0 {
		return 0, nil
	}
	changed := 0
	for i, item := range c.items {
		r, err := models.ToRow(item)
		if err != nil {
			return changed, err
		}
		if !rewriteRow(r, rewrites) {
			continue
		}
		v, err := models.FromRow[T](r)
		if err != nil {
			return changed, fmt.Errorf("%s: %w", c.table, err)
		}
		c.items[i] = v
		changed++
	}
	return changed, nil
}

func (c *collection[T]) ids() []string {
	out := make([]string, len(c.items))
	for i, v := range c.items {
		out[i] = v.EntityID()
	}
	return out
}

func (c *collection[T]) size() int {
	return len(c.items)
}

func (c *collection[T]) snapshot() []T {
	return slices.Clone(c.items)
}

func (c *collection[T]) writeCache(ch *cache.Cache) {
	items := c.items
	if items == nil {
		items = []T{}
	}
	ch.Write(string(c.table), items)
}

// readCache replaces the collection with the cached snapshot, keeping only
// rows owned by owner. It reports whether a usable snapshot was found.
func (c *collection[T]) readCache(ch *cache.Cache, owner string) bool {
	var rows []models.Row
	if !ch.Read(string(c.table), &rows) {
		return false
	}
	owned := rows[:0]
	for _, r := range rows {
		if u, _ := r["user_id"].(string); u == owner {
			owned = append(owned, r)
		}
	}
	if err := c.replace(owned); err != nil {
		return false
	}
	return true
}

// rewriteRow replaces string values found in rewrites. Reports whether
// anything changed.
func rewriteRow(r models.Row, rewrites map[string]string) bool {
	changed := false
	for k, v := range r {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if id, ok := rewrites[s]; ok {
			r[k] = id
			changed = true
		}
	}
	return changed
}

// referencesTemp reports whether id or any string value of r is a temporary id.
func referencesTemp(id string, r models.Row) bool {
	if models.IsTempID(id) {
		return true
	}
	for _, v := range r {
		if s, ok := v.(string); ok && models.IsTempID(s) {
			return true
		}
	}
	return false
}
