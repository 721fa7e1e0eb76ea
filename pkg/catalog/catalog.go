package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/booster/pkg/backend"
	"github.com/cuemby/booster/pkg/log"
	"github.com/cuemby/booster/pkg/metrics"
	"github.com/cuemby/booster/pkg/types"
	"github.com/rs/zerolog"
)

// Catalog holds the last loaded snapshot of booster items and is the single
// source of truth for IsApplied
type Catalog struct {
	backend backend.Backend
	items   map[string]*types.BoosterItem
	version uint64
	mu      sync.RWMutex
	logger  zerolog.Logger
}

// Query filters catalog listings. Zero fields match everything.
type Query struct {
	Category string
	Text     string
	Tag      string
	Risk     types.RiskLevel
	Applied  *bool
}

// NewCatalog creates an empty catalog backed by b
func NewCatalog(b backend.Backend) *Catalog {
	return &Catalog{
		backend: b,
		items:   make(map[string]*types.BoosterItem),
		logger:  log.WithComponent("catalog"),
	}
}

// Load fetches one category from the backend and replaces the items of that
// category. On failure the previous snapshot is kept.
func (c *Catalog) Load(ctx context.Context, category, language string) error {
	items, err := c.backend.GetBoostersByCategory(ctx, category, language)
	if err != nil {
		metrics.CatalogLoadsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to load category %s: %w", category, err)
	}
	metrics.CatalogLoadsTotal.WithLabelValues("ok").Inc()

	c.mu.Lock()
	defer c.mu.Unlock()

	for id, item := range c.items {
		if item.Category == category {
			delete(c.items, id)
		}
	}
	for _, item := range items {
		if item == nil || item.ID == "" {
			continue
		}
		cp := item.Clone()
		if cp.Category == "" {
			cp.Category = category
		}
		c.items[cp.ID] = cp
	}
	c.version++

	c.logger.Debug().
		Str("category", category).
		Int("items", len(items)).
		Msg("category loaded")
	return nil
}

// LoadAll loads each category, skipping the ones that fail. It returns the
// number of categories loaded and the last error seen.
func (c *Catalog) LoadAll(ctx context.Context, categories []string, language string) (int, error) {
	var lastErr error
	loaded := 0
	for _, category := range categories {
		if err := c.Load(ctx, category, language); err != nil {
			c.logger.Warn().Err(err).Str("category", category).Msg("skipping category")
			lastErr = err
			continue
		}
		loaded++
	}
	return loaded, lastErr
}

// Get returns a copy of the item
func (c *Catalog) Get(id string) (*types.BoosterItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[id]
	if !ok {
		return nil, false
	}
	return item.Clone(), true
}

// IsApplied reports the authoritative applied state of the item
func (c *Catalog) IsApplied(id string) (applied bool, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[id]
	if !ok {
		return false, false
	}
	return item.IsApplied, true
}

// List returns copies of all items sorted by id
func (c *Catalog) List() []*types.BoosterItem {
	return c.Filter(Query{})
}

// ListByCategory returns the items of one category
func (c *Catalog) ListByCategory(category string) []*types.BoosterItem {
	return c.Filter(Query{Category: category})
}

// Filter returns the items matching q, sorted by id
func (c *Catalog) Filter(q Query) []*types.BoosterItem {
	c.mu.RLock()
	defer c.mu.RUnlock()

	text := strings.ToLower(q.Text)
	out := make([]*types.BoosterItem, 0, len(c.items))
	for _, item := range c.items {
		if q.Category != "" && item.Category != q.Category {
			continue
		}
		if q.Risk != "" && item.RiskLevel != q.Risk {
			continue
		}
		if q.Applied != nil && item.IsApplied != *q.Applied {
			continue
		}
		if q.Tag != "" && !contains(item.Tags, q.Tag) {
			continue
		}
		if text != "" &&
			!strings.Contains(strings.ToLower(item.Name), text) &&
			!strings.Contains(strings.ToLower(item.Description), text) {
			continue
		}
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Categories returns the distinct categories currently loaded
func (c *Catalog) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	for _, item := range c.items {
		seen[item.Category] = true
	}
	out := make([]string, 0, len(seen))
	for category := range seen {
		out = append(out, category)
	}
	sort.Strings(out)
	return out
}

// Counts returns the number of applied and not applied items
func (c *Catalog) Counts() (applied, notApplied int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, item := range c.items {
		if item.IsApplied {
			applied++
		} else {
			notApplied++
		}
	}
	return applied, notApplied
}

// MarkApplied records the outcome of a completed execution. It returns false
// if the item is unknown.
func (c *Catalog) MarkApplied(id string, applied bool, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[id]
	if !ok {
		return false
	}
	item.IsApplied = applied
	if applied {
		item.AppliedAt = &at
	} else {
		item.RevertedAt = &at
	}
	c.version++
	return true
}

// Version increases on every mutation; derived views can cache on it
func (c *Catalog) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
