// Package categories combines the fixed default categories with the
// signed-in user's custom categories.
package categories

import (
	"context"
	"errors"
	"sort"
	"sync"

	"billtracker/internal/auth"
	"billtracker/internal/changefeed"
	"billtracker/internal/core"
	"billtracker/internal/log"
	"billtracker/internal/metrics"
	"billtracker/internal/remote"
)

type Option func(*Catalog)

func WithLogger(l *log.Logger) Option {
	return func(c *Catalog) { c.logger = l.WithComponent(log.ComponentCategories) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Catalog) { c.metrics = m }
}

// Catalog mirrors the custom_categories table for one user.
type Catalog struct {
	repo     remote.CategoryRepository
	identity auth.Identity
	feed     remote.ChangeFeed
	logger   *log.Logger
	metrics  *metrics.Metrics

	writeMu sync.Mutex

	mu     sync.RWMutex
	custom []string
	err    error

	stopOnce sync.Once
	stop     func()
}

func NewCatalog(repo remote.CategoryRepository, identity auth.Identity, feed remote.ChangeFeed, opts ...Option) *Catalog {
	c := &Catalog{repo: repo, identity: identity, feed: feed, logger: log.Discard()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start subscribes to the custom_categories feed and performs the initial fetch.
func (c *Catalog) Start(ctx context.Context) error {
	c.stop = changefeed.Watch(ctx, c.feed, remote.TableCustomCategories, func(ctx context.Context) {
		if err := c.Refresh(ctx); err != nil {
			c.logger.WarnContext(ctx, "Refetch after change failed", log.FieldError, err)
		}
	})
	return c.Refresh(ctx)
}

func (c *Catalog) Close() {
	c.stopOnce.Do(func() {
		if c.stop != nil {
			c.stop()
		}
	})
}

func (c *Catalog) Refresh(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	userID, err := auth.UserID(ctx, c.identity)
	if errors.Is(err, core.ErrNotAuthenticated) {
		c.set(nil, nil)
		return nil
	}
	if err != nil {
		return err
	}

	names, err := c.repo.ListCategories(ctx, userID)
	c.metrics.Refetch(remote.TableCustomCategories, err)
	if err != nil {
		err = core.Remote("fetch categories", err)
		c.setErr(err)
		return err
	}
	c.set(names, nil)
	return nil
}

// Custom returns the user's custom category names, sorted.
func (c *Catalog) Custom() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.custom...)
}

// ListAll returns the default options followed by the custom options.
func (c *Catalog) ListAll() []core.CategoryOption {
	custom := c.Custom()
	out := core.DefaultCategories()
	for _, name := range custom {
		out = append(out, core.CategoryOption{Value: name, Label: core.CategoryLabel(name)})
	}
	return out
}

// Err returns the last remote error, cleared by the next successful operation.
func (c *Catalog) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Add validates and stores a custom category, returning its normalised name.
func (c *Catalog) Add(ctx context.Context, name string) (string, error) {
	name = core.NormalizeCategory(name)
	if err := core.ValidateCategoryName(name, c.Custom()); err != nil {
		return "", err
	}
	userID, err := auth.UserID(ctx, c.identity)
	if err != nil {
		return "", err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.repo.InsertCategory(ctx, userID, name); err != nil {
		if errors.Is(err, core.ErrDuplicate) {
			err = core.ErrCategoryExists
		} else {
			err = core.Remote("add category", err)
		}
		c.setErr(err)
		return "", err
	}

	custom := c.Custom()
	if !contains(custom, name) {
		custom = append(custom, name)
	}
	c.set(custom, nil)
	c.logger.InfoContext(ctx, "Custom category added", log.FieldUserID, userID, log.FieldCategory, name)
	return name, nil
}

// Remove deletes a custom category. Bills using it keep the value.
func (c *Catalog) Remove(ctx context.Context, name string) error {
	name = core.NormalizeCategory(name)
	userID, err := auth.UserID(ctx, c.identity)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.repo.DeleteCategory(ctx, userID, name); err != nil {
		err = core.Remote("remove category", err)
		c.setErr(err)
		return err
	}

	custom := c.Custom()
	out := custom[:0]
	for _, n := range custom {
		if n != name {
			out = append(out, n)
		}
	}
	c.set(out, nil)
	c.logger.InfoContext(ctx, "Custom category removed", log.FieldUserID, userID, log.FieldCategory, name)
	return nil
}

func (c *Catalog) set(names []string, err error) {
	names = append([]string(nil), names...)
	sort.Strings(names)
	c.mu.Lock()
	c.custom = names
	c.err = err
	c.mu.Unlock()
}

func (c *Catalog) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
