// Package session assembles the per-user state of a signed-in user: the
// bill store, the category catalog and the notification center.
package session

import (
	"context"
	"fmt"
	"time"

	"billtracker/internal/auth"
	"billtracker/internal/bills"
	"billtracker/internal/cache"
	"billtracker/internal/categories"
	"billtracker/internal/changefeed"
	"billtracker/internal/core"
	"billtracker/internal/log"
	"billtracker/internal/metrics"
	"billtracker/internal/notify"
	"billtracker/internal/prefs"
	"billtracker/internal/remote"
)

// Deps are shared by every session.
type Deps struct {
	Bills      remote.BillRepository
	Categories remote.CategoryRepository
	Feed       *changefeed.Broker
	Prefs      prefs.KV
	// Notifier returns the desktop alert sink for a user.
	Notifier func(userID string) notify.Notifier
	Logger   *log.Logger
	Metrics  *metrics.Metrics
	Clock    func() time.Time
}

// Session is one user's live state.
type Session struct {
	User          *core.User
	Bills         *bills.Store
	Categories    *categories.Catalog
	Notifications *notify.Center

	unwatch func()
}

// Open starts the user's mirrors and reminder evaluation. A failed initial
// fetch tears everything down so the next attempt starts clean.
func Open(ctx context.Context, user *core.User, deps Deps) (*Session, error) {
	identity := auth.Fixed{User: user}
	feed := deps.Feed.ForUser(user.ID)
	logger := deps.Logger.With(log.FieldUserID, user.ID)

	s := &Session{
		User:       user,
		Bills:      bills.NewStore(deps.Bills, identity, feed, bills.WithLogger(logger), bills.WithMetrics(deps.Metrics)),
		Categories: categories.NewCatalog(deps.Categories, identity, feed, categories.WithLogger(logger), categories.WithMetrics(deps.Metrics)),
	}

	centerOpts := []notify.Option{notify.WithLogger(logger), notify.WithMetrics(deps.Metrics)}
	if deps.Clock != nil {
		centerOpts = append(centerOpts, notify.WithClock(deps.Clock))
	}
	s.Notifications = notify.NewCenter(prefs.ForUser(deps.Prefs, user.ID), deps.Notifier(user.ID), centerOpts...)

	if err := s.Bills.Start(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("load bills: %w", err)
	}
	if err := s.Categories.Start(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("load categories: %w", err)
	}
	s.unwatch = s.Notifications.Watch(ctx, s.Bills)
	return s, nil
}

func (s *Session) Close() {
	if s.unwatch != nil {
		s.unwatch()
	}
	s.Bills.Close()
	s.Categories.Close()
}

// Manager caches sessions by user ID. Idle sessions expire and are closed.
type Manager struct {
	deps     Deps
	sessions *cache.LRUCache[*Session]
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewManager(deps Deps, size int, ttl time.Duration) *Manager {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{deps: deps, ctx: ctx, cancel: cancel}
	m.sessions = cache.NewLRUCache(size, ttl, cache.WithEvictHook(func(_ string, s *Session) {
		s.Close()
		m.deps.Metrics.SetSessions(m.sessions.Size())
	}))
	return m
}

// Get returns the user's session, opening it on first use. Sessions outlive
// the request that opened them.
func (m *Manager) Get(user *core.User) (*Session, error) {
	s, err := m.sessions.GetOrCreate(user.ID, func() (*Session, error) {
		m.deps.Logger.InfoContext(m.ctx, "Opening session", log.FieldUserID, user.ID)
		return Open(m.ctx, user, m.deps)
	})
	if err != nil {
		return nil, err
	}
	m.deps.Metrics.SetSessions(m.sessions.Size())
	return s, nil
}

// Drop closes the user's session, if any.
func (m *Manager) Drop(userID string) {
	m.sessions.Delete(userID)
}

// Active returns the live sessions.
func (m *Manager) Active() []*Session {
	return m.sessions.Values()
}

// Cleaner exposes the session cache to a cache.Janitor.
func (m *Manager) Cleaner() cache.Cleaner {
	return m.sessions
}

// Close closes every session.
func (m *Manager) Close() {
	m.cancel()
	m.sessions.Purge()
}
