package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"billtracker/internal/core"
	"billtracker/internal/log"
	"billtracker/internal/metrics"
	"billtracker/internal/prefs"
	"billtracker/internal/services"
)

// Evaluation is the reminder state for one bill list at one moment.
type Evaluation struct {
	Date       core.Date              `json:"date"`
	Settings   Settings               `json:"settings"`
	Permission Permission             `json:"permission"`
	Overdue    []core.Bill            `json:"overdue"`
	Upcoming   []core.Bill            `json:"upcoming"`
	Attention  []core.Bill            `json:"attention"`
	Banner     *core.AttentionSummary `json:"banner,omitempty"`
	Fired      int                    `json:"fired"`
}

// BillSource is the part of the bill store the center watches.
type BillSource interface {
	List() []core.Bill
	Subscribe(fn func([]core.Bill)) (unsubscribe func())
}

type Option func(*Center)

func WithLogger(l *log.Logger) Option {
	return func(c *Center) { c.logger = l.WithComponent(log.ComponentNotify) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Center) { c.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Center) { c.now = now }
}

// Center owns a user's reminder preferences and re-evaluates reminders
// whenever the bill list or the settings change.
type Center struct {
	settings    *SettingsStore
	permissions *PermissionStore
	dispatcher  *Dispatcher
	logger      *log.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	// gen counts bill lists handed to Evaluate; last only moves forward.
	mu      sync.RWMutex
	bills   []core.Bill
	gen     uint64
	last    *Evaluation
	lastGen uint64
}

// NewCenter builds a center over a user-scoped KV.
func NewCenter(kv prefs.KV, notifier Notifier, opts ...Option) *Center {
	c := &Center{logger: log.Discard(), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.settings = NewSettingsStore(kv, c.logger)
	c.permissions = NewPermissionStore(kv)
	c.dispatcher = NewDispatcher(notifier, NewMarkers(kv), c.logger, c.metrics)
	return c
}

// Evaluate records bills as the current list, classifies it as of now and
// fires due-today alerts. With reminders disabled both buckets are empty. The
// banner is set only when dashboard alerts are on and something needs
// attention.
func (c *Center) Evaluate(ctx context.Context, bills []core.Bill, now time.Time) (*Evaluation, error) {
	c.mu.Lock()
	c.gen++
	c.bills = append([]core.Bill(nil), bills...)
	c.mu.Unlock()
	return c.evaluate(ctx, now)
}

// Reevaluate runs an evaluation of the current bill list at the current time.
func (c *Center) Reevaluate(ctx context.Context) (*Evaluation, error) {
	return c.evaluate(ctx, c.now())
}

func (c *Center) evaluate(ctx context.Context, now time.Time) (*Evaluation, error) {
	settings, err := c.settings.Load(ctx)
	if err != nil {
		return nil, err
	}
	perm, err := c.permissions.Get(ctx)
	if err != nil {
		return nil, err
	}

	// Read the list after the preference loads so a list recorded while
	// they were in flight is the one classified.
	c.mu.RLock()
	bills, gen := c.bills, c.gen
	c.mu.RUnlock()

	today := core.DateOf(now)
	ev := &Evaluation{Date: today, Settings: settings, Permission: perm}
	if settings.Enabled {
		cl := services.Classify(bills, today, settings.DaysBeforeDue)
		ev.Overdue = cl.Overdue
		ev.Upcoming = cl.Upcoming
		ev.Attention = cl.NeedingAttention()
		if settings.ShowDashboardAlerts {
			ev.Banner = cl.Summary()
		}
	}

	fired, dispatchErr := c.dispatcher.Dispatch(ctx, bills, today, settings, perm)
	ev.Fired = fired

	c.mu.Lock()
	if gen >= c.lastGen {
		c.last = ev
		c.lastGen = gen
	}
	c.mu.Unlock()

	return ev, dispatchErr
}

// Last returns the most recent evaluation, or nil.
func (c *Center) Last() *Evaluation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Watch evaluates src now and after every change to it.
func (c *Center) Watch(ctx context.Context, src BillSource) (unsubscribe func()) {
	evaluate := func(bills []core.Bill) {
		if _, err := c.Evaluate(ctx, bills, c.now()); err != nil {
			c.logger.WarnContext(ctx, "Reminder evaluation failed", log.FieldError, err)
		}
	}
	unsubscribe = src.Subscribe(evaluate)
	evaluate(src.List())
	return unsubscribe
}

func (c *Center) Settings(ctx context.Context) (Settings, error) {
	return c.settings.Load(ctx)
}

// UpdateSettings saves s and re-evaluates the last seen bill list.
func (c *Center) UpdateSettings(ctx context.Context, s Settings) (*Evaluation, error) {
	if err := c.settings.Save(ctx, s); err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "Notification settings updated",
		"enabled", s.Enabled,
		"days_before_due", s.DaysBeforeDue)
	return c.Reevaluate(ctx)
}

func (c *Center) Permission(ctx context.Context) (Permission, error) {
	return c.permissions.Get(ctx)
}

// SetPermission records a permission change made outside the app.
func (c *Center) SetPermission(ctx context.Context, p Permission) error {
	return c.permissions.Set(ctx, p)
}

// EnableDesktop turns desktop alerts on. The prompter is consulted only
// while permission is unrequested; a denied permission is final here. A
// dismissed prompt leaves the permission unrequested and alerts off. On a
// fresh grant a confirmation alert is shown.
func (c *Center) EnableDesktop(ctx context.Context, prompter Prompter) (Permission, error) {
	perm, err := c.permissions.Get(ctx)
	if err != nil {
		return perm, err
	}

	switch perm {
	case PermissionDenied:
		return perm, ErrPermissionDenied
	case PermissionDefault:
		perm, err = prompter.RequestPermission(ctx)
		if err != nil {
			return PermissionDefault, err
		}
		if err := c.permissions.Set(ctx, perm); err != nil {
			return perm, err
		}
		switch perm {
		case PermissionDenied:
			return perm, ErrPermissionDenied
		case PermissionDefault:
			return perm, nil
		}
		welcome := Alert{Title: "Bill Tracker", Body: "Notifications are now enabled for bill reminders!"}
		if err := c.dispatcher.notifier.Show(ctx, welcome); err != nil {
			c.logger.WarnContext(ctx, "Confirmation alert failed", log.FieldError, err)
		}
	}

	settings, err := c.settings.Load(ctx)
	if err != nil {
		return perm, err
	}
	if !settings.ShowBrowserNotifications {
		settings.ShowBrowserNotifications = true
		if err := c.settings.Save(ctx, settings); err != nil {
			return perm, err
		}
	}
	if _, err := c.Reevaluate(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.logger.WarnContext(ctx, "Reminder evaluation failed", log.FieldError, err)
	}
	return perm, nil
}
