// Package worker runs the background loops of the bill tracker processes.
package worker

import (
	"context"
	"errors"
	"time"

	"billtracker/internal/log"
	"billtracker/internal/notify"
	"billtracker/internal/session"
)

// Reminder is a notification center that can be re-evaluated.
type Reminder interface {
	Reevaluate(ctx context.Context) (*notify.Evaluation, error)
}

// Source lists the reminders to refresh on each tick.
type Source func() []Reminder

// ManagerSource refreshes every active session of m.
func ManagerSource(m *session.Manager) Source {
	return func() []Reminder {
		active := m.Active()
		out := make([]Reminder, len(active))
		for i, s := range active {
			out[i] = s.Notifications
		}
		return out
	}
}

// Static refreshes a fixed set of reminders.
func Static(r ...Reminder) Source {
	return func() []Reminder { return r }
}

// ReminderWorker re-evaluates reminders on a fixed interval so that the
// due-today alert fires after the date rolls over even when no bill changed.
type ReminderWorker struct {
	source   Source
	interval time.Duration
	logger   *log.Logger
}

func NewReminderWorker(source Source, interval time.Duration, logger *log.Logger) *ReminderWorker {
	return &ReminderWorker{source: source, interval: interval, logger: logger.WithComponent(log.ComponentWorker)}
}

// RunOnce re-evaluates every reminder and returns the number of alerts fired.
// One failing reminder does not stop the others.
func (w *ReminderWorker) RunOnce(ctx context.Context) (int, error) {
	var errs []error
	fired := 0
	for _, r := range w.source() {
		ev, err := r.Reevaluate(ctx)
		if ev != nil {
			fired += ev.Fired
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return fired, errors.Join(errs...)
}

// Run ticks until ctx is done.
func (w *ReminderWorker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Reminder worker started", "interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Reminder worker stopped")
			return nil
		case now := <-ticker.C:
			fired, err := w.RunOnce(ctx)
			if err != nil {
				w.logger.ErrorContext(ctx, "Reminder evaluation failed", log.FieldError, err)
			}
			if fired > 0 {
				w.logger.InfoContext(ctx, "Reminders sent",
					log.FieldCount, fired,
					"next_check", now.Add(w.interval).Format("15:04:05"))
			}
		}
	}
}
