// Package bills keeps a signed-in user's bills mirrored from the remote store.
//
// Writes go to the remote store first; the mirror only changes after the
// remote call succeeds. Every change-feed signal for the bills table
// triggers a full refetch, including signals caused by this store's own writes.
package bills

import (
	"context"
	"errors"
	"sync"

	"billtracker/internal/auth"
	"billtracker/internal/changefeed"
	"billtracker/internal/core"
	"billtracker/internal/log"
	"billtracker/internal/metrics"
	"billtracker/internal/remote"
)

type Option func(*Store)

func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l.WithComponent(log.ComponentBills) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Store is safe for concurrent use.
type Store struct {
	repo     remote.BillRepository
	identity auth.Identity
	feed     remote.ChangeFeed
	logger   *log.Logger
	metrics  *metrics.Metrics

	// writeMu serialises remote round trips so a refetch never overwrites
	// the result of a mutation that completed after it started.
	writeMu sync.Mutex

	mu        sync.RWMutex
	bills     []core.Bill
	err       error
	loading   bool
	nextID    int
	listeners map[int]func([]core.Bill)

	stopOnce sync.Once
	stop     func()
}

func NewStore(repo remote.BillRepository, identity auth.Identity, feed remote.ChangeFeed, opts ...Option) *Store {
	s := &Store{
		repo:      repo,
		identity:  identity,
		feed:      feed,
		logger:    log.Discard(),
		listeners: make(map[int]func([]core.Bill)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to the bills change feed and performs the initial fetch.
// The subscription stays up even if the initial fetch fails; its error is
// returned and retained in Err.
func (s *Store) Start(ctx context.Context) error {
	s.stop = changefeed.Watch(ctx, s.feed, remote.TableBills, func(ctx context.Context) {
		if err := s.Refresh(ctx); err != nil {
			s.logger.WarnContext(ctx, "Refetch after change failed", log.FieldError, err)
		}
	})
	return s.Refresh(ctx)
}

// Close tears down the change-feed subscription. Safe to call more than once.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}

// Refresh replaces the mirror with a fresh read of the remote table.
// Without a signed-in user the mirror becomes empty.
func (s *Store) Refresh(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	userID, err := auth.UserID(ctx, s.identity)
	if errors.Is(err, core.ErrNotAuthenticated) {
		s.replace(nil)
		return nil
	}
	if err != nil {
		return err
	}

	s.setLoading(true)
	list, err := s.repo.ListBills(ctx, userID)
	s.metrics.Refetch(remote.TableBills, err)
	if err != nil {
		return s.fail(core.Remote("fetch bills", err))
	}
	s.logger.DebugContext(ctx, "Bills refreshed", log.FieldUserID, userID, log.FieldCount, len(list))
	s.replace(list)
	return nil
}

// List returns a copy of the mirror, due date ascending as last fetched.
func (s *Store) List() []core.Bill {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Bill(nil), s.bills...)
}

// Get returns the mirrored bill with the given ID.
func (s *Store) Get(id string) (core.Bill, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bills {
		if b.ID == id {
			return b, true
		}
	}
	return core.Bill{}, false
}

// Err returns the last remote error, cleared by the next successful operation.
func (s *Store) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Loading reports whether a fetch is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Subscribe registers fn to receive the mirror after every change.
func (s *Store) Subscribe(fn func([]core.Bill)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) Create(ctx context.Context, draft core.BillDraft) (core.Bill, error) {
	d := draft.Normalize()
	if err := d.Validate(); err != nil {
		return core.Bill{}, err
	}
	userID, err := auth.UserID(ctx, s.identity)
	if err != nil {
		return core.Bill{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	bill, err := s.repo.InsertBill(ctx, userID, d)
	if err != nil {
		return core.Bill{}, s.fail(core.Remote("create bill", err))
	}
	s.apply(func(list []core.Bill) []core.Bill {
		return append(list, bill)
	})
	s.logger.InfoContext(ctx, "Bill created", log.NewFields().
		WithOperation(log.OpCreate).
		WithUser(userID).
		WithBill(bill.ID, bill.Name, bill.Amount.StringFixed(2), bill.DueDate.String()).
		ToSlice()...)
	return bill, nil
}

// Update overwrites every mutable field of the bill.
func (s *Store) Update(ctx context.Context, id string, draft core.BillDraft) (core.Bill, error) {
	d := draft.Normalize()
	if err := d.Validate(); err != nil {
		return core.Bill{}, err
	}
	userID, err := auth.UserID(ctx, s.identity)
	if err != nil {
		return core.Bill{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.repo.UpdateBill(ctx, userID, id, d); err != nil {
		return core.Bill{}, s.fail(core.Remote("update bill", err))
	}
	bill := d.Bill(id)
	s.apply(func(list []core.Bill) []core.Bill {
		for i := range list {
			if list[i].ID == id {
				list[i] = bill
			}
		}
		return list
	})
	s.logger.InfoContext(ctx, "Bill updated", log.FieldOperation, log.OpUpdate, log.FieldUserID, userID, log.FieldBillID, id)
	return bill, nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	userID, err := auth.UserID(ctx, s.identity)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.repo.DeleteBill(ctx, userID, id); err != nil {
		return s.fail(core.Remote("delete bill", err))
	}
	s.apply(func(list []core.Bill) []core.Bill {
		out := list[:0]
		for _, b := range list {
			if b.ID != id {
				out = append(out, b)
			}
		}
		return out
	})
	s.logger.InfoContext(ctx, "Bill removed", log.FieldOperation, log.OpDelete, log.FieldUserID, userID, log.FieldBillID, id)
	return nil
}

// TogglePaid flips the paid flag with a single-field update.
// The bill must be in the mirror.
func (s *Store) TogglePaid(ctx context.Context, id string) (core.Bill, error) {
	userID, err := auth.UserID(ctx, s.identity)
	if err != nil {
		return core.Bill{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	bill, ok := s.Get(id)
	if !ok {
		return core.Bill{}, core.ErrNotFound
	}
	bill.IsPaid = !bill.IsPaid
	if err := s.repo.SetBillPaid(ctx, userID, id, bill.IsPaid); err != nil {
		return core.Bill{}, s.fail(core.Remote("toggle paid", err))
	}
	s.apply(func(list []core.Bill) []core.Bill {
		for i := range list {
			if list[i].ID == id {
				list[i].IsPaid = bill.IsPaid
			}
		}
		return list
	})
	s.logger.InfoContext(ctx, "Bill paid status toggled",
		log.FieldOperation, log.OpToggle,
		log.FieldUserID, userID,
		log.FieldBillID, id,
		"is_paid", bill.IsPaid)
	return bill, nil
}

func (s *Store) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

// fail records err as the retained error and returns it.
func (s *Store) fail(err error) error {
	s.mu.Lock()
	s.err = err
	s.loading = false
	s.mu.Unlock()
	return err
}

func (s *Store) replace(list []core.Bill) {
	s.apply(func([]core.Bill) []core.Bill {
		return append([]core.Bill(nil), list...)
	})
}

// apply mutates the mirror, clears the retained error and notifies
// listeners outside the lock.
func (s *Store) apply(fn func([]core.Bill) []core.Bill) {
	s.mu.Lock()
	s.bills = fn(s.bills)
	s.err = nil
	s.loading = false
	snapshot := append([]core.Bill(nil), s.bills...)
	fns := make([]func([]core.Bill), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}
