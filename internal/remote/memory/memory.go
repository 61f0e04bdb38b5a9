// Package memory is an in-process implementation of the remote store ports,
// used by tests and by DATA_BACKEND=memory.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"billtracker/internal/core"
	"billtracker/internal/remote"
)

var (
	_ remote.BillRepository     = (*Store)(nil)
	_ remote.CategoryRepository = (*Store)(nil)
	_ remote.UserRepository     = (*Store)(nil)
)

type billRow struct {
	userID string
	bill   core.Bill
}

type Store struct {
	mu    sync.Mutex
	bills map[string]billRow
	cats  map[string]map[string]struct{}
	users map[string]core.User
}

func New() *Store {
	return &Store{
		bills: make(map[string]billRow),
		cats:  make(map[string]map[string]struct{}),
		users: make(map[string]core.User),
	}
}

// ListBills returns the user's bills ordered by due date.
func (s *Store) ListBills(_ context.Context, userID string) ([]core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Bill
	for _, row := range s.bills {
		if row.userID == userID {
			out = append(out, row.bill)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	return out, nil
}

// InsertBill stores the bill under a fresh identifier.
func (s *Store) InsertBill(_ context.Context, userID string, d core.BillDraft) (core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := d.Bill(uuid.NewString())
	s.bills[b.ID] = billRow{userID: userID, bill: b}
	return b, nil
}

func (s *Store) UpdateBill(_ context.Context, userID, id string, d core.BillDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.bills[id]
	if !ok || row.userID != userID {
		return core.ErrNotFound
	}
	row.bill = d.Bill(id)
	s.bills[id] = row
	return nil
}

func (s *Store) SetBillPaid(_ context.Context, userID, id string, paid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.bills[id]
	if !ok || row.userID != userID {
		return core.ErrNotFound
	}
	row.bill.IsPaid = paid
	s.bills[id] = row
	return nil
}

func (s *Store) DeleteBill(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.bills[id]
	if !ok || row.userID != userID {
		return core.ErrNotFound
	}
	delete(s.bills, id)
	return nil
}

// ListCategories returns custom categories sorted by name.
func (s *Store) ListCategories(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.cats[userID]))
	for name := range s.cats[userID] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) InsertCategory(_ context.Context, userID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.cats[userID]
	if !ok {
		set = make(map[string]struct{})
		s.cats[userID] = set
	}
	if _, dup := set[name]; dup {
		return core.ErrDuplicate
	}
	set[name] = struct{}{}
	return nil
}

// DeleteCategory is a no-op for unknown names, like a filtered DELETE.
func (s *Store) DeleteCategory(_ context.Context, userID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cats[userID], name)
	return nil
}

func (s *Store) CreateUser(_ context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	for _, existing := range s.users {
		if strings.ToLower(existing.Email) == email {
			return core.ErrDuplicate
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = *u
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email = strings.ToLower(email)
	for _, u := range s.users {
		if strings.ToLower(u.Email) == email {
			found := u
			return &found, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) GetUserByID(_ context.Context, id string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &u, nil
}
