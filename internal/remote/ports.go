package remote

import (
	"context"

	"billtracker/internal/core"
)

// Watched table names, as announced on the change feed.
const (
	TableBills            = "bills"
	TableCustomCategories = "custom_categories"
)

// Ports for the backing store. Every read and write is scoped to one user.
type (
	BillRepository interface {
		// ListBills returns the user's bills ordered by due date ascending.
		ListBills(ctx context.Context, userID string) ([]core.Bill, error)
		// InsertBill stores a new bill and returns it with its server-assigned ID.
		InsertBill(ctx context.Context, userID string, d core.BillDraft) (core.Bill, error)
		// UpdateBill overwrites every mutable field. Returns core.ErrNotFound if no row matched.
		UpdateBill(ctx context.Context, userID, id string, d core.BillDraft) error
		// SetBillPaid updates the paid flag only.
		SetBillPaid(ctx context.Context, userID, id string, paid bool) error
		DeleteBill(ctx context.Context, userID, id string) error
	}

	CategoryRepository interface {
		// ListCategories returns the user's custom category names ordered by name.
		ListCategories(ctx context.Context, userID string) ([]string, error)
		// InsertCategory returns core.ErrDuplicate when the name already exists for the user.
		InsertCategory(ctx context.Context, userID, name string) error
		DeleteCategory(ctx context.Context, userID, name string) error
	}

	UserRepository interface {
		// CreateUser returns core.ErrDuplicate when the email is taken.
		CreateUser(ctx context.Context, u *core.User) error
		GetUserByEmail(ctx context.Context, email string) (*core.User, error)
		GetUserByID(ctx context.Context, id string) (*core.User, error)
	}

	// ChangeFeed signals that a watched table changed. Signals carry no payload;
	// subscribers are expected to reload.
	ChangeFeed interface {
		Subscribe(table string) (<-chan struct{}, func())
	}
)
