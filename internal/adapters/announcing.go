// Package adapters decorates repositories so that every successful write is
// announced on the change feed, for backends without a native notification channel.
package adapters

import (
	"context"

	"billtracker/internal/changefeed"
	"billtracker/internal/core"
	"billtracker/internal/log"
	"billtracker/internal/remote"
)

// ChangePublisher forwards changes to other processes.
type ChangePublisher interface {
	PublishChange(ctx context.Context, c changefeed.Change) error
}

// Announcer publishes a change locally and, when configured, to other processes.
type Announcer struct {
	local  *changefeed.Broker
	remote ChangePublisher
	logger *log.Logger
}

// NewAnnouncer returns an Announcer. remote may be nil.
func NewAnnouncer(local *changefeed.Broker, remote ChangePublisher, logger *log.Logger) *Announcer {
	return &Announcer{local: local, remote: remote, logger: logger.WithComponent(log.ComponentBackend)}
}

func (a *Announcer) Announce(ctx context.Context, c changefeed.Change) {
	a.local.Publish(c)
	if a.remote == nil {
		return
	}
	// Other processes reconcile on their next change anyway.
	if err := a.remote.PublishChange(ctx, c); err != nil {
		a.logger.WarnContext(ctx, "Failed to fan out change",
			log.FieldTable, c.Table,
			log.FieldError, err)
	}
}

// AnnouncingBills wraps a BillRepository.
type AnnouncingBills struct {
	next remote.BillRepository
	ann  *Announcer
}

var _ remote.BillRepository = (*AnnouncingBills)(nil)

func NewAnnouncingBills(next remote.BillRepository, ann *Announcer) *AnnouncingBills {
	return &AnnouncingBills{next: next, ann: ann}
}

func (a *AnnouncingBills) ListBills(ctx context.Context, userID string) ([]core.Bill, error) {
	return a.next.ListBills(ctx, userID)
}

func (a *AnnouncingBills) InsertBill(ctx context.Context, userID string, d core.BillDraft) (core.Bill, error) {
	b, err := a.next.InsertBill(ctx, userID, d)
	if err == nil {
		a.announce(ctx, "INSERT", userID)
	}
	return b, err
}

func (a *AnnouncingBills) UpdateBill(ctx context.Context, userID, id string, d core.BillDraft) error {
	err := a.next.UpdateBill(ctx, userID, id, d)
	if err == nil {
		a.announce(ctx, "UPDATE", userID)
	}
	return err
}

func (a *AnnouncingBills) SetBillPaid(ctx context.Context, userID, id string, paid bool) error {
	err := a.next.SetBillPaid(ctx, userID, id, paid)
	if err == nil {
		a.announce(ctx, "UPDATE", userID)
	}
	return err
}

func (a *AnnouncingBills) DeleteBill(ctx context.Context, userID, id string) error {
	err := a.next.DeleteBill(ctx, userID, id)
	if err == nil {
		a.announce(ctx, "DELETE", userID)
	}
	return err
}

func (a *AnnouncingBills) announce(ctx context.Context, op, userID string) {
	a.ann.Announce(ctx, changefeed.Change{Table: remote.TableBills, Op: op, UserID: userID})
}

// AnnouncingCategories wraps a CategoryRepository.
type AnnouncingCategories struct {
	next remote.CategoryRepository
	ann  *Announcer
}

var _ remote.CategoryRepository = (*AnnouncingCategories)(nil)

func NewAnnouncingCategories(next remote.CategoryRepository, ann *Announcer) *AnnouncingCategories {
	return &AnnouncingCategories{next: next, ann: ann}
}

func (a *AnnouncingCategories) ListCategories(ctx context.Context, userID string) ([]string, error) {
	return a.next.ListCategories(ctx, userID)
}

func (a *AnnouncingCategories) InsertCategory(ctx context.Context, userID, name string) error {
	err := a.next.InsertCategory(ctx, userID, name)
	if err == nil {
		a.announce(ctx, "INSERT", userID)
	}
	return err
}

func (a *AnnouncingCategories) DeleteCategory(ctx context.Context, userID, name string) error {
	err := a.next.DeleteCategory(ctx, userID, name)
	if err == nil {
		a.announce(ctx, "DELETE", userID)
	}
	return err
}

func (a *AnnouncingCategories) announce(ctx context.Context, op, userID string) {
	a.ann.Announce(ctx, changefeed.Change{Table: remote.TableCustomCategories, Op: op, UserID: userID})
}
