package adapters

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billtracker/internal/changefeed"
	"billtracker/internal/core"
	"billtracker/internal/log"
	"billtracker/internal/remote"
	"billtracker/internal/remote/memory"
)

type recordingPublisher struct {
	mu      sync.Mutex
	changes []changefeed.Change
	err     error
}

func (p *recordingPublisher) PublishChange(_ context.Context, c changefeed.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
	return p.err
}

func signalled(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	case <-time.After(50 * time.Millisecond):
		return false
	}
}

func TestAnnouncingBillsPublishesOnSuccessOnly(t *testing.T) {
	ctx := context.Background()
	broker := changefeed.NewBroker()
	pub := &recordingPublisher{}
	bills := NewAnnouncingBills(memory.New(), NewAnnouncer(broker, pub, log.Discard()))

	feed, cancel := broker.ForUser("u1").Subscribe(remote.TableBills)
	defer cancel()

	b, err := bills.InsertBill(ctx, "u1", core.BillDraft{
		Name: "Rent", Amount: decimal.NewFromInt(900), Category: "rent",
		DueDate: core.NewDate(2026, 2, 1), Frequency: core.Monthly,
	})
	require.NoError(t, err)
	assert.True(t, signalled(feed))

	err = bills.SetBillPaid(ctx, "u1", "missing", true)
	assert.True(t, errors.Is(err, core.ErrNotFound))
	assert.False(t, signalled(feed), "failed writes must not be announced")

	require.NoError(t, bills.DeleteBill(ctx, "u1", b.ID))
	assert.True(t, signalled(feed))

	require.Len(t, pub.changes, 2)
	assert.Equal(t, changefeed.Change{Table: "bills", Op: "INSERT", UserID: "u1"}, pub.changes[0])
	assert.Equal(t, "DELETE", pub.changes[1].Op)
}

func TestAnnouncerToleratesRemoteFailure(t *testing.T) {
	broker := changefeed.NewBroker()
	pub := &recordingPublisher{err: errors.New("broker down")}
	cats := NewAnnouncingCategories(memory.New(), NewAnnouncer(broker, pub, log.Discard()))

	feed, cancel := broker.Subscribe(remote.TableCustomCategories)
	defer cancel()

	require.NoError(t, cats.InsertCategory(context.Background(), "u1", "gym"))
	assert.True(t, signalled(feed))
}
