package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billtracker/internal/amqp"
	"billtracker/internal/log"
	"billtracker/internal/notify"
)

type fakeReminder struct {
	fired int
	err   error
	calls int
}

func (f *fakeReminder) Reevaluate(context.Context) (*notify.Evaluation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &notify.Evaluation{Fired: f.fired}, nil
}

func TestRunOnceContinuesPastFailures(t *testing.T) {
	ok := &fakeReminder{fired: 2}
	bad := &fakeReminder{err: errors.New("redis down")}
	other := &fakeReminder{fired: 1}

	w := NewReminderWorker(Static(ok, bad, other), time.Minute, log.Discard())
	fired, err := w.RunOnce(context.Background())

	assert.Equal(t, 3, fired)
	assert.ErrorContains(t, err, "redis down")
	assert.Equal(t, 1, other.calls)
}

func TestRunStopsOnCancel(t *testing.T) {
	r := &fakeReminder{}
	w := NewReminderWorker(Static(r), 5*time.Millisecond, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestAlertWorker(t *testing.T) {
	var shown []notify.Alert
	display := notify.NotifierFunc(func(_ context.Context, a notify.Alert) error {
		shown = append(shown, a)
		return nil
	})
	w := NewAlertWorker(display, "alice", log.Discard())
	ctx := context.Background()

	require.NoError(t, w.HandleAlertMessage(ctx, &amqp.AlertMessage{UserID: "alice", Title: "Bill Due Today: Rent", Body: "$900.00 is due today", Tag: "b1"}))
	require.NoError(t, w.HandleAlertMessage(ctx, &amqp.AlertMessage{UserID: "bob", Title: "x", Tag: "b2"}))

	require.Len(t, shown, 1)
	assert.Equal(t, notify.Alert{Title: "Bill Due Today: Rent", Body: "$900.00 is due today", Tag: "b1"}, shown[0])
}

func TestAlertWorkerRequeuesOnDisplayFailure(t *testing.T) {
	display := notify.NotifierFunc(func(context.Context, notify.Alert) error {
		return errors.New("no display")
	})
	w := NewAlertWorker(display, "", log.Discard())
	err := w.HandleAlertMessage(context.Background(), &amqp.AlertMessage{Tag: "b1"})
	assert.ErrorContains(t, err, "show alert b1")
}
