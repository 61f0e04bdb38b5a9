package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"billtracker/internal/changefeed"
	"billtracker/internal/log"
)

// NotifyChannel is the channel the change trigger notifies on.
const NotifyChannel = "billtracker_changes"

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// Publisher receives decoded change notifications.
type Publisher interface {
	Publish(changefeed.Change)
}

// Listener holds a dedicated connection in LISTEN mode and forwards every
// notification to a Publisher. It reconnects with capped exponential backoff.
type Listener struct {
	pool   *pgxpool.Pool
	pub    Publisher
	logger *log.Logger
}

func NewListener(db *DB, pub Publisher, logger *log.Logger) *Listener {
	return &Listener{pool: db.Pool(), pub: pub, logger: logger.WithComponent("pg-listener")}
}

// Run blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		subscribed, err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		var wait time.Duration
		wait, backoff = retryDelay(backoff, subscribed)
		l.logger.Warn("Change listener disconnected, retrying",
			log.FieldError, err,
			"backoff", wait.String())

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// listen reports whether LISTEN succeeded before the connection was lost.
func (l *Listener) listen(ctx context.Context) (bool, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return false, fmt.Errorf("listen: %w", err)
	}
	l.logger.Info("Listening for table changes", "channel", NotifyChannel)

	// Anything missed while disconnected is covered by a broadcast reload.
	l.pub.Publish(changefeed.Change{Table: "bills", Op: "RESYNC"})
	l.pub.Publish(changefeed.Change{Table: "custom_categories", Op: "RESYNC"})

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return true, err
		}
		change, err := DecodeChange(n.Payload)
		if err != nil {
			l.logger.Warn("Ignoring malformed notification", log.FieldError, err)
			continue
		}
		l.pub.Publish(change)
	}
}

// DecodeChange parses a trigger payload.
func DecodeChange(payload string) (changefeed.Change, error) {
	var c changefeed.Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return changefeed.Change{}, fmt.Errorf("decode change: %w", err)
	}
	if c.Table == "" {
		return changefeed.Change{}, errors.New("decode change: missing table")
	}
	return c, nil
}

// retryDelay returns the wait before the next attempt and the backoff to
// carry after it. A connection that got as far as LISTEN starts over at
// minBackoff.
func retryDelay(backoff time.Duration, subscribed bool) (wait, next time.Duration) {
	if subscribed {
		backoff = minBackoff
	}
	return backoff, nextBackoff(backoff)
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
