package backend

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"billtracker/internal/amqp"
	"billtracker/internal/changefeed"
	"billtracker/internal/remote"
)

// Runner is a background loop owned by a backend, such as a change listener.
type Runner func(ctx context.Context) error

// Backend bundles the repositories of one data backend with its change feed.
type Backend struct {
	Type       BackendType
	Bills      remote.BillRepository
	Categories remote.CategoryRepository
	Users      remote.UserRepository
	Broker     *changefeed.Broker
	// AMQP is nil unless AMQP_URL is set and reachable.
	AMQP *amqp.Client

	ping     func(context.Context) error
	runners  []Runner
	cleanups []func() error
}

// Ping reports whether the store is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

// Run starts every background loop and blocks until ctx is cancelled or one fails.
func (b *Backend) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, run := range b.runners {
		g.Go(func() error { return run(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases resources in reverse order of acquisition.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.cleanups) - 1; i >= 0; i-- {
		if err := b.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.cleanups = nil
	return errors.Join(errs...)
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}
