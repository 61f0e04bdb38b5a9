// Package changefeed provides an in-process "table changed" signal.
//
// Producers (repository decorators, the Postgres listener, the AMQP consumer)
// publish a Change; subscribers only learn that something changed and reload.
// Signals are coalesced: a subscriber that is busy refetching sees at most one
// pending signal, which is enough to guarantee a fresh read afterwards.
package changefeed

import (
	"sync"

	"billtracker/internal/remote"
)

// Change describes a write to a watched table. An empty UserID reaches every subscriber.
type Change struct {
	Table  string `json:"table"`
	Op     string `json:"op"`
	UserID string `json:"user_id"`
}

type subscriber struct {
	table  string
	userID string
	ch     chan struct{}
}

// Broker fans changes out to subscribers.
type Broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[int]*subscriber)}
}

// Publish signals every subscriber watching c.Table for c.UserID.
func (b *Broker) Publish(c Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.subs {
		if s.table != c.Table {
			continue
		}
		if c.UserID != "" && s.userID != "" && s.userID != c.UserID {
			continue
		}
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe watches a table for every user.
func (b *Broker) Subscribe(table string) (<-chan struct{}, func()) {
	return b.subscribe(table, "")
}

// ForUser returns a feed restricted to one user's rows.
func (b *Broker) ForUser(userID string) remote.ChangeFeed {
	return userFeed{broker: b, userID: userID}
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broker) subscribe(table, userID string) (<-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	s := &subscriber{table: table, userID: userID, ch: make(chan struct{}, 1)}
	b.subs[id] = s

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, cancel
}

type userFeed struct {
	broker *Broker
	userID string
}

func (f userFeed) Subscribe(table string) (<-chan struct{}, func()) {
	return f.broker.subscribe(table, f.userID)
}
