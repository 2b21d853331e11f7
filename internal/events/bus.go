// Package events provides the in-process change bus that turns committed
// revisions into change notifications.
//
// The bus is owned by the server wiring and passed by injection to every
// component that needs it - there is no package-level singleton. Publish
// is called only after the owning transaction commits, so a listener can
// never observe an uncommitted revision.
package events

import (
	"log/slog"
	"sync"

	"github.com/satchelwiki/satchel/internal/model"
)

// Listener receives one committed revision. Listeners must be fast;
// delivery is synchronous fan-out on the publisher's goroutine.
type Listener func(rev model.Revision)

type subscription struct {
	bags map[string]bool
	fn   Listener
}

// Bus fans committed revisions out to listeners registered for the
// revision's bag. The listener list is guarded by its own lock, distinct
// from any data lock, so slow subscriber registration never blocks a
// publisher on storage work.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscription
	logger *slog.Logger
}

// NewBus creates an empty bus. A nil logger falls back to slog.Default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{subs: make(map[int]*subscription), logger: logger}
}

// Subscribe registers interest in a set of bag names. The returned
// function removes the subscription; callers must invoke it to avoid
// leaks. Unsubscribing twice is harmless.
func (b *Bus) Subscribe(bags []string, fn Listener) (unsubscribe func()) {
	set := make(map[string]bool, len(bags))
	for _, bag := range bags {
		set[bag] = true
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscription{bags: set, fn: fn}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers a committed revision to every listener subscribed to
// its bag. A panicking listener is logged and isolated; it neither stops
// delivery to other listeners nor crashes the publisher.
func (b *Bus) Publish(rev model.Revision) {
	b.mu.RLock()
	var matched []Listener
	for _, sub := range b.subs {
		if sub.bags[rev.Bag] {
			matched = append(matched, sub.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range matched {
		b.deliver(fn, rev)
	}
}

func (b *Bus) deliver(fn Listener, rev model.Revision) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("change listener panicked", "bag", rev.Bag, "revision", rev.ID, "panic", r)
		}
	}()
	fn(rev)
}

// SubscriberCount returns the number of live subscriptions. Used for
// leak checks in tests.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
