// Package events implements the archive's `change` broadcast contract:
// after any committed mutation, every interested observer is notified with
// a small {created, updated, deleted} payload. Grounded on the teacher's
// scheduler channel idiom (pkg/job/scheduler.go's done chan chan struct{})
// rather than a generic pub/sub library, per spec.md §9's preference for
// "typed channels" over an event-emitter.
package events

import (
	"sync"

	"github.com/conatus-oss/dana-archive/internal/entity"
)

// Bus fans a single stream of ChangeEvents out to any number of
// subscribers. Subscribers that fall behind are dropped silently rather
// than blocking the publisher — the archive itself never waits on an
// observer.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan entity.ChangeEvent
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan entity.ChangeEvent)}
}

// Subscribe returns a channel that receives every future Publish call, and
// an unsubscribe function to stop receiving and release the channel.
func (b *Bus) Subscribe() (<-chan entity.ChangeEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan entity.ChangeEvent, 16)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

// Publish broadcasts evt to every current subscriber. Called only after the
// database flush for the causing operation has succeeded, so observers
// never see a change event for state that isn't durable yet.
func (b *Bus) Publish(evt entity.ChangeEvent) {
	if evt.Empty() {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Slow subscriber; drop rather than block the publisher.
		}
	}
}
