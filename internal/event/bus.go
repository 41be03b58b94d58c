// Package event provides a small typed publish/subscribe bus. It replaces
// the single-consumer callback fields a naive client would use: multiple
// consumers can subscribe without clobbering each other, and subscription
// lifetime is explicit via the returned cancel function.
package event

import "sync"

const subscriberBuffer = 32

// Bus fans events out to every active subscriber. Publish never blocks: a
// subscriber that falls more than subscriberBuffer events behind loses the
// oldest unread ones.
type Bus[T any] struct {
	mu   sync.Mutex
	subs map[int]chan T
	next int
}

// NewBus creates an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[int]chan T)}
}

// Subscribe registers a new consumer. The cancel function removes the
// subscription and closes the channel; it is safe to call more than once.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan T, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers ev to all subscribers without blocking. When a
// subscriber's buffer is full the oldest event is dropped to make room,
// so slow consumers see recent events rather than stalling publishers.
func (b *Bus[T]) Publish(ev T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
