// Package eventbus provides a small in-memory fanout used to decouple the
// scheduler from observers such as the activity recorder.
//
// Contract:
//   - Publish never blocks; slow subscribers drop events.
//   - Subscribe returns a buffered channel plus an unsubscribe func.
package eventbus

import (
	"sync"
	"time"
)

// TypeJobExecuted marks a scheduler outcome; Data carries the audit entry.
const TypeJobExecuted = "job.executed"

// Event is a lightweight in-memory signal. Data should be small and
// JSON-serializable.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.Mutex
	seq  uint64
	subs map[uint64]chan Event
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends are non-blocking, so holding the lock across delivery is cheap
	// and makes closing a channel in unsubscribe race-free.
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}
