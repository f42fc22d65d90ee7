// Package transport carries batches to the server and collects the events it answers with.
// CRC: crc-EventQueue.md
// Spec: protocol.md
package transport

import (
	"sync"
	"time"

	"github.com/zot/actionq/internal/protocol"
)

// EventQueue accumulates server events until the host drains them.
type EventQueue struct {
	queue   []protocol.Event
	waiters []chan struct{}
	mu      sync.Mutex
}

// NewEventQueue creates an empty event queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

// Enqueue adds events and wakes any pollers.
func (q *EventQueue) Enqueue(events ...protocol.Event) {
	if len(events) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.queue = append(q.queue, events...)
	for _, ch := range q.waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Drain returns all queued events and clears the queue.
func (q *EventQueue) Drain() []protocol.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.queue) == 0 {
		return nil
	}
	events := q.queue
	q.queue = nil
	return events
}

// Poll drains, waiting up to wait for something to arrive when empty.
func (q *EventQueue) Poll(wait time.Duration) []protocol.Event {
	events := q.Drain()
	if len(events) > 0 || wait == 0 {
		return events
	}

	ch := make(chan struct{}, 1)
	q.mu.Lock()
	q.waiters = append(q.waiters, ch)
	q.mu.Unlock()

	timer := time.NewTimer(wait)
	select {
	case <-ch:
	case <-timer.C:
	}
	timer.Stop()

	q.mu.Lock()
	for i, w := range q.waiters {
		if w == ch {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	return q.Drain()
}

// IsEmpty reports whether no events are queued.
func (q *EventQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue) == 0
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}
