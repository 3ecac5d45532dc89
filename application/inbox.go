package application

import (
	"sync"
	"time"
)

type inboxItem struct {
	generation uint64
	event      BrokerEvent
	receivedAt time.Time
}

// inbox is an unbounded FIFO between transport goroutines and the single
// dispatch loop. push never blocks beyond one mutex section.
type inbox struct {
	mu    sync.Mutex
	items []inboxItem
	ready chan struct{}
}

func newInbox() *inbox {
	return &inbox{ready: make(chan struct{}, 1)}
}

func (q *inbox) push(item inboxItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *inbox) drain() []inboxItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

func (q *inbox) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
