package application

import "sync"

const DefaultBufferCapacity = 500

// MessageBuffer keeps the most recent raw messages in arrival order.
//
// Evicted entries are skipped by moving start forward; the backing slice is
// compacted in one batch once the dead prefix reaches capacity, so appends
// stay amortized O(1).
type MessageBuffer struct {
	mu       sync.Mutex
	capacity int
	entries  []RawMessage
	start    int
}

func NewMessageBuffer(capacity int) *MessageBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &MessageBuffer{
		capacity: capacity,
		entries:  make([]RawMessage, 0, capacity),
	}
}

func (b *MessageBuffer) Append(msg RawMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, msg)
	if len(b.entries)-b.start > b.capacity {
		b.start = len(b.entries) - b.capacity
	}

	if b.start >= b.capacity {
		live := copy(b.entries, b.entries[b.start:])
		// release references held by the evicted tail
		for i := live; i < len(b.entries); i++ {
			b.entries[i] = RawMessage{}
		}
		b.entries = b.entries[:live]
		b.start = 0
	}
}

// Snapshot returns a copy, oldest first.
func (b *MessageBuffer) Snapshot() []RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]RawMessage, len(b.entries)-b.start)
	copy(out, b.entries[b.start:])
	return out
}

func (b *MessageBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries) - b.start
}

func (b *MessageBuffer) Capacity() int {
	return b.capacity
}

func (b *MessageBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = make([]RawMessage, 0, b.capacity)
	b.start = 0
}
