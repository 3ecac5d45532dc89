package application

import (
	"fmt"
	"sync"
)

type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusFaulted
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ConnectionState is a snapshot of the broker connection lifecycle.
// Reason is only set when Status is StatusFaulted.
type ConnectionState struct {
	Status ConnectionStatus
	Reason error
}

func Disconnected() ConnectionState { return ConnectionState{Status: StatusDisconnected} }

func Connecting() ConnectionState { return ConnectionState{Status: StatusConnecting} }

func Connected() ConnectionState { return ConnectionState{Status: StatusConnected} }

func Faulted(reason error) ConnectionState {
	return ConnectionState{Status: StatusFaulted, Reason: reason}
}

func (s ConnectionState) IsConnected() bool {
	return s.Status == StatusConnected
}

func (s ConnectionState) String() string {
	if s.Status == StatusFaulted && s.Reason != nil {
		return fmt.Sprintf("faulted: %v", s.Reason)
	}
	return s.Status.String()
}

// CanTransitionTo reports whether next is a legal successor of s.
// Any state may move to Disconnected; that is how disconnect and teardown land.
func (s ConnectionState) CanTransitionTo(next ConnectionState) bool {
	if next.Status == StatusDisconnected {
		return true
	}

	switch s.Status {
	case StatusDisconnected:
		return next.Status == StatusConnecting
	case StatusConnecting:
		return next.Status == StatusConnected || next.Status == StatusFaulted
	case StatusConnected:
		return next.Status == StatusFaulted
	case StatusFaulted:
		return next.Status == StatusConnecting
	}
	return false
}

// StateObservable publishes ConnectionState to any number of readers.
// Only the owning ConnectionManager can publish; everybody else reads.
type StateObservable struct {
	mu      sync.RWMutex
	current ConnectionState
	subs    map[uint64]chan ConnectionState
	nextID  uint64
}

func NewStateObservable() *StateObservable {
	return &StateObservable{
		current: Disconnected(),
		subs:    make(map[uint64]chan ConnectionState),
	}
}

func (o *StateObservable) Current() ConnectionState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current
}

// Subscribe returns a channel that immediately holds the current state and then
// receives every later state. Slow readers only see the latest value.
// The returned cancel func closes the channel.
func (o *StateObservable) Subscribe() (<-chan ConnectionState, func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextID
	o.nextID++

	ch := make(chan ConnectionState, 1)
	ch <- o.current
	o.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if c, ok := o.subs[id]; ok {
				delete(o.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

func (o *StateObservable) publish(s ConnectionState) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.current = s
	for _, ch := range o.subs {
		// conflate: drop the unread value and keep the newest
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}
