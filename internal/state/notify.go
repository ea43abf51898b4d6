package state

import (
	"sync"

	"github.com/tr1v3r/mpvbridge/internal/monitoring"
)

// DefaultSubscriptionBuffer is used when Subscribe is given a non-positive size.
const DefaultSubscriptionBuffer = 32

// Subscription is an observer registration. Changes are queued in a bounded
// channel; when the queue is full the oldest queued change is dropped, so
// delivery order is preserved and the publisher never blocks.
type Subscription struct {
	mirror *Mirror
	ch     chan Change

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// Subscribe registers an observer with a queue of buffer changes.
func (m *Mirror) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}
	s := &Subscription{mirror: m, ch: make(chan Change, buffer), done: make(chan struct{})}

	m.subMu.Lock()
	m.subs[s] = struct{}{}
	m.subMu.Unlock()
	return s
}

// OnChange registers fn and calls it for every change on a dedicated
// goroutine until the subscription is cancelled.
func (m *Mirror) OnChange(fn func(Change)) *Subscription {
	s := m.Subscribe(DefaultSubscriptionBuffer)
	go func() {
		for {
			select {
			case c := <-s.ch:
				fn(c)
			case <-s.done:
				return
			}
		}
	}()
	return s
}

// C is the change queue.
func (s *Subscription) C() <-chan Change { return s.ch }

// Done is closed by Unsubscribe.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Unsubscribe removes the observer. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.mirror.subMu.Lock()
	delete(s.mirror.subs, s)
	s.mirror.subMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

func (s *Subscription) offer(c Change) {
	for {
		select {
		case s.ch <- c:
			return
		default:
		}
		// full: drop the oldest and retry
		select {
		case <-s.ch:
			monitoring.RecordDroppedNotification()
		default:
		}
	}
}

func (m *Mirror) publish(c Change) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for s := range m.subs {
		s.offer(c)
	}
}
