package rx

import "sync"

// Subscription is a cancellable handle to a running stream.
//
// Unsubscribe runs every registered teardown exactly once, in registration
// order. Teardowns added after the subscription closed run immediately.
//
// Thread-safety: Subscription is safe for concurrent use.
type Subscription struct {
	mu        sync.Mutex
	closed    bool
	teardowns []*teardown
}

type teardown struct {
	fn func()
}

// NewSubscription creates an open subscription with optional teardowns.
func NewSubscription(teardowns ...func()) *Subscription {
	s := &Subscription{}
	for _, fn := range teardowns {
		s.Add(fn)
	}
	return s
}

// Add registers a teardown and returns a function that removes it again.
// Removing is a no-op once the teardown ran.
func (s *Subscription) Add(fn func()) (remove func()) {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return func() {}
	}
	td := &teardown{fn: fn}
	s.teardowns = append(s.teardowns, td)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, t := range s.teardowns {
			if t == td {
				s.teardowns = append(s.teardowns[:i], s.teardowns[i+1:]...)
				return
			}
		}
	}
}

// Unsubscribe cancels the subscription. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	tds := s.teardowns
	s.teardowns = nil
	s.mu.Unlock()

	for _, t := range tds {
		t.fn()
	}
}

// Closed reports whether Unsubscribe has been called.
func (s *Subscription) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// link ties child to parent: closing parent closes child, and a child that
// closes on its own drops out of parent's teardown list.
func link(parent, child *Subscription) {
	remove := parent.Add(child.Unsubscribe)
	child.Add(remove)
}
