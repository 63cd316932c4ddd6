package rx

import "sync"

// Subject is a hot multicast stream: values pushed with Next reach every
// current subscriber. Late subscribers to a terminated subject receive the
// terminal notification immediately.
//
// Thread-safety: Subject is safe for concurrent use. Observers are invoked
// outside the internal lock.
type Subject[T any] struct {
	mu        sync.Mutex
	observers []*Subscriber[T]
	done      bool
	err       error
}

// NewSubject creates an open subject.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{}
}

// Next multicasts v.
func (s *Subject[T]) Next(v T) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	observers := make([]*Subscriber[T], len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		o.Next(v)
	}
}

// Error terminates every subscriber with err.
func (s *Subject[T]) Error(err error) {
	observers, ok := s.terminate(err)
	if !ok {
		return
	}
	for _, o := range observers {
		o.Error(err)
	}
}

// Complete terminates every subscriber successfully.
func (s *Subject[T]) Complete() {
	observers, ok := s.terminate(nil)
	if !ok {
		return
	}
	for _, o := range observers {
		o.Complete()
	}
}

func (s *Subject[T]) terminate(err error) ([]*Subscriber[T], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, false
	}
	s.done = true
	s.err = err
	observers := s.observers
	s.observers = nil
	return observers, true
}

// Observable returns the subscribe side of the subject.
func (s *Subject[T]) Observable() Observable[T] {
	return New(func(sub *Subscriber[T]) {
		s.mu.Lock()
		if s.done {
			err := s.err
			s.mu.Unlock()
			if err != nil {
				sub.Error(err)
			} else {
				sub.Complete()
			}
			return
		}
		s.observers = append(s.observers, sub)
		s.mu.Unlock()

		sub.Add(func() { s.remove(sub) })
	})
}

// Observers returns the number of current subscribers.
func (s *Subject[T]) Observers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}

func (s *Subject[T]) remove(sub *Subscriber[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.observers {
		if o == sub {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}
