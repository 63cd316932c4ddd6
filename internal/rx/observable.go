package rx

import "sync"

// Observer receives the notifications of a stream.
type Observer[T any] interface {
	Next(T)
	Error(error)
	Complete()
}

// ObserverFuncs adapts plain callbacks to Observer. Nil callbacks are ignored.
type ObserverFuncs[T any] struct {
	OnNext     func(T)
	OnError    func(error)
	OnComplete func()
}

// Next implements Observer.
func (o ObserverFuncs[T]) Next(v T) {
	if o.OnNext != nil {
		o.OnNext(v)
	}
}

// Error implements Observer.
func (o ObserverFuncs[T]) Error(err error) {
	if o.OnError != nil {
		o.OnError(err)
	}
}

// Complete implements Observer.
func (o ObserverFuncs[T]) Complete() {
	if o.OnComplete != nil {
		o.OnComplete()
	}
}

// Subscriber is the producer-facing side of a subscription.
//
// After Error or Complete (or after the subscription is cancelled) no
// further notifications reach the destination observer.
type Subscriber[T any] struct {
	*Subscription

	dest    Observer[T]
	stateMu sync.Mutex
	stopped bool
}

func newSubscriber[T any](dest Observer[T]) *Subscriber[T] {
	return &Subscriber[T]{
		Subscription: NewSubscription(),
		dest:         dest,
	}
}

// Next delivers a value unless the subscriber is stopped.
func (s *Subscriber[T]) Next(v T) {
	if s.isStopped() {
		return
	}
	s.dest.Next(v)
}

// Error terminates the stream with err and releases its resources.
func (s *Subscriber[T]) Error(err error) {
	if !s.stop() {
		return
	}
	s.dest.Error(err)
	s.Unsubscribe()
}

// Complete terminates the stream successfully and releases its resources.
func (s *Subscriber[T]) Complete() {
	if !s.stop() {
		return
	}
	s.dest.Complete()
	s.Unsubscribe()
}

func (s *Subscriber[T]) stop() bool {
	if s.Closed() {
		return false
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.stopped {
		return false
	}
	s.stopped = true
	return true
}

func (s *Subscriber[T]) isStopped() bool {
	s.stateMu.Lock()
	stopped := s.stopped
	s.stateMu.Unlock()
	return stopped || s.Closed()
}

// Observable is a lazily started push stream. The zero value completes
// immediately on subscribe.
type Observable[T any] struct {
	producer func(*Subscriber[T])
}

// New creates an Observable from a producer. The producer runs once per
// subscription and registers its cleanup with Subscriber.Add.
func New[T any](producer func(*Subscriber[T])) Observable[T] {
	return Observable[T]{producer: producer}
}

// Subscribe starts the stream and returns its cancellation handle.
func (o Observable[T]) Subscribe(obs Observer[T]) *Subscription {
	return o.subscribeAttached(obs, nil)
}

// SubscribeFunc subscribes with a next callback only.
func (o Observable[T]) SubscribeFunc(next func(T)) *Subscription {
	return o.Subscribe(ObserverFuncs[T]{OnNext: next})
}

// subscribeAttached hands the new subscription to attach before the
// producer runs, so the caller can cancel a synchronous producer mid-flight.
func (o Observable[T]) subscribeAttached(obs Observer[T], attach func(*Subscription)) *Subscription {
	s := newSubscriber(obs)
	if attach != nil {
		attach(s.Subscription)
	}
	if s.Closed() {
		return s.Subscription
	}
	if o.producer == nil {
		s.Complete()
		return s.Subscription
	}
	o.producer(s)
	return s.Subscription
}

// subscribeChild subscribes with the new subscription linked under parent.
func (o Observable[T]) subscribeChild(parent *Subscription, obs Observer[T]) *Subscription {
	return o.subscribeAttached(obs, func(child *Subscription) {
		link(parent, child)
	})
}

// FromSlice emits every item in order, then completes.
func FromSlice[T any](items []T) Observable[T] {
	return New(func(s *Subscriber[T]) {
		for _, v := range items {
			if s.Closed() {
				return
			}
			s.Next(v)
		}
		s.Complete()
	})
}

// Of emits its arguments in order, then completes.
func Of[T any](items ...T) Observable[T] {
	return FromSlice(items)
}

// Empty completes immediately.
func Empty[T any]() Observable[T] {
	return New(func(s *Subscriber[T]) {
		s.Complete()
	})
}

// Never neither emits nor terminates.
func Never[T any]() Observable[T] {
	return New(func(*Subscriber[T]) {})
}

// Throw errors immediately with err.
func Throw[T any](err error) Observable[T] {
	return New(func(s *Subscriber[T]) {
		s.Error(err)
	})
}

// Defer calls factory on every subscribe and subscribes to its result.
func Defer[T any](factory func() Observable[T]) Observable[T] {
	return New(func(s *Subscriber[T]) {
		factory().subscribeChild(s.Subscription, s)
	})
}
