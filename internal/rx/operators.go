package rx

// Map transforms every value with fn. An error returned by fn terminates
// the stream with that error.
func Map[T, R any](src Observable[T], fn func(T) (R, error)) Observable[R] {
	return New(func(s *Subscriber[R]) {
		src.subscribeChild(s.Subscription, ObserverFuncs[T]{
			OnNext: func(v T) {
				r, err := fn(v)
				if err != nil {
					s.Error(err)
					return
				}
				s.Next(r)
			},
			OnError:    s.Error,
			OnComplete: s.Complete,
		})
	})
}

// Filter passes through values for which keep returns true.
func (o Observable[T]) Filter(keep func(T) bool) Observable[T] {
	return New(func(s *Subscriber[T]) {
		o.subscribeChild(s.Subscription, ObserverFuncs[T]{
			OnNext: func(v T) {
				if keep(v) {
					s.Next(v)
				}
			},
			OnError:    s.Error,
			OnComplete: s.Complete,
		})
	})
}

// Do calls fn for every value before passing it on.
func (o Observable[T]) Do(fn func(T)) Observable[T] {
	return New(func(s *Subscriber[T]) {
		o.subscribeChild(s.Subscription, ObserverFuncs[T]{
			OnNext: func(v T) {
				fn(v)
				s.Next(v)
			},
			OnError:    s.Error,
			OnComplete: s.Complete,
		})
	})
}

// Take emits the first n values and completes. Take(0) completes without
// subscribing to the source.
func (o Observable[T]) Take(n int) Observable[T] {
	return New(func(s *Subscriber[T]) {
		if n <= 0 {
			s.Complete()
			return
		}
		seen := 0
		o.subscribeChild(s.Subscription, ObserverFuncs[T]{
			OnNext: func(v T) {
				seen++
				s.Next(v)
				if seen >= n {
					s.Complete()
				}
			},
			OnError:    s.Error,
			OnComplete: s.Complete,
		})
	})
}

// Skip drops the first n values.
func (o Observable[T]) Skip(n int) Observable[T] {
	return New(func(s *Subscriber[T]) {
		seen := 0
		o.subscribeChild(s.Subscription, ObserverFuncs[T]{
			OnNext: func(v T) {
				if seen < n {
					seen++
					return
				}
				s.Next(v)
			},
			OnError:    s.Error,
			OnComplete: s.Complete,
		})
	})
}

// StartWith emits values before the source's own values.
func (o Observable[T]) StartWith(values ...T) Observable[T] {
	return New(func(s *Subscriber[T]) {
		for _, v := range values {
			if s.Closed() {
				return
			}
			s.Next(v)
		}
		o.subscribeChild(s.Subscription, s)
	})
}

// CatchError replaces a source error with the stream returned by handler.
func (o Observable[T]) CatchError(handler func(error) Observable[T]) Observable[T] {
	return New(func(s *Subscriber[T]) {
		o.subscribeChild(s.Subscription, ObserverFuncs[T]{
			OnNext: s.Next,
			OnError: func(err error) {
				handler(err).subscribeChild(s.Subscription, s)
			},
			OnComplete: s.Complete,
		})
	})
}

// TakeUntil mirrors src until notifier emits or completes, then completes.
// A notifier error is forwarded.
func TakeUntil[T, U any](src Observable[T], notifier Observable[U]) Observable[T] {
	return New(func(s *Subscriber[T]) {
		notifier.subscribeChild(s.Subscription, ObserverFuncs[U]{
			OnNext:     func(U) { s.Complete() },
			OnError:    s.Error,
			OnComplete: s.Complete,
		})
		if s.Closed() {
			return
		}
		src.subscribeChild(s.Subscription, s)
	})
}
