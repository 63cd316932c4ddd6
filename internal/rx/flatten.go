package rx

import (
	"slices"
	"sync"
)

// MergeMap subscribes to project(v) for every source value and forwards
// all inner values concurrently. It completes once the source and every
// active inner stream completed. Any error cancels everything.
func MergeMap[T, R any](src Observable[T], project func(T) Observable[R]) Observable[R] {
	return New(func(s *Subscriber[R]) {
		var mu sync.Mutex
		active := 0
		sourceDone := false

		completeIfIdle := func() {
			mu.Lock()
			idle := sourceDone && active == 0
			mu.Unlock()
			if idle {
				s.Complete()
			}
		}

		src.subscribeChild(s.Subscription, ObserverFuncs[T]{
			OnNext: func(v T) {
				inner := project(v)
				mu.Lock()
				active++
				mu.Unlock()
				inner.subscribeChild(s.Subscription, ObserverFuncs[R]{
					OnNext:  s.Next,
					OnError: s.Error,
					OnComplete: func() {
						mu.Lock()
						active--
						mu.Unlock()
						completeIfIdle()
					},
				})
			},
			OnError: s.Error,
			OnComplete: func() {
				mu.Lock()
				sourceDone = true
				mu.Unlock()
				completeIfIdle()
			},
		})
	})
}

// MergeAll flattens a stream of streams with MergeMap semantics.
func MergeAll[T any](src Observable[Observable[T]]) Observable[T] {
	return MergeMap(src, func(inner Observable[T]) Observable[T] { return inner })
}

// Merge runs all sources concurrently and completes when all completed.
func Merge[T any](sources ...Observable[T]) Observable[T] {
	return MergeAll(FromSlice(sources))
}

// SwitchMap subscribes to project(v) for every source value, cancelling the
// previous inner stream first. Values from a cancelled inner never reach the
// output. It completes when the source completed and no inner is active.
func SwitchMap[T, R any](src Observable[T], project func(T) Observable[R]) Observable[R] {
	return New(func(s *Subscriber[R]) {
		var mu sync.Mutex
		var current *Subscription
		generation := 0
		sourceDone := false

		src.subscribeChild(s.Subscription, ObserverFuncs[T]{
			OnNext: func(v T) {
				mu.Lock()
				generation++
				id := generation
				prev := current
				current = nil
				mu.Unlock()

				if prev != nil {
					prev.Unsubscribe()
				}

				isCurrent := func() bool {
					mu.Lock()
					defer mu.Unlock()
					return id == generation
				}

				project(v).subscribeAttached(ObserverFuncs[R]{
					OnNext: func(r R) {
						if isCurrent() {
							s.Next(r)
						}
					},
					OnError: func(err error) {
						if isCurrent() {
							s.Error(err)
						}
					},
					OnComplete: func() {
						mu.Lock()
						if id != generation {
							mu.Unlock()
							return
						}
						current = nil
						done := sourceDone
						mu.Unlock()
						if done {
							s.Complete()
						}
					},
				}, func(sub *Subscription) {
					link(s.Subscription, sub)
					mu.Lock()
					if id == generation {
						current = sub
					}
					mu.Unlock()
				})
			},
			OnError: s.Error,
			OnComplete: func() {
				mu.Lock()
				sourceDone = true
				idle := current == nil
				mu.Unlock()
				if idle {
					s.Complete()
				}
			},
		})
	})
}

// CombineLatest emits a snapshot of the latest value of every source once
// all of them emitted, and again on every later emission. It completes when
// all sources completed, or as soon as a source completes without emitting.
func CombineLatest[T any](sources ...Observable[T]) Observable[[]T] {
	return New(func(s *Subscriber[[]T]) {
		n := len(sources)
		if n == 0 {
			s.Complete()
			return
		}

		var mu sync.Mutex
		values := make([]T, n)
		has := make([]bool, n)
		seen, completed := 0, 0

		for i, src := range sources {
			if s.Closed() {
				return
			}
			src.subscribeChild(s.Subscription, ObserverFuncs[T]{
				OnNext: func(v T) {
					mu.Lock()
					if !has[i] {
						has[i] = true
						seen++
					}
					values[i] = v
					var snapshot []T
					if seen == n {
						snapshot = slices.Clone(values)
					}
					mu.Unlock()
					if snapshot != nil {
						s.Next(snapshot)
					}
				},
				OnError: s.Error,
				OnComplete: func() {
					mu.Lock()
					completed++
					done := completed == n || !has[i]
					mu.Unlock()
					if done {
						s.Complete()
					}
				},
			})
		}
	})
}
