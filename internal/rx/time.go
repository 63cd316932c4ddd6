package rx

import (
	"sync"
	"time"
)

// timerSlot holds the cancel function of at most one pending task.
type timerSlot struct {
	mu      sync.Mutex
	cancel  func()
	stopped bool
}

// set stores cancel unless the slot was stopped, in which case the task is
// cancelled right away.
func (t *timerSlot) set(cancel func()) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		cancel()
		return
	}
	t.cancel = cancel
	t.mu.Unlock()
}

func (t *timerSlot) clear() {
	t.mu.Lock()
	t.cancel = nil
	t.mu.Unlock()
}

func (t *timerSlot) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

func (t *timerSlot) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// stop cancels the pending task and refuses new ones.
func (t *timerSlot) stop() {
	t.mu.Lock()
	t.stopped = true
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Interval emits 0, 1, 2, ... every period. Cancelling the subscription
// clears the pending timer.
func Interval(sched Scheduler, period time.Duration) Observable[int] {
	return Timer(sched, period, period)
}

// Timer emits 0 after delay. With a positive period it keeps emitting
// increasing integers every period; otherwise it completes after the first
// value.
func Timer(sched Scheduler, delay time.Duration, period ...time.Duration) Observable[int] {
	var every time.Duration
	if len(period) > 0 {
		every = period[0]
	}

	return New(func(s *Subscriber[int]) {
		slot := &timerSlot{}
		s.Add(slot.stop)

		n := 0
		var tick func()
		tick = func() {
			if slot.isStopped() {
				return
			}
			v := n
			n++
			if every > 0 {
				slot.set(sched.Schedule(every, tick))
			} else {
				slot.clear()
			}
			s.Next(v)
			if every <= 0 {
				s.Complete()
			}
		}
		slot.set(sched.Schedule(delay, tick))
	})
}

// ThrottleTime emits the first value of every window and drops the rest
// until the window elapses.
func (o Observable[T]) ThrottleTime(sched Scheduler, window time.Duration) Observable[T] {
	return New(func(s *Subscriber[T]) {
		slot := &timerSlot{}
		s.Add(slot.stop)

		o.subscribeChild(s.Subscription, ObserverFuncs[T]{
			OnNext: func(v T) {
				if slot.active() {
					return
				}
				slot.set(sched.Schedule(window, slot.clear))
				s.Next(v)
			},
			OnError:    s.Error,
			OnComplete: s.Complete,
		})
	})
}

// AuditTime starts a window on the first value and, when it elapses, emits
// the latest value seen during the window. A source completion waits for a
// pending window to emit before completing.
func (o Observable[T]) AuditTime(sched Scheduler, window time.Duration) Observable[T] {
	return New(func(s *Subscriber[T]) {
		slot := &timerSlot{}
		s.Add(slot.stop)

		var mu sync.Mutex
		var latest T
		completeAfter := false

		fire := func() {
			mu.Lock()
			v := latest
			done := completeAfter
			mu.Unlock()
			slot.clear()
			s.Next(v)
			if done {
				s.Complete()
			}
		}

		o.subscribeChild(s.Subscription, ObserverFuncs[T]{
			OnNext: func(v T) {
				mu.Lock()
				latest = v
				mu.Unlock()
				if !slot.active() {
					slot.set(sched.Schedule(window, fire))
				}
			},
			OnError: s.Error,
			OnComplete: func() {
				if !slot.active() {
					s.Complete()
					return
				}
				mu.Lock()
				completeAfter = true
				mu.Unlock()
			},
		})
	})
}
