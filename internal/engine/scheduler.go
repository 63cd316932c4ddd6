package engine

import (
	"sync/atomic"
	"time"

	"github.com/roach88/gasoline/internal/rx"
)

// storeScheduler serializes timer tasks with dispatch.
//
// Every task runs under the store's drain lock, and a task that was
// cancelled while it waited for the lock is skipped. Process pipelines
// therefore never observe a timer firing in the middle of a pass, and a
// switchMap that cancelled an inner timer during a pass never sees it fire
// afterwards.
type storeScheduler struct {
	store *Store
	inner rx.Scheduler
}

func (s *storeScheduler) Now() time.Time {
	return s.inner.Now()
}

func (s *storeScheduler) Schedule(delay time.Duration, task func()) func() {
	var cancelled atomic.Bool
	cancel := s.inner.Schedule(delay, func() {
		s.store.runTask(func() {
			if cancelled.Load() {
				return
			}
			task()
		})
	})
	return func() {
		cancelled.Store(true)
		cancel()
	}
}
