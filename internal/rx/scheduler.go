package rx

import (
	"sync"
	"time"
)

// Scheduler runs delayed tasks. Time-based operators depend on it instead
// of the wall clock so tests can drive them with VirtualScheduler.
type Scheduler interface {
	// Now returns the scheduler's current time.
	Now() time.Time

	// Schedule runs task once after delay. The returned cancel function
	// prevents the task from running if it has not started yet.
	Schedule(delay time.Duration, task func()) (cancel func())
}

// RealScheduler schedules tasks on the wall clock with time.AfterFunc.
// Tasks run on their own goroutine.
type RealScheduler struct{}

// Now implements Scheduler.
func (RealScheduler) Now() time.Time {
	return time.Now()
}

// Schedule implements Scheduler.
func (RealScheduler) Schedule(delay time.Duration, task func()) func() {
	t := time.AfterFunc(delay, task)
	return func() { t.Stop() }
}

// VirtualScheduler is a deterministic scheduler for tests. Time only moves
// when Advance or AdvanceTo is called; due tasks then run synchronously on
// the caller's goroutine in (due time, schedule order) order.
type VirtualScheduler struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*virtualTask
}

type virtualTask struct {
	due time.Time
	seq int
	fn  func()
}

// NewVirtualScheduler creates a virtual scheduler whose clock starts at start.
func NewVirtualScheduler(start time.Time) *VirtualScheduler {
	return &VirtualScheduler{now: start}
}

// Now implements Scheduler.
func (v *VirtualScheduler) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

// Schedule implements Scheduler.
func (v *VirtualScheduler) Schedule(delay time.Duration, task func()) func() {
	if delay < 0 {
		delay = 0
	}
	v.mu.Lock()
	v.seq++
	t := &virtualTask{due: v.now.Add(delay), seq: v.seq, fn: task}
	v.tasks = append(v.tasks, t)
	v.mu.Unlock()

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.removeLocked(t)
	}
}

// Advance moves the clock forward by d, running every task that falls due.
func (v *VirtualScheduler) Advance(d time.Duration) {
	v.AdvanceTo(v.Now().Add(d))
}

// AdvanceTo moves the clock to target, running every task that falls due.
// Tasks scheduled by running tasks are picked up if they are due by target.
func (v *VirtualScheduler) AdvanceTo(target time.Time) {
	for {
		v.mu.Lock()
		next := v.nextDueLocked(target)
		if next == nil {
			if target.After(v.now) {
				v.now = target
			}
			v.mu.Unlock()
			return
		}
		v.removeLocked(next)
		if next.due.After(v.now) {
			v.now = next.due
		}
		v.mu.Unlock()

		next.fn()
	}
}

// Pending returns the number of scheduled tasks that have not run yet.
func (v *VirtualScheduler) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.tasks)
}

func (v *VirtualScheduler) nextDueLocked(target time.Time) *virtualTask {
	var best *virtualTask
	for _, t := range v.tasks {
		if t.due.After(target) {
			continue
		}
		if best == nil || t.due.Before(best.due) || (t.due.Equal(best.due) && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (v *VirtualScheduler) removeLocked(t *virtualTask) {
	for i, task := range v.tasks {
		if task == t {
			v.tasks = append(v.tasks[:i], v.tasks[i+1:]...)
			return
		}
	}
}
