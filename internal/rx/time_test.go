package rx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInterval_EmitsIncreasingIntegers(t *testing.T) {
	sched := NewVirtualScheduler(epoch)
	rec := &recorder[int]{}

	sub := Interval(sched, 10*time.Millisecond).Subscribe(rec)
	sched.Advance(35 * time.Millisecond)

	assert.Equal(t, []int{0, 1, 2}, rec.values)

	sub.Unsubscribe()
	assert.Equal(t, 0, sched.Pending(), "cancel must clear the pending timer")

	sched.Advance(time.Second)
	assert.Equal(t, []int{0, 1, 2}, rec.values)
}

func TestTimer_SingleShot_Completes(t *testing.T) {
	sched := NewVirtualScheduler(epoch)
	rec := &recorder[int]{}

	Timer(sched, 50*time.Millisecond).Subscribe(rec)
	sched.Advance(49 * time.Millisecond)
	assert.Empty(t, rec.values)

	sched.Advance(time.Millisecond)
	assert.Equal(t, []int{0}, rec.values)
	assert.True(t, rec.completed)
}

func TestTimer_WithPeriod(t *testing.T) {
	sched := NewVirtualScheduler(epoch)
	rec := &recorder[int]{}

	Timer(sched, 50*time.Millisecond, 10*time.Millisecond).Subscribe(rec)
	sched.Advance(70 * time.Millisecond)

	assert.Equal(t, []int{0, 1, 2}, rec.values)
	assert.False(t, rec.completed)
}

func TestThrottleTime_EmitsLeadingValue(t *testing.T) {
	sched := NewVirtualScheduler(epoch)
	src := NewSubject[int]()
	rec := &recorder[int]{}

	src.Observable().ThrottleTime(sched, 100*time.Millisecond).Subscribe(rec)

	src.Next(1)
	src.Next(2)
	sched.Advance(50 * time.Millisecond)
	src.Next(3)
	sched.Advance(50 * time.Millisecond)
	src.Next(4)
	src.Next(5)

	assert.Equal(t, []int{1, 4}, rec.values)
}

func TestAuditTime_EmitsTrailingLatest(t *testing.T) {
	sched := NewVirtualScheduler(epoch)
	src := NewSubject[int]()
	rec := &recorder[int]{}

	src.Observable().AuditTime(sched, 100*time.Millisecond).Subscribe(rec)

	src.Next(1)
	src.Next(2)
	assert.Empty(t, rec.values)

	sched.Advance(50 * time.Millisecond)
	src.Next(3)
	sched.Advance(50 * time.Millisecond)
	assert.Equal(t, []int{3}, rec.values)

	src.Next(4)
	src.Complete()
	assert.False(t, rec.completed)

	sched.Advance(100 * time.Millisecond)
	assert.Equal(t, []int{3, 4}, rec.values)
	assert.True(t, rec.completed)
}

func TestAuditTime_Unsubscribe_CancelsWindow(t *testing.T) {
	sched := NewVirtualScheduler(epoch)
	src := NewSubject[int]()
	rec := &recorder[int]{}

	sub := src.Observable().AuditTime(sched, 100*time.Millisecond).Subscribe(rec)
	src.Next(1)
	sub.Unsubscribe()
	sched.Advance(time.Second)

	assert.Empty(t, rec.values)
	assert.Equal(t, 0, sched.Pending())
}

func TestVirtualScheduler_OrdersByDueThenSchedule(t *testing.T) {
	sched := NewVirtualScheduler(epoch)
	var order []string

	sched.Schedule(20*time.Millisecond, func() { order = append(order, "late") })
	sched.Schedule(10*time.Millisecond, func() { order = append(order, "first") })
	sched.Schedule(10*time.Millisecond, func() { order = append(order, "second") })
	sched.Advance(time.Minute)

	assert.Equal(t, []string{"first", "second", "late"}, order)
	assert.Equal(t, epoch.Add(time.Minute), sched.Now())
}
