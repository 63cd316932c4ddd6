package engine

import (
	"sync"

	"github.com/roach88/gasoline/internal/action"
)

// dispatchQueue is the trampoline of pending dispatches.
//
// Dispatch always enqueues first and then tries to become the drainer.
// Dispatches issued while a pass runs (from process pipelines, listeners
// or other goroutines) therefore wait here until the current drainer picks
// them up, instead of recursing into a half-finished pass.
//
// Thread-safety: dispatchQueue is safe for concurrent use.
type dispatchQueue struct {
	mu      sync.Mutex
	actions []action.Action
}

func newDispatchQueue() *dispatchQueue {
	return &dispatchQueue{
		actions: make([]action.Action, 0, 16),
	}
}

// Enqueue adds an action to the back of the queue.
func (q *dispatchQueue) Enqueue(a action.Action) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.actions = append(q.actions, a)
}

// TryDequeue removes and returns the front action.
// Returns (action.Action{}, false) if the queue is empty.
func (q *dispatchQueue) TryDequeue() (action.Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.actions) == 0 {
		return action.Action{}, false
	}

	a := q.actions[0]

	// Clear the slot so the backing array does not retain payloads.
	q.actions[0] = action.Action{}
	if len(q.actions) == 1 {
		q.actions = q.actions[:0]
	} else {
		q.actions = q.actions[1:]
	}
	return a, true
}

// Drop empties the queue and returns how many actions were discarded.
func (q *dispatchQueue) Drop() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.actions)
	clear(q.actions)
	q.actions = q.actions[:0]
	return n
}

// Len returns the current queue length.
func (q *dispatchQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.actions)
}
