// Package engine implements the gasoline store, the dispatch engine that
// owns a linked node graph.
//
// ARCHITECTURE:
//
// Trampoline Dispatch:
// Dispatch enqueues the action, then tries to acquire the drain lock. The
// goroutine holding it runs every queued pass before releasing it:
// 1. Stamp dispatch metadata (id, logical seq, scheduler time, parent)
// 2. Run the update pass over a copy of the committed digest
// 3. Swap the copy in if the root state reference changed
// 4. Publish the finalized action to process pipelines and Actions()
// 5. When the queue is empty, flush "updated <path>" listeners once
//
// A dispatch made during step 4 (a process pipeline reacting to the
// action) lands in the queue and runs in the same drain, so listeners see
// one consistent view of all passes of the drain.
//
// Timers:
// Process pipelines schedule timers through Store.Scheduler. Each timer
// task runs under the drain lock and is skipped when it was cancelled
// while waiting for it.
//
// CRITICAL PATTERNS:
//
// Lifecycle:
// not started -> started -> stopped. START, STOP and LOAD are
// synthesized by the store; dispatching them is an error. Load and Dump
// are only available while the store is not running.
//
// Logical Clock:
// Every finalized action carries a strictly increasing seq from Clock.
// Ordering never depends on wall-clock time.
package engine
