// Package rx implements the push-based stream runtime used by the store.
//
// An Observable is a producer function that receives a Subscriber, and
// every operator is built from that single primitive. Delivery is synchronous: Next on a Subscriber calls straight
// into the downstream observer on the caller's goroutine.
//
// # Subscriptions
//
// Subscribe returns a *Subscription whose Unsubscribe is idempotent.
// Operators link the upstream subscription to the downstream one before the
// upstream producer runs, so a downstream Take(1) stops a synchronous
// upstream loop immediately.
//
// # Time
//
// Time-based operators take a Scheduler. RealScheduler uses time.AfterFunc;
// VirtualScheduler advances a virtual clock under test control. The store
// wraps its scheduler so timer tasks run serialized with dispatch.
//
// CRITICAL: a cancelled scheduled task must never emit. Interval, Timer,
// ThrottleTime and AuditTime cancel their pending task in teardown.
package rx
