package engine

import "time"

// Metrics receives dispatch loop measurements. The metrics package
// provides a Prometheus implementation.
type Metrics interface {
	// ObservePass records one update pass.
	ObservePass(actionType string, duration time.Duration, changed int)

	// ObserveFlush records one coalesced listener flush.
	ObserveFlush(paths int)

	// SetQueueDepth reports the number of queued dispatches.
	SetQueueDepth(n int)

	// IncStreamErrors counts process pipeline errors reaching the store.
	IncStreamErrors()

	// IncQuotaExceeded counts drains aborted by the steps quota.
	IncQuotaExceeded()
}

type noopMetrics struct{}

func (noopMetrics) ObservePass(string, time.Duration, int) {}
func (noopMetrics) ObserveFlush(int)                       {}
func (noopMetrics) SetQueueDepth(int)                      {}
func (noopMetrics) IncStreamErrors()                       {}
func (noopMetrics) IncQuotaExceeded()                      {}
