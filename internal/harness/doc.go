// Package harness runs YAML scenarios against a store.
//
// # Scenario Format
//
//	name: counter_increments
//	description: "What this scenario validates"
//	fixture: counter
//	load: { count: 3 }
//	steps:
//	  - dispatch: { type: INC }
//	  - dispatch: { type: "SET:/label", payload: hi, reply_to: d-2 }
//	  - dispatch: { type: INC, target: [/count] }
//	  - advance: 250ms
//	  - dispatch: { type: "SET:*", expect_error: unbound generic }
//	expect:
//	  state: { /count: 5, /doubled: 10 }
//	  changed: [/, /count, /doubled, /label]
//	  actions: [INC, "SET:/label", INC]
//
// # Deterministic Testing
//
// Every run uses a virtual scheduler starting at testutil.Epoch and
// dispatch ids "d-1", "d-2", ... from testutil.SequenceGenerator, so two
// runs of one scenario produce identical results. Timers only fire on
// advance steps.
//
// # Expectations
//
//   - state: committed state per node path, compared as canonical JSON
//   - changed: every path notified after start, sorted
//   - actions: dispatched action types after start, lifecycle excluded
//
// RunWithGolden additionally compares the action log and final dump with
// testdata/golden/<name>.golden.
package harness
