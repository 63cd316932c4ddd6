package harness

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/gasoline/internal/action"
	"github.com/roach88/gasoline/internal/codec"
	"github.com/roach88/gasoline/internal/engine"
	"github.com/roach88/gasoline/internal/graph"
	"github.com/roach88/gasoline/internal/keypath"
	"github.com/roach88/gasoline/internal/rx"
	"github.com/roach88/gasoline/internal/testutil"
)

// harness holds the state of one run.
type harness struct {
	store  *engine.Store
	sched  *rx.VirtualScheduler
	result *Result

	mu      sync.Mutex
	changed map[string]bool
}

// Hooks observe the store of one run. Created runs before the store is
// loaded and started; Stopped runs after Stop, and its error fails the run.
type Hooks struct {
	Created func(*engine.Store)
	Stopped func(*engine.Store) error
}

// RunScenario runs scenario against a fresh instance of its fixture.
func RunScenario(scenario *Scenario, opts ...engine.StoreOption) (*Result, error) {
	return RunScenarioWith(scenario, Hooks{}, opts...)
}

// RunScenarioWith is RunScenario with hooks on the run's store.
func RunScenarioWith(scenario *Scenario, hooks Hooks, opts ...engine.StoreOption) (*Result, error) {
	build, ok := Fixtures[scenario.Fixture]
	if !ok {
		return nil, fmt.Errorf("scenario %s: unknown fixture %q", scenario.Name, scenario.Fixture)
	}
	root, err := build()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: build fixture: %w", scenario.Name, err)
	}
	return run(scenario, root, hooks, opts...)
}

// Run executes scenario against root, which must be unlinked, and returns
// the result. The error is non-nil only when the run itself could not
// proceed; failed expectations are reported in the result.
//
// Execution flow:
// 1. Create a store with a virtual scheduler and sequence ids
// 2. Load the scenario dump, if any, and start the store
// 3. Run the steps
// 4. Check expectations, stop the store and dump it
func Run(scenario *Scenario, root graph.Node, opts ...engine.StoreOption) (*Result, error) {
	return run(scenario, root, Hooks{}, opts...)
}

func run(scenario *Scenario, root graph.Node, hooks Hooks, opts ...engine.StoreOption) (*Result, error) {
	h := &harness{
		sched:   testutil.NewScheduler(),
		result:  NewResult(),
		changed: map[string]bool{},
	}

	all := append([]engine.StoreOption{
		engine.WithLogger(testutil.QuietLogger()),
		engine.WithScheduler(h.sched),
		engine.WithIDGenerator(testutil.NewSequenceGenerator("d")),
	}, opts...)
	store, err := engine.New(root, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	h.store = store
	if hooks.Created != nil {
		hooks.Created(store)
	}

	if scenario.Load != nil {
		if err := store.Load(scenario.Load); err != nil {
			return nil, fmt.Errorf("failed to load dump: %w", err)
		}
	}

	store.Actions().SubscribeFunc(h.record)
	if err := store.Start(); err != nil {
		return nil, fmt.Errorf("failed to start store: %w", err)
	}
	for path := range store.Digest() {
		store.Listen(graph.UpdatedEventPrefix+path, func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.changed[path] = true
		})
	}

	for i, step := range scenario.Steps {
		h.runStep(i, step)
	}

	h.mu.Lock()
	h.result.Changed = slices.Sorted(maps.Keys(h.changed))
	h.mu.Unlock()
	h.check(scenario.Expect)

	if err := store.Stop(); err != nil {
		return nil, fmt.Errorf("failed to stop store: %w", err)
	}
	if hooks.Stopped != nil {
		if err := hooks.Stopped(store); err != nil {
			return nil, err
		}
	}
	dump, err := store.Dump()
	if err != nil {
		return nil, fmt.Errorf("failed to dump store: %w", err)
	}
	h.result.Dump = dump
	return h.result, nil
}

func (h *harness) record(a action.Action) {
	ev := ActionEvent{Type: a.Type, Payload: a.Payload}
	if d := a.Meta.Dispatch; d != nil {
		ev.Seq, ev.ID, ev.Parent = d.Seq, d.ID, d.Parent
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.Actions = append(h.result.Actions, ev)
}

func (h *harness) runStep(i int, step Step) {
	if step.Dispatch == nil {
		h.sched.Advance(step.Advance)
		return
	}

	d := step.Dispatch
	a := action.New(d.Type, d.Payload)
	a.Meta.ReplyTo = d.ReplyTo
	for _, ref := range d.Target {
		p, err := keypath.Parse(ref)
		if err != nil {
			h.result.AddError(fmt.Sprintf("steps[%d]: target %q: %v", i, ref, err))
			return
		}
		a.Target = append(a.Target, p)
	}

	err := h.store.Dispatch(a)
	switch {
	case d.ExpectError == "" && err != nil:
		h.result.AddError(fmt.Sprintf("steps[%d]: dispatch %s: %v", i, d.Type, err))
	case d.ExpectError != "" && err == nil:
		h.result.AddError(fmt.Sprintf("steps[%d]: dispatch %s: expected error containing %q", i, d.Type, d.ExpectError))
	case d.ExpectError != "" && !strings.Contains(err.Error(), d.ExpectError):
		h.result.AddError(fmt.Sprintf("steps[%d]: dispatch %s: error %q does not contain %q", i, d.Type, err, d.ExpectError))
	}
}

func (h *harness) check(expect Expect) {
	digest := h.store.Digest()
	for _, path := range slices.Sorted(maps.Keys(expect.State)) {
		if err := assertState(path, expect.State[path], digest[path]); err != nil {
			h.result.AddError(err.Error())
		}
	}

	if expect.Changed != nil {
		want := slices.Sorted(slices.Values(expect.Changed))
		if !slices.Equal(want, h.result.Changed) {
			h.result.AddError((&AssertionError{
				Type:     "changed",
				Expected: fmt.Sprint(want),
				Actual:   fmt.Sprint(h.result.Changed),
			}).Error())
		}
	}

	if expect.Actions != nil {
		var got []string
		for _, ev := range h.result.Actions {
			if !action.IsLifecycle(ev.Type) {
				got = append(got, ev.Type)
			}
		}
		if !slices.Equal(expect.Actions, got) {
			h.result.AddError((&AssertionError{
				Type:     "actions",
				Expected: fmt.Sprint(expect.Actions),
				Actual:   fmt.Sprint(got),
				Actions:  h.result.Actions,
			}).Error())
		}
	}
}

// assertState compares states as canonical JSON, so 2 and 2.0 are equal
// and structs compare with their JSON form.
func assertState(path string, want, got any) error {
	wantJSON, err := codec.MarshalCanonical(want)
	if err != nil {
		return fmt.Errorf("state %s: expected value: %w", path, err)
	}
	gotJSON, err := codec.MarshalCanonical(got)
	if err != nil {
		return fmt.Errorf("state %s: actual value: %w", path, err)
	}
	if !bytes.Equal(wantJSON, gotJSON) {
		return &AssertionError{
			Type:     "state " + path,
			Expected: string(wantJSON),
			Actual:   string(gotJSON),
		}
	}
	return nil
}
