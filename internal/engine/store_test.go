package engine

import (
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gasoline/internal/action"
	"github.com/roach88/gasoline/internal/graph"
	"github.com/roach88/gasoline/internal/rx"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func counterModel(extra map[string]graph.Handler[int], process func(*graph.ActionStream, *graph.Model[int]) rx.Observable[action.Action]) *graph.Model[int] {
	handlers := map[string]graph.Handler[int]{
		"INC": func(s int, _ action.Action, _ *graph.UpdateContext) int { return s + 1 },
	}
	for k, h := range extra {
		handlers[k] = h
	}
	return graph.MustModel(graph.ModelOptions[int]{Handlers: handlers, Process: process})
}

func newTestStore(t *testing.T, root graph.Node, opts ...StoreOption) (*Store, *rx.VirtualScheduler) {
	t.Helper()
	vs := rx.NewVirtualScheduler(epoch)
	all := append([]StoreOption{WithLogger(quietLogger()), WithScheduler(vs)}, opts...)
	s, err := New(root, all...)
	require.NoError(t, err)
	return s, vs
}

func TestStore_LifecycleErrors(t *testing.T) {
	s, _ := newTestStore(t, counterModel(nil, nil))

	err := s.Dispatch(action.New("INC", nil))
	require.Error(t, err)
	assert.True(t, IsStoreError(err, ErrCodeNotStarted))
	assert.Contains(t, err.Error(), "Cannot dispatch before store is started")

	err = s.Stop()
	assert.True(t, IsStoreError(err, ErrCodeNotStarted))
	assert.Contains(t, err.Error(), "Store is not started")

	require.NoError(t, s.Start())
	assert.Equal(t, StatusStarted, s.Status())

	err = s.Start()
	assert.True(t, IsStoreError(err, ErrCodeAlreadyStarted))
	assert.Contains(t, err.Error(), "Store is already started")

	for _, typ := range []string{action.TypeStart, action.TypeStop, action.TypeLoad} {
		err = s.Dispatch(action.New(typ, nil))
		assert.True(t, IsReservedActionError(err), typ)
	}

	err = s.Dispatch(action.New("SET:*", nil))
	assert.True(t, IsStoreError(err, ErrCodeInvalidAction))

	err = s.Dispatch(action.New("a:b:c", nil))
	assert.True(t, IsStoreError(err, ErrCodeInvalidAction))

	require.NoError(t, s.Stop())
	assert.Equal(t, "stopped", s.Status().String())

	err = s.Start()
	assert.True(t, IsStoreError(err, ErrCodeStopped))
	err = s.Dispatch(action.New("INC", nil))
	assert.True(t, IsNotStartedError(err))
}

func TestStore_New_ReturnsLinkErrors(t *testing.T) {
	m := counterModel(nil, nil)
	_, err := New(m, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = New(m, WithLogger(quietLogger()))
	require.Error(t, err)
	assert.True(t, graph.IsLinkError(err, graph.ErrCodeAlreadyLinked))

	outside := counterModel(nil, nil)
	sel := graph.MustSelector(graph.SelectorOptions[int]{
		Dependencies: map[string]graph.Node{"n": outside},
		Select:       func(map[string]any) int { return 0 },
	})
	_, err = New(graph.MustCombine(map[string]graph.Node{"sel": sel}), WithLogger(quietLogger()))
	assert.True(t, graph.IsLinkError(err, graph.ErrCodeUnlinkedDependency))
}

func TestStore_DispatchMeta(t *testing.T) {
	s, vs := newTestStore(t, counterModel(nil, nil),
		WithIDGenerator(NewFixedGenerator("d-1", "d-2", "d-3", "d-4")))

	var seen []action.Action
	s.Actions().SubscribeFunc(func(a action.Action) { seen = append(seen, a) })

	require.NoError(t, s.Start())
	vs.Advance(time.Second)

	reply := action.New("INC", nil)
	reply.Meta.ReplyTo = "d-1"
	require.NoError(t, s.Dispatch(reply))
	require.NoError(t, s.Stop())

	require.Len(t, seen, 3)
	assert.Equal(t, action.TypeStart, seen[0].Type)
	assert.Equal(t, "d-1", seen[0].DispatchID())
	assert.Equal(t, int64(1), seen[0].Meta.Dispatch.Seq)
	assert.Equal(t, epoch, seen[0].Meta.Dispatch.Time)

	assert.Equal(t, "INC", seen[1].Type)
	assert.Equal(t, "d-2", seen[1].DispatchID())
	assert.Equal(t, int64(2), seen[1].Meta.Dispatch.Seq)
	assert.Equal(t, "d-1", seen[1].Meta.Dispatch.Parent)
	assert.Equal(t, epoch.Add(time.Second), seen[1].Meta.Dispatch.Time)
	assert.Nil(t, reply.Meta.Dispatch, "input action must not be mutated")

	assert.Equal(t, action.TypeStop, seen[2].Type)
	assert.Equal(t, 1, s.State())
}

func TestStore_ReentrantDispatchIsCoalesced(t *testing.T) {
	a := counterModel(
		map[string]graph.Handler[int]{
			"X": func(s int, _ action.Action, _ *graph.UpdateContext) int { return s + 1 },
			"Y": func(s int, _ action.Action, _ *graph.UpdateContext) int { return s + 10 },
		},
		func(in *graph.ActionStream, _ *graph.Model[int]) rx.Observable[action.Action] {
			return rx.Map(in.OfType("X").Observable, func(action.Action) (action.Action, error) {
				return action.New("Y", nil), nil
			})
		},
	)
	root := graph.MustCombine(map[string]graph.Node{"a": a})
	s, _ := newTestStore(t, root)
	require.NoError(t, s.Start())

	var notified []int
	s.Listen(graph.UpdatedEvent(a.KeyPath()), func() { notified = append(notified, a.Value()) })
	rootCalls := 0
	s.Listen(graph.UpdatedEvent(root.KeyPath()), func() { rootCalls++ })

	require.NoError(t, s.Dispatch(action.New("X", nil)))

	assert.Equal(t, 11, a.Value(), "nested dispatch must complete before the outer one returns")
	assert.Equal(t, []int{11}, notified, "listeners see one coalesced notification")
	assert.Equal(t, 1, rootCalls)
}

func TestStore_DependencyPropagation(t *testing.T) {
	a := counterModel(nil, nil)
	updates := 0
	b := graph.MustSelector(graph.SelectorOptions[int]{
		Dependencies: map[string]graph.Node{"a": a},
		Select: func(deps map[string]any) int {
			updates++
			n, _ := deps["a"].(int)
			return n * 2
		},
	})
	other := graph.MustModel(graph.ModelOptions[int]{
		Handlers: map[string]graph.Handler[int]{"NOPE": func(s int, _ action.Action, _ *graph.UpdateContext) int { return s + 1 }},
	})
	root := graph.MustCombine(map[string]graph.Node{"a": a, "b": b, "other": other})
	s, _ := newTestStore(t, root)
	require.NoError(t, s.Start())

	var changed []string
	for _, n := range []graph.Node{a, b, other} {
		p := n.KeyPath()
		s.Listen(graph.UpdatedEvent(p), func() { changed = append(changed, p.String()) })
	}

	updates = 0
	require.NoError(t, s.Dispatch(action.New("INC", nil)))

	assert.Equal(t, 1, updates, "dependent updates once per pass")
	assert.Equal(t, 2, b.Value())
	assert.Equal(t, []string{"/a", "/b"}, changed)
	assert.Equal(t, map[string]any{"a": 1, "b": 2, "other": 0}, s.State())
}

func TestStore_SwitchMapIntervalCancelsStaleTimer(t *testing.T) {
	ticks := graph.MustModel(graph.ModelOptions[[]int]{
		InitialState: []int{},
		Handlers: map[string]graph.Handler[[]int]{
			"TICK": func(s []int, a action.Action, _ *graph.UpdateContext) []int {
				return append(slices.Clone(s), a.Payload.(int))
			},
		},
		AcceptExtra: []string{"RESET"},
		Process: func(in *graph.ActionStream, self *graph.Model[[]int]) rx.Observable[action.Action] {
			sched := self.Host().Scheduler()
			return rx.SwitchMap(in.OfType("RESET").Observable, func(action.Action) rx.Observable[action.Action] {
				return rx.Map(rx.Interval(sched, 100*time.Millisecond).Take(3), func(i int) (action.Action, error) {
					return action.New("TICK", i), nil
				})
			})
		},
	})
	s, vs := newTestStore(t, ticks)
	require.NoError(t, s.Start())

	require.NoError(t, s.Dispatch(action.New("RESET", nil)))
	vs.Advance(150 * time.Millisecond)
	assert.Equal(t, []int{0}, ticks.Value())

	require.NoError(t, s.Dispatch(action.New("RESET", nil)))
	vs.Advance(100 * time.Millisecond)
	assert.Equal(t, []int{0, 0}, ticks.Value(), "stale interval must not emit")

	vs.Advance(time.Second)
	assert.Equal(t, []int{0, 0, 1, 2}, ticks.Value())
	assert.Equal(t, 0, vs.Pending())
}

func TestStore_StopCancelsProcessTimers(t *testing.T) {
	m := counterModel(nil, func(in *graph.ActionStream, self *graph.Model[int]) rx.Observable[action.Action] {
		sched := self.Host().Scheduler()
		return rx.SwitchMap(in.OfType(action.TypeStart).Observable, func(action.Action) rx.Observable[action.Action] {
			return rx.Map(rx.Interval(sched, time.Second), func(int) (action.Action, error) {
				return action.New("INC", nil), nil
			})
		})
	})
	s, vs := newTestStore(t, m)

	var completed bool
	s.Actions().Subscribe(rx.ObserverFuncs[action.Action]{OnComplete: func() { completed = true }})

	require.NoError(t, s.Start())
	vs.Advance(2 * time.Second)
	assert.Equal(t, 2, m.Value())
	assert.Equal(t, 1, vs.Pending())

	require.NoError(t, s.Stop())
	assert.Equal(t, 0, vs.Pending())
	assert.True(t, completed)

	vs.Advance(5 * time.Second)
	assert.Equal(t, 2, m.Value())
}

func TestStore_Ready(t *testing.T) {
	m := counterModel(nil, nil)
	s, _ := newTestStore(t, m)

	var order []string
	s.Ready(func() { order = append(order, "deferred") })
	s.Listen(graph.EventStarted, func() { order = append(order, "started") })
	assert.Empty(t, order)

	require.NoError(t, s.Start())
	assert.Equal(t, []string{"started", "deferred"}, order)

	var state any
	s.Ready(func() { state = s.State() })
	assert.Equal(t, 0, state, "ready runs after the START pass")
}

func TestStore_LoadAndDump(t *testing.T) {
	build := func() (*graph.Combined, *graph.Model[int]) {
		a := counterModel(nil, nil)
		return graph.MustCombine(map[string]graph.Node{"a": a}), a
	}

	root, _ := build()
	s, _ := newTestStore(t, root)
	require.NoError(t, s.Start())
	require.NoError(t, s.Dispatch(action.New("INC", nil)))
	require.NoError(t, s.Dispatch(action.New("INC", nil)))

	_, err := s.Dump()
	assert.True(t, IsStoreError(err, ErrCodeStarted))
	err = s.Load(map[string]any{"a": 1})
	assert.True(t, IsStoreError(err, ErrCodeStarted))
	assert.Contains(t, err.Error(), "Cannot load after store is started.")

	require.NoError(t, s.Stop())
	dump, err := s.Dump()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 2}, dump)

	restoredRoot, a := build()
	restored, _ := newTestStore(t, restoredRoot)
	notified := 0
	restored.Listen(graph.UpdatedEvent(a.KeyPath()), func() { notified++ })

	require.NoError(t, restored.Load(dump))
	assert.Equal(t, 2, a.Value())
	assert.Equal(t, 1, notified)

	require.NoError(t, restored.Start())
	require.NoError(t, restored.Dispatch(action.New("INC", nil)))
	assert.Equal(t, 3, a.Value())
}

func TestStore_MaxStepsStopsRunawayChain(t *testing.T) {
	m := counterModel(
		map[string]graph.Handler[int]{"PING": func(s int, _ action.Action, _ *graph.UpdateContext) int { return s + 1 }},
		func(in *graph.ActionStream, _ *graph.Model[int]) rx.Observable[action.Action] {
			return rx.Map(in.OfType("PING").Observable, func(action.Action) (action.Action, error) {
				return action.New("PING", nil), nil
			})
		},
	)
	s, _ := newTestStore(t, m, WithMaxSteps(10))
	require.NoError(t, s.Start())

	err := s.Dispatch(action.New("PING", nil))
	require.Error(t, err)
	assert.True(t, IsStepsExceededError(err))

	var se *StepsExceededError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 10, se.Limit)
	assert.Equal(t, 1, se.Dropped)
	assert.Equal(t, 10, m.Value())

	// The store keeps working after the chain was cut.
	require.NoError(t, s.Dispatch(action.New("INC", nil)))
	assert.Equal(t, 11, m.Value())
}

func TestStore_ConcurrentDispatch(t *testing.T) {
	m := counterModel(nil, nil)
	s, _ := newTestStore(t, m)
	require.NoError(t, s.Start())

	const goroutines = 50
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Dispatch(action.New("INC", nil)))
		}()
	}
	wg.Wait()

	// A dispatch that lost the drain race is applied by the winner before
	// it releases the lock; one more dispatch waits for any stragglers.
	require.NoError(t, s.Dispatch(action.New("NOOP", nil)))
	assert.Equal(t, goroutines, m.Value())
}

func TestStore_StateStreamFollowsCommits(t *testing.T) {
	m := counterModel(nil, nil)
	s, _ := newTestStore(t, graph.MustCombine(map[string]graph.Node{"m": m}))

	var got []any
	sub := m.StateStream().SubscribeFunc(func(v any) { got = append(got, v) })
	defer sub.Unsubscribe()

	require.NoError(t, s.Start())
	require.NoError(t, s.Dispatch(action.New("INC", nil)))
	require.NoError(t, s.Dispatch(action.New("OTHER", nil)))

	assert.Equal(t, []any{nil, 0, 1}, got)
}

func TestStore_RootProcessSeesOnlyAcceptedActions(t *testing.T) {
	var seen []string
	root := graph.MustModel(graph.ModelOptions[int]{
		Accept: []string{"INC"},
		Handlers: map[string]graph.Handler[int]{
			"INC": func(s int, _ action.Action, _ *graph.UpdateContext) int { return s + 1 },
		},
		Process: func(in *graph.ActionStream, _ *graph.Model[int]) rx.Observable[action.Action] {
			return in.Filter(func(a action.Action) bool {
				seen = append(seen, a.Type)
				return false
			})
		},
	})
	s, _ := newTestStore(t, root)
	require.NoError(t, s.Start())

	require.NoError(t, s.Dispatch(action.New("OTHER", nil)))
	require.NoError(t, s.Dispatch(action.New("INC", nil)))
	require.NoError(t, s.Stop())

	assert.Equal(t, []string{action.TypeStart, "INC", action.TypeStop}, seen)
	assert.Equal(t, 1, s.State())
}

func TestStore_MarksProcessDispatchesDerived(t *testing.T) {
	root := counterModel(nil, func(in *graph.ActionStream, _ *graph.Model[int]) rx.Observable[action.Action] {
		return rx.Map(in.OfType("PING").Observable, func(a action.Action) (action.Action, error) {
			out := action.New("INC", nil)
			out.Meta.ReplyTo = a.DispatchID()
			return out, nil
		})
	})
	s, _ := newTestStore(t, root, WithIDGenerator(NewFixedGenerator("d-1", "d-2", "d-3")))

	var seen []action.Action
	s.Actions().SubscribeFunc(func(a action.Action) { seen = append(seen, a) })
	require.NoError(t, s.Start())

	// A caller-supplied dispatch record is never trusted.
	ping := action.New("PING", nil)
	ping.Meta.Dispatch = &action.DispatchMeta{ID: "forged", Derived: true}
	require.NoError(t, s.Dispatch(ping))

	require.Len(t, seen, 3)
	assert.False(t, seen[0].Meta.Dispatch.Derived)
	assert.Equal(t, "PING", seen[1].Type)
	assert.Equal(t, "d-2", seen[1].DispatchID())
	assert.False(t, seen[1].Meta.Dispatch.Derived)
	assert.Equal(t, "INC", seen[2].Type)
	assert.True(t, seen[2].Meta.Dispatch.Derived)
	assert.Equal(t, "d-2", seen[2].Meta.Dispatch.Parent)
	assert.Equal(t, 1, s.State())
}

func TestStore_StartPassRunsBeforeConcurrentDispatches(t *testing.T) {
	for range 20 {
		s, _ := newTestStore(t, counterModel(nil, nil))

		var (
			mu    sync.Mutex
			types []string
		)
		s.Actions().SubscribeFunc(func(a action.Action) {
			mu.Lock()
			types = append(types, a.Type)
			mu.Unlock()
		})

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s.Dispatch(action.New("INC", nil)) != nil {
			}
		}()
		require.NoError(t, s.Start())
		wg.Wait()

		mu.Lock()
		require.NotEmpty(t, types)
		assert.Equal(t, action.TypeStart, types[0])
		mu.Unlock()
	}
}
