package harness

import (
	"time"

	"github.com/roach88/gasoline/internal/action"
	"github.com/roach88/gasoline/internal/graph"
	"github.com/roach88/gasoline/internal/rx"
)

// Fixtures are the graphs scenarios can name. Each call builds a fresh,
// unlinked graph.
var Fixtures = map[string]func() (graph.Node, error){
	"counter": counterFixture,
	"ticker":  tickerFixture,
}

// TickPeriod is the interval of the ticker fixture.
const TickPeriod = 100 * time.Millisecond

// counterFixture: /count (INC, DEC, ADD n), /doubled (selector of count)
// and /label (generic SET:*).
func counterFixture() (graph.Node, error) {
	count, err := graph.NewModel(graph.ModelOptions[int]{
		Handlers: map[string]graph.Handler[int]{
			"INC": func(s int, _ action.Action, _ *graph.UpdateContext) int { return s + 1 },
			"DEC": func(s int, _ action.Action, _ *graph.UpdateContext) int { return s - 1 },
			"ADD": func(s int, a action.Action, _ *graph.UpdateContext) int { return s + toInt(a.Payload) },
		},
	})
	if err != nil {
		return nil, err
	}

	doubled, err := graph.NewSelector(graph.SelectorOptions[int]{
		Dependencies: map[string]graph.Node{"count": count},
		Select: func(deps map[string]any) int {
			n, _ := deps["count"].(int)
			return n * 2
		},
	})
	if err != nil {
		return nil, err
	}

	label, err := graph.NewModel(graph.ModelOptions[string]{
		Handlers: map[string]graph.Handler[string]{
			"SET:*": func(_ string, a action.Action, _ *graph.UpdateContext) string {
				s, _ := a.Payload.(string)
				return s
			},
		},
		ActionCreators: map[string]action.Creator{
			"set": func(args ...any) action.Action {
				var v any
				if len(args) > 0 {
					v = args[0]
				}
				return action.New("SET:*", v)
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return graph.Combine(map[string]graph.Node{
		"count":   count,
		"doubled": doubled,
		"label":   label,
	})
}

// tickerFixture: /ticks counts ticker.TICK actions. ticker.START n emits n
// ticks, one per TickPeriod; a new START cancels the running sequence.
func tickerFixture() (graph.Node, error) {
	ticks, err := graph.NewModel(graph.ModelOptions[int]{
		Handlers: map[string]graph.Handler[int]{
			"ticker.TICK": func(s int, _ action.Action, _ *graph.UpdateContext) int { return s + 1 },
		},
		AcceptExtra: []string{"ticker.START"},
		Process: func(in *graph.ActionStream, self *graph.Model[int]) rx.Observable[action.Action] {
			sched := self.Host().Scheduler()
			return rx.SwitchMap(in.OfType("ticker.START").Observable, func(a action.Action) rx.Observable[action.Action] {
				return rx.Map(rx.Interval(sched, TickPeriod).Take(toInt(a.Payload)), func(i int) (action.Action, error) {
					return action.New("ticker.TICK", i), nil
				})
			})
		},
	})
	if err != nil {
		return nil, err
	}
	return graph.Combine(map[string]graph.Node{"ticks": ticks})
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
