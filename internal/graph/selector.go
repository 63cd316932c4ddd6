package graph

import (
	"fmt"

	"github.com/roach88/gasoline/internal/action"
	"github.com/roach88/gasoline/internal/rx"
)

// SelectorOptions configures a Selector.
type SelectorOptions[S any] struct {
	// Dependencies are the inputs of Select.
	Dependencies map[string]Node

	// Select derives the state from the dependency states.
	Select func(deps map[string]any) S

	// Equal suppresses a change when the new value equals the previous
	// one. Without Equal every recomputation is a change.
	Equal func(prev, next S) bool

	// Accept lists action types that also recompute the value. By default
	// only lifecycle actions and dependency changes do.
	Accept []string

	// Dump and Load persist the derived value. By default it is not
	// persisted and recomputed on load.
	Dump func(state S) any
	Load func(dump any, ctx *UpdateContext) (S, bool)
}

// Selector is a leaf node whose state is derived from its dependencies.
type Selector[S any] struct {
	nodeBase
	opts SelectorOptions[S]
}

// NewSelector creates an unlinked selector.
func NewSelector[S any](opts SelectorOptions[S]) (*Selector[S], error) {
	if opts.Select == nil {
		return nil, &LinkError{Code: ErrCodeInvalidNode, Message: "selector requires a Select function"}
	}
	accept := opts.Accept
	if accept == nil {
		accept = []string{}
	}
	s := &Selector[S]{opts: opts}
	if err := s.init(s, opts.Dependencies, accept, nil); err != nil {
		return nil, fmt.Errorf("new selector: %w", err)
	}
	return s, nil
}

// MustSelector is NewSelector for statically declared graphs.
func MustSelector[S any](opts SelectorOptions[S]) *Selector[S] {
	s, err := NewSelector(opts)
	if err != nil {
		panic(err)
	}
	return s
}

// HasChildren reports false; selectors are leaves.
func (s *Selector[S]) HasChildren() bool {
	return false
}

// Update recomputes the derived value.
func (s *Selector[S]) Update(prev any, ctx *UpdateContext) any {
	next := s.opts.Select(ctx.Dependencies())
	if prev != nil && s.opts.Equal != nil {
		if p, ok := prev.(S); ok && s.opts.Equal(p, next) {
			return prev
		}
	}
	if prev != nil && Same(prev, any(next)) {
		return prev
	}
	return next
}

// Value returns the committed derived value.
func (s *Selector[S]) Value() S {
	v, _ := s.State().(S)
	return v
}

// Process returns an empty stream; selectors only derive state.
func (s *Selector[S]) Process(*ActionStream) rx.Observable[action.Action] {
	return rx.Empty[action.Action]()
}

// Dump returns nil unless a Dump function is configured.
func (s *Selector[S]) Dump(state any) any {
	if s.opts.Dump == nil || state == nil {
		return nil
	}
	v, ok := state.(S)
	if !ok {
		return nil
	}
	return s.opts.Dump(v)
}

// Load returns nil unless a Load function is configured. The following
// update recomputes the value either way.
func (s *Selector[S]) Load(dump any, ctx *UpdateContext) any {
	if s.opts.Load == nil || dump == nil {
		return nil
	}
	v, ok := s.opts.Load(dump, ctx)
	if !ok {
		return nil
	}
	return v
}

// Link links the selector.
func (s *Selector[S]) Link(host Host, parent Node, key string) (func() error, error) {
	if err := s.link(host, parent, key); err != nil {
		return nil, err
	}
	return func() error {
		s.finishLink()
		return nil
	}, nil
}

// Unlink disposes the selector.
func (s *Selector[S]) Unlink() {
	s.unlink()
}
