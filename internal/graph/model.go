package graph

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/gasoline/internal/action"
	"github.com/roach88/gasoline/internal/rx"
)

// Handler reduces one action type into the next state.
type Handler[S any] func(state S, a action.Action, ctx *UpdateContext) S

// ModelOptions configures a Model.
//
// A model without Update and Handlers is stateless: its state stays nil
// and it dumps nothing. It can still run a Process pipeline.
type ModelOptions[S any] struct {
	// InitialState seeds the state on the first update.
	InitialState S

	// Update reduces every accepted action. It runs after the matching
	// handler, if any.
	Update func(state S, a action.Action, ctx *UpdateContext) S

	// Handlers maps action types (generic types included) to reducers.
	Handlers map[string]Handler[S]

	// Process maps the node's accepted actions to further actions.
	Process func(actions *ActionStream, self *Model[S]) rx.Observable[action.Action]

	// Accept overrides the derived accept list. A nil Accept is derived:
	// the handler types when the model has only handlers, everything
	// otherwise.
	Accept []string

	// AcceptExtra is added to the handler types when Accept is derived.
	AcceptExtra []string

	// Dependencies are read through UpdateContext.Dependencies.
	Dependencies map[string]Node

	// ActionCreators are exposed through ActionCreator and Act.
	ActionCreators map[string]action.Creator

	// Dump converts state for persistence. Defaults to the state itself.
	Dump func(state S) any

	// Load converts persisted data back. Defaults to a type assertion,
	// then a JSON round trip. Returning false leaves the state empty.
	Load func(dump any, ctx *UpdateContext) (S, bool)

	// Transient models are never dumped or loaded.
	Transient bool
}

// Model is a leaf node holding a state of type S.
//
// State is replaced, never mutated: Update must return a new value on
// change, and the previous value otherwise, so that reference identity
// signals change.
type Model[S any] struct {
	nodeBase
	opts      ModelOptions[S]
	stateless bool
}

// NewModel creates an unlinked model.
func NewModel[S any](opts ModelOptions[S]) (*Model[S], error) {
	m := &Model[S]{
		opts:      opts,
		stateless: opts.Update == nil && len(opts.Handlers) == 0,
	}
	if err := m.init(m, opts.Dependencies, modelAccept(opts), opts.ActionCreators); err != nil {
		return nil, fmt.Errorf("new model: %w", err)
	}
	return m, nil
}

// MustModel is NewModel for statically declared graphs. It panics on
// invalid options.
func MustModel[S any](opts ModelOptions[S]) *Model[S] {
	m, err := NewModel(opts)
	if err != nil {
		panic(err)
	}
	return m
}

func modelAccept[S any](opts ModelOptions[S]) []string {
	if opts.Accept != nil {
		return opts.Accept
	}
	handled := slices.Sorted(maps.Keys(opts.Handlers))
	switch {
	case opts.AcceptExtra != nil:
		return append(handled, opts.AcceptExtra...)
	case len(handled) > 0 && opts.Process == nil && opts.Update == nil:
		return handled
	default:
		return nil
	}
}

// HasChildren reports false; models are leaves.
func (m *Model[S]) HasChildren() bool {
	return false
}

// Stateless reports whether the model keeps no state.
func (m *Model[S]) Stateless() bool {
	return m.stateless
}

// Update runs the handler for the action's generic type, then Update.
func (m *Model[S]) Update(prev any, ctx *UpdateContext) any {
	if m.stateless {
		return nil
	}
	state, ok := m.typed(prev)
	if !ok {
		m.logger().Error("unexpected state type",
			"key_path", m.KeyPath().String(),
			"type", fmt.Sprintf("%T", prev))
		state = m.opts.InitialState
	}

	a := ctx.Action()
	next := state
	ran := false
	if h, ok := m.opts.Handlers[ctx.GenericType()]; ok && ctx.ActionDoesMatch() {
		next = h(next, a, ctx)
		ran = true
	}
	if m.opts.Update != nil {
		next = m.opts.Update(next, a, ctx)
		ran = true
	}

	if prev != nil && (!ran || Same(prev, any(next))) {
		return prev
	}
	return next
}

// typed converts the untyped state, seeding nil with InitialState.
func (m *Model[S]) typed(v any) (S, bool) {
	if v == nil {
		return m.opts.InitialState, true
	}
	s, ok := v.(S)
	return s, ok
}

// Value returns the committed state, or InitialState when there is none.
func (m *Model[S]) Value() S {
	s, ok := m.typed(m.State())
	if !ok {
		return m.opts.InitialState
	}
	return s
}

// Process runs the configured pipeline for the node's lifetime.
func (m *Model[S]) Process(actions *ActionStream) rx.Observable[action.Action] {
	if m.opts.Process == nil {
		return rx.Empty[action.Action]()
	}
	return track(&m.nodeBase, m.opts.Process(actions, m))
}

// Dump returns the persistable form of state.
func (m *Model[S]) Dump(state any) any {
	if m.stateless || m.opts.Transient || state == nil {
		return nil
	}
	s, ok := state.(S)
	if !ok {
		return nil
	}
	if m.opts.Dump != nil {
		return m.opts.Dump(s)
	}
	return s
}

// Load restores state from its persisted form.
func (m *Model[S]) Load(dump any, ctx *UpdateContext) any {
	if m.stateless || m.opts.Transient {
		return nil
	}
	if m.opts.Load != nil {
		s, ok := m.opts.Load(dump, ctx)
		if !ok {
			return nil
		}
		return s
	}
	if dump == nil {
		return nil
	}
	s, err := convert[S](dump)
	if err != nil {
		m.logger().Error("load failed", "key_path", m.KeyPath().String(), "error", err)
		return nil
	}
	return s
}

// Link links the model.
func (m *Model[S]) Link(host Host, parent Node, key string) (func() error, error) {
	if err := m.link(host, parent, key); err != nil {
		return nil, err
	}
	return func() error {
		m.finishLink()
		return nil
	}, nil
}

// Unlink disposes the model.
func (m *Model[S]) Unlink() {
	m.unlink()
}

// convert turns persisted plain data into S.
func convert[S any](v any) (S, error) {
	if s, ok := v.(S); ok {
		return s, nil
	}
	var s S
	data, err := json.Marshal(v)
	if err != nil {
		return s, fmt.Errorf("convert dump: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("convert dump: %w", err)
	}
	return s, nil
}
