package service

import (
	"fmt"
	"sync"

	"github.com/roach88/gasoline/internal/action"
	"github.com/roach88/gasoline/internal/keypath"
	"github.com/roach88/gasoline/internal/rx"
)

// bridge is the Bridge of one process subscription. Actions it produces
// are emitted on the service's process output, which the store
// dispatches; Store.Dispatch serializes them with running passes.
type bridge struct {
	node   *Node
	out    *rx.Subscriber[action.Action]
	path   keypath.Path
	origin string
	parser *action.Parser

	local    *action.Matcher
	incoming *action.Matcher
	outgoing *action.Matcher

	mu     sync.Mutex
	status ReadyState
}

func newBridge(n *Node, out *rx.Subscriber[action.Action]) (*bridge, error) {
	local, err := action.NewMatcher(localTypes)
	if err != nil {
		return nil, err
	}
	b := &bridge{
		node:   n,
		out:    out,
		path:   n.KeyPath(),
		origin: n.Origin(),
		local:  local,
		status: n.Value().Status,
	}
	if host := n.Host(); host != nil {
		b.parser = host.Parser()
	}
	if n.acceptIncoming != nil {
		if b.incoming, err = action.NewMatcher(n.acceptIncoming); err != nil {
			return nil, fmt.Errorf("service accept incoming: %w", err)
		}
	}
	if n.acceptOutgoing != nil {
		if b.outgoing, err = action.NewMatcher(n.acceptOutgoing); err != nil {
			return nil, fmt.Errorf("service accept outgoing: %w", err)
		}
	}
	if b.status == "" {
		b.status = Initial
	}
	return b, nil
}

// NextReadyState implements Bridge.
func (b *bridge) NextReadyState(status ReadyState) error {
	b.mu.Lock()
	if b.status == status {
		b.mu.Unlock()
		return fmt.Errorf("bridge.nextReadyState(status): next status must be different from current status")
	}
	b.status = status
	b.mu.Unlock()

	b.emit(TypeReadyStateChange, status)
	return nil
}

// Status implements Bridge.
func (b *bridge) Status() ReadyState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Dispatch implements Bridge. Service control types and types outside the
// incoming accept list are dropped.
func (b *bridge) Dispatch(a action.Action) {
	generic, local := b.classify(a.Type)
	if local || (b.incoming != nil && !b.incoming.Match(generic)) {
		b.node.log().Debug("incoming action dropped",
			"key_path", b.path.String(),
			"action_type", a.Type)
		return
	}
	in := a.Clone()
	in.Meta.Dispatch = nil
	in.Meta.Origin = b.origin
	b.out.Next(in)
}

// Throw implements Bridge.
func (b *bridge) Throw(err error) {
	if err == nil {
		return
	}
	b.node.log().Warn("service error",
		"key_path", b.path.String(),
		"error", err)
	b.emit(TypeError, err.Error())
}

func (b *bridge) emit(generic string, payload any) {
	t, err := action.BindType(generic, b.path)
	if err != nil {
		b.node.log().Error("bind service action", "action_type", generic, "error", err)
		return
	}
	b.out.Next(action.New(t, payload))
}

// classify returns t as the service node matches it, and whether t is a
// lifecycle or service control type of any service.
func (b *bridge) classify(t string) (generic string, local bool) {
	var (
		d   action.Descriptor
		err error
	)
	if b.parser != nil {
		d, err = b.parser.Parse(t)
	} else {
		d, err = action.ParseType(t)
	}
	if err != nil {
		return t, false
	}
	generic = d.GenericFor(b.path, false)
	if d.Generic {
		return generic, b.local.Match(d.GenericType())
	}
	return generic, b.local.Match(t)
}
