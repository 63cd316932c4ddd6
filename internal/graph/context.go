package graph

import (
	"fmt"
	"maps"

	"github.com/roach88/gasoline/internal/action"
	"github.com/roach88/gasoline/internal/keypath"
)

// WorkingState is the mutable bookkeeping of one dispatch: a copy of the
// committed digest that the update pass writes into, and the set of paths
// whose state changed.
type WorkingState struct {
	Digest  Digest
	Updated map[string]bool
}

// NewWorkingState copies committed so the update pass never mutates it.
func NewWorkingState(committed Digest) *WorkingState {
	d := maps.Clone(committed)
	if d == nil {
		d = Digest{}
	}
	return &WorkingState{Digest: d, Updated: map[string]bool{}}
}

// UpdateContext carries one action through the update pass. It is pivoted
// onto each node in turn with SetNode and answers "should this node
// update" for the current node.
//
// Thread-safety: an UpdateContext belongs to a single dispatch and is not
// safe for concurrent use.
type UpdateContext struct {
	action  action.Action
	desc    action.Descriptor
	root    Node
	working *WorkingState

	node       Node
	nodeKey    string
	memo       map[string]bool
	depsMemo   map[string]bool
	deps       map[string]any
	depsLoaded bool
}

// NewUpdateContext creates the context for a. Unbound generic types are
// rejected: they only exist inside accept lists and creators.
func NewUpdateContext(a action.Action, root Node, working *WorkingState, parser *action.Parser) (*UpdateContext, error) {
	var (
		desc action.Descriptor
		err  error
	)
	if parser != nil {
		desc, err = parser.Parse(a.Type)
	} else {
		desc, err = action.ParseType(a.Type)
	}
	if err != nil {
		return nil, err
	}
	if desc.Generic && !desc.Bound {
		return nil, &action.TypeError{Type: a.Type, Reason: "Cannot dispatch unbound generic action type"}
	}
	if working == nil {
		working = NewWorkingState(nil)
	}

	ctx := &UpdateContext{
		action:   a,
		desc:     desc,
		root:     root,
		working:  working,
		memo:     map[string]bool{},
		depsMemo: map[string]bool{},
	}
	ctx.SetNode(root)
	return ctx, nil
}

// Action returns the action being processed.
func (c *UpdateContext) Action() action.Action {
	return c.action
}

// Working returns the working state.
func (c *UpdateContext) Working() *WorkingState {
	return c.working
}

// Node returns the node the context is pivoted on.
func (c *UpdateContext) Node() Node {
	return c.node
}

// SetNode pivots the context onto n and returns the context.
func (c *UpdateContext) SetNode(n Node) *UpdateContext {
	c.node = n
	c.nodeKey = ""
	if n != nil {
		c.nodeKey = n.KeyPath().String()
	}
	c.deps = nil
	c.depsLoaded = false
	return c
}

// GenericType returns the action type as the current node should match it.
func (c *UpdateContext) GenericType() string {
	if c.node == nil {
		return c.action.Type
	}
	return c.desc.GenericFor(c.node.KeyPath(), c.node.HasChildren())
}

// ActionDoesMatch reports whether the current node accepts the action by
// type and by target. The result is memoized per node. Lifecycle actions
// match every node.
func (c *UpdateContext) ActionDoesMatch() bool {
	if c.node == nil {
		return false
	}
	if hit, ok := c.memo[c.nodeKey]; ok {
		return hit
	}
	result := action.IsLifecycle(c.action.Type) ||
		(c.node.MatchType(c.GenericType()) &&
			action.MatchTarget(c.node.KeyPath(), c.node.HasChildren(), c.action.Target))
	c.memo[c.nodeKey] = result
	return result
}

// DependenciesHaveChanged reports whether any dependency of the current
// node was updated earlier in this pass.
func (c *UpdateContext) DependenciesHaveChanged() bool {
	if c.node == nil {
		return false
	}
	if hit, ok := c.depsMemo[c.nodeKey]; ok {
		return hit
	}
	result := false
	for _, dep := range c.node.Dependencies() {
		if c.working.Updated[dep.KeyPath().String()] {
			result = true
			break
		}
	}
	c.depsMemo[c.nodeKey] = result
	return result
}

// ShouldUpdate reports whether the current node's Update must run.
func (c *UpdateContext) ShouldUpdate() bool {
	return c.ActionDoesMatch() || c.DependenciesHaveChanged()
}

// Dependencies returns the working state of every dependency of the
// current node, keyed by dependency name. It is computed on first use.
func (c *UpdateContext) Dependencies() map[string]any {
	if c.depsLoaded {
		return c.deps
	}
	deps := map[string]any{}
	if c.node != nil {
		for name, dep := range c.node.Dependencies() {
			deps[name] = c.working.Digest[dep.KeyPath().String()]
		}
	}
	c.deps = deps
	c.depsLoaded = true
	return deps
}

// Dependency returns the working state of the named dependency.
func (c *UpdateContext) Dependency(name string) any {
	return c.Dependencies()[name]
}

// UpdateDigest records state for the current node in the working digest.
func (c *UpdateContext) UpdateDigest(state any) {
	if c.node == nil {
		return
	}
	if state == nil {
		delete(c.working.Digest, c.nodeKey)
		return
	}
	c.working.Digest[c.nodeKey] = state
}

// MarkUpdated records that the current node's state changed.
func (c *UpdateContext) MarkUpdated() {
	if c.node == nil {
		return
	}
	c.working.Updated[c.nodeKey] = true
}

// Changed reports whether the node at p was marked updated.
func (c *UpdateContext) Changed(p keypath.Path) bool {
	return c.working.Updated[p.String()]
}

func (c *UpdateContext) String() string {
	return fmt.Sprintf("UpdateContext(%s @ %s)", c.action.Type, c.nodeKey)
}
