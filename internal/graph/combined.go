package graph

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/gasoline/internal/action"
	"github.com/roach88/gasoline/internal/keypath"
	"github.com/roach88/gasoline/internal/rx"
)

// Combined is a container node whose state maps child keys to child
// states. Children without state are omitted from the map.
//
// After linking, children are ordered so that every child updates after
// the siblings it depends on, and dependencies that point outside the
// container are hoisted onto the container itself.
type Combined struct {
	nodeBase
	children map[string]Node
	order    []string
}

// Combine creates an unlinked container of children.
func Combine(children map[string]Node) (*Combined, error) {
	for k, child := range children {
		if child == nil {
			return nil, &LinkError{Code: ErrCodeInvalidNode, Message: fmt.Sprintf("child %q is nil", k)}
		}
		if k == "" {
			return nil, &LinkError{Code: ErrCodeInvalidNode, Message: "child key must not be empty"}
		}
		if _, err := keypath.New(k); err != nil {
			return nil, &LinkError{Code: ErrCodeInvalidNode, Message: fmt.Sprintf("child key %q must be a single path segment", k)}
		}
	}
	c := &Combined{
		children: maps.Clone(children),
		order:    slices.Sorted(maps.Keys(children)),
	}
	if err := c.init(c, nil, nil, nil); err != nil {
		return nil, err
	}
	return c, nil
}

// MustCombine is Combine for statically declared graphs.
func MustCombine(children map[string]Node) *Combined {
	c, err := Combine(children)
	if err != nil {
		panic(err)
	}
	return c
}

// HasChildren reports true.
func (c *Combined) HasChildren() bool {
	return true
}

// Child returns the child at key.
func (c *Combined) Child(key string) (Node, bool) {
	n, ok := c.children[key]
	return n, ok
}

// Order returns the child keys in update order.
func (c *Combined) Order() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.order)
}

// Link links the container and its children. The returned finish function
// finishes the children, then orders them and hoists external dependencies.
func (c *Combined) Link(host Host, parent Node, key string) (func() error, error) {
	if err := c.link(host, parent, key); err != nil {
		return nil, err
	}

	keys := c.Order()
	finishers := make([]func() error, 0, len(keys))
	for _, k := range keys {
		finish, err := c.children[k].Link(host, c, k)
		if err != nil {
			return nil, fmt.Errorf("link %s: %w", c.KeyPath().Child(k), err)
		}
		finishers = append(finishers, finish)
	}

	return func() error {
		for _, finish := range finishers {
			if err := finish(); err != nil {
				return err
			}
		}

		path := c.KeyPath()
		order, err := sortChildren(path, keys, c.children)
		if err != nil {
			return err
		}

		external := map[string]Node{}
		accept := []string{}
		for _, k := range order {
			child := c.children[k]
			for _, dep := range child.Dependencies() {
				if !path.Contains(dep.KeyPath()) {
					external[dep.KeyPath().String()] = dep
				}
			}
			if accept != nil {
				if a := child.Accept(); a == nil {
					accept = nil
				} else {
					accept = append(accept, a...)
				}
			}
		}
		matcher, err := action.NewMatcher(accept)
		if err != nil {
			return &LinkError{Code: ErrCodeInvalidNode, Path: path.String(), Message: err.Error()}
		}

		c.mu.Lock()
		c.order = order
		c.deps = external
		c.matcher = matcher
		c.mu.Unlock()

		c.finishLink()
		return nil
	}, nil
}

// Unlink disposes the container and every child.
func (c *Combined) Unlink() {
	c.unlink()
	for _, k := range c.Order() {
		c.children[k].Unlink()
	}
}

// Update updates every child that should update, in dependency order. A
// new state map is built only when some child state changed.
func (c *Combined) Update(prev any, ctx *UpdateContext) any {
	state, _ := prev.(map[string]any)
	next := make(map[string]any, len(c.order))
	changed := false

	for _, k := range c.Order() {
		child := c.children[k]
		cur := state[k]
		value := cur

		ctx.SetNode(child)
		if ctx.ShouldUpdate() {
			value = child.Update(cur, ctx)
		}
		if value != nil {
			next[k] = value
		}

		ctx.SetNode(child)
		ctx.UpdateDigest(value)
		if !Same(cur, value) {
			changed = true
			ctx.MarkUpdated()
		}
	}

	ctx.SetNode(c)
	if !changed {
		return prev
	}
	if len(next) == 0 {
		ctx.UpdateDigest(nil)
		ctx.MarkUpdated()
		return nil
	}
	ctx.UpdateDigest(next)
	ctx.MarkUpdated()
	return next
}

// Process merges the process streams of every child. Each child sees the
// lifecycle actions plus the actions its accept list and target match. A
// failing child pipeline is logged and dropped without affecting the
// others.
func (c *Combined) Process(actions *ActionStream) rx.Observable[action.Action] {
	keys := c.Order()
	streams := make([]rx.Observable[action.Action], 0, len(keys))
	for _, k := range keys {
		child := c.children[k]
		in := actions.ForNode(child)
		if accept := child.Accept(); accept != nil {
			in = in.OfType(append([]string{action.TypeStart, action.TypeStop}, accept...)...)
		}
		in = in.Targeted()

		path := child.KeyPath().String()
		out := child.Process(in).CatchError(func(err error) rx.Observable[action.Action] {
			c.logger().Error("process failed", "key_path", path, "error", err)
			return rx.Empty[action.Action]()
		})
		streams = append(streams, out)
	}
	return track(&c.nodeBase, rx.Merge(streams...))
}

// Dump collects the dumps of every child. Children that dump nil are
// omitted, and an empty result is nil.
func (c *Combined) Dump(state any) any {
	m := asMap(state)
	out := map[string]any{}
	for _, k := range c.Order() {
		if d := c.children[k].Dump(m[k]); d != nil {
			out[k] = d
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Load loads every child from its part of dump, then runs an update pass
// over the loaded state so derived children are recomputed.
func (c *Combined) Load(dump any, ctx *UpdateContext) any {
	m := asMap(dump)
	state := map[string]any{}
	for _, k := range c.Order() {
		child := c.children[k]
		if s := child.Load(m[k], ctx.SetNode(child)); s != nil {
			state[k] = s
		}
	}
	var loaded any
	if len(state) > 0 {
		loaded = state
	}
	return c.Update(loaded, ctx.SetNode(c))
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case Digest:
		return m
	default:
		return nil
	}
}
