package graph

import (
	"github.com/roach88/gasoline/internal/action"
	"github.com/roach88/gasoline/internal/rx"
)

// ActionStream is the action stream handed to a node's Process. Its
// filters match types the way the node does, so bound generic types
// addressed to the node satisfy the node's "name:*" rules.
type ActionStream struct {
	rx.Observable[action.Action]
	node Node
}

// NewActionStream wraps src for node.
func NewActionStream(src rx.Observable[action.Action], node Node) *ActionStream {
	return &ActionStream{Observable: src, node: node}
}

// Node returns the node the stream is bound to.
func (s *ActionStream) Node() Node {
	return s.node
}

// ForNode rebinds the same source to another node.
func (s *ActionStream) ForNode(n Node) *ActionStream {
	return &ActionStream{Observable: s.Observable, node: n}
}

// OfType keeps actions matching any of patterns. An invalid pattern turns
// the stream into one that fails with the rule error.
func (s *ActionStream) OfType(patterns ...string) *ActionStream {
	return s.filterTypes(patterns, true)
}

// NotOfType drops actions matching any of patterns.
func (s *ActionStream) NotOfType(patterns ...string) *ActionStream {
	return s.filterTypes(patterns, false)
}

// Targeted drops actions whose target list does not cover the node.
// Lifecycle actions always pass.
func (s *ActionStream) Targeted() *ActionStream {
	node := s.node
	return &ActionStream{
		Observable: s.Observable.Filter(func(a action.Action) bool {
			if action.IsLifecycle(a.Type) || node == nil {
				return true
			}
			return action.MatchTarget(node.KeyPath(), node.HasChildren(), a.Target)
		}),
		node: node,
	}
}

func (s *ActionStream) filterTypes(patterns []string, keep bool) *ActionStream {
	if patterns == nil {
		patterns = []string{}
	}
	m, err := action.NewMatcher(patterns)
	if err != nil {
		return &ActionStream{Observable: rx.Throw[action.Action](err), node: s.node}
	}
	node := s.node
	return &ActionStream{
		Observable: s.Observable.Filter(func(a action.Action) bool {
			return m.Match(genericTypeFor(node, a.Type)) == keep
		}),
		node: node,
	}
}

// genericTypeFor returns t as node should match it.
func genericTypeFor(node Node, t string) string {
	if node == nil {
		return t
	}
	var (
		d   action.Descriptor
		err error
	)
	if p := node.base().parser(); p != nil {
		d, err = p.Parse(t)
	} else {
		d, err = action.ParseType(t)
	}
	if err != nil {
		return t
	}
	return d.GenericFor(node.KeyPath(), node.HasChildren())
}
