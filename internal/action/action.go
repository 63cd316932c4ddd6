package action

import (
	"slices"
	"time"

	"github.com/roach88/gasoline/internal/keypath"
)

// Reserved lifecycle action types. The store synthesizes them; callers
// must never dispatch them.
const (
	TypeStart = "gasoline.Store.START"
	TypeStop  = "gasoline.Store.STOP"
	TypeLoad  = "gasoline.Store.LOAD"
)

// IsLifecycle reports whether t is one of the reserved lifecycle types.
func IsLifecycle(t string) bool {
	return t == TypeStart || t == TypeStop || t == TypeLoad
}

// Action is the unit of change flowing through the store.
//
// Target restricts delivery to the listed subtrees; an empty Target means
// every node is eligible. TargetRefs holds unresolved references ("@self",
// relative or absolute paths) produced by action creators; binding an
// action to a node resolves them into Target.
type Action struct {
	Type       string         `json:"type"`
	Target     []keypath.Path `json:"target,omitempty"`
	TargetRefs []string       `json:"-"`
	Payload    any            `json:"payload,omitempty"`
	Meta       Meta           `json:"meta,omitzero"`
}

// Meta carries routing and tracing information.
type Meta struct {
	// Dispatch is assigned by the store for every dispatched action.
	Dispatch *DispatchMeta `json:"dispatch,omitempty"`

	// ReplyTo names the dispatch id this action answers. The store copies
	// it into Dispatch.Parent.
	ReplyTo string `json:"replyTo,omitempty"`

	// Origin marks actions injected by a service node so that they are not
	// echoed back to the same service.
	Origin string `json:"origin,omitempty"`
}

// DispatchMeta is the store-assigned dispatch record.
type DispatchMeta struct {
	ID     string    `json:"id"`
	Seq    int64     `json:"seq"`
	Time   time.Time `json:"time"`
	Parent string    `json:"parent,omitempty"`

	// Derived is set for actions emitted by a process pipeline. Replaying
	// a log must skip them: the pipelines derive them again.
	Derived bool `json:"derived,omitempty"`
}

// New creates an action of type t with an optional payload.
func New(t string, payload any) Action {
	return Action{Type: t, Payload: payload}
}

// Clone returns a copy that shares only the payload with a.
func (a Action) Clone() Action {
	c := a
	c.Target = slices.Clone(a.Target)
	c.TargetRefs = slices.Clone(a.TargetRefs)
	if a.Meta.Dispatch != nil {
		d := *a.Meta.Dispatch
		c.Meta.Dispatch = &d
	}
	return c
}

// WithTarget returns a copy of a addressed to the given references.
func (a Action) WithTarget(refs ...string) Action {
	c := a.Clone()
	c.TargetRefs = append(c.TargetRefs, refs...)
	return c
}

// DispatchID returns the store-assigned id, or "" when a was not dispatched.
func (a Action) DispatchID() string {
	if a.Meta.Dispatch == nil {
		return ""
	}
	return a.Meta.Dispatch.ID
}

// Creator builds an action from arbitrary arguments.
type Creator func(args ...any) Action
