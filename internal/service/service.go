package service

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/gasoline/internal/action"
	"github.com/roach88/gasoline/internal/graph"
	"github.com/roach88/gasoline/internal/rx"
)

// Action types of a service node. They are generic: each service binds
// them to its own path.
const (
	TypeOpen             = "gasoline.Service.OPEN:*"
	TypeClose            = "gasoline.Service.CLOSE:*"
	TypeReadyStateChange = "gasoline.Service.READY_STATE_CHANGE:*"
	TypeError            = "gasoline.Service.ERROR:*"
)

// localTypes never cross the bridge in either direction.
var localTypes = []string{
	action.TypeStart, action.TypeStop, action.TypeLoad,
	TypeOpen, TypeClose, TypeReadyStateChange, TypeError,
}

// ReadyState is the connection status of a service.
type ReadyState string

const (
	Initial    ReadyState = "initial"
	Connecting ReadyState = "connecting"
	Open       ReadyState = "open"
	Closing    ReadyState = "closing"
	Closed     ReadyState = "closed"
)

// ControlMessage asks the adapter to open or close the connection.
type ControlMessage string

const (
	ControlOpen  ControlMessage = "open"
	ControlClose ControlMessage = "close"
)

// State is the state of a service node.
type State struct {
	Status ReadyState `json:"status"`

	// Error is the message of the last error thrown by the adapter.
	Error string `json:"error,omitempty"`
}

// Bridge is handed to an adapter on install. Its methods are safe to call
// from any goroutine.
type Bridge interface {
	// NextReadyState moves the service to status. The new status must
	// differ from the current one.
	NextReadyState(status ReadyState) error

	// Dispatch injects an incoming action into the store.
	Dispatch(a action.Action)

	// Throw reports an adapter error as an ERROR action.
	Throw(err error)

	// Status returns the current status.
	Status() ReadyState
}

// Adapter performs the I/O of a service. The service calls it from inside
// dispatch passes; adapters must not block.
type Adapter interface {
	Install(b Bridge)
	OnInitial()
	OnControlMessage(msg ControlMessage)
	OnReadyState(status ReadyState)
	OnAction(a action.Action)
}

// Option configures a service node.
type Option func(*Node)

// WithAcceptIncoming restricts the action types adapters may inject.
func WithAcceptIncoming(patterns ...string) Option {
	return func(n *Node) {
		n.acceptIncoming = patterns
	}
}

// WithAcceptOutgoing restricts the action types delivered to the adapter.
func WithAcceptOutgoing(patterns ...string) Option {
	return func(n *Node) {
		n.acceptOutgoing = patterns
	}
}

// WithLogger sets the logger. Default: the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Node) {
		n.logger = l
	}
}

// Node is a graph node that bridges the store to an external transport.
//
// Incoming actions from the adapter are dispatched with Meta.Origin set to
// the node, and are never echoed back to it. Every other dispatched action
// (minus lifecycle and service control types) is delivered to the adapter.
// The node is never persisted.
type Node struct {
	*graph.Model[State]

	adapter        Adapter
	acceptIncoming []string
	acceptOutgoing []string
	logger         *slog.Logger
}

// New creates an unlinked service node for adapter.
func New(adapter Adapter, opts ...Option) (*Node, error) {
	if adapter == nil {
		return nil, fmt.Errorf("service: adapter must not be nil")
	}
	n := &Node{adapter: adapter}
	for _, opt := range opts {
		opt(n)
	}

	var accept []string
	if n.acceptIncoming != nil && n.acceptOutgoing != nil {
		accept = slices.Concat([]string{TypeOpen, TypeClose, TypeReadyStateChange, TypeError}, n.acceptIncoming, n.acceptOutgoing)
	}

	model, err := graph.NewModel(graph.ModelOptions[State]{
		InitialState: State{Status: Initial},
		Handlers: map[string]graph.Handler[State]{
			TypeReadyStateChange: func(s State, a action.Action, _ *graph.UpdateContext) State {
				status, _ := a.Payload.(ReadyState)
				if status == s.Status {
					return s
				}
				return State{Status: status}
			},
			TypeError: func(s State, a action.Action, _ *graph.UpdateContext) State {
				msg := fmt.Sprint(a.Payload)
				if msg == s.Error {
					return s
				}
				return State{Status: s.Status, Error: msg}
			},
		},
		Accept:  accept,
		Process: n.process,
		ActionCreators: map[string]action.Creator{
			"open":  func(...any) action.Action { return action.New(TypeOpen, nil) },
			"close": func(...any) action.Action { return action.New(TypeClose, nil) },
		},
		Transient: true,
	})
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	n.Model = model
	return n, nil
}

// Open asks the adapter to connect.
func (n *Node) Open() error {
	return n.Act("open")
}

// Close asks the adapter to disconnect.
func (n *Node) Close() error {
	return n.Act("close")
}

// Origin returns the Meta.Origin value stamped on incoming actions.
func (n *Node) Origin() string {
	return "gasoline.Service:" + n.KeyPath().String()
}

func (n *Node) log() *slog.Logger {
	if n.logger != nil {
		return n.logger
	}
	if host := n.Host(); host != nil {
		return host.Logger()
	}
	return slog.Default()
}

// process installs a fresh bridge and routes the action stream to the
// adapter for as long as the subscription lives.
func (n *Node) process(in *graph.ActionStream, self *graph.Model[State]) rx.Observable[action.Action] {
	return rx.New(func(out *rx.Subscriber[action.Action]) {
		b, err := newBridge(n, out)
		if err != nil {
			out.Error(err)
			return
		}
		n.adapter.Install(b)

		var once sync.Once
		teardown := func() {
			once.Do(func() {
				if s := b.Status(); s == Connecting || s == Open {
					n.adapter.OnReadyState(Closing)
				}
			})
		}
		out.Add(teardown)

		sub := in.Subscribe(rx.ObserverFuncs[action.Action]{
			OnNext: func(a action.Action) {
				if a.Type == action.TypeStop {
					teardown()
					out.Complete()
					return
				}
				n.route(a, b)
			},
			OnError:    out.Error,
			OnComplete: out.Complete,
		})
		out.Add(sub.Unsubscribe)
	})
}

// route delivers one action from the store to the adapter.
func (n *Node) route(a action.Action, b *bridge) {
	generic, local := b.classify(a.Type)
	switch generic {
	case action.TypeStart:
		n.adapter.OnInitial()
	case TypeOpen:
		n.adapter.OnControlMessage(ControlOpen)
	case TypeClose:
		n.adapter.OnControlMessage(ControlClose)
	case TypeReadyStateChange:
		if status, ok := a.Payload.(ReadyState); ok {
			n.adapter.OnReadyState(status)
		}
	default:
		if local || a.Meta.Origin == b.origin {
			return
		}
		if b.outgoing != nil && !b.outgoing.Match(generic) {
			return
		}
		n.adapter.OnAction(a)
	}
}
