package graph

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"slices"
	"sync"

	"github.com/roach88/gasoline/internal/action"
	"github.com/roach88/gasoline/internal/keypath"
	"github.com/roach88/gasoline/internal/rx"
)

// Digest maps a node path (Path.String()) to that node's state.
// A committed digest is never mutated; every dispatch builds a new one.
type Digest map[string]any

const (
	// EventStarted is fired by the host once the START pass completed.
	EventStarted = "started"

	// UpdatedEventPrefix prefixes the path in "updated <path>" events.
	UpdatedEventPrefix = "updated "
)

// UpdatedEvent names the listener event fired after a flush in which the
// state at p changed.
func UpdatedEvent(p keypath.Path) string {
	return UpdatedEventPrefix + p.String()
}

// Host is the store as seen from a linked node.
type Host interface {
	// Digest returns the committed digest.
	Digest() Digest

	// Dispatch dispatches a to the graph.
	Dispatch(a action.Action) error

	// Parser returns the host's action type parser.
	Parser() *action.Parser

	// Scheduler returns the scheduler timers of process pipelines must use.
	Scheduler() rx.Scheduler

	// Listen registers fn for event and returns its cancel function.
	Listen(event string, fn func()) (cancel func())

	// Logger returns the host logger.
	Logger() *slog.Logger
}

// Node is a unit of addressable state. The set of implementations is
// closed: *Model, *Selector and *Combined, plus types embedding them.
type Node interface {
	// KeyPath returns the path assigned at link time.
	KeyPath() keypath.Path
	IsLinked() bool
	IsDisposed() bool

	// HasChildren reports whether the node is a container. Containers
	// match bound generic action types anywhere in their subtree.
	HasChildren() bool

	// Accept returns the accept list, or nil when every type is accepted.
	Accept() []string

	// MatchType reports whether the (generalized) action type is accepted.
	MatchType(t string) bool

	// Dependencies returns the nodes whose changes re-run Update.
	Dependencies() map[string]Node

	// Update computes the next state. It must return prev unchanged when
	// nothing relevant changed.
	Update(prev any, ctx *UpdateContext) any

	// Process maps the node's filtered action stream to further actions.
	// It is subscribed once for the node's linked lifetime.
	Process(actions *ActionStream) rx.Observable[action.Action]

	// Dump converts state to persistable plain data. Nil omits the node.
	Dump(state any) any

	// Load converts persisted data back to state. Nil means no state.
	Load(dump any, ctx *UpdateContext) any

	// Link assigns the node's path and host. Linking is two-phase: the
	// returned finish function runs after the whole tree was linked.
	Link(host Host, parent Node, key string) (finish func() error, err error)

	// Unlink detaches the node and cancels all its subscriptions.
	Unlink()

	// State returns the committed state, or nil when unlinked.
	State() any

	// StateStream emits the current state and every committed change.
	StateStream() rx.Observable[any]

	base() *nodeBase
}

// LinkErrorCode categorizes linking errors.
type LinkErrorCode string

const (
	// ErrCodeAlreadyLinked indicates a node was linked twice.
	ErrCodeAlreadyLinked LinkErrorCode = "ALREADY_LINKED"

	// ErrCodeDisposed indicates an unlinked node was used again.
	ErrCodeDisposed LinkErrorCode = "DISPOSED"

	// ErrCodeUnlinkedDependency indicates a dependency outside the linked graph.
	ErrCodeUnlinkedDependency LinkErrorCode = "UNLINKED_DEPENDENCY"

	// ErrCodeDependencyCycle indicates siblings that depend on each other.
	ErrCodeDependencyCycle LinkErrorCode = "DEPENDENCY_CYCLE"

	// ErrCodeNotLinked indicates an operation that needs a linked node.
	ErrCodeNotLinked LinkErrorCode = "NOT_LINKED"

	// ErrCodeInvalidNode indicates invalid node options.
	ErrCodeInvalidNode LinkErrorCode = "INVALID_NODE"
)

// LinkError reports a graph construction or linking error. These are
// programmer errors and are always returned to the caller.
type LinkError struct {
	Code    LinkErrorCode
	Path    string
	Message string

	// Cycle lists the sibling keys of a dependency cycle, first key repeated.
	Cycle []string
}

func (e *LinkError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (path=%s)", e.Code, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsLinkError reports whether err is a LinkError with the given code.
func IsLinkError(err error, code LinkErrorCode) bool {
	var le *LinkError
	if errors.As(err, &le) {
		return le.Code == code
	}
	return false
}

// IsCycleError reports whether err is a dependency cycle error.
func IsCycleError(err error) bool {
	return IsLinkError(err, ErrCodeDependencyCycle)
}

// Same reports whether two states are the same reference. Comparable
// values compare with ==, maps, slices, pointers and funcs by identity.
// Uncomparable values that are not references never count as the same.
func Same(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	if va.Comparable() && vb.Comparable() {
		return va.Equal(vb)
	}
	return false
}

// BoundCreator builds an action already bound to its node.
type BoundCreator func(args ...any) (action.Action, error)

// nodeBase carries the lifecycle shared by every node variant.
type nodeBase struct {
	mu       sync.RWMutex
	self     Node
	host     Host
	path     keypath.Path
	linked   bool
	ready    bool
	disposed bool
	deps     map[string]Node
	matcher  *action.Matcher
	creators map[string]action.Creator
	subs     *rx.Subscription
	pending  []func(Host, keypath.Path)
}

func (b *nodeBase) init(self Node, deps map[string]Node, accept []string, creators map[string]action.Creator) error {
	matcher, err := action.NewMatcher(accept)
	if err != nil {
		return &LinkError{Code: ErrCodeInvalidNode, Message: err.Error()}
	}
	for k, d := range deps {
		if d == nil {
			return &LinkError{Code: ErrCodeInvalidNode, Message: fmt.Sprintf("dependency %q is nil", k)}
		}
	}
	b.self = self
	b.deps = maps.Clone(deps)
	if b.deps == nil {
		b.deps = map[string]Node{}
	}
	b.matcher = matcher
	b.creators = maps.Clone(creators)
	b.subs = rx.NewSubscription()
	return nil
}

func (b *nodeBase) base() *nodeBase {
	return b
}

// KeyPath returns the node's path.
func (b *nodeBase) KeyPath() keypath.Path {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.path
}

// IsLinked reports whether the node is linked to a host.
func (b *nodeBase) IsLinked() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.linked
}

// IsDisposed reports whether the node was unlinked.
func (b *nodeBase) IsDisposed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.disposed
}

// Accept returns the accept list, nil for everything.
func (b *nodeBase) Accept() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.matcher.Patterns()
}

// MatchType reports whether t is accepted.
func (b *nodeBase) MatchType(t string) bool {
	b.mu.RLock()
	m := b.matcher
	b.mu.RUnlock()
	return m.Match(t)
}

// Dependencies returns a copy of the dependency map.
func (b *nodeBase) Dependencies() map[string]Node {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.deps)
}

// Host returns the host, or nil when unlinked.
func (b *nodeBase) Host() Host {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.host
}

// State returns the committed state.
func (b *nodeBase) State() any {
	b.mu.RLock()
	host, path := b.host, b.path
	b.mu.RUnlock()
	if host == nil {
		return nil
	}
	return host.Digest()[path.String()]
}

// StateStream emits the current state once the node is linked, then the
// state after every flush that changed it. Subscribing to a disposed node
// errors. Unlinking the node cancels every state subscription.
func (b *nodeBase) StateStream() rx.Observable[any] {
	return rx.New(func(s *rx.Subscriber[any]) {
		b.mu.Lock()
		if b.disposed {
			path := b.path.String()
			b.mu.Unlock()
			s.Error(&LinkError{Code: ErrCodeDisposed, Path: path, Message: "Cannot subscribe to disposed node"})
			return
		}
		remove := b.subs.Add(s.Unsubscribe)
		s.Add(remove)

		if b.ready {
			host, path := b.host, b.path
			b.mu.Unlock()
			listenState(s, host, path)
			return
		}
		b.pending = append(b.pending, func(host Host, path keypath.Path) {
			listenState(s, host, path)
		})
		b.mu.Unlock()
	})
}

func listenState(s *rx.Subscriber[any], host Host, path keypath.Path) {
	if s.Closed() {
		return
	}
	key := path.String()
	emit := func() { s.Next(host.Digest()[key]) }
	emit()
	s.Add(host.Listen(UpdatedEvent(path), emit))
}

// ActionCreator returns the named creator bound to this node.
func (b *nodeBase) ActionCreator(name string) (BoundCreator, error) {
	create, ok := b.creators[name]
	if !ok {
		return nil, fmt.Errorf("node %s has no action creator %q", b.KeyPath(), name)
	}
	return func(args ...any) (action.Action, error) {
		return action.Bind(create(args...), b.KeyPath())
	}, nil
}

// ActionCreators returns the names of the declared action creators.
func (b *nodeBase) ActionCreators() []string {
	return slices.Sorted(maps.Keys(b.creators))
}

// Act invokes the named creator and dispatches its bound action.
func (b *nodeBase) Act(name string, args ...any) error {
	create, err := b.ActionCreator(name)
	if err != nil {
		return err
	}
	a, err := create(args...)
	if err != nil {
		return fmt.Errorf("act %s: %w", name, err)
	}
	return b.dispatch(a)
}

// Dispatch binds a to this node (generic type and target references) and
// dispatches it through the host.
func (b *nodeBase) Dispatch(a action.Action) error {
	bound, err := action.Bind(a, b.KeyPath())
	if err != nil {
		return err
	}
	return b.dispatch(bound)
}

func (b *nodeBase) dispatch(a action.Action) error {
	host := b.Host()
	if host == nil {
		return &LinkError{Code: ErrCodeNotLinked, Path: b.KeyPath().String(), Message: "Cannot dispatch from unlinked node"}
	}
	return host.Dispatch(a)
}

func (b *nodeBase) logger() *slog.Logger {
	if host := b.Host(); host != nil {
		return host.Logger()
	}
	return slog.Default()
}

func (b *nodeBase) parser() *action.Parser {
	if host := b.Host(); host != nil {
		return host.Parser()
	}
	return nil
}

func (b *nodeBase) link(host Host, parent Node, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed {
		return &LinkError{Code: ErrCodeDisposed, Path: b.path.String(), Message: "Cannot link disposed node"}
	}
	if b.linked {
		return &LinkError{
			Code:    ErrCodeAlreadyLinked,
			Path:    b.path.String(),
			Message: fmt.Sprintf("Node '%s' is already linked", b.path),
		}
	}

	path := keypath.Root
	if parent != nil {
		path = parent.KeyPath().Child(key)
	}
	b.path = path
	b.host = host
	b.linked = true
	return nil
}

// finishLink marks the node ready and starts deferred state subscriptions.
func (b *nodeBase) finishLink() {
	b.mu.Lock()
	if !b.linked {
		b.mu.Unlock()
		return
	}
	b.ready = true
	pending := b.pending
	b.pending = nil
	host, path := b.host, b.path
	b.mu.Unlock()

	for _, fn := range pending {
		fn(host, path)
	}
}

func (b *nodeBase) unlink() {
	b.mu.Lock()
	b.host = nil
	b.linked = false
	b.ready = false
	b.disposed = true
	b.pending = nil
	b.mu.Unlock()

	b.subs.Unsubscribe()
}

// track ties a process stream to the node's lifetime: unlinking the node
// cancels the subscription.
func track(b *nodeBase, o rx.Observable[action.Action]) rx.Observable[action.Action] {
	return rx.New(func(s *rx.Subscriber[action.Action]) {
		remove := b.subs.Add(s.Unsubscribe)
		s.Add(remove)
		if s.Closed() {
			return
		}
		inner := o.Subscribe(s)
		s.Add(inner.Unsubscribe)
	})
}
