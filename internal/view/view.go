// Package view binds consumers to the state of a graph node.
//
// A view sees only committed states, after the store flushed them, and
// never two structurally equal states in a row: a node that rebuilds an
// equal value (a new slice with the same items, say) does not re-render
// its views.
package view

import (
	"reflect"
	"sync"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/gasoline/internal/graph"
	"github.com/roach88/gasoline/internal/rx"
)

// Option configures Watch and NewLatest.
type Option func(*options)

type options struct {
	onError func(error)
	cmpOpts []cmp.Option
}

// WithErrorHandler receives the error that ends the watch, e.g. watching
// a disposed node.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// WithCmpOptions adds go-cmp options to the equality check.
func WithCmpOptions(opts ...cmp.Option) Option {
	return func(o *options) {
		o.cmpOpts = append(o.cmpOpts, opts...)
	}
}

// exportAll lets cmp.Equal compare unexported struct fields.
var exportAll = cmp.Exporter(func(reflect.Type) bool { return true })

// Watch calls fn with the node state now and after every change. States
// that are nil (no state yet) or not of type S are skipped. The returned
// cancel stops the watch; it is safe to call more than once.
func Watch[S any](node graph.Node, fn func(S), opts ...Option) (cancel func()) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	cmpOpts := append([]cmp.Option{exportAll}, o.cmpOpts...)

	var (
		mu   sync.Mutex
		last S
		seen bool
	)
	sub := node.StateStream().Subscribe(rx.ObserverFuncs[any]{
		OnNext: func(v any) {
			s, ok := v.(S)
			if !ok {
				return
			}
			mu.Lock()
			if seen && cmp.Equal(last, s, cmpOpts...) {
				mu.Unlock()
				return
			}
			last, seen = s, true
			mu.Unlock()
			fn(s)
		},
		OnError: o.onError,
	})
	return sub.Unsubscribe
}

// Latest holds the most recent state of a node for consumers that poll.
//
// Thread-safety: Latest is safe for concurrent use.
type Latest[S any] struct {
	mu      sync.RWMutex
	value   S
	ok      bool
	version uint64
	cancel  func()
}

// NewLatest watches node until Close is called.
func NewLatest[S any](node graph.Node, opts ...Option) *Latest[S] {
	l := &Latest[S]{}
	l.cancel = Watch(node, func(s S) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.value = s
		l.ok = true
		l.version++
	}, opts...)
	return l
}

// Get returns the current state. ok is false until the node has a state.
func (l *Latest[S]) Get() (value S, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.value, l.ok
}

// Version counts the distinct states seen so far. A poller re-renders
// when it changes.
func (l *Latest[S]) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Close stops watching.
func (l *Latest[S]) Close() {
	l.cancel()
}
