package engine

import (
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/gasoline/internal/action"
	"github.com/roach88/gasoline/internal/graph"
	"github.com/roach88/gasoline/internal/rx"
)

// DefaultMaxSteps is the default maximum number of update passes per drain.
const DefaultMaxSteps = 1000

// Status is the store lifecycle state.
type Status int32

const (
	StatusNotStarted Status = iota
	StatusStarted
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusStarted:
		return "started"
	case StatusStopped:
		return "stopped"
	default:
		return "not started"
	}
}

// Store is the dispatch engine: it owns the committed digest of a linked
// node graph and runs one synchronous update pass per dispatched action.
//
// CRITICAL: passes are serialized. Dispatch enqueues the action and then
// tries to become the drainer; whoever holds the drain lock runs every
// queued pass before releasing it. A dispatch issued during a pass (from a
// process pipeline, a listener, or another goroutine) is thus processed to
// completion before the outer Dispatch returns, and the changed paths of
// all passes of one drain are flushed to listeners once, at the end.
//
// Thread-safety model:
//   - Dispatch, Listen, Ready, State, Digest: safe from any goroutine
//   - Start, Stop, Load, Dump: safe from any goroutine, lifecycle-checked
//   - Timer tasks of process pipelines run under the drain lock
//
// INVARIANTS:
//   - The committed digest is never mutated; each pass works on a copy and
//     swaps it in atomically, only when the root state reference changed
//   - Lifecycle actions are synthesized by the store, never dispatched by callers
//   - A stopped store cannot be restarted
type Store struct {
	root     graph.Node
	logger   *slog.Logger
	ids      IDGenerator
	clock    *Clock
	sched    *storeScheduler
	parser   *action.Parser
	metrics  Metrics
	maxSteps int

	status atomic.Int32
	ready  bool
	digest atomic.Pointer[graph.Digest]

	mu    sync.Mutex // drain lock
	queue *dispatchQueue

	actions    *rx.Subject[action.Action]
	processSub *rx.Subscription

	listenMu     sync.Mutex
	listeners    map[string]map[uint64]func()
	nextListener uint64
	readyFns     []func()
}

// StoreOption allows configuration of store parameters.
type StoreOption func(*Store)

// WithLogger sets the store logger. Default: slog.Default().
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator sets the dispatch id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) StoreOption {
	return func(s *Store) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithScheduler sets the scheduler used for dispatch timestamps and for
// the timers of process pipelines. Default: rx.RealScheduler.
// Use an rx.VirtualScheduler for deterministic tests.
func WithScheduler(sched rx.Scheduler) StoreOption {
	return func(s *Store) {
		if sched != nil {
			s.sched.inner = sched
		}
	}
}

// WithMaxSteps sets the maximum number of passes per drain.
//
// Default: 1000 steps (DefaultMaxSteps). Zero disables the quota.
func WithMaxSteps(maxSteps int) StoreOption {
	return func(s *Store) {
		s.maxSteps = maxSteps
	}
}

// WithMetrics installs a metrics sink.
func WithMetrics(m Metrics) StoreOption {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithParser sets the action type parser. Each store owns a fresh parser
// by default.
func WithParser(p *action.Parser) StoreOption {
	return func(s *Store) {
		if p != nil {
			s.parser = p
		}
	}
}

// WithClock sets the logical clock, e.g. one resumed with NewClockAt.
func WithClock(c *Clock) StoreOption {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// New creates a store for root and links root at "/".
// Link errors (cycles, unlinked dependencies, reused nodes) are returned.
func New(root graph.Node, opts ...StoreOption) (*Store, error) {
	s := &Store{
		root:      root,
		logger:    slog.Default(),
		ids:       UUIDv7Generator{},
		clock:     NewClock(),
		parser:    action.NewParser(),
		metrics:   noopMetrics{},
		maxSteps:  DefaultMaxSteps,
		queue:     newDispatchQueue(),
		actions:   rx.NewSubject[action.Action](),
		listeners: make(map[string]map[uint64]func()),
	}
	s.sched = &storeScheduler{store: s, inner: rx.RealScheduler{}}
	empty := graph.Digest{}
	s.digest.Store(&empty)

	for _, opt := range opts {
		opt(s)
	}

	finish, err := root.Link(s, nil, "")
	if err != nil {
		return nil, err
	}
	if err := finish(); err != nil {
		return nil, err
	}
	return s, nil
}

// Root returns the root node.
func (s *Store) Root() graph.Node {
	return s.root
}

// Status returns the lifecycle state.
func (s *Store) Status() Status {
	return Status(s.status.Load())
}

// Digest returns the committed digest. Callers must not mutate it.
func (s *Store) Digest() graph.Digest {
	return *s.digest.Load()
}

// State returns the committed root state.
func (s *Store) State() any {
	return s.Digest()[s.root.KeyPath().String()]
}

// Parser returns the store's action type parser.
func (s *Store) Parser() *action.Parser {
	return s.parser
}

// Scheduler returns the scheduler process pipelines must use for timers.
func (s *Store) Scheduler() rx.Scheduler {
	return s.sched
}

// Logger returns the store logger.
func (s *Store) Logger() *slog.Logger {
	return s.logger
}

// Seq returns the sequence number of the last dispatched action.
func (s *Store) Seq() int64 {
	return s.clock.Current()
}

// Actions returns the stream of finalized actions, lifecycle actions
// included, in dispatch order. It completes when the store stops.
func (s *Store) Actions() rx.Observable[action.Action] {
	return s.actions.Observable()
}

// Start subscribes the root process pipeline, runs the START pass and
// then fires the "started" event. Like every child of a Combined, the
// root pipeline only sees the lifecycle actions plus what its accept list
// matches.
func (s *Store) Start() error {
	// Start holds the drain lock, so the status check cannot race another
	// Start. START is queued before the status is published: Dispatch
	// enqueues only once it sees StatusStarted, behind START.
	s.mu.Lock()
	switch s.Status() {
	case StatusStopped:
		s.mu.Unlock()
		return errStopped()
	case StatusStarted:
		s.mu.Unlock()
		return &StoreError{Code: ErrCodeAlreadyStarted, Message: "Store is already started"}
	}
	s.queue.Enqueue(action.New(action.TypeStart, nil))
	s.status.Store(int32(StatusStarted))

	s.logger.Info("store starting", "key_path", s.root.KeyPath().String())

	stream := graph.NewActionStream(s.actions.Observable(), s.root)
	if accept := s.root.Accept(); accept != nil {
		stream = stream.OfType(append([]string{action.TypeStart, action.TypeStop}, accept...)...)
	}
	stream = stream.Targeted()
	s.processSub = s.root.Process(stream).Subscribe(rx.ObserverFuncs[action.Action]{
		OnNext: func(a action.Action) {
			if err := s.dispatch(a, true); err != nil {
				s.logger.Error("process dispatch rejected",
					"action_type", a.Type,
					"error", err)
			}
		},
		OnError: func(err error) {
			s.metrics.IncStreamErrors()
			s.logger.Error("root process failed", "error", err)
		},
	})
	s.mu.Unlock()

	s.metrics.SetQueueDepth(s.queue.Len())
	err := s.drain()

	s.listenMu.Lock()
	s.ready = true
	fns := s.readyFns
	s.readyFns = nil
	s.listenMu.Unlock()

	s.emit(graph.EventStarted)
	for _, fn := range fns {
		fn()
	}
	return err
}

// Stop runs the STOP pass, cancels every process subscription and
// completes the Actions stream. The store cannot be started again.
//
// Stop blocks until the STOP pass ran, so it must not be called from a
// process pipeline or a listener.
func (s *Store) Stop() error {
	switch s.Status() {
	case StatusNotStarted:
		return errNotStarted()
	case StatusStopped:
		return errStopped()
	}

	s.queue.Enqueue(action.New(action.TypeStop, nil))

	s.mu.Lock()
	err := s.drainLocked()
	s.status.Store(int32(StatusStopped))
	sub := s.processSub
	s.processSub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	s.actions.Complete()

	s.logger.Info("store stopped", "dispatches", s.clock.Current())
	return err
}

// Dispatch runs an update pass for a. Dispatch metadata (id, sequence,
// time, parent from Meta.ReplyTo) is assigned by the store.
//
// When called while another pass is running, a is queued and processed
// by the current drainer before that drainer returns.
func (s *Store) Dispatch(a action.Action) error {
	return s.dispatch(a, false)
}

// dispatch validates and enqueues a. derived marks actions emitted by the
// root process pipeline.
func (s *Store) dispatch(a action.Action, derived bool) error {
	switch s.Status() {
	case StatusNotStarted:
		return &StoreError{
			Code:       ErrCodeNotStarted,
			Message:    "Cannot dispatch before store is started",
			ActionType: a.Type,
		}
	case StatusStopped:
		return &StoreError{Code: ErrCodeStopped, Message: "Cannot dispatch after store is stopped", ActionType: a.Type}
	}
	if action.IsLifecycle(a.Type) {
		return &StoreError{Code: ErrCodeReservedAction, Message: "Cannot dispatch lifecycle action", ActionType: a.Type}
	}

	d, err := s.parser.Parse(a.Type)
	if err != nil {
		return &StoreError{Code: ErrCodeInvalidAction, Message: "Cannot dispatch invalid action", ActionType: a.Type, Err: err}
	}
	if d.Generic && !d.Bound {
		return &StoreError{
			Code:       ErrCodeInvalidAction,
			Message:    "Cannot dispatch unbound generic action type, bind it to a node first",
			ActionType: a.Type,
		}
	}
	if len(a.TargetRefs) > 0 {
		return &StoreError{
			Code:       ErrCodeInvalidAction,
			Message:    "Cannot dispatch unresolved target references, bind the action to a node first",
			ActionType: a.Type,
		}
	}
	a = a.Clone()
	a.Meta.Dispatch = nil
	if derived {
		a.Meta.Dispatch = &action.DispatchMeta{Derived: true}
	}
	return s.enqueue(a)
}

// Listen registers fn for event. Events are "started" and
// "updated <path>" (see graph.UpdatedEvent).
func (s *Store) Listen(event string, fn func()) (cancel func()) {
	s.listenMu.Lock()
	id := s.nextListener
	s.nextListener++
	if s.listeners[event] == nil {
		s.listeners[event] = make(map[uint64]func())
	}
	s.listeners[event][id] = fn
	s.listenMu.Unlock()

	return sync.OnceFunc(func() {
		s.listenMu.Lock()
		defer s.listenMu.Unlock()
		delete(s.listeners[event], id)
		if len(s.listeners[event]) == 0 {
			delete(s.listeners, event)
		}
	})
}

// Ready runs fn once the START pass completed: immediately when it
// already has, otherwise right after it.
func (s *Store) Ready(fn func()) {
	s.listenMu.Lock()
	if s.ready {
		s.listenMu.Unlock()
		fn()
		return
	}
	s.readyFns = append(s.readyFns, fn)
	s.listenMu.Unlock()
}

// Load restores the graph state from dump. The store must not be started.
// Listeners are notified of every path whose state changed.
func (s *Store) Load(dump any) error {
	if s.Status() != StatusNotStarted {
		return &StoreError{Code: ErrCodeStarted, Message: "Cannot load after store is started."}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	committed := s.Digest()
	working := graph.NewWorkingState(committed)
	ctx, err := graph.NewUpdateContext(action.New(action.TypeLoad, dump), s.root, working, s.parser)
	if err != nil {
		return err
	}

	key := s.root.KeyPath().String()
	prev := working.Digest[key]
	next := s.root.Load(dump, ctx)
	ctx.SetNode(s.root)
	ctx.UpdateDigest(next)

	for path, v := range working.Digest {
		if !graph.Same(committed[path], v) {
			working.Updated[path] = true
		}
	}
	for path := range committed {
		if _, ok := working.Digest[path]; !ok {
			working.Updated[path] = true
		}
	}
	if !graph.Same(prev, next) || len(working.Updated) > 0 {
		d := working.Digest
		s.digest.Store(&d)
	}

	s.logger.Info("store loaded", "changed", len(working.Updated))
	s.flush(working.Updated)
	return nil
}

// Dump returns the persistable form of the committed state. The store
// must not be running: dump before Start or after Stop.
func (s *Store) Dump() (any, error) {
	if s.Status() == StatusStarted {
		return nil, &StoreError{Code: ErrCodeStarted, Message: "Cannot dump while store is started."}
	}
	return s.root.Dump(s.State()), nil
}

func (s *Store) enqueue(a action.Action) error {
	s.queue.Enqueue(a)
	s.metrics.SetQueueDepth(s.queue.Len())
	return s.drain()
}

// drain runs queued passes until the queue is empty or another goroutine
// holds the drain lock. After releasing the lock the queue is checked
// again, so an action enqueued while the previous drainer was finishing
// is never stranded.
func (s *Store) drain() error {
	var firstErr error
	for {
		if !s.mu.TryLock() {
			return firstErr
		}
		err := s.drainLocked()
		s.mu.Unlock()

		if err != nil && firstErr == nil {
			firstErr = err
		}
		if s.queue.Len() == 0 {
			return firstErr
		}
	}
}

// runTask runs a scheduler task under the drain lock, then drains what
// it enqueued.
func (s *Store) runTask(task func()) {
	s.mu.Lock()
	task()
	err := s.drainLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("timer task dispatch failed", "error", err)
	}
	if err := s.drain(); err != nil {
		s.logger.Error("timer task dispatch failed", "error", err)
	}
}

// drainLocked runs every queued pass. Changed paths are collected across
// passes and flushed once the queue is empty; dispatches made by
// listeners start another round with its own flush.
//
// CRITICAL: must be called with s.mu held.
func (s *Store) drainLocked() error {
	quota := NewQuotaEnforcer(s.maxSteps)
	var firstErr error

	for s.queue.Len() > 0 {
		changed := make(map[string]bool)
		for {
			a, ok := s.queue.TryDequeue()
			if !ok {
				break
			}
			s.metrics.SetQueueDepth(s.queue.Len())

			if err := quota.Check(a.Type); err != nil {
				dropped := s.queue.Drop() + 1
				var se *StepsExceededError
				if errors.As(err, &se) {
					se.Dropped = dropped
				}
				s.metrics.IncQuotaExceeded()
				s.logger.Error("max steps quota exceeded",
					"action_type", a.Type,
					"steps", quota.Current(),
					"limit", quota.MaxSteps(),
					"dropped", dropped)
				if firstErr == nil {
					firstErr = err
				}
				break
			}

			if err := s.pass(a, changed); err != nil {
				s.logger.Error("dispatch failed", "action_type", a.Type, "error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		s.flush(changed)
	}
	return firstErr
}

// pass runs one update pass and publishes the finalized action.
func (s *Store) pass(a action.Action, changed map[string]bool) error {
	a = s.stamp(a)
	started := time.Now()

	working := graph.NewWorkingState(s.Digest())
	ctx, err := graph.NewUpdateContext(a, s.root, working, s.parser)
	if err != nil {
		return &StoreError{Code: ErrCodeInvalidAction, Message: "Cannot dispatch invalid action", ActionType: a.Type, Err: err}
	}

	key := s.root.KeyPath().String()
	prev := working.Digest[key]
	next := s.root.Update(prev, ctx)
	ctx.SetNode(s.root)
	ctx.UpdateDigest(next)
	if !graph.Same(prev, next) {
		ctx.MarkUpdated()
		d := working.Digest
		s.digest.Store(&d)
	}
	for path := range working.Updated {
		changed[path] = true
	}

	s.metrics.ObservePass(a.Type, time.Since(started), len(working.Updated))
	s.logger.Debug("action dispatched",
		"action_type", a.Type,
		"dispatch_id", a.DispatchID(),
		"seq", a.Meta.Dispatch.Seq,
		"changed", len(working.Updated))

	s.actions.Next(a)
	return nil
}

// stamp assigns the dispatch metadata. A pending Derived mark set by
// dispatch is kept.
func (s *Store) stamp(a action.Action) action.Action {
	out := a.Clone()
	out.Meta.Dispatch = &action.DispatchMeta{
		ID:      s.ids.Generate(),
		Seq:     s.clock.Next(),
		Time:    s.sched.Now(),
		Parent:  a.Meta.ReplyTo,
		Derived: a.Meta.Dispatch != nil && a.Meta.Dispatch.Derived,
	}
	return out
}

// flush notifies "updated <path>" listeners of every changed path, in
// path order.
func (s *Store) flush(changed map[string]bool) {
	if len(changed) == 0 {
		return
	}
	s.metrics.ObserveFlush(len(changed))
	for _, path := range slices.Sorted(maps.Keys(changed)) {
		s.emit(graph.UpdatedEventPrefix + path)
	}
}

func (s *Store) emit(event string) {
	s.listenMu.Lock()
	byID := s.listeners[event]
	ids := slices.Sorted(maps.Keys(byID))
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, byID[id])
	}
	s.listenMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

var _ graph.Host = (*Store)(nil)
