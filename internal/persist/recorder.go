package persist

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/roach88/gasoline/internal/action"
	"github.com/roach88/gasoline/internal/engine"
	"github.com/roach88/gasoline/internal/rx"
)

// Recorder appends every finalized action of a store to the action log.
//
// Appends run synchronously inside the dispatch pass that finalized the
// action, so the log order is the dispatch order. Failed appends are
// logged and counted; they never fail the pass.
type Recorder struct {
	db        *DB
	namespace string
	sub       *rx.Subscription
	written   atomic.Int64
	failed    atomic.Int64
}

// RecordOption configures a Recorder.
type RecordOption func(*Recorder)

// WithNamespace prefixes the logged dispatch and parent ids with ns and a
// slash, so that runs with deterministic ids can share one log.
func WithNamespace(ns string) RecordOption {
	return func(r *Recorder) {
		r.namespace = ns
	}
}

// Record subscribes a Recorder to store. It stops when the store stops or
// when Close is called.
func Record(ctx context.Context, db *DB, store *engine.Store, opts ...RecordOption) *Recorder {
	r := &Recorder{db: db}
	for _, opt := range opts {
		opt(r)
	}
	r.sub = store.Actions().SubscribeFunc(func(a action.Action) {
		a = r.scope(a)
		if err := db.AppendAction(ctx, a); err != nil {
			r.failed.Add(1)
			db.logger.Error("record action failed",
				"action_type", a.Type,
				"dispatch_id", a.DispatchID(),
				"error", err)
			return
		}
		r.written.Add(1)
	})
	return r
}

func (r *Recorder) scope(a action.Action) action.Action {
	if r.namespace == "" || a.Meta.Dispatch == nil {
		return a
	}
	a = a.Clone()
	a.Meta.Dispatch.ID = r.namespace + "/" + a.Meta.Dispatch.ID
	if a.Meta.Dispatch.Parent != "" {
		a.Meta.Dispatch.Parent = r.namespace + "/" + a.Meta.Dispatch.Parent
	}
	return a
}

// Written returns the number of appended actions.
func (r *Recorder) Written() int64 {
	return r.written.Load()
}

// Failed returns the number of failed appends.
func (r *Recorder) Failed() int64 {
	return r.failed.Load()
}

// Close stops recording.
func (r *Recorder) Close() {
	r.sub.Unsubscribe()
}

// Restore loads the latest snapshot into store, which must not be started.
// ok is false when the database holds no snapshot.
func Restore(ctx context.Context, db *DB, store *engine.Store) (snap Snapshot, ok bool, err error) {
	snap, ok, err = db.LatestSnapshot(ctx)
	if err != nil || !ok {
		return snap, ok, err
	}
	if err := store.Load(snap.Data); err != nil {
		return Snapshot{}, false, fmt.Errorf("restore snapshot %d: %w", snap.ID, err)
	}
	db.logger.Info("snapshot restored", "snapshot_id", snap.ID, "seq", snap.Seq)
	return snap, true, nil
}

// Checkpoint writes the dump of store, which must not be running. An
// unchanged dump is not written twice.
func Checkpoint(ctx context.Context, db *DB, store *engine.Store) (Snapshot, bool, error) {
	dump, err := store.Dump()
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("checkpoint: %w", err)
	}
	return db.WriteSnapshot(ctx, dump, store.Seq())
}

// Replay dispatches the logged actions with pos > after into a started
// store, skipping lifecycle actions and actions derived by process
// pipelines, which the store's own pipelines emit again. It returns the
// pos of the last replayed record.
func Replay(ctx context.Context, db *DB, store *engine.Store, after int64) (int64, error) {
	records, err := db.ReadActions(ctx, after, 0)
	if err != nil {
		return after, err
	}
	last := after
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		if !action.IsLifecycle(rec.Type) && !rec.Derived {
			a, err := rec.Action()
			if err != nil {
				return last, err
			}
			if err := store.Dispatch(a); err != nil {
				return last, fmt.Errorf("replay pos %d: %w", rec.Pos, err)
			}
		}
		last = rec.Pos
	}
	return last, nil
}
