package persist

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gasoline/internal/action"
	"github.com/roach88/gasoline/internal/engine"
	"github.com/roach88/gasoline/internal/graph"
	"github.com/roach88/gasoline/internal/keypath"
	"github.com/roach88/gasoline/internal/rx"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// createTestDB opens a fresh database in a temp dir.
func createTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newCounterStore(t *testing.T, opts ...engine.StoreOption) *engine.Store {
	t.Helper()
	root := graph.MustCombine(map[string]graph.Node{
		"count": graph.MustModel(graph.ModelOptions[int]{
			Handlers: map[string]graph.Handler[int]{
				"INC": func(s int, _ action.Action, _ *graph.UpdateContext) int { return s + 1 },
			},
		}),
	})
	all := append([]engine.StoreOption{
		engine.WithLogger(quietLogger()),
		engine.WithScheduler(rx.NewVirtualScheduler(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))),
	}, opts...)
	s, err := engine.New(root, all...)
	require.NoError(t, err)
	return s
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 3; i++ {
		db, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		version, err := db.userVersion(context.Background())
		require.NoError(t, err)
		assert.Equal(t, currentSchemaVersion, version)
		require.NoError(t, db.Close())
	}
}

func TestWriteSnapshot_Deduplicates(t *testing.T) {
	ctx := context.Background()
	db := createTestDB(t)

	_, ok, err := db.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	first, created, err := db.WriteSnapshot(ctx, map[string]any{"count": 1}, 4)
	require.NoError(t, err)
	assert.True(t, created)

	same, created, err := db.WriteSnapshot(ctx, map[string]any{"count": 1.0}, 9)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, same.ID)

	_, created, err = db.WriteSnapshot(ctx, map[string]any{"count": 2}, 10)
	require.NoError(t, err)
	assert.True(t, created)

	snaps, err := db.ListSnapshots(ctx, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, int64(10), snaps[0].Seq)
	assert.Equal(t, map[string]any{"count": float64(2)}, snaps[0].Data)
	assert.Equal(t, first.Hash, snaps[1].Hash)

	limited, err := db.ListSnapshots(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAppendAction_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := createTestDB(t)

	a := action.New("SET:/todo", map[string]any{"title": "x"})
	a.Target = []keypath.Path{keypath.MustParse("/todo")}
	a.Meta.Origin = "gasoline.Service:/ws"
	a.Meta.Dispatch = &action.DispatchMeta{ID: "d-1", Seq: 7, Time: time.Unix(5, 0), Parent: "d-0"}

	require.NoError(t, db.AppendAction(ctx, a))
	require.NoError(t, db.AppendAction(ctx, a))

	err := db.AppendAction(ctx, action.New("RAW", nil))
	assert.Error(t, err)

	records, err := db.ReadActions(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "d-1", rec.DispatchID)
	assert.Equal(t, int64(7), rec.Seq)
	assert.Equal(t, []string{"/todo"}, rec.Target)
	assert.Equal(t, map[string]any{"title": "x"}, rec.Payload)
	assert.Equal(t, "d-0", rec.Parent)
	assert.Equal(t, "gasoline.Service:/ws", rec.Origin)
	assert.True(t, rec.DispatchedAt.Equal(time.Unix(5, 0)))
	assert.Len(t, rec.Hash, 64)

	rebuilt, err := rec.Action()
	require.NoError(t, err)
	assert.Equal(t, "SET:/todo", rebuilt.Type)
	assert.Nil(t, rebuilt.Meta.Dispatch)
	assert.Equal(t, "/todo", rebuilt.Target[0].String())

	seq, err := db.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)

	none, err := db.ReadActions(ctx, rec.Pos, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none)
}

func TestRecorder_CheckpointRestoreReplay(t *testing.T) {
	ctx := context.Background()
	db := createTestDB(t)

	store := newCounterStore(t)
	rec := Record(ctx, db, store)
	require.NoError(t, store.Start())
	for range 3 {
		require.NoError(t, store.Dispatch(action.New("INC", nil)))
	}
	require.NoError(t, store.Stop())
	rec.Close()

	assert.Equal(t, int64(5), rec.Written())
	assert.Zero(t, rec.Failed())

	records, err := db.ReadActions(ctx, 0, 0)
	require.NoError(t, err)
	types := make([]string, len(records))
	for i, r := range records {
		types[i] = r.Type
	}
	assert.Equal(t, []string{action.TypeStart, "INC", "INC", "INC", action.TypeStop}, types)

	snap, created, err := Checkpoint(ctx, db, store)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(5), snap.Seq)

	restored := newCounterStore(t)
	got, ok, err := Restore(ctx, db, restored)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, map[string]any{"count": 3}, restored.State())

	replayed := newCounterStore(t)
	require.NoError(t, replayed.Start())
	last, err := Replay(ctx, db, replayed, 0)
	require.NoError(t, err)
	assert.Equal(t, records[len(records)-1].Pos, last)
	assert.Equal(t, map[string]any{"count": 3}, replayed.State())
}

func TestReplay_SkipsDerivedActions(t *testing.T) {
	ctx := context.Background()
	db := createTestDB(t)

	newPingStore := func() *engine.Store {
		root := graph.MustCombine(map[string]graph.Node{
			"count": graph.MustModel(graph.ModelOptions[int]{
				Handlers: map[string]graph.Handler[int]{
					"INC": func(s int, _ action.Action, _ *graph.UpdateContext) int { return s + 1 },
				},
				AcceptExtra: []string{"PING"},
				Process: func(in *graph.ActionStream, _ *graph.Model[int]) rx.Observable[action.Action] {
					return rx.Map(in.OfType("PING").Observable, func(action.Action) (action.Action, error) {
						return action.New("INC", nil), nil
					})
				},
			}),
		})
		s, err := engine.New(root, engine.WithLogger(quietLogger()))
		require.NoError(t, err)
		return s
	}

	live := newPingStore()
	rec := Record(ctx, db, live)
	require.NoError(t, live.Start())
	require.NoError(t, live.Dispatch(action.New("PING", nil)))
	require.NoError(t, live.Stop())
	rec.Close()
	assert.Equal(t, map[string]any{"count": 1}, live.State())

	records, err := db.ReadActions(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "PING", records[1].Type)
	assert.False(t, records[1].Derived)
	assert.Equal(t, "INC", records[2].Type)
	assert.True(t, records[2].Derived)

	replayed := newPingStore()
	require.NoError(t, replayed.Start())
	_, err = Replay(ctx, db, replayed, 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": 1}, replayed.State())
}

func TestRestore_EmptyDatabase(t *testing.T) {
	db := createTestDB(t)
	_, ok, err := Restore(context.Background(), db, newCounterStore(t))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckpoint_RunningStoreFails(t *testing.T) {
	db := createTestDB(t)
	store := newCounterStore(t)
	require.NoError(t, store.Start())
	defer store.Stop()

	_, _, err := Checkpoint(context.Background(), db, store)
	assert.True(t, engine.IsStoreError(err, engine.ErrCodeStarted))
}
