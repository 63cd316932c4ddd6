package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gasoline/internal/action"
	"github.com/roach88/gasoline/internal/keypath"
	"github.com/roach88/gasoline/internal/persist"
	"github.com/roach88/gasoline/internal/testutil"
)

func dispatched(typ string, payload any, id string, seq int64) action.Action {
	a := action.New(typ, payload)
	a.Meta.Dispatch = &action.DispatchMeta{
		ID:   id,
		Seq:  seq,
		Time: testutil.Epoch.Add(time.Duration(seq) * time.Second),
	}
	return a
}

// seedDB writes two snapshots and three actions to a new database.
func seedDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gasoline.db")
	db, err := persist.Open(path, persist.WithLogger(testutil.QuietLogger()))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	_, _, err = db.WriteSnapshot(ctx, map[string]any{"count": 1}, 2)
	require.NoError(t, err)
	_, _, err = db.WriteSnapshot(ctx, map[string]any{"count": 3}, 3)
	require.NoError(t, err)

	add := dispatched("ADD", 2, "d-3", 3)
	add.Target = []keypath.Path{keypath.MustParse("/count")}
	for _, a := range []action.Action{
		dispatched(action.TypeStart, nil, "d-1", 1),
		dispatched("INC", nil, "d-2", 2),
		add,
	} {
		require.NoError(t, db.AppendAction(ctx, a))
	}
	return path
}

func TestSnapshotShow_Text(t *testing.T) {
	path := seedDB(t)

	stdout, _, err := execute(t, "snapshot", "show", "--db", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Snapshot #2\n")
	assert.Contains(t, stdout, "  seq:     3\n")
	assert.Contains(t, stdout, "{\n  \"count\": 3\n}\n")
}

func TestSnapshotShow_JSON(t *testing.T) {
	path := seedDB(t)

	stdout, _, err := execute(t, "--format", "json", "snapshot", "show", "--db", path)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   persist.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(3), resp.Data.Seq)
	assert.Equal(t, map[string]any{"count": float64(3)}, resp.Data.Data)
}

func TestSnapshotShow_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := persist.Open(path, persist.WithLogger(testutil.QuietLogger()))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	stdout, _, err := execute(t, "snapshot", "show", "--db", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "no snapshot found")
}

func TestSnapshotList(t *testing.T) {
	path := seedDB(t)

	stdout, _, err := execute(t, "--format", "json", "snapshot", "list", "--db", path, "--limit", "1")
	require.NoError(t, err)

	var resp struct {
		Data SnapshotListResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data.Snapshots, 1)
	assert.Equal(t, int64(2), resp.Data.Snapshots[0].ID)
}

func TestDatabaseNotFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.db")
	for _, args := range [][]string{
		{"snapshot", "show", "--db", missing},
		{"actions", "list", "--db", missing},
	} {
		stdout, _, err := execute(t, args...)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, stdout, "Error [E201]: failed to open database")
	}
}

func TestDatabaseRequired(t *testing.T) {
	_, _, err := execute(t, "actions", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--db or --config is required")
}

func TestActionsList_Text(t *testing.T) {
	path := seedDB(t)

	stdout, _, err := execute(t, "actions", "list", "--db", path)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "actions_list", []byte(stdout))
}

func TestActionsList_Paging(t *testing.T) {
	path := seedDB(t)

	stdout, _, err := execute(t, "--format", "json", "actions", "list", "--db", path, "--after", "1", "--limit", "1")
	require.NoError(t, err)

	var resp struct {
		Data ActionsListResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.Len(t, resp.Data.Actions, 1)
	assert.Equal(t, "INC", resp.Data.Actions[0].Type)
	assert.Equal(t, int64(2), resp.Data.Next)

	stdout, _, err = execute(t, "--format", "json", "actions", "list", "--db", path, "--after", "3")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Empty(t, resp.Data.Actions)
	assert.Equal(t, int64(3), resp.Data.Next)
}

func TestActionsList_FromConfig(t *testing.T) {
	path := seedDB(t)
	cfg := writeFile(t, "gasoline.yaml", "persistence:\n  database: "+path+"\n")

	stdout, _, err := execute(t, "actions", "list", "--config", cfg, "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, stdout, "gasoline.Store.START")
	assert.NotContains(t, stdout, "INC")
}
