package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/gasoline/internal/codec"
)

// Snapshot is one persisted store dump.
type Snapshot struct {
	ID        int64     `json:"id"`
	Hash      string    `json:"hash"`
	Seq       int64     `json:"seq"`
	Data      any       `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// WriteSnapshot stores dump as taken after dispatch seq. When dump equals
// the latest snapshot, nothing is written and the latest snapshot is
// returned with created == false.
func (d *DB) WriteSnapshot(ctx context.Context, dump any, seq int64) (snap Snapshot, created bool, err error) {
	data, err := codec.MarshalCanonical(dump)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("write snapshot: %w", err)
	}
	hash := codec.HashBytes(codec.DomainSnapshot, data)

	latest, ok, err := d.LatestSnapshot(ctx)
	if err != nil {
		return Snapshot{}, false, err
	}
	if ok && latest.Hash == hash {
		return latest, false, nil
	}

	now := time.Now().UTC()
	res, err := d.db.ExecContext(ctx, `
		INSERT INTO snapshots (hash, seq, data, created_at)
		VALUES (?, ?, ?, ?)
	`, hash, seq, string(data), now.UnixNano())
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("write snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("write snapshot: %w", err)
	}

	plain, err := decodeJSON(string(data))
	if err != nil {
		return Snapshot{}, false, err
	}
	d.logger.Debug("snapshot written", "snapshot_id", id, "hash", hash, "seq", seq)
	return Snapshot{ID: id, Hash: hash, Seq: seq, Data: plain, CreatedAt: now}, true, nil
}

// LatestSnapshot returns the most recent snapshot. ok is false when none
// exists.
func (d *DB) LatestSnapshot(ctx context.Context) (snap Snapshot, ok bool, err error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, hash, seq, data, created_at
		FROM snapshots
		ORDER BY id DESC
		LIMIT 1
	`)
	snap, err = scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

// ListSnapshots returns snapshots newest first, at most limit of them
// (all when limit <= 0).
//
// Returns an empty slice (not nil) if no snapshots exist.
func (d *DB) ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, hash, seq, data, created_at
		FROM snapshots
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []Snapshot{}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (Snapshot, error) {
	var (
		snap    Snapshot
		data    string
		created int64
	)
	if err := row.Scan(&snap.ID, &snap.Hash, &snap.Seq, &data, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, err
		}
		return Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	plain, err := decodeJSON(data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot %d: %w", snap.ID, err)
	}
	snap.Data = plain
	snap.CreatedAt = time.Unix(0, created).UTC()
	return snap, nil
}

func decodeJSON(data string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}
