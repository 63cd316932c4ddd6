package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/gasoline/internal/action"
	"github.com/roach88/gasoline/internal/codec"
	"github.com/roach88/gasoline/internal/keypath"
)

// ActionRecord is one logged action.
type ActionRecord struct {
	Pos          int64     `json:"pos"`
	DispatchID   string    `json:"dispatch_id"`
	Seq          int64     `json:"seq"`
	Type         string    `json:"type"`
	Target       []string  `json:"target,omitempty"`
	Payload      any       `json:"payload,omitempty"`
	Parent       string    `json:"parent,omitempty"`
	Origin       string    `json:"origin,omitempty"`
	Derived      bool      `json:"derived,omitempty"`
	DispatchedAt time.Time `json:"dispatched_at"`
	Hash         string    `json:"hash"`
}

// Action rebuilds the action the record was taken from, without its
// dispatch metadata.
func (r ActionRecord) Action() (action.Action, error) {
	a := action.New(r.Type, r.Payload)
	a.Meta.Origin = r.Origin
	for _, t := range r.Target {
		p, err := keypath.Parse(t)
		if err != nil {
			return action.Action{}, fmt.Errorf("action %s target: %w", r.DispatchID, err)
		}
		a.Target = append(a.Target, p)
	}
	return a, nil
}

// AppendAction logs a dispatched action. Actions without dispatch metadata
// are rejected. Appending the same dispatch id twice is a no-op.
func (d *DB) AppendAction(ctx context.Context, a action.Action) error {
	meta := a.Meta.Dispatch
	if meta == nil {
		return fmt.Errorf("append action %s: not dispatched", a.Type)
	}

	var payload sql.NullString
	if a.Payload != nil {
		data, err := codec.MarshalCanonical(a.Payload)
		if err != nil {
			return fmt.Errorf("append action %s: %w", a.Type, err)
		}
		payload = sql.NullString{String: string(data), Valid: true}
	}

	var target sql.NullString
	if len(a.Target) > 0 {
		refs := make([]string, len(a.Target))
		for i, p := range a.Target {
			refs[i] = p.String()
		}
		data, err := json.Marshal(refs)
		if err != nil {
			return fmt.Errorf("append action %s: %w", a.Type, err)
		}
		target = sql.NullString{String: string(data), Valid: true}
	}

	hash, err := codec.Hash(codec.DomainAction, map[string]any{
		"type":    a.Type,
		"target":  target.String,
		"payload": payload.String,
		"seq":     meta.Seq,
	})
	if err != nil {
		return fmt.Errorf("append action %s: %w", a.Type, err)
	}

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO actions
		(dispatch_id, seq, type, target, payload, parent_id, origin, derived, dispatched_at, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dispatch_id) DO NOTHING
	`,
		meta.ID,
		meta.Seq,
		a.Type,
		target,
		payload,
		nullString(meta.Parent),
		nullString(a.Meta.Origin),
		meta.Derived,
		meta.Time.UnixNano(),
		hash,
	)
	if err != nil {
		return fmt.Errorf("append action %s: %w", a.Type, err)
	}
	return nil
}

// ReadActions returns logged actions with pos > after in log order, at
// most limit of them (all when limit <= 0).
//
// Returns an empty slice (not nil) if no actions match.
func (d *DB) ReadActions(ctx context.Context, after int64, limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT pos, dispatch_id, seq, type, target, payload, parent_id, origin, derived, dispatched_at, hash
		FROM actions
		WHERE pos > ?
		ORDER BY pos ASC
		LIMIT ?
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	records := []ActionRecord{}
	for rows.Next() {
		rec, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate actions: %w", err)
	}
	return records, nil
}

// LastSeq returns the highest logged dispatch seq, or 0 for an empty log.
// Passing it to engine.NewClockAt keeps sequence numbers increasing across
// runs.
func (d *DB) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := d.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM actions`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return seq.Int64, nil
}

func scanAction(row scanner) (ActionRecord, error) {
	var (
		rec                             ActionRecord
		target, payload, parent, origin sql.NullString
		dispatchedAt                    int64
	)
	err := row.Scan(&rec.Pos, &rec.DispatchID, &rec.Seq, &rec.Type,
		&target, &payload, &parent, &origin, &rec.Derived, &dispatchedAt, &rec.Hash)
	if err != nil {
		return ActionRecord{}, fmt.Errorf("scan action: %w", err)
	}
	if target.Valid {
		if err := json.Unmarshal([]byte(target.String), &rec.Target); err != nil {
			return ActionRecord{}, fmt.Errorf("action %s target: %w", rec.DispatchID, err)
		}
	}
	if payload.Valid {
		v, err := decodeJSON(payload.String)
		if err != nil {
			return ActionRecord{}, fmt.Errorf("action %s payload: %w", rec.DispatchID, err)
		}
		rec.Payload = v
	}
	rec.Parent = parent.String
	rec.Origin = origin.String
	rec.DispatchedAt = time.Unix(0, dispatchedAt).UTC()
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
