// Package ledger keeps a PostgreSQL history of dispatch attempts in the
// fleet_dispatches table.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"renderfleet/internal/httpkit"
	"renderfleet/internal/ids"
	"renderfleet/internal/pkg/errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	StatusDispatched = "DISPATCHED"
	StatusFailed     = "FAILED"

	DefaultLimit = 50
	MaxLimit     = 500
)

// Entry is one dispatch attempt.
type Entry struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	WorkerID   string    `json:"worker_id"`
	JobID      string    `json:"job_id"`
	AssetCount int       `json:"asset_count"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	WorkerID string
	Kind     string
	Limit    int
}

const schema = `
CREATE TABLE IF NOT EXISTS fleet_dispatches (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	worker_id   TEXT NOT NULL,
	job_id      TEXT NOT NULL,
	asset_count INTEGER NOT NULL DEFAULT 0,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS fleet_dispatches_worker_created_idx
	ON fleet_dispatches (worker_id, created_at DESC);
`

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the table and index if they do not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "ledger.ensure_schema", "create fleet_dispatches")
	}
	return nil
}

// Record inserts e, filling ID and CreatedAt when empty.
func (r *Repository) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = ids.NewID("dsp")
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO fleet_dispatches (id, kind, worker_id, job_id, asset_count, status, error)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`, e.ID, e.Kind, e.WorkerID, e.JobID, e.AssetCount, e.Status, e.Error).Scan(&e.CreatedAt)

	if err != nil {
		if httpkit.IsUniqueViolation(err) {
			return errors.Newf(errors.CodeConflict, "dispatch %s already recorded", e.ID)
		}
		return errors.Wrapf(err, "ledger.record", "insert dispatch %s", e.ID)
	}
	return nil
}

// List returns the newest entries matching f. A missing table reads as an
// empty history.
func (r *Repository) List(ctx context.Context, f Filter) ([]Entry, error) {
	query, args := listQuery(f)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		if httpkit.IsUndefinedTable(err) {
			return []Entry{}, nil
		}
		return nil, errors.Wrap(err, "ledger.list", "query dispatches")
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Kind, &e.WorkerID, &e.JobID, &e.AssetCount, &e.Status, &e.Error, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "ledger.list", "scan dispatch")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "ledger.list", "iterate dispatches")
	}
	return out, nil
}

func listQuery(f Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.WorkerID != "" {
		args = append(args, f.WorkerID)
		where = append(where, fmt.Sprintf("worker_id=$%d", len(args)))
	}
	if f.Kind != "" {
		args = append(args, f.Kind)
		where = append(where, fmt.Sprintf("kind=$%d", len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT id, kind, worker_id, job_id, asset_count, status, error, created_at FROM fleet_dispatches")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, ClampLimit(f.Limit))
	fmt.Fprintf(&b, " ORDER BY created_at DESC LIMIT $%d", len(args))
	return b.String(), args
}

// ClampLimit applies DefaultLimit to non-positive values and caps at MaxLimit.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	}
	return n
}
