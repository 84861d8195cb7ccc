package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/FranksOps/seoforge/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteBackend implements storage.Backend
var _ storage.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	state TEXT NOT NULL,
	progress_current INTEGER NOT NULL,
	progress_total INTEGER NOT NULL,
	progress_status TEXT NOT NULL,
	result BLOB,
	error TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_created_at_idx ON jobs (created_at);
`

// New creates a new SQLite-backed storage.Backend. Timestamps are stored
// as unix milliseconds.
func New(dsn string) (storage.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Serialize writers; SQLite allows a single writer anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, job *storage.Job) error {
	query := `
	INSERT INTO jobs (
		id, kind, state, progress_current, progress_total, progress_status, result, error, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		state = excluded.state,
		progress_current = excluded.progress_current,
		progress_total = excluded.progress_total,
		progress_status = excluded.progress_status,
		result = excluded.result,
		error = excluded.error,
		updated_at = excluded.updated_at
	`

	_, err := b.db.ExecContext(ctx, query,
		job.ID,
		job.Kind,
		string(job.State),
		job.Progress.Current,
		job.Progress.Total,
		job.Progress.Status,
		[]byte(job.Result),
		job.Error,
		job.CreatedAt.UnixMilli(),
		job.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

const selectColumns = `SELECT id, kind, state, progress_current, progress_total, progress_status, result, error, created_at, updated_at FROM jobs`

func (b *sqliteBackend) Get(ctx context.Context, id string) (*storage.Job, error) {
	row := b.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Job, error) {
	query := selectColumns + ` WHERE 1=1`
	args := []any{}

	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, filter.Kind)
	}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UnixMilli())
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*storage.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	return jobs, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*storage.Job, error) {
	var (
		j                  storage.Job
		state              string
		result             []byte
		createdMs, updated int64
	)
	err := s.Scan(
		&j.ID, &j.Kind, &state, &j.Progress.Current, &j.Progress.Total, &j.Progress.Status,
		&result, &j.Error, &createdMs, &updated,
	)
	if err != nil {
		return nil, err
	}
	j.State = storage.State(state)
	if len(result) > 0 {
		j.Result = result
	}
	j.CreatedAt = time.UnixMilli(createdMs).UTC()
	j.UpdatedAt = time.UnixMilli(updated).UTC()
	return &j, nil
}
