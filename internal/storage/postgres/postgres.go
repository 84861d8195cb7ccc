package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/FranksOps/seoforge/internal/storage"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ensure postgresBackend implements storage.Backend
var _ storage.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

// New connects to Postgres, applies the embedded migrations and returns a
// storage.Backend.
func New(ctx context.Context, dsn string) (storage.Backend, error) {
	if err := Migrate(dsn); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

// Migrate runs all embedded SQL migrations against dsn.
func Migrate(dsn string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (b *postgresBackend) Save(ctx context.Context, job *storage.Job) error {
	query := `
	INSERT INTO jobs (
		id, kind, state, progress_current, progress_total, progress_status, result, error, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO UPDATE SET
		state = EXCLUDED.state,
		progress_current = EXCLUDED.progress_current,
		progress_total = EXCLUDED.progress_total,
		progress_status = EXCLUDED.progress_status,
		result = EXCLUDED.result,
		error = EXCLUDED.error,
		updated_at = EXCLUDED.updated_at
	`

	var result []byte
	if len(job.Result) > 0 {
		result = job.Result
	}

	_, err := b.pool.Exec(ctx, query,
		job.ID,
		job.Kind,
		string(job.State),
		job.Progress.Current,
		job.Progress.Total,
		job.Progress.Status,
		result,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

const selectColumns = `SELECT id, kind, state, progress_current, progress_total, progress_status, result, error, created_at, updated_at FROM jobs`

func (b *postgresBackend) Get(ctx context.Context, id string) (*storage.Job, error) {
	job, err := scanJob(b.pool.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

func (b *postgresBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.Job, error) {
	query := selectColumns + ` WHERE 1=1`
	args := []any{}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Kind != "" {
		query += ` AND kind = ` + arg(filter.Kind)
	}
	if filter.State != "" {
		query += ` AND state = ` + arg(string(filter.State))
	}
	if filter.Since != nil {
		query += ` AND created_at >= ` + arg(*filter.Since)
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
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

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

func scanJob(row pgx.Row) (*storage.Job, error) {
	var (
		j      storage.Job
		state  string
		result []byte
	)
	err := row.Scan(
		&j.ID, &j.Kind, &state, &j.Progress.Current, &j.Progress.Total, &j.Progress.Status,
		&result, &j.Error, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.State = storage.State(state)
	if len(result) > 0 {
		j.Result = result
	}
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}
