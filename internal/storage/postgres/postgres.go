// Package postgres archives runs in PostgreSQL.
package postgres

import (
	"context"
	"fmt"

	"github.com/FranksOps/bingscrape/internal/serp"
	"github.com/FranksOps/bingscrape/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ensure postgresArchive implements storage.Archive
var _ storage.Archive = (*postgresArchive)(nil)

type postgresArchive struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS search_runs (
	id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	paginate BOOLEAN NOT NULL,
	found BOOLEAN NOT NULL,
	stop TEXT NOT NULL,
	pages INTEGER NOT NULL,
	skipped INTEGER NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS search_results (
	run_id TEXT NOT NULL REFERENCES search_runs(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	title TEXT NOT NULL,
	url TEXT NOT NULL,
	caption TEXT,
	PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS search_runs_started_at ON search_runs(started_at);
`

// New connects to dsn and ensures the archive schema exists.
func New(ctx context.Context, dsn string) (storage.Archive, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &postgresArchive{pool: pool}, nil
}

func (b *postgresArchive) Save(ctx context.Context, run *storage.Run) error {
	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
		INSERT INTO search_runs (
			id, query, paginate, found, stop, pages, skipped, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			run.ID,
			run.Query,
			run.Paginate,
			run.Found,
			string(run.Stop),
			run.Pages,
			run.Skipped,
			run.StartedAt,
			run.FinishedAt,
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		batch := &pgx.Batch{}
		for i, r := range run.Results {
			batch.Queue(`INSERT INTO search_results (run_id, position, title, url, caption) VALUES ($1, $2, $3, $4, $5)`,
				run.ID, i, r.Title, r.URL, r.Caption)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert results: %w", err)
		}
		return nil
	})
}

func (b *postgresArchive) Query(ctx context.Context, filter storage.Filter) ([]*storage.Run, error) {
	query := `SELECT id, query, paginate, found, stop, pages, skipped, started_at, finished_at FROM search_runs WHERE 1=1`
	args := []any{}
	paramCount := 1

	if filter.Query != "" {
		query += fmt.Sprintf(` AND query = $%d`, paramCount)
		args = append(args, filter.Query)
		paramCount++
	}
	if filter.Found != nil {
		query += fmt.Sprintf(` AND found = $%d`, paramCount)
		args = append(args, *filter.Found)
		paramCount++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND started_at >= $%d`, paramCount)
		args = append(args, *filter.Since)
		paramCount++
	}

	query += ` ORDER BY started_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, paramCount)
		args = append(args, filter.Limit)
		paramCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, paramCount)
		args = append(args, filter.Offset)
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*storage.Run, error) {
		var r storage.Run
		var stop string
		err := row.Scan(&r.ID, &r.Query, &r.Paginate, &r.Found, &stop, &r.Pages, &r.Skipped, &r.StartedAt, &r.FinishedAt)
		r.Stop = serp.StopReason(stop)
		return &r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan runs: %w", err)
	}

	for _, r := range runs {
		rows, err := b.pool.Query(ctx, `SELECT title, url, caption FROM search_results WHERE run_id = $1 ORDER BY position`, r.ID)
		if err != nil {
			return nil, fmt.Errorf("query results: %w", err)
		}
		r.Results, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (serp.Result, error) {
			var res serp.Result
			err := row.Scan(&res.Title, &res.URL, &res.Caption)
			return res, err
		})
		if err != nil {
			return nil, fmt.Errorf("scan results: %w", err)
		}
	}
	return runs, nil
}

func (b *postgresArchive) Close() error {
	b.pool.Close()
	return nil
}
