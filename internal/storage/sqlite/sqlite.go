// Package sqlite archives runs in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/FranksOps/bingscrape/internal/serp"
	"github.com/FranksOps/bingscrape/internal/storage"
	_ "modernc.org/sqlite"
)

// ensure sqliteArchive implements storage.Archive
var _ storage.Archive = (*sqliteArchive)(nil)

type sqliteArchive struct {
	db *sql.DB
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
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
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

// New opens (creating if needed) a SQLite archive at dsn.
func New(dsn string) (storage.Archive, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &sqliteArchive{db: db}, nil
}

func (b *sqliteArchive) Save(ctx context.Context, run *storage.Run) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO search_runs (
		id, query, paginate, found, stop, pages, skipped, started_at, finished_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Query,
		run.Paginate,
		run.Found,
		string(run.Stop),
		run.Pages,
		run.Skipped,
		run.StartedAt.UTC(),
		run.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO search_results (run_id, position, title, url, caption) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare result insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range run.Results {
		var caption sql.NullString
		if r.Caption != nil {
			caption = sql.NullString{String: *r.Caption, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, run.ID, i, r.Title, r.URL, caption); err != nil {
			return fmt.Errorf("insert result %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (b *sqliteArchive) Query(ctx context.Context, filter storage.Filter) ([]*storage.Run, error) {
	query := `SELECT id, query, paginate, found, stop, pages, skipped, started_at, finished_at FROM search_runs WHERE 1=1`
	args := []any{}

	if filter.Query != "" {
		query += ` AND query = ?`
		args = append(args, filter.Query)
	}
	if filter.Found != nil {
		query += ` AND found = ?`
		args = append(args, *filter.Found)
	}
	if filter.Since != nil {
		query += ` AND started_at >= ?`
		args = append(args, filter.Since.UTC())
	}

	query += ` ORDER BY started_at DESC`

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
		return nil, fmt.Errorf("query runs: %w", err)
	}

	var runs []*storage.Run
	for rows.Next() {
		var r storage.Run
		var stop string
		if err := rows.Scan(&r.ID, &r.Query, &r.Paginate, &r.Found, &stop, &r.Pages, &r.Skipped, &r.StartedAt, &r.FinishedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Stop = serp.StopReason(stop)
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	rows.Close()

	for _, r := range runs {
		if r.Results, err = b.results(ctx, r.ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (b *sqliteArchive) results(ctx context.Context, runID string) ([]serp.Result, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT title, url, caption FROM search_results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []serp.Result
	for rows.Next() {
		var res serp.Result
		var caption sql.NullString
		if err := rows.Scan(&res.Title, &res.URL, &caption); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if caption.Valid {
			res.Caption = serp.Caption(caption.String)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

func (b *sqliteArchive) Close() error {
	return b.db.Close()
}
