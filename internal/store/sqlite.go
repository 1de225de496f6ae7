package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/hwvalue/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas below are per connection; one connection keeps them in force
	// and serialises writers from concurrent term workers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	interrupted INTEGER NOT NULL DEFAULT 0,
	summary     TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE TABLE IF NOT EXISTS listings (
	url     TEXT PRIMARY KEY,
	model   TEXT NOT NULL,
	price   REAL NOT NULL CHECK (price > 0),
	title   TEXT NOT NULL DEFAULT '',
	term    TEXT NOT NULL DEFAULT '',
	run_id  TEXT NOT NULL,
	seen_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS run_listings (
	run_id  TEXT NOT NULL,
	url     TEXT NOT NULL,
	model   TEXT NOT NULL,
	price   REAL NOT NULL CHECK (price > 0),
	title   TEXT NOT NULL DEFAULT '',
	term    TEXT NOT NULL DEFAULT '',
	seen_at DATETIME NOT NULL,
	PRIMARY KEY (run_id, url)
);

CREATE TABLE IF NOT EXISTS rejected_listings (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	title       TEXT NOT NULL,
	price       REAL NOT NULL DEFAULT 0,
	url         TEXT NOT NULL DEFAULT '',
	term        TEXT NOT NULL DEFAULT '',
	model       TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	rejected_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status_started ON runs(status, started_at);
CREATE INDEX IF NOT EXISTS idx_listings_run_id ON listings(run_id);
CREATE INDEX IF NOT EXISTS idx_rejected_category ON rejected_listings(category);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertListings overwrites the current row per URL and records the run's
// own copy, which ListAccepted reads.
func (s *SQLiteStore) UpsertListings(ctx context.Context, runID string, listings []model.AcceptedListing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}
	for _, l := range listings {
		if err := validateListing(l); err != nil {
			return 0, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert listings")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO listings (url, model, price, title, term, run_id, seen_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (url) DO UPDATE SET model = excluded.model, price = excluded.price, title = excluded.title,
	term = excluded.term, run_id = excluded.run_id, seen_at = excluded.seen_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert listings")
	}
	defer stmt.Close() //nolint:errcheck

	runStmt, err := tx.PrepareContext(ctx, `INSERT INTO run_listings (run_id, url, model, price, title, term, seen_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id, url) DO UPDATE SET model = excluded.model, price = excluded.price, title = excluded.title,
	term = excluded.term, seen_at = excluded.seen_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare record run listings")
	}
	defer runStmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	written := 0
	for _, l := range listings {
		seen := l.SeenAt
		if seen.IsZero() {
			seen = now
		}
		res, err := stmt.ExecContext(ctx, l.URL, l.Model, l.Price, l.Title, l.Term, runID, seen.UTC())
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert listing %s", l.URL)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "rows affected")
		}
		written += int(n)

		if _, err := runStmt.ExecContext(ctx, runID, l.URL, l.Model, l.Price, l.Title, l.Term, seen.UTC()); err != nil {
			return 0, eris.Wrapf(err, "sqlite: record listing %s for run %s", l.URL, runID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert listings")
	}
	return written, nil
}

func (s *SQLiteStore) ListAccepted(ctx context.Context, runID string) ([]model.AcceptedListing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, model, price, title, term, run_id, seen_at FROM run_listings WHERE run_id = ? ORDER BY model, price`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list accepted")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.AcceptedListing
	for rows.Next() {
		var l model.AcceptedListing
		if err := rows.Scan(&l.URL, &l.Model, &l.Price, &l.Title, &l.Term, &l.RunID, &l.SeenAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan listing")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate listings")
}

func (s *SQLiteStore) ReplaceRejectedLog(ctx context.Context, runID string, rejected []model.RejectedListing) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace rejected")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM rejected_listings`); err != nil {
		return eris.Wrap(err, "sqlite: clear rejected log")
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO rejected_listings
	(id, run_id, title, price, url, term, model, category, reason, rejected_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert rejected")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range stampRejected(runID, rejected) {
		if _, err := stmt.ExecContext(ctx, r.ID, r.RunID, r.Title, r.Price, r.URL, r.Term, r.Model,
			string(r.Category), r.Reason, r.RejectedAt.UTC()); err != nil {
			return eris.Wrapf(err, "sqlite: insert rejected %s", r.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit replace rejected")
}

func (s *SQLiteStore) ListRejected(ctx context.Context) ([]model.RejectedListing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, title, price, url, term, model, category, reason, rejected_at FROM rejected_listings ORDER BY rejected_at, id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rejected")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RejectedListing
	for rows.Next() {
		var r model.RejectedListing
		var category string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Title, &r.Price, &r.URL, &r.Term, &r.Model,
			&category, &r.Reason, &r.RejectedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rejected")
		}
		r.Category = model.RejectCategory(category)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate rejected")
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.RunSummary) error {
	summary, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run")
	}

	var finished any
	if !run.FinishedAt.IsZero() {
		finished = run.FinishedAt.UTC()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO runs (id, status, interrupted, summary, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET status = excluded.status, interrupted = excluded.interrupted,
	summary = excluded.summary, finished_at = excluded.finished_at`,
		run.ID, string(run.Status), run.Interrupted, string(summary), run.StartedAt.UTC(), finished,
	)
	return eris.Wrapf(err, "sqlite: save run %s", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.RunSummary, error) {
	var summary string
	err := s.db.QueryRowContext(ctx, `SELECT summary FROM runs WHERE id = ?`, runID).Scan(&summary)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Errorf("run not found: %s", runID)
		}
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return decodeRun([]byte(summary))
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*model.RunSummary, error) {
	var summary string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM runs WHERE status = ? ORDER BY started_at DESC LIMIT 1`,
		string(model.RunStatusCompleted),
	).Scan(&summary)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: latest run")
	}
	return decodeRun([]byte(summary))
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunSummary, error) {
	query := `SELECT summary FROM runs WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.StartedAfter.IsZero() {
		query += ` AND started_at > ?`
		args = append(args, filter.StartedAfter.UTC())
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.RunSummary
	for rows.Next() {
		var summary string
		if err := rows.Scan(&summary); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r, err := decodeRun([]byte(summary))
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}
