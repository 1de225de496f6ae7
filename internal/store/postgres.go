package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hwvalue/internal/db"
	"github.com/sells-group/hwvalue/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var (
	listingColumns    = []string{"url", "model", "price", "title", "term", "run_id", "seen_at"}
	runListingColumns = []string{"run_id", "url", "model", "price", "title", "term", "seen_at"}
	rejectedColumns    = []string{"id", "run_id", "title", "price", "url", "term", "model", "category", "reason", "rejected_at"}
)

const (
	sqlSaveRun = `INSERT INTO runs (id, status, interrupted, summary, started_at, finished_at) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, interrupted = EXCLUDED.interrupted, summary = EXCLUDED.summary, finished_at = EXCLUDED.finished_at`
	sqlGetRun       = `SELECT summary FROM runs WHERE id = $1`
	sqlLatestRun    = `SELECT summary FROM runs WHERE status = $1 ORDER BY started_at DESC LIMIT 1`
	sqlListAccepted = `SELECT url, model, price, title, term, run_id, seen_at FROM run_listings WHERE run_id = $1 ORDER BY model, price`
	sqlListRejected = `SELECT id, run_id, title, price, url, term, model, category, reason, rejected_at FROM rejected_listings ORDER BY rejected_at, id`
)

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"save_run":      sqlSaveRun,
	"get_run":       sqlGetRun,
	"latest_run":    sqlLatestRun,
	"list_accepted": sqlListAccepted,
	"list_rejected": sqlListRejected,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	interrupted BOOLEAN NOT NULL DEFAULT false,
	summary     JSONB NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS listings (
	url     TEXT PRIMARY KEY,
	model   TEXT NOT NULL,
	price   DOUBLE PRECISION NOT NULL CHECK (price > 0),
	title   TEXT NOT NULL DEFAULT '',
	term    TEXT NOT NULL DEFAULT '',
	run_id  TEXT NOT NULL,
	seen_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_listings (
	run_id  TEXT NOT NULL,
	url     TEXT NOT NULL,
	model   TEXT NOT NULL,
	price   DOUBLE PRECISION NOT NULL CHECK (price > 0),
	title   TEXT NOT NULL DEFAULT '',
	term    TEXT NOT NULL DEFAULT '',
	seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, url)
);

CREATE TABLE IF NOT EXISTS rejected_listings (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	title       TEXT NOT NULL,
	price       DOUBLE PRECISION NOT NULL DEFAULT 0,
	url         TEXT NOT NULL DEFAULT '',
	term        TEXT NOT NULL DEFAULT '',
	model       TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	rejected_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status_started ON runs(status, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_listings_run_id ON listings(run_id);
CREATE INDEX IF NOT EXISTS idx_listings_model ON listings(model);
CREATE INDEX IF NOT EXISTS idx_rejected_category ON rejected_listings(category);
`

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// UpsertListings writes one term's accepted listings in a single transaction.
// The current row per URL is overwritten; the run's own copy in
// run_listings is what ListAccepted reads, so later runs never change it.
func (s *PostgresStore) UpsertListings(ctx context.Context, runID string, listings []model.AcceptedListing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(listings))
	byURL := make(map[string]int, len(listings))
	var runRows [][]any
	for _, l := range listings {
		if err := validateListing(l); err != nil {
			return 0, err
		}
		seen := l.SeenAt
		if seen.IsZero() {
			seen = now
		}
		rows = append(rows, []any{l.URL, l.Model, l.Price, l.Title, l.Term, runID, seen})

		row := []any{runID, l.URL, l.Model, l.Price, l.Title, l.Term, seen}
		if i, ok := byURL[l.URL]; ok {
			runRows[i] = row
			continue
		}
		byURL[l.URL] = len(runRows)
		runRows = append(runRows, row)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: begin upsert listings for run %s", runID)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n, err := db.UpsertTx(ctx, tx, db.UpsertConfig{
		Table:        "listings",
		Columns:      listingColumns,
		ConflictKeys: []string{"url"},
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert listings for run %s", runID)
	}
	if _, err := db.CopyFrom(ctx, tx, "run_listings", runListingColumns, runRows); err != nil {
		return 0, eris.Wrapf(err, "postgres: record listings for run %s", runID)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "postgres: commit listings for run %s", runID)
	}
	return int(n), nil
}

func (s *PostgresStore) ListAccepted(ctx context.Context, runID string) ([]model.AcceptedListing, error) {
	rows, err := s.pool.Query(ctx, sqlListAccepted, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list accepted")
	}
	defer rows.Close()

	var out []model.AcceptedListing
	for rows.Next() {
		var l model.AcceptedListing
		if err := rows.Scan(&l.URL, &l.Model, &l.Price, &l.Title, &l.Term, &l.RunID, &l.SeenAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan listing")
		}
		out = append(out, l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate listings")
}

// ReplaceRejectedLog swaps the whole rejection log for this cycle's entries.
func (s *PostgresStore) ReplaceRejectedLog(ctx context.Context, runID string, rejected []model.RejectedListing) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace rejected")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM rejected_listings`); err != nil {
		return eris.Wrap(err, "postgres: clear rejected log")
	}

	rows := make([][]any, 0, len(rejected))
	for _, r := range stampRejected(runID, rejected) {
		rows = append(rows, []any{
			r.ID, r.RunID, r.Title, r.Price, r.URL, r.Term, r.Model,
			string(r.Category), r.Reason, r.RejectedAt,
		})
	}
	if _, err := db.CopyFrom(ctx, tx, "rejected_listings", rejectedColumns, rows); err != nil {
		return eris.Wrap(err, "postgres: copy rejected log")
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace rejected")
}

func (s *PostgresStore) ListRejected(ctx context.Context) ([]model.RejectedListing, error) {
	rows, err := s.pool.Query(ctx, sqlListRejected)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rejected")
	}
	defer rows.Close()

	var out []model.RejectedListing
	for rows.Next() {
		var r model.RejectedListing
		var category string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Title, &r.Price, &r.URL, &r.Term, &r.Model,
			&category, &r.Reason, &r.RejectedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rejected")
		}
		r.Category = model.RejectCategory(category)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate rejected")
}

// SaveRun inserts the run or overwrites the stored copy with the same ID.
func (s *PostgresStore) SaveRun(ctx context.Context, run *model.RunSummary) error {
	summary, err := json.Marshal(run)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run")
	}

	_, err = s.pool.Exec(ctx, sqlSaveRun,
		run.ID, string(run.Status), run.Interrupted, summary, run.StartedAt, nullTime(run.FinishedAt),
	)
	return eris.Wrapf(err, "postgres: save run %s", run.ID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.RunSummary, error) {
	var summary []byte
	if err := s.pool.QueryRow(ctx, sqlGetRun, runID).Scan(&summary); err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return decodeRun(summary)
}

// LatestRun returns the most recent completed run, or nil if none exists.
func (s *PostgresStore) LatestRun(ctx context.Context) (*model.RunSummary, error) {
	var summary []byte
	err := s.pool.QueryRow(ctx, sqlLatestRun, string(model.RunStatusCompleted)).Scan(&summary)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest run")
	}
	return decodeRun(summary)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunSummary, error) {
	query := `SELECT summary FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.StartedAfter.IsZero() {
		query += fmt.Sprintf(` AND started_at > $%d`, argIdx)
		args = append(args, filter.StartedAfter)
		argIdx++
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.RunSummary
	for rows.Next() {
		var summary []byte
		if err := rows.Scan(&summary); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r, err := decodeRun(summary)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func decodeRun(summary []byte) (*model.RunSummary, error) {
	var r model.RunSummary
	if err := json.Unmarshal(summary, &r); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal run summary")
	}
	return &r, nil
}

// stampRejected assigns IDs, the run and a timestamp to entries missing them.
func stampRejected(runID string, rejected []model.RejectedListing) []model.RejectedListing {
	now := time.Now().UTC()
	out := make([]model.RejectedListing, len(rejected))
	for i, r := range rejected {
		if r.ID == "" {
			r.ID = uuid.New().String()
		}
		r.RunID = runID
		if r.RejectedAt.IsZero() {
			r.RejectedAt = now
		}
		out[i] = r
	}
	return out
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
