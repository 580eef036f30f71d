package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
)

const defaultHistoryLimit = 200

// JournalRepository stores per-item stage outcomes, one row per run and item.
type JournalRepository struct {
	db *sql.DB
}

func NewJournalRepository(db *sql.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *JournalRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2025020301)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS pipeline_items (
	run_id TEXT NOT NULL,
	item TEXT NOT NULL,
	batch TEXT NOT NULL,
	stage TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	PRIMARY KEY (run_id, item)
);

CREATE INDEX IF NOT EXISTS idx_pipeline_items_batch_started ON pipeline_items(batch, started_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Record inserts the outcome or updates the status of an item already begun.
func (r *JournalRepository) Record(ctx context.Context, outcome domain.ItemOutcome) error {
	var finished sql.NullTime
	if !outcome.FinishedAt.IsZero() {
		finished = sql.NullTime{Time: outcome.FinishedAt.UTC(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO pipeline_items (run_id, item, batch, stage, status, error_message, started_at, finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (run_id, item) DO UPDATE
SET status = EXCLUDED.status, error_message = EXCLUDED.error_message, finished_at = EXCLUDED.finished_at
`,
		outcome.RunID, outcome.Item, outcome.Batch, string(outcome.Stage), string(outcome.Status),
		outcome.Error, outcome.StartedAt.UTC(), finished,
	)
	if err != nil {
		return fmt.Errorf("record pipeline item: %w", err)
	}
	return nil
}

func (r *JournalRepository) ListByBatch(ctx context.Context, batch string, limit int) ([]domain.ItemOutcome, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT run_id, item, batch, stage, status, error_message, started_at, finished_at
FROM pipeline_items
WHERE batch = $1
ORDER BY started_at DESC, item ASC
LIMIT $2
`, batch, limit)
	if err != nil {
		return nil, fmt.Errorf("query pipeline items: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ItemOutcome, 0)
	for rows.Next() {
		var outcome domain.ItemOutcome
		var stage, status string
		var finished sql.NullTime
		if err := rows.Scan(
			&outcome.RunID, &outcome.Item, &outcome.Batch, &stage, &status,
			&outcome.Error, &outcome.StartedAt, &finished,
		); err != nil {
			return nil, fmt.Errorf("scan pipeline item: %w", err)
		}
		outcome.Stage = domain.Stage(stage)
		outcome.Status = domain.ItemStatus(status)
		if finished.Valid {
			outcome.FinishedAt = finished.Time
		}
		out = append(out, outcome)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipeline items: %w", err)
	}
	return out, nil
}
