// Package runs stores ingest run reports and serves them over HTTP.
package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pricehub/internal/ingest"
	"pricehub/pkg/database"
)

type Repo struct {
	DB     *sql.DB
	Driver string
}

func NewRepo(db *sql.DB, driver string) *Repo {
	return &Repo{DB: db, Driver: driver}
}

func (r *Repo) rebind(q string) string { return database.Rebind(r.Driver, q) }

// Save writes or replaces a run report and its per-source rows.
func (r *Repo) Save(ctx context.Context, res *ingest.RunResult) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO ingest_runs (id, started_at, finished_at, status,
			sources_attempted, sources_succeeded, sources_failed,
			records_extracted, records_persisted, items_skipped, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  finished_at = excluded.finished_at,
		  status = excluded.status,
		  sources_attempted = excluded.sources_attempted,
		  sources_succeeded = excluded.sources_succeeded,
		  sources_failed = excluded.sources_failed,
		  records_extracted = excluded.records_extracted,
		  records_persisted = excluded.records_persisted,
		  items_skipped = excluded.items_skipped,
		  error = excluded.error
	`),
		res.ID, res.StartedAt.UTC(), res.FinishedAt.UTC(), string(res.Status),
		res.SourcesAttempted, res.SourcesSucceeded, res.SourcesFailed,
		res.RecordsExtracted, res.RecordsPersisted, res.ItemsSkipped, res.Error,
	)
	if err != nil {
		return fmt.Errorf("upsert run %s: %w", res.ID, err)
	}

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM ingest_run_sources WHERE run_id = ?`), res.ID); err != nil {
		return fmt.Errorf("clear run sources: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO ingest_run_sources (run_id, position, source, zipcode, url, state,
			kind, reason, items, records, skipped, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	for i, s := range res.Sources {
		if _, err := stmt.ExecContext(ctx,
			res.ID, i, s.Source, s.Zipcode, s.URL, string(s.State),
			string(s.Kind), s.Reason, s.Items, s.Records, s.Skipped, s.Duration.Milliseconds(),
		); err != nil {
			return fmt.Errorf("insert run source %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const runColumns = `id, started_at, finished_at, status, sources_attempted, sources_succeeded,
	sources_failed, records_extracted, records_persisted, items_skipped, error`

func scanRun(s interface{ Scan(...any) error }) (ingest.RunResult, error) {
	var (
		res    ingest.RunResult
		status string
	)
	err := s.Scan(&res.ID, &res.StartedAt, &res.FinishedAt, &status,
		&res.SourcesAttempted, &res.SourcesSucceeded, &res.SourcesFailed,
		&res.RecordsExtracted, &res.RecordsPersisted, &res.ItemsSkipped, &res.Error)
	res.Status = ingest.RunStatus(status)
	return res, err
}

// List returns run summaries, newest first, without per-source rows.
func (r *Repo) List(ctx context.Context, limit, offset int) ([]ingest.RunResult, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.DB.QueryContext(ctx, r.rebind(`SELECT `+runColumns+`
		FROM ingest_runs ORDER BY started_at DESC LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list query: %w", err)
	}
	defer rows.Close()

	out := make([]ingest.RunResult, 0, limit)
	for rows.Next() {
		res, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list scan: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// Get returns one run with its sources, or nil if it does not exist.
func (r *Repo) Get(ctx context.Context, id string) (*ingest.RunResult, error) {
	row := r.DB.QueryRowContext(ctx, r.rebind(`SELECT `+runColumns+` FROM ingest_runs WHERE id = ?`), id)
	res, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	rows, err := r.DB.QueryContext(ctx, r.rebind(`
		SELECT source, zipcode, url, state, kind, reason, items, records, skipped, duration_ms
		FROM ingest_run_sources WHERE run_id = ? ORDER BY position ASC
	`), id)
	if err != nil {
		return nil, fmt.Errorf("sources query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s          ingest.SourceReport
			state      string
			kind       string
			durationMS int64
		)
		if err := rows.Scan(&s.Source, &s.Zipcode, &s.URL, &state, &kind, &s.Reason,
			&s.Items, &s.Records, &s.Skipped, &durationMS); err != nil {
			return nil, fmt.Errorf("sources scan: %w", err)
		}
		s.State = ingest.SourceState(state)
		s.Kind = ingest.FailureKind(kind)
		s.Duration = time.Duration(durationMS) * time.Millisecond
		res.Sources = append(res.Sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return &res, nil
}
