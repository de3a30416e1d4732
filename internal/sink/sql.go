package sink

import (
	"context"
	"database/sql"
	"fmt"

	"pricehub/pkg/database"
)

const insertGrocery = `
	INSERT INTO groceries (run_id, item, price, unit, store, zipcode, observed_at, price_day)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// SQLSink writes batches through database/sql, one transaction per batch.
type SQLSink struct {
	db     *sql.DB
	driver string
	dedupe Dedupe
}

func NewSQL(db *sql.DB, driver string, dedupe Dedupe) *SQLSink {
	if dedupe == "" {
		dedupe = DedupeNone
	}
	return &SQLSink{db: db, driver: driver, dedupe: dedupe}
}

func (s *SQLSink) query() string {
	q := insertGrocery
	if s.dedupe == DedupeDaily {
		q += `
	ON CONFLICT DO NOTHING`
	}
	return database.Rebind(s.driver, q)
}

func (s *SQLSink) CommitBatch(ctx context.Context, b Batch) (int, error) {
	if len(b.Records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.query())
	if err != nil {
		return 0, fmt.Errorf("prepare stmt: %w", err)
	}
	defer stmt.Close()

	written := 0
	for i, r := range b.Records {
		res, err := stmt.ExecContext(ctx,
			b.RunID,
			r.Item,
			r.Price.String(),
			r.Unit,
			r.Store,
			r.Zipcode,
			r.ObservedAt.UTC(),
			r.PriceDay(),
		)
		if err != nil {
			return 0, fmt.Errorf("insert record %d (%s @ %s): %w", i, r.Item, r.Store, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		written += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return written, nil
}
