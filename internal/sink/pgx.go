package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OpenPool connects a pgx pool to Postgres.
func OpenPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnIdleTime = 2 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// PgxSink writes batches to Postgres as a single pipelined pgx.Batch inside
// one transaction.
type PgxSink struct {
	pool   *pgxpool.Pool
	dedupe Dedupe
}

func NewPgx(pool *pgxpool.Pool, dedupe Dedupe) *PgxSink {
	if dedupe == "" {
		dedupe = DedupeNone
	}
	return &PgxSink{pool: pool, dedupe: dedupe}
}

func (s *PgxSink) CommitBatch(ctx context.Context, b Batch) (int, error) {
	if len(b.Records) == 0 {
		return 0, nil
	}

	q := `INSERT INTO groceries (run_id, item, price, unit, store, zipcode, observed_at, price_day)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if s.dedupe == DedupeDaily {
		q += ` ON CONFLICT DO NOTHING`
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range b.Records {
		batch.Queue(q,
			b.RunID, r.Item, r.Price.String(), r.Unit, r.Store, r.Zipcode,
			r.ObservedAt.UTC(), r.PriceDay(),
		)
	}

	br := tx.SendBatch(ctx, batch)
	written := 0
	for i := range b.Records {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("insert record %d: %w", i, err)
		}
		written += int(tag.RowsAffected())
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return written, nil
}
