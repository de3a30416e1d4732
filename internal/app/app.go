// Package app assembles an ingest.Engine from configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"pricehub/internal/config"
	"pricehub/internal/fetch"
	"pricehub/internal/ingest"
	"pricehub/internal/logger"
	"pricehub/internal/runs"
	"pricehub/internal/sink"
	"pricehub/internal/source"
	"pricehub/pkg/database"
)

type Deps struct {
	Config   *config.Config
	DB       *sql.DB
	DBConfig database.Config
	Logger   *logger.Logger
	// Publisher may be nil.
	Publisher ingest.Publisher
	// DryRun commits to memory and skips the run recorder.
	DryRun bool
}

// Engine is a wired engine plus whatever must be closed with it.
type Engine struct {
	*ingest.Engine
	Sink  sink.Sink
	close func()
}

func (e *Engine) Close() {
	if e.close != nil {
		e.close()
	}
}

// Build prepares the schema and returns an engine writing to the configured
// sink. Postgres uses the pgx pool sink; everything else goes through
// database/sql.
func Build(ctx context.Context, d Deps) (*Engine, error) {
	cfg := d.Config
	out := &Engine{}
	var rec ingest.Recorder

	switch {
	case d.DryRun:
		mem := sink.NewMemory()
		mem.Dedupe = cfg.Dedupe()
		out.Sink = mem
	default:
		if err := database.Migrate(d.DB, d.DBConfig.Driver); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if err := database.SyncDailyUnique(d.DB, cfg.Dedupe() == sink.DedupeDaily); err != nil {
			return nil, fmt.Errorf("daily index: %w", err)
		}
		rec = runs.NewRepo(d.DB, d.DBConfig.Driver)

		if d.DBConfig.Driver == database.DriverPostgres {
			pool, err := sink.OpenPool(ctx, d.DBConfig.DSN, int32(cfg.Ingest.MaxConcurrentFetches)+1)
			if err != nil {
				return nil, fmt.Errorf("pgx pool: %w", err)
			}
			out.Sink = sink.NewPgx(pool, cfg.Dedupe())
			out.close = pool.Close
		} else {
			out.Sink = sink.NewSQL(d.DB, d.DBConfig.Driver, cfg.Dedupe())
		}
	}

	opts := ingest.Options{
		MaxConcurrent: cfg.Ingest.MaxConcurrentFetches,
		RunTimeout:    cfg.RunTimeout(),
		Logger:        d.Logger,
		Publisher:     d.Publisher,
	}
	if rec != nil {
		opts.Recorder = rec
	}
	out.Engine = ingest.New(fetch.NewHTTPFetcher(cfg.FetchOptions()), out.Sink, opts)
	return out, nil
}

// CatalogLoader rereads the catalog on every call so edits apply to the
// next run.
func CatalogLoader(path string) ingest.SpecLoader {
	return func() ([]source.Spec, error) {
		cat, err := source.LoadCatalog(path)
		if err != nil {
			return nil, err
		}
		return cat.Sources, nil
	}
}
