package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"pricehub/internal/prices"
	"pricehub/internal/sink"
	"pricehub/pkg/database"
)

// Loads a price CSV as one batch: every row is written or none are.
func main() {
	var (
		in     = flag.String("in", "data/prices.csv", "input CSV path")
		dedupe = flag.String("dedupe", "none", "none or daily")
	)
	flag.Parse()

	mode, err := sink.ParseDedupe(*dedupe)
	if err != nil {
		log.Fatalf("invalid -dedupe: %v", err)
	}

	f, err := os.Open(*in)
	if err != nil {
		log.Fatalf("open failed: %v", err)
	}
	defer f.Close()

	recs, err := prices.ReadCSV(f)
	if err != nil {
		log.Fatalf("parse %s: %v", *in, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg := database.DefaultConfig()
	db := database.MustOpen(cfg)
	defer db.Close()

	if err := database.Migrate(db, cfg.Driver); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}
	if err := database.SyncDailyUnique(db, mode == sink.DedupeDaily); err != nil {
		log.Fatalf("daily index: %v", err)
	}

	batch := sink.Batch{RunID: "import-" + uuid.NewString(), Records: recs}
	n, err := sink.NewSQL(db, cfg.Driver, mode).CommitBatch(ctx, batch)
	if err != nil {
		log.Fatalf("import rolled back: %v", err)
	}

	log.Printf("✅ imported %d of %d rows from %s (run %s)", n, len(recs), *in, batch.RunID)
}
