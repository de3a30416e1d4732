package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"pricehub/internal/prices"
	"pricehub/pkg/database"
)

func main() {
	var (
		out     = flag.String("out", "data/prices.csv", "output CSV path")
		item    = flag.String("item", "", "item substring filter")
		store   = flag.String("store", "", "store filter")
		zipcode = flag.String("zipcode", "", "zipcode filter")
		since   = flag.String("since", "", "only rows observed on or after YYYY-MM-DD")
	)
	flag.Parse()

	if *since != "" {
		if _, err := time.Parse("2006-01-02", *since); err != nil {
			log.Fatalf("since must be YYYY-MM-DD: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg := database.DefaultConfig()
	db := database.MustOpen(cfg)
	defer db.Close()

	if err := database.Migrate(db, cfg.Driver); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		log.Fatalf("mkdir failed: %v", err)
	}
	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("create failed: %v", err)
	}
	defer f.Close()

	repo := prices.NewRepo(db, cfg.Driver)
	n, err := repo.ExportCSV(ctx, f, prices.ListQuery{Item: *item, Store: *store, Zipcode: *zipcode, Since: *since})
	if err != nil {
		log.Fatalf("export failed: %v", err)
	}

	log.Printf("✅ exported %d price rows to %s", n, *out)
}
