package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"pricehub/internal/app"
	"pricehub/internal/config"
	"pricehub/internal/ingest"
	"pricehub/internal/logger"
	"pricehub/internal/report"
	"pricehub/internal/source"
	"pricehub/pkg/database"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code: 0 when every source succeeded, 2 when
// the batch committed with failed sources, 1 on a rejected batch and 130 on
// interrupt.
func run() int {
	configPath := flag.String("config", "configs/pricehub.yaml", "ingest config file")
	catalogPath := flag.String("catalog", "", "override the catalog path from the config")
	dryRun := flag.Bool("dry-run", false, "extract without writing to the database")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *catalogPath != "" {
		cfg.Ingest.Catalog = *catalogPath
	}
	lg := logger.New(cfg.Logging.Level)

	cat, err := source.LoadCatalog(cfg.Ingest.Catalog)
	if err != nil {
		log.Fatalf("load catalog: %v", err)
	}
	for _, name := range cat.Disabled {
		lg.Info("source disabled", "source", name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := app.Deps{Config: cfg, Logger: lg, DryRun: *dryRun}
	if !*dryRun {
		dbCfg := database.DefaultConfig()
		db := database.MustOpen(dbCfg)
		defer db.Close()
		deps.DB = db
		deps.DBConfig = dbCfg
	}

	eng, err := app.Build(ctx, deps)
	if err != nil {
		log.Fatalf("setup failed: %v", err)
	}
	defer eng.Close()

	res, runErr := eng.Run(ctx, cat.Sources)
	if err := report.Write(os.Stdout, res); err != nil {
		log.Printf("write report: %v", err)
	}

	switch {
	case runErr == nil:
		if res.SourcesFailed > 0 {
			return 2
		}
		return 0
	case errors.Is(runErr, ingest.ErrRunCancelled):
		log.Printf("run cancelled: %v", runErr)
		return 130
	default:
		log.Printf("run failed: %v", runErr)
		return 1
	}
}
