package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pricehub/internal/fetch"
	"pricehub/internal/source"
)

// Snapshots every catalog source into a directory that mirror-server can
// replay, plus a catalog pointing at it.
func main() {
	var (
		catalogPath = flag.String("catalog", "configs/sources.yaml", "source catalog")
		outDir      = flag.String("out", "data/mirror", "output directory")
		mirrorURL   = flag.String("mirror-url", "http://localhost:9000", "base URL mirror-server will listen on")
		parallel    = flag.Int("parallel", 4, "concurrent fetches")
	)
	flag.Parse()

	cat, err := source.LoadCatalog(*catalogPath)
	if err != nil {
		log.Fatalf("load catalog: %v", err)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("mkdir failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	f := fetch.NewHTTPFetcher(fetch.DefaultOptions())
	mirrored := make([]source.Spec, len(cat.Sources))
	var (
		mu     sync.Mutex
		failed []string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*parallel)
	for i, spec := range cat.Sources {
		g.Go(func() error {
			slug := spec.Slug()
			if err := snapshot(gctx, f, spec.URL, filepath.Join(*outDir, slug+".json")); err != nil {
				mu.Lock()
				failed = append(failed, fmt.Sprintf("%s: %v", spec.Name, err))
				mu.Unlock()
				return nil
			}
			spec.URL = strings.TrimRight(*mirrorURL, "/") + "/stores/" + slug
			mirrored[i] = spec
			return nil
		})
	}
	_ = g.Wait()

	var ok []source.Spec
	for _, s := range mirrored {
		if s.URL != "" {
			ok = append(ok, s)
		}
	}
	for _, msg := range failed {
		log.Printf("skipped %s", msg)
	}
	if len(ok) == 0 {
		log.Fatal("no sources mirrored")
	}

	b, err := source.MarshalCatalog(ok)
	if err != nil {
		log.Fatalf("marshal catalog: %v", err)
	}
	catOut := filepath.Join(*outDir, "sources.yaml")
	if err := os.WriteFile(catOut, b, 0o644); err != nil {
		log.Fatalf("write failed: %v", err)
	}

	log.Printf("✅ mirrored %d/%d sources to %s (catalog %s)", len(ok), len(cat.Sources), *outDir, catOut)
}

func snapshot(ctx context.Context, f fetch.Fetcher, url, path string) error {
	resp, err := f.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := resp.CheckStatus(); err != nil {
		return err
	}
	// validate JSON so a bad snapshot doesn't silently break replay
	if !json.Valid(resp.Body) {
		return fmt.Errorf("response from %s is not valid JSON", url)
	}
	return os.WriteFile(path, resp.Body, 0o644)
}
